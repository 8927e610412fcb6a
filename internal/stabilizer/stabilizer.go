// Package stabilizer turns the noisy per-frame classifier output into a
// debounced, time-bounded stable action.
package stabilizer

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/clock"
	"github.com/DoyleJ11/netra-vaani/internal/types"
)

const (
	DefaultDebounceInterval = 300 * time.Millisecond
	DefaultClearDelay       = 3000 * time.Millisecond
	DefaultMinProgressDelta = 0.05
)

type Config struct {
	DebounceInterval time.Duration
	ClearDelay       time.Duration
	MinProgressDelta float64
}

func DefaultConfig() Config {
	return Config{
		DebounceInterval: DefaultDebounceInterval,
		ClearDelay:       DefaultClearDelay,
		MinProgressDelta: DefaultMinProgressDelta,
	}
}

type RawDetection struct {
	Action     types.Action
	Progress   float64
	ObservedAt time.Time
}

type StableAction struct {
	Action      types.Action
	Progress    float64
	ConfirmedAt time.Time
}

// Listener receives every publish: a new action, a new progress value or a
// clear. It runs on the caller's goroutine.
type Listener func(StableAction)

// Stabilizer is not safe for concurrent use. The dispatcher owns it and
// builds it with a clock.Posted clock so the clear timer lands on the same
// goroutine as Ingest.
type Stabilizer struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	current        StableAction
	lastAction     types.Action
	lastProgress   float64
	lastAcceptedAt time.Time
	accepted       bool

	clearTimer clock.Timer
	clearGen   int

	listener Listener
}

func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Stabilizer {
	if cfg.DebounceInterval < 0 {
		cfg.DebounceInterval = 0
	}
	if cfg.ClearDelay <= 0 {
		cfg.ClearDelay = DefaultClearDelay
	}
	if cfg.MinProgressDelta < 0 {
		cfg.MinProgressDelta = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stabilizer{cfg: cfg, clock: clk, logger: logger}
}

func (s *Stabilizer) OnPublish(l Listener) { s.listener = l }

func (s *Stabilizer) Current() StableAction { return s.current }

// Ingest applies one raw sample. It reports whether the sample was accepted.
func (s *Stabilizer) Ingest(d RawDetection) bool {
	t := d.ObservedAt
	if t.IsZero() {
		t = s.clock.Now()
	}
	if s.accepted && t.Sub(s.lastAcceptedAt) < s.cfg.DebounceInterval {
		return false
	}

	progress := clamp01(d.Progress)
	actionChanged := d.Action != s.lastAction
	progressChanged := math.Abs(progress-s.lastProgress) > s.cfg.MinProgressDelta
	if !actionChanged && !progressChanged {
		return false
	}

	s.accepted = true
	s.lastAcceptedAt = t

	publish := false
	if actionChanged && d.Action != types.ActionNone {
		s.lastAction = d.Action
		s.current.Action = d.Action
		s.current.ConfirmedAt = t
		s.armClear()
		publish = true
		s.logger.Debug("action confirmed", zap.Stringer("action", d.Action))
	}
	if progressChanged {
		s.lastProgress = progress
		s.current.Progress = progress
		publish = true
	}
	if publish {
		s.emit()
	}
	return true
}

// ForceClear drops any pending clear timer and empties the stable action now.
func (s *Stabilizer) ForceClear() {
	s.stopClear()
	s.lastAction = types.ActionNone
	if s.current.Action == types.ActionNone {
		return
	}
	s.current.Action = types.ActionNone
	s.emit()
}

// Pending reports whether a clear timer is armed.
func (s *Stabilizer) Pending() bool { return s.clearTimer != nil }

func (s *Stabilizer) armClear() {
	s.stopClear()
	gen := s.clearGen
	s.clearTimer = s.clock.AfterFunc(s.cfg.ClearDelay, func() { s.fireClear(gen) })
}

func (s *Stabilizer) stopClear() {
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	// A callback already handed to the dispatcher inbox must not clear a
	// newer confirmation.
	s.clearGen++
}

func (s *Stabilizer) fireClear(gen int) {
	if gen != s.clearGen {
		return
	}
	s.clearTimer = nil
	s.lastAction = types.ActionNone
	s.current.Action = types.ActionNone
	s.logger.Debug("action cleared")
	s.emit()
}

func (s *Stabilizer) emit() {
	if s.listener != nil {
		s.listener(s.current)
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
