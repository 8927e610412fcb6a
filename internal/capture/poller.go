package capture

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/classifier"
	"github.com/DoyleJ11/netra-vaani/internal/stabilizer"
)

const MaxFPS = 15

// Poller grabs a frame, classifies it and emits the detection, at most FPS
// times a second. Frames are processed one at a time, so there is never more
// than one classifier request in flight; ticks that land while a request is
// running are dropped.
type Poller struct {
	Source     Source
	Classifier classifier.Classifier
	FPS        float64
	Logger     *zap.Logger
}

func (p *Poller) interval() time.Duration {
	fps := p.FPS
	if fps <= 0 || fps > MaxFPS {
		fps = MaxFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

// Run implements the dispatcher's frame loop. It returns when ctx is done or
// the source fails.
func (p *Poller) Run(ctx context.Context, emit func(stabilizer.RawDetection), fail func(error)) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	skipped := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := p.Source.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(err)
			return
		}

		action, err := p.Classifier.Classify(ctx, frame)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			skipped++
			// Warn once per run of failures.
			if skipped == 1 {
				logger.Warn("classifier failed, skipping frames", zap.Error(err))
			} else {
				logger.Debug("frame skipped", zap.Error(err), zap.Int("skipped", skipped))
			}
			continue
		}
		if skipped > 0 {
			logger.Info("classifier recovered", zap.Int("skipped", skipped))
			skipped = 0
		}

		// The HTTP classifier reports no hold progress.
		emit(stabilizer.RawDetection{Action: action, ObservedAt: time.Now()})
	}
}
