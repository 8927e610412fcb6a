// Package device owns the persistent connection to the motorized peripheral:
// connect with timeout, command send, inbound telemetry and teardown.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/clock"
)

const (
	DefaultPort           = 81
	DefaultConnectTimeout = 5000 * time.Millisecond
	DefaultWriteTimeout   = 3 * time.Second
	DefaultOutboxSize     = 16
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type FailReason string

const (
	ReasonTimeout FailReason = "timeout"
	ReasonError   FailReason = "error"
)

type ConnectionState struct {
	Status   Status
	Reason   FailReason // set only when Status is StatusFailed
	Attempts int
	Address  string
	Err      string
}

// Label is the operator-facing status string.
func (c ConnectionState) Label() string {
	switch c.Status {
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Online"
	case StatusFailed:
		if c.Reason == ReasonTimeout {
			return "Connection Timeout"
		}
		return "Connection Error"
	default:
		return "Offline"
	}
}

type SendOutcome int

const (
	Sent SendOutcome = iota
	// NotSent means the link was not connected or its outbox was full. The
	// command is dropped.
	NotSent
)

func (o SendOutcome) String() string {
	if o == Sent {
		return "sent"
	}
	return "not sent"
}

type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
	// Path is appended to ws://host:port, "/" by default.
	Path string
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		OutboxSize:     DefaultOutboxSize,
		Path:           "/",
	}
}

type Hooks struct {
	OnState     func(ConnectionState)
	OnTelemetry func(Telemetry)
}

// Link is not safe for concurrent use. Every method and hook runs on the
// goroutine that executes post; dial, read and write goroutines only ever
// talk back through post.
type Link struct {
	cfg    Config
	dialer Dialer
	clock  clock.Clock
	post   func(func())
	logger *zap.Logger
	hooks  Hooks

	state ConnectionState
	gen   int

	timer      clock.Timer
	cancelDial context.CancelFunc
	conn       Conn
	cancelConn context.CancelFunc
	outbox     chan []byte
}

func NewLink(cfg Config, dialer Dialer, clk clock.Clock, post func(func()), logger *zap.Logger) *Link {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = def.OutboxSize
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{
		cfg:    cfg,
		dialer: dialer,
		clock:  clock.Posted(clk, post),
		post:   post,
		logger: logger,
	}
}

func (l *Link) SetHooks(h Hooks) { l.hooks = h }

func (l *Link) State() ConnectionState { return l.state }

// Pending reports whether a connect timeout is armed.
func (l *Link) Pending() bool { return l.timer != nil }

// Connect starts dialing host:port. It is a no-op returning false while a
// connection is being established or is open.
func (l *Link) Connect(host string, port int) bool {
	if l.state.Status == StatusConnecting || l.state.Status == StatusConnected {
		l.logger.Debug("connect ignored", zap.Stringer("status", l.state.Status))
		return false
	}
	if port <= 0 {
		port = DefaultPort
	}

	l.gen++
	gen := l.gen
	url := fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), l.cfg.Path)

	ctx, cancel := context.WithCancel(context.Background())
	l.cancelDial = cancel
	l.state = ConnectionState{
		Status:   StatusConnecting,
		Attempts: l.state.Attempts + 1,
		Address:  url,
	}
	l.timer = l.clock.AfterFunc(l.cfg.ConnectTimeout, func() { l.onTimeout(gen) })

	l.logger.Info("connecting", zap.String("url", url), zap.Int("attempt", l.state.Attempts))
	go func() {
		conn, err := l.dialer.Dial(ctx, url)
		l.post(func() { l.onDial(gen, conn, err) })
	}()

	l.notify()
	return true
}

// Send queues cmd for transmission. It never blocks and never fails loudly:
// callers log NotSent and move on.
func (l *Link) Send(cmd Command) SendOutcome {
	if l.state.Status != StatusConnected {
		return NotSent
	}
	if cmd.SentAt.IsZero() {
		cmd.SentAt = l.clock.Now()
	}
	data, err := EncodeCommand(cmd)
	if err != nil {
		l.logger.Warn("encode command", zap.Error(err))
		return NotSent
	}
	select {
	case l.outbox <- data:
		return Sent
	default:
		l.logger.Warn("device outbox full, dropping command", zap.Stringer("action", cmd.Action))
		return NotSent
	}
}

// Disconnect closes the link. Calling it on a closed link does nothing.
func (l *Link) Disconnect() error {
	if l.state.Status == StatusDisconnected {
		return nil
	}
	err := l.teardown()
	l.state.Status = StatusDisconnected
	l.state.Reason = ""
	l.state.Err = ""
	l.logger.Info("disconnected", zap.String("url", l.state.Address))
	l.notify()
	return err
}

func (l *Link) onTimeout(gen int) {
	if gen != l.gen || l.state.Status != StatusConnecting {
		return
	}
	l.timer = nil
	_ = l.teardown()
	l.state.Status = StatusFailed
	l.state.Reason = ReasonTimeout
	l.state.Err = fmt.Sprintf("no answer within %s", l.cfg.ConnectTimeout)
	l.logger.Warn("connect timed out", zap.String("url", l.state.Address), zap.Duration("timeout", l.cfg.ConnectTimeout))
	l.notify()
}

func (l *Link) onDial(gen int, conn Conn, err error) {
	if gen != l.gen || l.state.Status != StatusConnecting {
		// Late result from an attempt that already timed out or was
		// cancelled.
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	l.stopTimer()

	if err != nil {
		l.cancelDial()
		l.cancelDial = nil
		l.state.Status = StatusFailed
		l.state.Reason = ReasonError
		l.state.Err = err.Error()
		l.logger.Warn("connect failed", zap.String("url", l.state.Address), zap.Error(err))
		l.notify()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.conn = conn
	l.cancelConn = cancel
	l.outbox = make(chan []byte, l.cfg.OutboxSize)
	l.state.Status = StatusConnected
	l.state.Attempts = 0
	l.state.Err = ""

	go l.readLoop(ctx, gen, conn)
	go l.writeLoop(ctx, gen, conn, l.outbox)

	l.logger.Info("connected", zap.String("url", l.state.Address))
	l.notify()
}

func (l *Link) readLoop(ctx context.Context, gen int, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			l.post(func() { l.onClosed(gen, err) })
			return
		}
		l.post(func() { l.onMessage(gen, data) })
	}
}

func (l *Link) writeLoop(ctx context.Context, gen int, conn Conn, outbox <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-outbox:
			wctx, cancel := context.WithTimeout(ctx, l.cfg.WriteTimeout)
			err := conn.Write(wctx, data)
			cancel()
			if err != nil {
				l.post(func() { l.onClosed(gen, err) })
				return
			}
		}
	}
}

func (l *Link) onMessage(gen int, data []byte) {
	if gen != l.gen {
		return
	}
	t, err := DecodeTelemetry(data)
	if err != nil {
		l.logger.Debug("dropping telemetry", zap.Error(err), zap.ByteString("payload", data))
		return
	}
	if l.hooks.OnTelemetry != nil {
		l.hooks.OnTelemetry(t)
	}
}

func (l *Link) onClosed(gen int, err error) {
	if gen != l.gen || l.state.Status != StatusConnected {
		return
	}
	if errors.Is(err, io.EOF) {
		l.logger.Info("peripheral closed the connection", zap.String("url", l.state.Address))
	} else {
		l.logger.Warn("connection lost", zap.String("url", l.state.Address), zap.Error(err))
	}
	_ = l.teardown()
	l.state.Status = StatusDisconnected
	l.notify()
}

// teardown releases the timer, any in-flight dial and the open transport.
// Bumping gen turns every queued callback for the old attempt into a no-op.
func (l *Link) teardown() error {
	l.gen++
	l.stopTimer()
	if l.cancelDial != nil {
		l.cancelDial()
		l.cancelDial = nil
	}
	var err error
	if l.cancelConn != nil {
		l.cancelConn()
		l.cancelConn = nil
	}
	if l.conn != nil {
		err = l.conn.Close()
		l.conn = nil
	}
	l.outbox = nil
	return err
}

func (l *Link) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Link) notify() {
	if l.hooks.OnState != nil {
		l.hooks.OnState(l.state)
	}
}
