// Package dispatch runs the single goroutine that owns the stabilizer, the
// selection machine and the device link. Every timer, socket event and
// frame result is turned into an inbox message and handled here in order.
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/clock"
	"github.com/DoyleJ11/netra-vaani/internal/device"
	"github.com/DoyleJ11/netra-vaani/internal/engine"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/stabilizer"
	"github.com/DoyleJ11/netra-vaani/internal/store"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

const InboxSize = 64

// FrameLoop produces detections for one session until ctx is done. A
// failure of the frame source is reported through fail and ends the loop.
type FrameLoop interface {
	Run(ctx context.Context, emit func(stabilizer.RawDetection), fail func(error))
}

// Publisher receives a copy of every new view.
type Publisher interface {
	Publish(pub.View)
}

// Recorder persists transcript entries without blocking.
type Recorder interface {
	Record(store.Entry)
}

type Config struct {
	Stabilizer  stabilizer.Config
	Device      device.Config
	Tables      letters.Set
	Mode        letters.Mode
	DefaultHost string
	DefaultPort int
}

type Deps struct {
	Clock     clock.Clock
	Dialer    device.Dialer
	Frames    FrameLoop
	Publisher Publisher
	Recorder  Recorder
	Logger    *zap.Logger
}

type Dispatcher struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
	clock  clock.Clock

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stab    *stabilizer.Stabilizer
	machine *engine.Machine
	link    *device.Link

	mode        letters.Mode
	stable      stabilizer.StableAction
	device      *pub.DeviceView
	text        []rune
	sessionID   string
	active      bool
	sessionGen  int
	stopFrames  context.CancelFunc
	cameraError string

	version int
	dirty   bool
}

func New(parent context.Context, cfg Config, deps Deps) *Dispatcher {
	ctx, cancel := context.WithCancel(parent)
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Dialer == nil {
		deps.Dialer = device.WebsocketDialer{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Stabilizer == (stabilizer.Config{}) {
		cfg.Stabilizer = stabilizer.DefaultConfig()
	}
	if cfg.Tables == nil {
		cfg.Tables = letters.DefaultSet()
	}
	if cfg.Mode == "" {
		cfg.Mode = letters.ModeLetter
	}
	if cfg.DefaultPort <= 0 {
		cfg.DefaultPort = device.DefaultPort
	}

	d := &Dispatcher{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger,
		clock:  deps.Clock,
		inbox:  make(chan Msg, InboxSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		mode:   cfg.Mode,
	}

	d.stab = stabilizer.New(cfg.Stabilizer, clock.Posted(deps.Clock, d.post), deps.Logger.Named("stabilizer"))
	d.stab.OnPublish(d.onStable)
	d.machine = engine.NewMachine(cfg.Tables.Table(cfg.Mode))
	d.link = device.NewLink(cfg.Device, deps.Dialer, deps.Clock, d.post, deps.Logger.Named("device"))
	d.link.SetHooks(device.Hooks{
		OnState:     func(device.ConnectionState) { d.dirty = true },
		OnTelemetry: d.onTelemetry,
	})

	go d.loop()
	return d
}

// Inbox exposes the inbox so the HTTP and websocket layers can send
// messages.
func (d *Dispatcher) Inbox() chan<- Msg { return d.inbox }

// Done is closed once the loop has exited and released the device.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

// Send delivers m unless the dispatcher has stopped.
func (d *Dispatcher) Send(m Msg) bool {
	if d.ctx.Err() != nil {
		return false
	}
	select {
	case d.inbox <- m:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// post hands f to the loop goroutine. Timers, the device link and the frame
// loop use it; after shutdown the callback is dropped.
func (d *Dispatcher) post(f func()) {
	select {
	case d.inbox <- callback(f):
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			d.shutdown()
			return

		case m := <-d.inbox:
			if !d.handle(m) {
				d.shutdown()
				return
			}
			if d.dirty {
				d.dirty = false
				d.version++
				if d.deps.Publisher != nil {
					d.deps.Publisher.Publish(d.view())
				}
			}
		}
	}
}

func (d *Dispatcher) handle(m Msg) bool {
	switch msg := m.(type) {
	case callback:
		msg()

	case Detection:
		if !d.active {
			d.logger.Debug("detection outside a session dropped", zap.Stringer("action", msg.Detection.Action))
			break
		}
		d.stab.Ingest(msg.Detection)

	case Reset:
		d.run(d.machine.Reset())

	case Connect:
		host := msg.Host
		if host == "" {
			host = d.cfg.DefaultHost
		}
		port := msg.Port
		if port <= 0 {
			port = d.cfg.DefaultPort
		}
		if host == "" {
			d.logger.Warn("connect without a device host")
			break
		}
		d.link.Connect(host, port)

	case Disconnect:
		if err := d.link.Disconnect(); err != nil {
			d.logger.Warn("device close", zap.Error(err))
		}

	case SetMode:
		if msg.Mode == d.mode {
			break
		}
		d.logger.Info("mode changed", zap.String("from", string(d.mode)), zap.String("to", string(msg.Mode)))
		d.mode = msg.Mode
		d.run(d.machine.SetTable(d.cfg.Tables.Table(msg.Mode)))

	case Tap:
		if msg.Char == "" {
			break
		}
		d.appendToken(msg.Char, store.SourceTap, -1, -1)

	case ClearText:
		if len(d.text) > 0 {
			d.text = nil
			d.dirty = true
		}

	case StartSession:
		d.startSession()
		if msg.Reply != nil {
			msg.Reply <- d.sessionID
		}

	case StopSession:
		d.stopSession("stopped")
		if msg.Reply != nil {
			close(msg.Reply)
		}

	case GetState:
		msg.Reply <- d.view()

	case Shutdown:
		return false

	default:
		d.logger.Warn("unknown message", zap.Any("msg", m))
	}
	return true
}

func (d *Dispatcher) startSession() {
	if d.active {
		return
	}
	d.sessionGen++
	gen := d.sessionGen
	d.sessionID = uuid.NewString()
	d.active = true
	d.cameraError = ""
	d.dirty = true
	d.logger.Info("session started", zap.String("session", d.sessionID), zap.String("mode", string(d.mode)))

	if d.deps.Frames == nil {
		return
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.stopFrames = cancel
	emit := func(det stabilizer.RawDetection) {
		d.post(func() {
			if gen == d.sessionGen && d.active {
				d.stab.Ingest(det)
			}
		})
	}
	fail := func(err error) {
		d.post(func() { d.onCameraFailed(gen, err) })
	}
	go d.deps.Frames.Run(ctx, emit, fail)
}

// stopSession releases everything a session holds: the frame loop, the
// clear timer, the connect timer and the transport.
func (d *Dispatcher) stopSession(reason string) {
	if d.stopFrames != nil {
		d.stopFrames()
		d.stopFrames = nil
	}
	d.stab.ForceClear()
	if err := d.link.Disconnect(); err != nil {
		d.logger.Warn("device close", zap.Error(err))
	}
	if !d.active {
		return
	}
	d.sessionGen++
	d.active = false
	d.dirty = true
	d.logger.Info("session stopped", zap.String("session", d.sessionID), zap.String("reason", reason))
}

func (d *Dispatcher) onCameraFailed(gen int, err error) {
	if gen != d.sessionGen || !d.active {
		return
	}
	d.logger.Error("frame source failed", zap.Error(err))
	d.cameraError = err.Error()
	d.stopSession("camera error")
}

func (d *Dispatcher) onStable(sa stabilizer.StableAction) {
	d.stable = sa
	d.dirty = true
	d.run(d.machine.Observe(sa.Action))
}

func (d *Dispatcher) onTelemetry(t device.Telemetry) {
	switch t.Kind {
	case device.KindStatus:
		d.device = &pub.DeviceView{ColorName: t.Status.ColorName, Angle: t.Status.Angle, Moving: t.Status.Moving}
		d.dirty = true

	case device.KindSelection:
		group := t.Selection.GroupIndex
		if group < 0 || group >= d.machine.Table().Groups() {
			i, ok := d.machine.Table().IndexOf(t.Selection.ColorName)
			if !ok {
				d.logger.Debug("selection telemetry matches no group",
					zap.Int("group", t.Selection.GroupIndex), zap.String("color", t.Selection.ColorName))
				return
			}
			group = i
		}
		d.run(d.machine.Override(group))
	}
}

// run carries out what the machine decided: commands go to the device,
// tokens to the transcript.
func (d *Dispatcher) run(events []engine.Event, err error) {
	if err != nil {
		d.logger.Warn("selection input rejected", zap.Error(err))
		return
	}
	if len(events) == 0 {
		return
	}
	d.dirty = true
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtCommandIssued:
			if out := d.link.Send(device.Command{Action: ev.Command}); out == device.NotSent {
				d.logger.Warn("device command not sent",
					zap.Stringer("action", ev.Command), zap.String("status", d.link.State().Label()))
			}
		case engine.EvtTokenEmitted:
			d.appendToken(ev.Token, store.SourceBlink, ev.Group, ev.Position)
		}
	}
}

func (d *Dispatcher) appendToken(tok string, src store.Source, group, position int) {
	d.text = append(d.text, []rune(tok)...)
	d.dirty = true
	if d.deps.Recorder == nil {
		return
	}
	d.deps.Recorder.Record(store.Entry{
		ID:         uuid.New(),
		SessionID:  d.sessionID,
		Mode:       string(d.mode),
		Token:      tok,
		Source:     src,
		GroupIndex: group,
		Position:   position,
		CreatedAt:  d.clock.Now().UTC(),
	})
}

func (d *Dispatcher) view() pub.View {
	st := d.machine.State()
	table := d.machine.Table()

	sel := pub.SelectionView{
		State:         string(st.Mode),
		GroupIndex:    st.GroupIndex,
		PositionIndex: st.PositionIndex,
	}
	if g, ok := table.Group(st.GroupIndex); ok {
		sel.GroupName = g.Name
	}
	sel.Candidate, _ = d.machine.Candidate()

	cs := d.link.State()
	v := pub.View{
		Version:   d.version,
		SessionID: d.sessionID,
		Active:    d.active,
		Mode:      string(d.mode),
		Action:    d.stable.Action.String(),
		Progress:  d.stable.Progress,
		Selection: sel,
		Connection: pub.ConnectionView{
			Status:   cs.Label(),
			Attempts: cs.Attempts,
			Address:  cs.Address,
		},
		Text:        string(d.text),
		CameraError: d.cameraError,
	}
	if d.device != nil {
		dv := *d.device
		v.Device = &dv
	}
	return v
}

func (d *Dispatcher) shutdown() {
	d.stopSession("shutdown")
	d.cancel()
}
