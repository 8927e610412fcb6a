package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/netra-vaani/internal/clock"
	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeConn struct {
	in        chan []byte
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 8),
		written: make(chan []byte, 8),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-c.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	c.written <- data
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type dialFunc func(ctx context.Context, url string) (Conn, error)

type fakeDialer struct {
	calls atomic.Int32
	dial  dialFunc
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.calls.Add(1)
	return d.dial(ctx, url)
}

// unreachable blocks until the dial is cancelled, like a SYN that never gets
// an answer.
func unreachable(ctx context.Context, _ string) (Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type linkHarness struct {
	clk       *clock.Fake
	queue     chan func()
	link      *Link
	dialer    *fakeDialer
	states    []ConnectionState
	telemetry []Telemetry
}

func newLinkHarness(t *testing.T, dial dialFunc) *linkHarness {
	t.Helper()
	h := &linkHarness{
		clk:    clock.NewFake(epoch),
		queue:  make(chan func(), 64),
		dialer: &fakeDialer{dial: dial},
	}
	post := func(f func()) { h.queue <- f }
	h.link = NewLink(DefaultConfig(), h.dialer, h.clk, post, zaptest.NewLogger(t))
	h.link.SetHooks(Hooks{
		OnState:     func(s ConnectionState) { h.states = append(h.states, s) },
		OnTelemetry: func(tm Telemetry) { h.telemetry = append(h.telemetry, tm) },
	})
	t.Cleanup(func() { _ = h.link.Disconnect() })
	return h
}

// pump runs one queued callback, standing in for the dispatcher loop.
func (h *linkHarness) pump(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case f := <-h.queue:
		f()
	case <-time.After(within):
		t.Fatalf("timed out waiting for a link callback")
	}
}

func (h *linkHarness) pumpNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case <-h.queue:
		t.Fatalf("expected no link callback within %v", within)
	case <-time.After(within):
	}
}

func connected(t *testing.T) (*linkHarness, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	h := newLinkHarness(t, func(context.Context, string) (Conn, error) { return conn, nil })
	require.True(t, h.link.Connect("10.0.0.7", 81))
	h.pump(t, time.Second)
	require.Equal(t, StatusConnected, h.link.State().Status)
	return h, conn
}

func TestConnect_SuccessResetsAttemptsAndClearsTimer(t *testing.T) {
	h, _ := connected(t)

	st := h.link.State()
	assert.Equal(t, "Online", st.Label())
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, "ws://10.0.0.7:81/", st.Address)
	assert.False(t, h.link.Pending())
	assert.Zero(t, h.clk.Pending())

	require.Len(t, h.states, 2)
	assert.Equal(t, StatusConnecting, h.states[0].Status)
	assert.Equal(t, 1, h.states[0].Attempts)
}

func TestConnect_NoOpWhileConnecting(t *testing.T) {
	h := newLinkHarness(t, unreachable)

	require.True(t, h.link.Connect("10.0.0.7", 81))
	assert.False(t, h.link.Connect("10.0.0.7", 81))
	assert.False(t, h.link.Connect("10.0.0.8", 81))

	assert.Equal(t, 1, h.link.State().Attempts)
	assert.Equal(t, 1, h.clk.Pending(), "only one connect timer armed")
	assert.Eventually(t, func() bool { return h.dialer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnect_NoOpWhileConnected(t *testing.T) {
	h, _ := connected(t)
	assert.False(t, h.link.Connect("10.0.0.7", 81))
	assert.Equal(t, int32(1), h.dialer.calls.Load())
}

func TestConnect_TimeoutAtExactlyConnectTimeout(t *testing.T) {
	h := newLinkHarness(t, unreachable)
	require.True(t, h.link.Connect("192.0.2.1", 81))

	h.clk.Advance(DefaultConnectTimeout - time.Millisecond)
	h.pumpNone(t, 50*time.Millisecond)
	assert.Equal(t, StatusConnecting, h.link.State().Status)

	h.clk.Advance(time.Millisecond)
	h.pump(t, time.Second)

	st := h.link.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, ReasonTimeout, st.Reason)
	assert.Equal(t, "Connection Timeout", st.Label())
	assert.Equal(t, 1, st.Attempts, "attempts survive a failure")

	// The cancelled dial reports back late; it must not disturb the state.
	h.pump(t, time.Second)
	assert.Equal(t, StatusFailed, h.link.State().Status)
}

func TestConnect_DialErrorThenRetry(t *testing.T) {
	h := newLinkHarness(t, func(context.Context, string) (Conn, error) {
		return nil, errors.New("connection refused")
	})
	require.True(t, h.link.Connect("10.0.0.7", 81))
	h.pump(t, time.Second)

	st := h.link.State()
	assert.Equal(t, "Connection Error", st.Label())
	assert.Equal(t, "connection refused", st.Err)
	assert.Zero(t, h.clk.Pending())

	require.True(t, h.link.Connect("10.0.0.7", 81), "failed links accept a retry")
	assert.Equal(t, 2, h.link.State().Attempts)
}

func TestConnect_LateSuccessAfterTimeoutIsClosed(t *testing.T) {
	conn := newFakeConn()
	release := make(chan struct{})
	h := newLinkHarness(t, func(context.Context, string) (Conn, error) {
		<-release
		return conn, nil
	})
	require.True(t, h.link.Connect("10.0.0.7", 81))

	h.clk.Advance(DefaultConnectTimeout)
	h.pump(t, time.Second)
	require.Equal(t, StatusFailed, h.link.State().Status)

	close(release)
	h.pump(t, time.Second)
	assert.True(t, conn.isClosed(), "half-open transport must be closed")
	assert.Equal(t, StatusFailed, h.link.State().Status)
}

func TestSend_NotConnectedIsNotSent(t *testing.T) {
	h := newLinkHarness(t, unreachable)

	got := h.link.Send(Command{Action: types.ActionUp})

	assert.Equal(t, NotSent, got)
	assert.Equal(t, "not sent", got.String())
	assert.Zero(t, h.dialer.calls.Load(), "no transport I/O")
}

func TestSend_WritesWireCommand(t *testing.T) {
	h, conn := connected(t)

	require.Equal(t, Sent, h.link.Send(Command{Action: types.ActionSelect}))

	select {
	case data := <-conn.written:
		var msg pub.CommandMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "SELECT", msg.Action)
		assert.Equal(t, epoch.UnixMilli(), msg.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("command never reached the transport")
	}
}

func TestInbound_TelemetryDelivered(t *testing.T) {
	h, conn := connected(t)

	conn.in <- []byte(`{"type":"selection","colorGroup":3,"colorName":"Blue","angle":180}`)
	h.pump(t, time.Second)
	conn.in <- []byte(`{"type":"status","colorName":"Blue","currentAngle":182.5,"isMoving":true}`)
	h.pump(t, time.Second)

	require.Len(t, h.telemetry, 2)
	assert.Equal(t, KindSelection, h.telemetry[0].Kind)
	assert.Equal(t, 3, h.telemetry[0].Selection.GroupIndex)
	assert.Equal(t, KindStatus, h.telemetry[1].Kind)
	assert.True(t, h.telemetry[1].Status.Moving)
}

func TestInbound_MalformedDroppedConnectionKept(t *testing.T) {
	h, conn := connected(t)

	conn.in <- []byte(`{not json`)
	h.pump(t, time.Second)
	conn.in <- []byte(`{"type":"battery","level":3}`)
	h.pump(t, time.Second)

	assert.Empty(t, h.telemetry)
	assert.Equal(t, StatusConnected, h.link.State().Status)
}

func TestRemoteClose_GoesOffline(t *testing.T) {
	h, conn := connected(t)

	close(conn.in)
	h.pump(t, time.Second)

	assert.Equal(t, "Offline", h.link.State().Label())
	assert.True(t, conn.isClosed())
	assert.Equal(t, NotSent, h.link.Send(Command{Action: types.ActionUp}))
}

func TestDisconnect_Idempotent(t *testing.T) {
	h, conn := connected(t)
	before := len(h.states)

	require.NoError(t, h.link.Disconnect())
	assert.True(t, conn.isClosed())
	assert.Equal(t, StatusDisconnected, h.link.State().Status)

	require.NoError(t, h.link.Disconnect())
	assert.Len(t, h.states, before+1, "second disconnect publishes nothing")
}

func TestDisconnect_WhileConnectingCancelsTimer(t *testing.T) {
	h := newLinkHarness(t, unreachable)
	require.True(t, h.link.Connect("192.0.2.1", 81))

	require.NoError(t, h.link.Disconnect())

	assert.Zero(t, h.clk.Pending())
	assert.False(t, h.link.Pending())
	// The aborted dial posts its result; it is ignored.
	h.pump(t, time.Second)
	assert.Equal(t, StatusDisconnected, h.link.State().Status)
}
