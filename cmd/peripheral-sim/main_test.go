package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/netra-vaani/internal/device"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

func TestWheel_EngagedStepsClamp(t *testing.T) {
	w := newWheel(letters.WheelColors, 6)

	w.Apply(types.ActionSelect)
	for i := 0; i < 8; i++ {
		w.Apply(types.ActionUp)
	}
	assert.Equal(t, 5, w.position)
	assert.Equal(t, 0, w.group, "engaged steps never change the group")

	w.Apply(types.ActionDown)
	assert.Equal(t, 4, w.position)

	out := w.Apply(types.ActionSelect)
	require.Len(t, out, 1)
	assert.False(t, w.engaged)
	assert.Equal(t, 0, w.position)
}

func TestWheel_IdleTurnReportsSelection(t *testing.T) {
	w := newWheel(letters.WheelColors, 6)

	out := w.Apply(types.ActionDown)
	require.Len(t, out, 2)
	sel, ok := out[1].(pub.SelectionMessage)
	require.True(t, ok)
	assert.Equal(t, 5, sel.ColorGroup)
	assert.Equal(t, "Red", sel.ColorName)
	assert.InDelta(t, 300, sel.Angle, 1e-9)

	w.Apply(types.ActionReset)
	st := w.Status()
	assert.Equal(t, "Green", st.ColorName)
	assert.Zero(t, st.CurrentAngle)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want types.Action
		ok   bool
	}{
		{"UP", types.ActionUp, true},
		{"SELECT", types.ActionSelect, true},
		{"RESET", types.ActionReset, true},
		{"NONE", types.ActionNone, false},
		{"SPIN", types.ActionNone, false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSim_SpeaksDeviceProtocol(t *testing.T) {
	srv := httptest.NewServer(newSim(letters.WheelColors, 0, zaptest.NewLogger(t)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer c.CloseNow()

	cmd, err := device.EncodeCommand(device.Command{Action: types.ActionUp, SentAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, c.Write(ctx, websocket.MessageText, cmd))

	var kinds []device.TelemetryKind
	var sel *device.Selection
	for i := 0; i < 2; i++ {
		_, data, err := c.Read(ctx)
		require.NoError(t, err)
		tel, err := device.DecodeTelemetry(data)
		require.NoError(t, err)
		kinds = append(kinds, tel.Kind)
		if tel.Selection != nil {
			sel = tel.Selection
		}
	}
	assert.Equal(t, []device.TelemetryKind{device.KindStatus, device.KindSelection}, kinds)
	require.NotNil(t, sel)
	assert.Equal(t, 1, sel.GroupIndex)
	assert.Equal(t, "Yellow", sel.ColorName)

	// Unknown actions are ignored and the connection stays up.
	require.NoError(t, wsjson.Write(ctx, c, pub.CommandMessage{Action: "SPIN"}))
	require.NoError(t, wsjson.Write(ctx, c, pub.CommandMessage{Action: "RESET"}))
	var st pub.StatusMessage
	require.NoError(t, wsjson.Read(ctx, c, &st))
	assert.Equal(t, pub.TelemetryStatus, st.Type)
	assert.Equal(t, "Green", st.ColorName)
}
