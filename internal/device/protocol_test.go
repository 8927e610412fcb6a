package device

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/netra-vaani/internal/types"
)

func TestEncodeCommand(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	data, err := EncodeCommand(Command{Action: types.ActionReset, SentAt: at})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"RESET","timestamp":1700000000123}`, string(data))

	_, err = EncodeCommand(Command{Action: types.ActionNone, SentAt: at})
	assert.True(t, errors.Is(err, ErrInvalidCommand))
}

func TestDecodeTelemetry(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr error
		check   func(t *testing.T, tm Telemetry)
	}{
		{
			name:    "status",
			payload: `{"type":"status","colorName":"Pink","currentAngle":120.5,"isMoving":false}`,
			check: func(t *testing.T, tm Telemetry) {
				require.Equal(t, KindStatus, tm.Kind)
				require.NotNil(t, tm.Status)
				assert.Nil(t, tm.Selection)
				assert.Equal(t, StatusReport{ColorName: "Pink", Angle: 120.5}, *tm.Status)
			},
		},
		{
			name:    "selection",
			payload: `{"type":"selection","colorGroup":2,"colorName":"Pink","angle":120}`,
			check: func(t *testing.T, tm Telemetry) {
				require.Equal(t, KindSelection, tm.Kind)
				assert.Equal(t, Selection{GroupIndex: 2, ColorName: "Pink", Angle: 120}, *tm.Selection)
			},
		},
		{
			name:    "selection without group",
			payload: `{"type":"selection","colorName":"Red","angle":300}`,
			check: func(t *testing.T, tm Telemetry) {
				assert.Equal(t, -1, tm.Selection.GroupIndex)
			},
		},
		{name: "not json", payload: `status`, wantErr: ErrMalformedTelemetry},
		{name: "wrong field type", payload: `{"type":"status","isMoving":"yes"}`, wantErr: ErrMalformedTelemetry},
		{name: "unknown kind", payload: `{"type":"hello"}`, wantErr: ErrUnknownTelemetry},
		{name: "missing kind", payload: `{}`, wantErr: ErrUnknownTelemetry},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tm, err := DecodeTelemetry([]byte(tc.payload))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, tm)
		})
	}
}

func TestConnectionStateLabel(t *testing.T) {
	cases := map[string]ConnectionState{
		"Offline":            {Status: StatusDisconnected},
		"Connecting":         {Status: StatusConnecting},
		"Online":             {Status: StatusConnected},
		"Connection Timeout": {Status: StatusFailed, Reason: ReasonTimeout},
		"Connection Error":   {Status: StatusFailed, Reason: ReasonError},
	}
	for want, st := range cases {
		if got := st.Label(); got != want {
			t.Errorf("Label() = %q, want %q", got, want)
		}
	}
}
