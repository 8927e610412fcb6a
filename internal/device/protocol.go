package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

var (
	ErrMalformedTelemetry = errors.New("malformed telemetry")
	ErrUnknownTelemetry   = errors.New("unknown telemetry kind")
	ErrInvalidCommand     = errors.New("invalid device command")
)

// Command is built, sent and forgotten.
type Command struct {
	Action types.Action
	SentAt time.Time
}

func EncodeCommand(c Command) ([]byte, error) {
	switch c.Action {
	case types.ActionUp, types.ActionDown, types.ActionSelect, types.ActionReset:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, c.Action)
	}
	return json.Marshal(pub.CommandMessage{
		Action:    string(c.Action),
		Timestamp: c.SentAt.UnixMilli(),
	})
}

type TelemetryKind string

const (
	KindStatus    TelemetryKind = pub.TelemetryStatus
	KindSelection TelemetryKind = pub.TelemetrySelection
)

// Telemetry is a tagged union; exactly one of Status and Selection is set,
// matching Kind.
type Telemetry struct {
	Kind      TelemetryKind
	Status    *StatusReport
	Selection *Selection
}

type StatusReport struct {
	ColorName string
	Angle     float64
	Moving    bool
}

type Selection struct {
	// GroupIndex is -1 when the device omitted colorGroup.
	GroupIndex int
	ColorName  string
	Angle      float64
}

func DecodeTelemetry(data []byte) (Telemetry, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
	}

	switch env.Type {
	case pub.TelemetryStatus:
		var m pub.StatusMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
		}
		return Telemetry{Kind: KindStatus, Status: &StatusReport{
			ColorName: m.ColorName,
			Angle:     m.CurrentAngle,
			Moving:    m.IsMoving,
		}}, nil

	case pub.TelemetrySelection:
		var m struct {
			ColorGroup *int    `json:"colorGroup"`
			ColorName  string  `json:"colorName"`
			Angle      float64 `json:"angle"`
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedTelemetry, err)
		}
		group := -1
		if m.ColorGroup != nil {
			group = *m.ColorGroup
		}
		return Telemetry{Kind: KindSelection, Selection: &Selection{
			GroupIndex: group,
			ColorName:  m.ColorName,
			Angle:      m.Angle,
		}}, nil

	default:
		return Telemetry{}, fmt.Errorf("%w: %q", ErrUnknownTelemetry, env.Type)
	}
}
