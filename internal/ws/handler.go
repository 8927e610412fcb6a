// Package ws streams dispatcher views to the presentation layer and accepts
// its control messages on the same socket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/dispatch"
	"github.com/DoyleJ11/netra-vaani/internal/hub"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

const (
	OutboxSize   = 8
	WriteTimeout = 3 * time.Second
	// Clients are expected to ping or send something within this window.
	ReadTimeout = 60 * time.Second
)

// Sender is the part of the dispatcher the socket needs.
type Sender interface {
	Send(dispatch.Msg) bool
}

type Options struct {
	// OriginPatterns is passed to websocket.Accept. Empty means same origin
	// only.
	OriginPatterns []string
	Logger         *zap.Logger
}

func Handler(d Sender, h *hub.Hub, opts Options) http.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan pub.View, OutboxSize)
		clientID := uuid.NewString()
		log := logger.With(zap.String("client", clientID))

		// Send the current view before joining; the hub only has one once the
		// dispatcher has published.
		sent := -1
		reply := make(chan pub.View, 1)
		if d.Send(dispatch.GetState{Reply: reply}) {
			select {
			case v := <-reply:
				if err := writeMessage(r.Context(), conn, types.ServerMessage{Type: "View", View: &v}); err != nil {
					return
				}
				sent = v.Version
			case <-r.Context().Done():
				return
			}
		}

		select {
		case h.Inbox() <- hub.Join{ClientID: clientID, Outbox: out}:
		case <-h.Done():
			return
		}
		defer func() {
			select {
			case h.Inbox() <- hub.Leave{ClientID: clientID}:
			case <-h.Done():
			}
		}()

		// Writer goroutine. writeCancel runs before Leave closes out.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for v := range out {
				if v.Version <= sent {
					continue
				}
				if err := writeMessage(writeCtx, conn, types.ServerMessage{Type: "View", View: &v}); err != nil {
					log.Debug("view write failed", zap.Error(err))
					return
				}
				sent = v.Version
			}
			switch {
			case writeCtx.Err() != nil:
				// Handler is returning and closes the connection itself.
			case isDone(h.Done()):
				_ = conn.Close(websocket.StatusGoingAway, "shutting down")
			default:
				// The hub dropped us: closing makes the reader below return.
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client closed")
				default:
					log.Debug("client read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			msg, errText := toDispatchMsg(cm)
			if errText != "" {
				_ = writeMessage(r.Context(), conn, types.ServerMessage{Type: "Error", Error: errText})
				continue
			}
			if !d.Send(msg) {
				return
			}
		}
	}
}

func toDispatchMsg(m types.ClientMessage) (dispatch.Msg, string) {
	switch m.Type {
	case "Reset":
		return dispatch.Reset{}, ""
	case "Tap":
		if m.Char == "" {
			return nil, "missing char"
		}
		return dispatch.Tap{Char: m.Char}, ""
	case "ClearText":
		return dispatch.ClearText{}, ""
	case "SetMode":
		mode, err := letters.ParseMode(m.Mode)
		if err != nil {
			return nil, err.Error()
		}
		return dispatch.SetMode{Mode: mode}, ""
	case "Connect":
		return dispatch.Connect{Host: m.Host, Port: m.Port}, ""
	case "Disconnect":
		return dispatch.Disconnect{}, ""
	case "StartSession":
		return dispatch.StartSession{}, ""
	case "StopSession":
		return dispatch.StopSession{}, ""
	default:
		return nil, "unknown type"
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
