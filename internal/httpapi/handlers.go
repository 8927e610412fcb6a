package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/dispatch"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/stabilizer"
	"github.com/DoyleJ11/netra-vaani/internal/store"
	"github.com/DoyleJ11/netra-vaani/internal/types"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

const (
	replyTimeout     = 2 * time.Second
	maxBodyBytes     = 16 << 10
	defaultListLimit = 200
)

var errUnavailable = errors.New("dispatcher unavailable")

type API struct {
	d          Sender
	transcript store.Store
	logger     *zap.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// send queues m and answers 202 with nothing else to say.
func (a *API) send(w http.ResponseWriter, m dispatch.Msg) {
	if !a.d.Send(m) {
		writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, struct {
		Status string `json:"status"`
	}{Status: "accepted"})
}

func (a *API) state(ctx context.Context) (pub.View, error) {
	reply := make(chan pub.View, 1)
	if !a.d.Send(dispatch.GetState{Reply: reply}) {
		return pub.View{}, errUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return pub.View{}, ctx.Err()
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (a *API) GetState(w http.ResponseWriter, r *http.Request) {
	v, err := a.state(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) StartSession(w http.ResponseWriter, r *http.Request) {
	reply := make(chan string, 1)
	if !a.d.Send(dispatch.StartSession{Reply: reply}) {
		writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	select {
	case id := <-reply:
		writeJSON(w, http.StatusCreated, struct {
			SessionID string `json:"session_id"`
		}{SessionID: id})
	case <-time.After(replyTimeout):
		writeError(w, http.StatusGatewayTimeout, "session did not start")
	}
}

func (a *API) StopSession(w http.ResponseWriter, r *http.Request) {
	done := make(chan struct{})
	if !a.d.Send(dispatch.StopSession{Reply: done}) {
		writeError(w, http.StatusServiceUnavailable, errUnavailable.Error())
		return
	}
	select {
	case <-done:
		w.WriteHeader(http.StatusNoContent)
	case <-time.After(replyTimeout):
		writeError(w, http.StatusGatewayTimeout, "session did not stop")
	}
}

func (a *API) Reset(w http.ResponseWriter, r *http.Request) {
	a.send(w, dispatch.Reset{})
}

type connectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (a *API) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	if req.Port < 0 || req.Port > 65535 {
		writeError(w, http.StatusBadRequest, "port out of range")
		return
	}
	a.send(w, dispatch.Connect{Host: req.Host, Port: req.Port})
}

func (a *API) Disconnect(w http.ResponseWriter, r *http.Request) {
	a.send(w, dispatch.Disconnect{})
}

func (a *API) SetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	mode, err := letters.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.send(w, dispatch.SetMode{Mode: mode})
}

func (a *API) Tap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Char string `json:"char"`
	}
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Char == "" {
		writeError(w, http.StatusBadRequest, "missing char")
		return
	}
	a.send(w, dispatch.Tap{Char: req.Char})
}

func (a *API) ClearText(w http.ResponseWriter, r *http.Request) {
	a.send(w, dispatch.ClearText{})
}

type detectionRequest struct {
	Action     string     `json:"action"`
	Progress   float64    `json:"progress"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
}

// PushDetection lets an external classifier feed detections directly,
// including hold progress the HTTP classifier binding cannot report.
func (a *API) PushDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	action, ok := types.ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown action "+strconv.Quote(req.Action))
		return
	}
	if req.Progress < 0 || req.Progress > 1 {
		writeError(w, http.StatusBadRequest, "progress must be within [0,1]")
		return
	}
	det := stabilizer.RawDetection{Action: action, Progress: req.Progress}
	if req.ObservedAt != nil {
		det.ObservedAt = *req.ObservedAt
	}
	a.send(w, dispatch.Detection{Detection: det})
}

func (a *API) Transcript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultListLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	session := q.Get("session")
	if session == "" {
		v, err := a.state(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		session = v.SessionID
	}

	entries, err := a.transcript.List(r.Context(), session, limit)
	if err != nil {
		a.logger.Warn("transcript list", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "transcript unavailable")
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, http.StatusOK, struct {
		SessionID string        `json:"session_id"`
		Entries   []store.Entry `json:"entries"`
	}{SessionID: session, Entries: entries})
}
