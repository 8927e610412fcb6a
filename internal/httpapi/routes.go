// Package httpapi is the presentation layer's HTTP surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/dispatch"
	"github.com/DoyleJ11/netra-vaani/internal/hub"
	"github.com/DoyleJ11/netra-vaani/internal/store"
	"github.com/DoyleJ11/netra-vaani/internal/ws"
)

// Sender is the part of the dispatcher the API needs.
type Sender interface {
	Send(dispatch.Msg) bool
}

type Options struct {
	OriginPatterns []string
	Logger         *zap.Logger
}

func SetupRoutes(d Sender, h *hub.Hub, transcript store.Store, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{d: d, transcript: transcript, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d, h, ws.Options{OriginPatterns: opts.OriginPatterns, Logger: logger.Named("ws")}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", api.GetState)
		r.Post("/session/start", api.StartSession)
		r.Post("/session/stop", api.StopSession)
		r.Post("/reset", api.Reset)
		r.Post("/device/connect", api.Connect)
		r.Post("/device/disconnect", api.Disconnect)
		r.Post("/mode", api.SetMode)
		r.Post("/text/tap", api.Tap)
		r.Delete("/text", api.ClearText)
		r.Post("/detections", api.PushDetection)
		r.Get("/transcript", api.Transcript)
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
