// Command peripheral-sim stands in for the color wheel firmware. It serves
// the device websocket protocol, turns a virtual wheel per command and
// pushes status and selection telemetry.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/logging"
	pub "github.com/DoyleJ11/netra-vaani/pkg/types"
)

const writeTimeout = 3 * time.Second

var opts struct {
	addr           string
	statusInterval time.Duration
	logLevel       string
}

var rootCmd = &cobra.Command{
	Use:          "peripheral-sim",
	Short:        "Simulated color wheel peripheral",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := logging.New(opts.logLevel, "console")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, opts.addr, newSim(letters.WheelColors, opts.statusInterval, logger))
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.addr, "addr", ":81", "listen address")
	f.DurationVar(&opts.statusInterval, "status-interval", 2*time.Second, "unsolicited status period, 0 to disable")
	f.StringVar(&opts.logLevel, "log-level", "debug", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, addr string, s *sim) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type sim struct {
	wheel          *wheel
	statusInterval time.Duration
	logger         *zap.Logger
}

func newSim(colors []string, statusInterval time.Duration, logger *zap.Logger) *sim {
	return &sim{wheel: newWheel(colors, letters.DefaultPositions), statusInterval: statusInterval, logger: logger}
}

func (s *sim) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("accept", zap.Error(err))
		return
	}
	defer c.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.logger.Info("controller connected", zap.String("remote", r.RemoteAddr))

	if s.statusInterval > 0 {
		go s.pushStatus(ctx, c)
	}

	for {
		var cmd pub.CommandMessage
		if err := wsjson.Read(ctx, c, &cmd); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.logger.Warn("read", zap.Error(err))
			}
			s.logger.Info("controller disconnected")
			return
		}
		action, ok := parseCommand(cmd.Action)
		if !ok {
			s.logger.Warn("unknown action", zap.String("action", cmd.Action))
			continue
		}
		s.logger.Debug("command", zap.Stringer("action", action), zap.Int64("timestamp", cmd.Timestamp))
		for _, msg := range s.wheel.Apply(action) {
			if err := write(ctx, c, msg); err != nil {
				s.logger.Warn("write", zap.Error(err))
				return
			}
		}
	}
}

func (s *sim) pushStatus(ctx context.Context, c *websocket.Conn) {
	t := time.NewTicker(s.statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := write(ctx, c, s.wheel.Status()); err != nil {
				return
			}
		}
	}
}

func write(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}
