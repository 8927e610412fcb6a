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

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/netra-vaani/internal/capture"
	"github.com/DoyleJ11/netra-vaani/internal/classifier"
	"github.com/DoyleJ11/netra-vaani/internal/config"
	"github.com/DoyleJ11/netra-vaani/internal/dispatch"
	"github.com/DoyleJ11/netra-vaani/internal/httpapi"
	"github.com/DoyleJ11/netra-vaani/internal/hub"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/logging"
	"github.com/DoyleJ11/netra-vaani/internal/store"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket service",
	RunE:  runServe,
}

func init() {
	addServeFlags(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("http-addr", ":8080", "listen address")
	f.StringSlice("origin-patterns", nil, "allowed websocket origins")
	f.String("device-host", "", "peripheral host")
	f.Int("device-port", 81, "peripheral websocket port")
	f.Duration("connect-timeout", 5*time.Second, "peripheral connect timeout")
	f.Bool("auto-connect", false, "connect to the peripheral at startup")
	f.Duration("debounce-interval", 300*time.Millisecond, "minimum spacing of distinct actions")
	f.Duration("clear-delay", 3*time.Second, "quiet time before the current action clears")
	f.String("classifier-url", "", "blink classifier endpoint")
	f.Duration("classifier-timeout", 2*time.Second, "classifier request timeout")
	f.String("camera-url", "", "camera snapshot URL")
	f.String("replay-dir", "", "directory of JPEG frames to replay")
	f.Float64("frame-rate", capture.MaxFPS, "frames per second, at most 15")
	f.Bool("auto-start", false, "start a session at startup")
	f.String("database-url", "", "postgres DSN for the transcript; in-memory when empty")
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	envErr := config.LoadDotEnv()
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, nil, err
	}
	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}
	if cfg.ConfigPath != "" {
		logger.Info("config file loaded", zap.String("path", cfg.ConfigPath))
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tables, err := cfg.Tables()
	if err != nil {
		return err
	}
	mode, err := letters.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transcript, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	recorder := store.NewAsync(transcript, store.AsyncConfig{}, logger.Named("transcript"))

	frames, err := frameLoop(cfg, logger)
	if err != nil {
		return multierr.Combine(err, recorder.Close(), transcript.Close())
	}

	h := hub.NewHub(ctx)
	d := dispatch.New(ctx, dispatch.Config{
		Stabilizer:  cfg.StabilizerConfig(),
		Device:      cfg.DeviceConfig(),
		Tables:      tables,
		Mode:        mode,
		DefaultHost: cfg.DeviceHost,
		DefaultPort: cfg.DevicePort,
	}, dispatch.Deps{
		Frames:    frames,
		Publisher: h,
		Recorder:  recorder,
		Logger:    logger.Named("dispatch"),
	})

	if cfg.AutoConnect {
		d.Send(dispatch.Connect{})
	}
	if cfg.AutoStart {
		d.Send(dispatch.StartSession{})
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(d, h, transcript, httpapi.Options{
			OriginPatterns: cfg.OriginPatterns,
			Logger:         logger.Named("http"),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr), zap.String("mode", string(mode)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	<-d.Done()
	return multierr.Combine(err, recorder.Close(), transcript.Close())
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("transcript kept in memory")
		return store.NewMemory(), nil
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pg, err := store.OpenPostgres(openCtx, cfg.DatabaseURL, logger.Named("postgres"))
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}
	return pg, nil
}

// frameLoop returns nil when no frame source is configured; detections then
// only arrive through the API.
func frameLoop(cfg config.Config, logger *zap.Logger) (dispatch.FrameLoop, error) {
	if !cfg.HasFrameSource() {
		return nil, nil
	}
	var src capture.Source
	if cfg.ReplayDir != "" {
		r, err := capture.NewReplay(cfg.ReplayDir, cfg.ReplayLoop)
		if err != nil {
			return nil, err
		}
		logger.Info("replaying frames", zap.String("dir", cfg.ReplayDir), zap.Int("frames", r.Len()))
		src = r
	} else {
		src = capture.NewSnapshot(cfg.CameraURL, cfg.ClassifierTimeout)
	}
	return &capture.Poller{
		Source:     src,
		Classifier: classifier.NewHTTP(cfg.ClassifierURL, cfg.ClassifierTimeout, logger.Named("classifier")),
		FPS:        cfg.FrameRate,
		Logger:     logger.Named("capture"),
	}, nil
}
