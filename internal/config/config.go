// Package config loads runtime settings from flags, NETRA_* environment
// variables, an optional YAML file and a .env file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/netra-vaani/internal/capture"
	"github.com/DoyleJ11/netra-vaani/internal/device"
	"github.com/DoyleJ11/netra-vaani/internal/letters"
	"github.com/DoyleJ11/netra-vaani/internal/stabilizer"
)

const EnvPrefix = "NETRA"

const (
	defaultHTTPAddr          = ":8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultClassifierTimeout = 2 * time.Second
	defaultFrameRate         = capture.MaxFPS
)

type Config struct {
	HTTPAddr       string   `mapstructure:"http-addr"`
	OriginPatterns []string `mapstructure:"origin-patterns"`
	LogLevel       string   `mapstructure:"log-level"`
	LogFormat      string   `mapstructure:"log-format"`

	DeviceHost     string        `mapstructure:"device-host"`
	DevicePort     int           `mapstructure:"device-port"`
	ConnectTimeout time.Duration `mapstructure:"connect-timeout"`
	AutoConnect    bool          `mapstructure:"auto-connect"`

	DebounceInterval time.Duration `mapstructure:"debounce-interval"`
	ClearDelay       time.Duration `mapstructure:"clear-delay"`
	MinProgressDelta float64       `mapstructure:"min-progress-delta"`

	ClassifierURL     string        `mapstructure:"classifier-url"`
	ClassifierTimeout time.Duration `mapstructure:"classifier-timeout"`
	CameraURL         string        `mapstructure:"camera-url"`
	ReplayDir         string        `mapstructure:"replay-dir"`
	ReplayLoop        bool          `mapstructure:"replay-loop"`
	FrameRate         float64       `mapstructure:"frame-rate"`
	AutoStart         bool          `mapstructure:"auto-start"`

	Mode      string `mapstructure:"mode"`
	TableFile string `mapstructure:"table-file"`

	DatabaseURL string `mapstructure:"database-url"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// LoadDotEnv reads .env style files into the process environment. Missing
// files are reported so the caller can log them; variables already set win.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// Load builds the configuration. configPath may be empty, in which case
// ./netra.yaml is tried and silently skipped when absent. flags, when
// non-nil, take precedence over everything else.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("http-addr", defaultHTTPAddr)
	v.SetDefault("origin-patterns", []string{})
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-format", defaultLogFormat)
	v.SetDefault("device-host", "")
	v.SetDefault("device-port", device.DefaultPort)
	v.SetDefault("connect-timeout", device.DefaultConnectTimeout)
	v.SetDefault("auto-connect", false)
	v.SetDefault("debounce-interval", stabilizer.DefaultDebounceInterval)
	v.SetDefault("clear-delay", stabilizer.DefaultClearDelay)
	v.SetDefault("min-progress-delta", stabilizer.DefaultMinProgressDelta)
	v.SetDefault("classifier-url", "")
	v.SetDefault("classifier-timeout", defaultClassifierTimeout)
	v.SetDefault("camera-url", "")
	v.SetDefault("replay-dir", "")
	v.SetDefault("replay-loop", true)
	v.SetDefault("frame-rate", defaultFrameRate)
	v.SetDefault("auto-start", false)
	v.SetDefault("mode", string(letters.ModeLetter))
	v.SetDefault("table-file", "")
	v.SetDefault("database-url", "")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, fmt.Errorf("bind flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("netra")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || (!errors.As(err, &notFound) && !os.IsNotExist(err)) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.DevicePort <= 0 || c.DevicePort > 65535 {
		return fmt.Errorf("invalid device-port: %d", c.DevicePort)
	}
	for name, d := range map[string]time.Duration{
		"connect-timeout":    c.ConnectTimeout,
		"clear-delay":        c.ClearDelay,
		"classifier-timeout": c.ClassifierTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid %s: %s", name, d)
		}
	}
	if c.DebounceInterval < 0 {
		return fmt.Errorf("invalid debounce-interval: %s", c.DebounceInterval)
	}
	if c.MinProgressDelta < 0 || c.MinProgressDelta > 1 {
		return fmt.Errorf("invalid min-progress-delta: %v", c.MinProgressDelta)
	}
	if c.FrameRate <= 0 || c.FrameRate > capture.MaxFPS {
		return fmt.Errorf("invalid frame-rate: %v (must be in (0, %d])", c.FrameRate, capture.MaxFPS)
	}
	if _, err := letters.ParseMode(c.Mode); err != nil {
		return err
	}
	if c.CameraURL != "" && c.ReplayDir != "" {
		return errors.New("camera-url and replay-dir are mutually exclusive")
	}
	if c.HasFrameSource() && c.ClassifierURL == "" {
		return errors.New("classifier-url is required when a frame source is configured")
	}
	if c.AutoConnect && c.DeviceHost == "" {
		return errors.New("auto-connect needs device-host")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log-format: %q", c.LogFormat)
	}
	return nil
}

func (c Config) HasFrameSource() bool {
	return c.CameraURL != "" || c.ReplayDir != ""
}

func (c Config) StabilizerConfig() stabilizer.Config {
	return stabilizer.Config{
		DebounceInterval: c.DebounceInterval,
		ClearDelay:       c.ClearDelay,
		MinProgressDelta: c.MinProgressDelta,
	}
}

func (c Config) DeviceConfig() device.Config {
	cfg := device.DefaultConfig()
	cfg.ConnectTimeout = c.ConnectTimeout
	return cfg
}

// Tables returns the built-in tables, overlaid with TableFile when set.
func (c Config) Tables() (letters.Set, error) {
	if c.TableFile == "" {
		return letters.DefaultSet(), nil
	}
	return letters.LoadFile(c.TableFile)
}
