// Package config loads the blecmd YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config location when set.
const EnvConfigPath = "BLECMD_CONFIG"

// Backend names.
const (
	BackendGoBLE  = "goble"
	BackendTinyGo = "tinygo"
)

// Config is the on-disk configuration. Durations use Go syntax ("2.5s").
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Backend  string `yaml:"backend" default:"goble"`

	ScanTimeout      time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" default:"30s"`
	NegotiateTimeout time.Duration `yaml:"negotiate_timeout" default:"5s"`
	SimulatePeriod   time.Duration `yaml:"simulate_period" default:"3s"`
	DemoPeriod       time.Duration `yaml:"demo_period" default:"2200ms"`

	PayloadEncoding string `yaml:"payload_encoding" default:"raw"`
	NamedOnly       bool   `yaml:"named_only" default:"true"`

	// "service/characteristic" pairs; empty keeps the built-in list.
	NotifyPairs []string `yaml:"notify_pairs"`
	WritePairs  []string `yaml:"write_pairs"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns ~/.config/blecmd/config.yaml, or the BLECMD_CONFIG
// override.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "blecmd", "config.yaml")
}

// Load reads path on top of the defaults. A missing file is not an error
// unless the path was requested explicitly.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerations, durations and pair syntax.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendGoBLE, BackendTinyGo:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendGoBLE, BackendTinyGo, c.Backend))
	}
	if c.LogLevel != "" {
		if _, err := ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := command.ParseEncoding(c.PayloadEncoding); err != nil {
		errs = append(errs, err)
	}

	for name, d := range map[string]time.Duration{
		"scan_timeout":      c.ScanTimeout,
		"connect_timeout":   c.ConnectTimeout,
		"negotiate_timeout": c.NegotiateTimeout,
		"simulate_period":   c.SimulatePeriod,
		"demo_period":       c.DemoPeriod,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if _, err := parsePairs(c.NotifyPairs); err != nil {
		errs = append(errs, fmt.Errorf("notify_pairs: %w", err))
	}
	if _, err := parsePairs(c.WritePairs); err != nil {
		errs = append(errs, fmt.Errorf("write_pairs: %w", err))
	}
	return errors.Join(errs...)
}

// SessionOptions converts the config into session.Options.
func (c *Config) SessionOptions() (session.Options, error) {
	opts := session.DefaultOptions()
	opts.ScanTimeout = c.ScanTimeout
	opts.ConnectTimeout = c.ConnectTimeout
	opts.NegotiateTimeout = c.NegotiateTimeout
	opts.SimulatePeriod = c.SimulatePeriod
	opts.DemoPeriod = c.DemoPeriod
	opts.NamedOnly = c.NamedOnly

	enc, err := command.ParseEncoding(c.PayloadEncoding)
	if err != nil {
		return session.Options{}, err
	}
	opts.Encoding = enc

	if pairs, err := parsePairs(c.NotifyPairs); err != nil {
		return session.Options{}, fmt.Errorf("notify_pairs: %w", err)
	} else if len(pairs) > 0 {
		opts.NotifyPairs = pairs
	}
	if pairs, err := parsePairs(c.WritePairs); err != nil {
		return session.Options{}, fmt.Errorf("write_pairs: %w", err)
	} else if len(pairs) > 0 {
		opts.WritePairs = pairs
	}
	return opts, nil
}

func parsePairs(raw []string) ([]device.Pair, error) {
	pairs := make([]device.Pair, 0, len(raw))
	for _, s := range raw {
		p, err := device.ParsePair(s)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.PanicLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger builds the process logger. An empty level keeps it quiet
// (panic level). With LogFile set, output goes to a rotating file instead
// of stderr.
func (c *Config) NewLogger(level string, stderr io.Writer) (*logrus.Logger, error) {
	logLevel := logrus.PanicLevel
	if level == "" {
		level = c.LogLevel
	}
	if level != "" {
		l, err := ParseLevel(level)
		if err != nil {
			return nil, err
		}
		logLevel = l
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	if c.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    1, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	} else if stderr != nil {
		logger.SetOutput(stderr)
	}
	return logger, nil
}
