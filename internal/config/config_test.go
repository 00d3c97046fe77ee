package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendGoBLE, cfg.Backend)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.NegotiateTimeout)
	assert.Equal(t, 3*time.Second, cfg.SimulatePeriod)
	assert.Equal(t, 2200*time.Millisecond, cfg.DemoPeriod)
	assert.Equal(t, "raw", cfg.PayloadEncoding)
	assert.True(t, cfg.NamedOnly)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(path, true)
	assert.Error(t, err, "an explicitly requested config must exist")
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
backend: tinygo
scan_timeout: 4s
demo_period: 1.5s
payload_encoding: base64
named_only: false
notify_pairs:
  - ffe0/ffe1
`)

	cfg, err := Load(path, true)
	require.NoError(t, err)
	assert.Equal(t, BackendTinyGo, cfg.Backend)
	assert.Equal(t, 4*time.Second, cfg.ScanTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.DemoPeriod)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout, "unset fields keep defaults")
	assert.False(t, cfg.NamedOnly)

	opts, err := cfg.SessionOptions()
	require.NoError(t, err)
	assert.Equal(t, command.EncodingBase64, opts.Encoding)
	assert.Equal(t, []device.Pair{device.NewPair(device.HM10Service, device.HM10Char)}, opts.NotifyPairs)
	assert.Equal(t, device.DefaultWritePairs(), opts.WritePairs)
	assert.False(t, opts.NamedOnly)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"backend", "backend: bluez\n"},
		{"encoding", "payload_encoding: hex\n"},
		{"log level", "log_level: loud\n"},
		{"duration", "negotiate_timeout: 0s\n"},
		{"pair", "write_pairs: [\"ffe0\"]\n"},
		{"yaml", "scan_timeout: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), true)
			assert.Error(t, err)
		})
	}
}

func TestDefaultPathHonorsEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultPath())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()

	logger, err := cfg.NewLogger("", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, logger.GetLevel(), "quiet by default")

	cfg.LogLevel = "info"
	logger, err = cfg.NewLogger("", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger, err = cfg.NewLogger("debug", &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel(), "flag wins over config")
	logger.Debug("hello")
	assert.Contains(t, buf.String(), "hello")

	_, err = cfg.NewLogger("verbose", &buf)
	assert.Error(t, err)
}
