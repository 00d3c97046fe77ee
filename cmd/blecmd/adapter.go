package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecmd/internal/config"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/device/bluez"
	"github.com/srg/blecmd/internal/device/goble"
	"github.com/srg/blecmd/internal/device/tinygo"
	"github.com/srg/blecmd/internal/session"
)

// AdapterFactory opens the host adapter for the configured backend.
// Tests replace it with a fake.
var AdapterFactory = openAdapter

func openAdapter(backend string, logger *logrus.Logger) (device.Adapter, error) {
	watcher := powerWatcher(logger)

	switch backend {
	case config.BackendTinyGo:
		var opts []tinygo.Option
		if watcher != nil {
			opts = append(opts, tinygo.WithPowerWatcher(watcher))
		}
		a, err := tinygo.New(logger, opts...)
		if err != nil {
			closeWatcher(watcher, logger)
			return nil, err
		}
		return a, nil
	case config.BackendGoBLE, "":
		var opts []goble.Option
		if watcher != nil {
			opts = append(opts, goble.WithPowerWatcher(watcher))
		}
		a, err := goble.New(logger, opts...)
		if err != nil {
			closeWatcher(watcher, logger)
			return nil, err
		}
		return a, nil
	default:
		closeWatcher(watcher, logger)
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// closeWatcher releases a watcher no adapter took ownership of.
func closeWatcher(w device.PowerWatcher, logger *logrus.Logger) {
	c, ok := w.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.WithError(err).Debug("Failed to close power watcher")
	}
}

// powerWatcher follows adapter power through BlueZ on Linux. Elsewhere, or
// when BlueZ is not reachable, backends report the state seen at startup.
func powerWatcher(logger *logrus.Logger) device.PowerWatcher {
	if runtime.GOOS != "linux" {
		return nil
	}
	w, err := bluez.NewWatcher("", logger)
	if err != nil {
		logger.WithError(err).Debug("BlueZ power watcher unavailable")
		return nil
	}
	return w
}

// startManager wires config, logging and the adapter into a started
// session.Manager. The caller must Close it.
func startManager(ctx context.Context, cmd *cobra.Command) (*session.Manager, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	opts, err := cfg.SessionOptions()
	if err != nil {
		return nil, nil, err
	}

	adapter, err := AdapterFactory(cfg.Backend, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open BLE adapter: %w", err)
	}

	m := session.New(adapter, opts, logger)
	if err := m.Start(ctx); err != nil {
		_ = m.Close()
		return nil, nil, err
	}
	return m, logger, nil
}
