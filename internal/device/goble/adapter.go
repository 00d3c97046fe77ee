// Package goble implements device.Adapter on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/device"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Option configures an Adapter.
type Option func(*Adapter)

// WithPowerWatcher delegates power state to w (e.g. BlueZ on Linux).
func WithPowerWatcher(w device.PowerWatcher) Option {
	return func(a *Adapter) { a.watcher = w }
}

// Adapter is a go-ble host adapter.
type Adapter struct {
	logger  *logrus.Logger
	watcher device.PowerWatcher

	mu           sync.Mutex
	dev          ble.Device
	power        device.PowerState
	closeWatcher sync.Once
}

// New opens the platform device. An adapter that is powered off or not
// authorized is still returned, reporting that state; any other failure is an
// error.
func New(logger *logrus.Logger, opts ...Option) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &Adapter{logger: logger, power: device.PowerUnknown}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.open(); err != nil {
		state := device.PowerStateFromError(err)
		if state == device.PowerUnknown {
			return nil, fmt.Errorf("failed to create BLE device: %w", err)
		}
		a.power = state
		logger.WithError(err).WithField("state", state).Warn("BLE adapter is not available")
	}
	return a, nil
}

func (a *Adapter) open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return device.NormalizeError(err)
	}
	a.dev = dev
	a.power = device.PowerOn
	return nil
}

func (a *Adapter) bleDevice() (ble.Device, error) {
	a.mu.Lock()
	dev := a.dev
	a.mu.Unlock()
	if dev != nil {
		return dev, nil
	}
	if err := a.open(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev, nil
}

// PowerState implements device.PowerWatcher.
func (a *Adapter) PowerState() device.PowerState {
	if a.watcher != nil {
		return a.watcher.PowerState()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.power
}

// WatchPowerState implements device.PowerWatcher. Without an external watcher
// go-ble exposes no change notifications, so only the current state is
// reported.
func (a *Adapter) WatchPowerState(ctx context.Context, fn func(device.PowerState)) error {
	if a.watcher != nil {
		return a.watcher.WatchPowerState(ctx, func(state device.PowerState) {
			if state == device.PowerOn {
				if err := a.open(); err != nil {
					a.logger.WithError(err).Warn("Adapter powered on but BLE device could not be opened")
				}
			}
			fn(state)
		})
	}
	fn(a.PowerState())
	<-ctx.Done()
	return ctx.Err()
}

// Scan implements device.Adapter. Duplicates are delivered so RSSI stays fresh.
func (a *Adapter) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := a.bleDevice()
	if err != nil {
		return err
	}
	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(toAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return device.NormalizeError(err)
	}
	return err
}

// Connect implements device.Adapter.
func (a *Adapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	dev, err := a.bleDevice()
	if err != nil {
		return nil, err
	}

	a.logger.WithField("address", id).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(id))
	if err != nil {
		return nil, device.NormalizeError(err)
	}

	a.logger.WithField("address", id).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			a.logger.WithError(cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", device.NormalizeError(err))
	}
	// DiscoverProfile does not observe ctx; drop a link the caller gave up on.
	if err := ctx.Err(); err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			a.logger.WithError(cancelErr).Warn("Failed to cancel connection after the dial was abandoned")
		}
		return nil, err
	}

	conn := newConnection(id, client, profile, a.logger)
	a.logger.WithFields(logrus.Fields{
		"address":  id,
		"services": len(profile.Services),
	}).Debug("Profile discovered successfully")
	return conn, nil
}

// Close stops the underlying device and releases the power watcher.
func (a *Adapter) Close() error {
	a.mu.Lock()
	dev := a.dev
	a.dev = nil
	a.mu.Unlock()

	var err error
	if dev != nil {
		err = device.NormalizeError(dev.Stop())
	}
	a.closeWatcher.Do(func() {
		if c, ok := a.watcher.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}
	})
	return err
}

func toAdvertisement(adv ble.Advertisement) device.Advertisement {
	out := device.Advertisement{
		Name:        strings.TrimRight(adv.LocalName(), "\x00"),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
	}
	if addr := adv.Addr(); addr != nil {
		out.ID = addr.String()
	}
	for _, u := range adv.Services() {
		out.Services = append(out.Services, device.NormalizeUUID(u.String()))
	}
	return out
}
