// Package tinygo implements device.Adapter on top of tinygo.org/x/bluetooth.
//
// On macOS peripheral ids are CoreBluetooth UUIDs, on Linux they are MAC
// addresses; both round-trip through bluetooth.Address.Set.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// knownServices are matched against advertisements, which tinygo exposes
// only as HasServiceUUID lookups.
var knownServices = []string{device.NordicUARTService, device.HM10Service}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPowerWatcher delegates power state to w (e.g. BlueZ on Linux).
func WithPowerWatcher(w device.PowerWatcher) Option {
	return func(a *Adapter) { a.watcher = w }
}

// Adapter wraps a tinygo bluetooth adapter.
type Adapter struct {
	adapter *bluetooth.Adapter
	logger  *logrus.Logger
	watcher device.PowerWatcher

	mu           sync.Mutex
	power        device.PowerState
	scan         sync.Mutex // tinygo allows one scan at a time
	closeWatcher sync.Once

	conns *hashmap.Map[string, *connection]
}

// New enables the default adapter. A disabled or unauthorized adapter is
// still returned, reporting that state.
func New(logger *logrus.Logger, opts ...Option) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	a := &Adapter{
		adapter: bluetooth.DefaultAdapter,
		logger:  logger,
		power:   device.PowerUnknown,
		conns:   hashmap.New[string, *connection](),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.adapter.Enable(); err != nil {
		err = device.NormalizeError(err)
		state := device.PowerStateFromError(err)
		if state == device.PowerUnknown {
			return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
		}
		a.power = state
		logger.WithError(err).WithField("state", state).Warn("BLE adapter is not available")
		return a, nil
	}
	a.power = device.PowerOn

	// Fires with connected=false when a peripheral drops.
	a.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := dev.Address.String()
		if conn, ok := a.conns.Get(id); ok {
			a.logger.WithField("address", id).Debug("Adapter reported disconnection")
			conn.markDisconnected()
		}
	})
	return a, nil
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

// WatchPowerState implements device.PowerWatcher.
func (a *Adapter) WatchPowerState(ctx context.Context, fn func(device.PowerState)) error {
	if a.watcher != nil {
		return a.watcher.WatchPowerState(ctx, fn)
	}
	fn(a.PowerState())
	<-ctx.Done()
	return ctx.Err()
}

func (a *Adapter) ready() error {
	switch state := a.PowerState(); state {
	case device.PowerOn:
		return nil
	case device.PowerUnauthorized:
		return device.ErrUnauthorized
	default:
		return fmt.Errorf("%w: adapter is %s", device.ErrBluetoothOff, state)
	}
}

// Scan implements device.Adapter. It blocks until ctx is done.
func (a *Adapter) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	if err := a.ready(); err != nil {
		return err
	}
	a.scan.Lock()
	defer a.scan.Unlock()

	uuids := make([]bluetooth.UUID, 0, len(knownServices))
	for _, s := range knownServices {
		if u, err := parseUUID(s); err == nil {
			uuids = append(uuids, u)
		}
	}

	done := make(chan struct{})
	defer close(done)
	groutine.Go(ctx, "tinygo-scan-stop", func(ctx context.Context) {
		select {
		case <-ctx.Done():
			_ = a.adapter.StopScan()
		case <-done:
		}
	})

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		adv := device.Advertisement{
			ID:          result.Address.String(),
			Name:        result.LocalName(),
			RSSI:        int(result.RSSI),
			Connectable: true,
		}
		for i, u := range uuids {
			if result.HasServiceUUID(u) {
				adv.Services = append(adv.Services, knownServices[i])
			}
		}
		handler(adv)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return device.NormalizeError(err)
}

// Connect implements device.Adapter. tinygo's Connect cannot be cancelled, so
// a dial that completes after ctx ends is disconnected in the background.
func (a *Adapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if err := a.ready(); err != nil {
		return nil, err
	}
	if _, ok := a.conns.Get(id); ok {
		return nil, device.ErrAlreadyConnected
	}

	var addr bluetooth.Address
	addr.Set(id)

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	groutine.Go(context.Background(), "tinygo-dial", func(context.Context) {
		dev, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- result{dev: dev, err: err}
	})

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		groutine.Go(context.Background(), "tinygo-dial-cleanup", func(context.Context) {
			if late := <-ch; late.err == nil {
				_ = late.dev.Disconnect()
			}
		})
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, device.NormalizeError(res.err)
	}

	conn, err := newConnection(id, res.dev, a)
	if err != nil {
		_ = res.dev.Disconnect()
		return nil, err
	}
	// Service discovery does not observe ctx.
	if err := ctx.Err(); err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	a.conns.Set(id, conn)
	return conn, nil
}

// Close disconnects every tracked connection and releases the power watcher.
func (a *Adapter) Close() error {
	var errs []error
	a.conns.Range(func(id string, conn *connection) bool {
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
		return true
	})
	a.closeWatcher.Do(func() {
		if c, ok := a.watcher.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}

func (a *Adapter) forget(id string) {
	a.conns.Del(id)
}

func parseUUID(normalized string) (bluetooth.UUID, error) {
	full, err := device.ExpandUUID(normalized)
	if err != nil {
		return bluetooth.UUID{}, err
	}
	return bluetooth.ParseUUID(full)
}
