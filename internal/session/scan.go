package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/groutine"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StartScan clears the discovered list and scans for ScanTimeout. It does not
// block; use Scan to wait for the result.
func (m *Manager) StartScan(ctx context.Context) error {
	_, err := m.startScan(ctx)
	return err
}

func (m *Manager) startScan(ctx context.Context) (*scanRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUsableLocked(); err != nil {
		return nil, err
	}
	switch m.power {
	case device.PowerOn:
	case device.PowerUnauthorized:
		return nil, ErrPermissionDenied
	default:
		return nil, fmt.Errorf("%w: adapter is %s", ErrAdapterNotReady, m.power)
	}
	if m.scan != nil {
		return nil, ErrScanInProgress
	}
	if m.active != nil || m.status != StatusDisconnected {
		return nil, fmt.Errorf("%w: cannot scan during a session", ErrAlreadyConnected)
	}

	m.discovered = orderedmap.New[string, device.PeripheralRef]()
	scanCtx, cancel := context.WithTimeout(ctx, m.opts.ScanTimeout)
	run := &scanRun{cancel: cancel, done: make(chan struct{})}
	m.scan = run
	m.publishLocked(Update{Kind: UpdateScan})

	m.logger.WithField("timeout", m.opts.ScanTimeout).Info("Scanning for peripherals...")

	groutine.GoTracked(scanCtx, &m.bg, "ble-scan", func(ctx context.Context) {
		defer close(run.done)
		defer cancel()

		err := m.adapter.Scan(ctx, m.onAdvertisement)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			err = device.NormalizeError(err)
			m.logger.WithError(err).Warn("Scan failed")
		}

		m.mu.Lock()
		run.err = err
		if m.scan == run {
			m.scan = nil
		}
		m.logger.WithField("devices", m.discovered.Len()).Info("Scan finished")
		m.publishLocked(Update{Kind: UpdateScan})
		m.mu.Unlock()
	})
	return run, nil
}

// Scan runs a full scan and returns the discovered peripherals in first-seen
// order.
func (m *Manager) Scan(ctx context.Context) ([]device.PeripheralRef, error) {
	run, err := m.startScan(ctx)
	if err != nil {
		return nil, err
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		m.StopScan()
		<-run.done
	}
	if run.err != nil {
		return m.Devices(), run.err
	}
	return m.Devices(), ctx.Err()
}

// ScanTimeout is the upper bound of a single scan.
func (m *Manager) ScanTimeout() time.Duration {
	return m.opts.ScanTimeout
}

// StopScan cancels a running scan and waits for it to end.
func (m *Manager) StopScan() {
	m.mu.Lock()
	run := m.scan
	m.mu.Unlock()
	if run == nil {
		return
	}
	run.cancel()
	<-run.done
}

// Devices lists peripherals from the latest scan in first-seen order.
func (m *Manager) Devices() []device.PeripheralRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]device.PeripheralRef, 0, m.discovered.Len())
	for pair := m.discovered.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// onAdvertisement keeps one entry per peripheral id. Repeats refresh RSSI but
// keep the first-seen position and name.
func (m *Manager) onAdvertisement(adv device.Advertisement) {
	if adv.ID == "" {
		return
	}
	if m.opts.NamedOnly && adv.Name == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scan == nil {
		return
	}
	if existing, ok := m.discovered.Get(adv.ID); ok {
		rssi := adv.RSSI
		existing.RSSI = &rssi
		m.discovered.Set(adv.ID, existing)
		return
	}

	ref := device.RefFromAdvertisement(adv)
	m.discovered.Set(adv.ID, ref)
	m.logger.WithFields(logrus.Fields{
		"address": ref.ID,
		"name":    ref.Name,
		"rssi":    adv.RSSI,
	}).Debug("Discovered peripheral")
	m.publishLocked(Update{Kind: UpdateDevice, Device: &ref})
}
