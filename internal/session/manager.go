// Package session reconciles scan, connect, disconnect and demo-mode requests
// into a single session and turns incoming payloads into display updates.
//
// A Manager owns its adapter for its whole lifetime: Start subscribes to
// adapter power state and Close tears everything down. Every session carries
// its own cancellation context; stopping a scan, dropping a subscription and
// cancelling simulated ticks all go through that context rather than through
// shared flags.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/groutine"
	"github.com/srg/blecmd/internal/ringchan"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// session is one connect..disconnect (or demo on..off) lifetime.
type session struct {
	id     uint64
	source Source
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // generator goroutine

	conn       device.Connection // nil in demo mode
	sub        device.Subscription
	write      device.WriteChannel
	acquire    AcquireState
	notifyPair *device.Pair
}

// scanRun is one StartScan..timeout lifetime.
type scanRun struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Manager is the session state machine. It is safe for concurrent use.
type Manager struct {
	adapter device.Adapter
	opts    Options
	logger  *logrus.Logger
	events  *ringchan.Channel[Update]

	mu                 sync.Mutex
	started            bool
	closed             bool
	lifeCancel         context.CancelFunc
	bg                 sync.WaitGroup
	power              device.PowerState
	permissionReported bool
	status             Status
	dialCancel         context.CancelFunc
	dialAborted        bool
	active             *session
	nextID             uint64
	display            *command.Display
	stats              Stats
	scan               *scanRun
	discovered         *orderedmap.OrderedMap[string, device.PeripheralRef]
}

// New creates a Manager bound to adapter. Call Start before scanning.
func New(adapter device.Adapter, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	opts = opts.withDefaults()
	return &Manager{
		adapter:    adapter,
		opts:       opts,
		logger:     logger,
		events:     ringchan.New[Update](opts.EventBuffer),
		power:      device.PowerUnknown,
		discovered: orderedmap.New[string, device.PeripheralRef](),
	}
}

// Start reads the adapter power state and keeps watching it until Close.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	lifeCtx, cancel := context.WithCancel(ctx)
	m.lifeCancel = cancel
	m.power = m.adapter.PowerState()
	m.mu.Unlock()

	m.logger.WithField("power", m.power).Debug("Session manager started")

	groutine.GoTracked(lifeCtx, &m.bg, "ble-power-watch", func(ctx context.Context) {
		err := m.adapter.WatchPowerState(ctx, m.onPowerState)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.WithError(err).Warn("Adapter power state watch ended")
		}
	})
	return nil
}

// Close disconnects, stops scanning and releases the adapter. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.lifeCancel
	m.abortDialLocked()
	m.mu.Unlock()

	m.StopScan()
	_ = m.teardown(0, "manager closed")

	if cancel != nil {
		cancel()
	}
	m.bg.Wait()

	m.mu.Lock()
	m.events.Close()
	m.mu.Unlock()

	if metrics := m.events.GetMetrics(); metrics.Overwritten > 0 {
		m.logger.WithFields(logrus.Fields{
			"written":     metrics.Written,
			"overwritten": metrics.Overwritten,
		}).Info("Session updates dropped by a slow reader")
	}

	return m.adapter.Close()
}

// Events streams state changes. Old updates are dropped when the reader lags.
func (m *Manager) Events() <-chan Update {
	return m.events.C()
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Display returns the latest display state, if any.
func (m *Manager) Display() (command.Display, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.display == nil {
		return command.Display{}, false
	}
	return *m.display, true
}

func (m *Manager) snapshotLocked() State {
	st := State{
		Power:    m.power,
		Status:   m.status,
		Scanning: m.scan != nil,
		Stats:    m.stats.clone(),
	}
	if m.display != nil {
		d := *m.display
		st.Display = &d
	}
	if s := m.active; s != nil {
		st.Source = s.source
		st.Acquire = s.acquire
		st.Writable = s.write != nil
		if s.notifyPair != nil {
			p := *s.notifyPair
			st.NotifyPair = &p
		}
	}
	return st
}

// publishLocked must be called with m.mu held so updates keep their order and
// never race with Close.
func (m *Manager) publishLocked(u Update) {
	if m.closed && u.Kind != UpdateCleared && u.Kind != UpdateStatus {
		return
	}
	u.State = m.snapshotLocked()
	if m.events.ForceSend(u) {
		m.logger.WithField("kind", u.Kind).Debug("Dropped oldest session update")
	}
}

func (m *Manager) onPowerState(state device.PowerState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state == m.power {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"from": m.power,
		"to":   state,
	}).Info("Adapter power state changed")
	m.power = state
	if state == device.PowerUnauthorized && !m.permissionReported {
		m.permissionReported = true
		m.logger.Warn("Bluetooth permission is not granted")
	}
	m.publishLocked(Update{Kind: UpdatePower})
}

// Connect stops any scan and dials ref. On failure the session stays
// disconnected and nothing from the attempt is retained. On success
// notification acquisition runs before Connect returns.
func (m *Manager) Connect(ctx context.Context, ref device.PeripheralRef) (AcquireState, error) {
	m.StopScan()

	m.mu.Lock()
	if err := m.checkUsableLocked(); err != nil {
		m.mu.Unlock()
		return AcquireIdle, err
	}
	if m.active != nil || m.status != StatusDisconnected {
		src := "connection"
		if m.active != nil {
			src = m.active.source.Kind.String() + " session"
		}
		m.mu.Unlock()
		return AcquireIdle, fmt.Errorf("%w: %s already active", ErrAlreadyConnected, src)
	}
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	m.dialCancel = cancel
	m.dialAborted = false
	m.status = StatusConnecting
	m.publishLocked(Update{Kind: UpdateStatus})
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"address": ref.ID,
		"name":    ref.Name,
	})
	log.Info("Connecting to peripheral...")

	conn, err := m.adapter.Connect(dialCtx, ref.ID)
	cancel()

	m.mu.Lock()
	m.dialCancel = nil
	// The backend may finish dialing after Disconnect or Close cancelled it.
	if err == nil && m.closed {
		err = ErrClosed
	} else if err == nil && m.dialAborted {
		err = context.Canceled
	}
	m.dialAborted = false
	if err != nil {
		m.status = StatusDisconnected
		m.publishLocked(Update{Kind: UpdateStatus})
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Disconnect()
		}
		log.WithError(err).Warn("Connection failed")
		return AcquireIdle, fmt.Errorf("failed to connect to %s: %w", ref.DisplayName(), err)
	}

	s := m.newSessionLocked(Source{Kind: SourceLive, Peripheral: ref})
	s.conn = conn
	s.acquire = AcquireNegotiating
	m.status = StatusConnected
	m.publishLocked(Update{Kind: UpdateStatus})
	m.mu.Unlock()

	log.Info("Peripheral connected")

	groutine.Go(s.ctx, "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-conn.Disconnected():
			log.Warn("Peripheral dropped the connection")
			_ = m.teardown(s.id, "peripheral disconnected")
		case <-ctx.Done():
		}
	})

	return m.acquire(s), nil
}

// Disconnect tears down the active session, live or demo. Calling it with no
// session is a no-op.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.abortDialLocked()
	m.mu.Unlock()
	return m.teardown(0, "disconnect requested")
}

// abortDialLocked cancels a dial in flight and marks it so a connection that
// arrives anyway is dropped instead of becoming a session.
func (m *Manager) abortDialLocked() {
	if m.dialCancel == nil {
		return
	}
	m.dialCancel()
	m.dialAborted = true
}

// ToggleDemoMode turns the synthetic session on or off. Enabling it while a
// live session exists is rejected; disabling it behaves like Disconnect.
func (m *Manager) ToggleDemoMode(on bool) error {
	if !on {
		m.mu.Lock()
		s := m.active
		m.mu.Unlock()
		if s == nil || s.source.Kind != SourceDemo {
			return nil
		}
		return m.teardown(s.id, "demo mode disabled")
	}

	m.StopScan()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUsableLocked(); err != nil {
		return err
	}
	if s := m.active; s != nil {
		if s.source.Kind == SourceDemo {
			return nil
		}
		return fmt.Errorf("%w: disconnect %s before enabling demo mode", ErrAlreadyConnected, s.source.Peripheral.DisplayName())
	}
	if m.status != StatusDisconnected {
		return fmt.Errorf("%w: connection in progress", ErrAlreadyConnected)
	}

	s := m.newSessionLocked(Source{Kind: SourceDemo, Peripheral: DemoPeripheral})
	m.status = StatusConnected
	m.startGeneratorLocked(s, m.opts.DemoPeriod, command.OriginDemo)
	m.publishLocked(Update{Kind: UpdateStatus})

	m.logger.WithField("period", m.opts.DemoPeriod).Info("Demo mode enabled")
	return nil
}

// Send writes a command token to the peripheral's writable characteristic.
func (m *Manager) Send(ctx context.Context, token string) error {
	m.mu.Lock()
	s := m.active
	if s == nil || m.status != StatusConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	w := s.write
	m.mu.Unlock()

	if w == nil {
		return ErrNoWriteChannel
	}
	payload := command.EncodePayload(token, m.opts.Encoding)
	if err := w.Write(ctx, payload); err != nil {
		return fmt.Errorf("failed to write %q to %s: %w", token, w.Pair(), err)
	}
	m.logger.WithFields(logrus.Fields{
		"token": token,
		"pair":  w.Pair().String(),
	}).Debug("Command sent")
	return nil
}

func (m *Manager) checkUsableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	return nil
}

func (m *Manager) newSessionLocked(src Source) *session {
	m.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     m.nextID,
		source: src,
		ctx:    ctx,
		cancel: cancel,
	}
	m.active = s
	m.display = nil
	m.stats = Stats{}
	return s
}

func (m *Manager) isActiveLocked(id uint64) bool {
	return m.active != nil && m.active.id == id && m.status == StatusConnected
}

// teardown ends the session with the given id, or whichever is active when id
// is 0. It cancels the session context, drops the subscription and write
// channel, cancels the connection and waits for the generator to exit.
func (m *Manager) teardown(id uint64, reason string) error {
	m.mu.Lock()
	s := m.active
	if s == nil || (id != 0 && s.id != id) {
		m.mu.Unlock()
		return nil
	}
	m.active = nil
	m.status = StatusDisconnected
	m.display = nil
	m.stats = Stats{}
	sub, conn := s.sub, s.conn
	s.sub, s.write = nil, nil
	m.publishLocked(Update{Kind: UpdateCleared})
	m.mu.Unlock()

	s.cancel()

	var errs []error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Pair(), err))
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("cancel connection: %w", err))
		}
	}
	s.wg.Wait()

	entry := m.logger.WithFields(logrus.Fields{
		"source": s.source.Kind,
		"reason": reason,
	})
	if len(errs) > 0 {
		// The session is gone either way; report cleanup failures only in logs.
		entry.WithError(errors.Join(errs...)).Warn("Session closed with cleanup errors")
	} else {
		entry.Info("Session closed")
	}
	return nil
}

// deliver maps ev and publishes it if session id is still the active
// connected session. It reports whether the event was accepted.
func (m *Manager) deliver(id uint64, ev command.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isActiveLocked(id) {
		return false
	}
	d := m.opts.Mapper.Present(ev)
	m.display = &d
	m.stats.record(ev)
	m.publishLocked(Update{Kind: UpdateCommand, Event: &ev})
	return true
}

func (m *Manager) startGeneratorLocked(s *session, period time.Duration, origin command.Origin) {
	gen := &Generator{
		Tokens:    m.opts.Tokens,
		Period:    period,
		NewTicker: m.opts.NewTicker,
		Emit: func(cmd command.Command) bool {
			return m.deliver(s.id, command.Event{Command: cmd, Origin: origin, ArrivedAt: m.opts.Now()})
		},
	}
	groutine.GoTracked(s.ctx, &s.wg, "command-simulator", gen.Run)
}
