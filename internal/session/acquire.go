package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/command"
)

// acquire tries the notify pairs in order and subscribes to the first one the
// peripheral accepts. When none works the session falls back to simulated
// commands. Either way a write channel is looked up afterwards.
func (m *Manager) acquire(s *session) AcquireState {
	log := m.logger.WithField("address", s.source.Peripheral.ID)

	state := m.subscribeFirst(s, log)
	if state == AcquireIdle {
		return AcquireIdle
	}
	m.discoverWriteChannel(s, log)
	return state
}

func (m *Manager) subscribeFirst(s *session, log *logrus.Entry) AcquireState {
	handler := func(data []byte) {
		m.onNotification(s.id, data)
	}

	for _, pair := range m.opts.NotifyPairs {
		if s.ctx.Err() != nil {
			return AcquireIdle
		}

		ctx, cancel := context.WithTimeout(s.ctx, m.opts.NegotiateTimeout)
		sub, err := s.conn.Subscribe(ctx, pair, handler)
		cancel()
		if err != nil {
			entry := log.WithField("pair", pair.String())
			if errors.Is(err, context.DeadlineExceeded) {
				entry.Debug("Notify negotiation timed out")
			} else {
				entry.WithError(err).Debug("Notify pair rejected")
			}
			continue
		}

		m.mu.Lock()
		if !m.isActiveLocked(s.id) {
			m.mu.Unlock()
			_ = sub.Unsubscribe()
			return AcquireIdle
		}
		p := pair
		s.sub = sub
		s.notifyPair = &p
		s.acquire = AcquireSubscribed
		m.publishLocked(Update{Kind: UpdateAcquire})
		m.mu.Unlock()

		log.WithField("pair", pair.String()).Info("Subscribed to command notifications")
		return AcquireSubscribed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isActiveLocked(s.id) {
		return AcquireIdle
	}
	s.acquire = AcquireFallback
	m.startGeneratorLocked(s, m.opts.SimulatePeriod, command.OriginSimulated)
	m.publishLocked(Update{Kind: UpdateAcquire})

	log.WithField("period", m.opts.SimulatePeriod).Warn("No notify characteristic found, simulating commands")
	return AcquireFallback
}

func (m *Manager) discoverWriteChannel(s *session, log *logrus.Entry) {
	for _, pair := range m.opts.WritePairs {
		w, err := s.conn.WriteChannel(pair)
		if err != nil {
			continue
		}

		m.mu.Lock()
		if m.isActiveLocked(s.id) {
			s.write = w
			m.publishLocked(Update{Kind: UpdateAcquire})
		}
		m.mu.Unlock()

		log.WithField("pair", pair.String()).Debug("Found writable characteristic")
		return
	}
	log.Debug("Peripheral exposes no writable command characteristic")
}

func (m *Manager) onNotification(id uint64, data []byte) {
	cmd := command.DecodePayload(data, m.opts.Encoding)
	if cmd.Token == "" {
		return
	}
	ev := command.Event{
		Command:   cmd,
		Origin:    command.OriginLive,
		ArrivedAt: m.opts.Now(),
	}
	if !m.deliver(id, ev) {
		m.logger.WithField("token", cmd.Token).Debug("Dropped notification for a closed session")
	}
}
