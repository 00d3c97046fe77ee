package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/groutine"
)

const (
	// DefaultBLEWriteChunkSize is the maximum number of bytes to write in a single BLE operation.
	// ATT_MTU of 23 bytes leaves 20 bytes of payload.
	DefaultBLEWriteChunkSize = 20

	// DefaultBLEWriteDelay is the delay between consecutive write chunks.
	DefaultBLEWriteDelay = 10 * time.Millisecond
)

// connection is a live go-ble link with its discovered profile.
type connection struct {
	id      string
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	writeMu      sync.Mutex
	disconnected chan struct{}
	closeOnce    sync.Once
}

func newConnection(id string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *connection {
	c := &connection{
		id:           id,
		client:       client,
		profile:      profile,
		logger:       logger,
		disconnected: make(chan struct{}),
	}

	groutine.Go(context.Background(), "ble-connection-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			c.logger.WithField("address", id).Debug("BLE stack reported disconnection")
			c.markDisconnected()
		case <-c.disconnected:
		}
	})
	return c
}

func (c *connection) markDisconnected() {
	c.closeOnce.Do(func() { close(c.disconnected) })
}

func (c *connection) ID() string { return c.id }

func (c *connection) Disconnected() <-chan struct{} { return c.disconnected }

// Disconnect cancels the link. Calling it twice is a no-op.
func (c *connection) Disconnect() error {
	select {
	case <-c.disconnected:
		return nil
	default:
	}
	err := c.client.CancelConnection()
	c.markDisconnected()
	return device.NormalizeError(err)
}

// find returns the characteristic for pair, or a NotFoundError.
func (c *connection) find(pair device.Pair) (*ble.Characteristic, error) {
	for _, svc := range c.profile.Services {
		if device.NormalizeUUID(svc.UUID.String()) != pair.Service {
			continue
		}
		for _, ch := range svc.Characteristics {
			if device.NormalizeUUID(ch.UUID.String()) == pair.Characteristic {
				return ch, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{pair.Service}}
}

// Subscribe enables notify (or indicate when notify is not supported). The
// CCCD write runs on its own goroutine so ctx can bound it.
func (c *connection) Subscribe(ctx context.Context, pair device.Pair, handler func([]byte)) (device.Subscription, error) {
	ch, err := c.find(pair)
	if err != nil {
		return nil, err
	}
	var indicate bool
	switch {
	case ch.Property&ble.CharNotify != 0:
	case ch.Property&ble.CharIndicate != 0:
		indicate = true
	default:
		return nil, &device.NotFoundError{Resource: "notifiable characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}

	done := make(chan error, 1)
	groutine.Go(ctx, "ble-subscribe", func(context.Context) {
		done <- c.client.Subscribe(ch, indicate, func(data []byte) {
			handler(append([]byte(nil), data...))
		})
	})

	select {
	case err := <-done:
		if err != nil {
			return nil, device.NormalizeError(err)
		}
	case <-ctx.Done():
		// The subscribe may still land; undo it once it does.
		groutine.Go(context.Background(), "ble-subscribe-cleanup", func(context.Context) {
			if err := <-done; err == nil {
				_ = c.client.Unsubscribe(ch, indicate)
			}
		})
		return nil, ctx.Err()
	}

	return &subscription{conn: c, pair: pair, char: ch, indicate: indicate}, nil
}

// WriteChannel implements device.Connection.
func (c *connection) WriteChannel(pair device.Pair) (device.WriteChannel, error) {
	ch, err := c.find(pair)
	if err != nil {
		return nil, err
	}
	if ch.Property&(ble.CharWrite|ble.CharWriteNR) == 0 {
		return nil, &device.NotFoundError{Resource: "writable characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}
	return &writeChannel{
		conn:  c,
		pair:  pair,
		char:  ch,
		noRsp: ch.Property&ble.CharWrite == 0,
	}, nil
}

type subscription struct {
	conn     *connection
	pair     device.Pair
	char     *ble.Characteristic
	indicate bool
	once     sync.Once
}

func (s *subscription) Pair() device.Pair { return s.pair }

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		select {
		case <-s.conn.disconnected:
			return
		default:
		}
		err = device.NormalizeError(s.conn.client.Unsubscribe(s.char, s.indicate))
	})
	return err
}

type writeChannel struct {
	conn  *connection
	pair  device.Pair
	char  *ble.Characteristic
	noRsp bool
}

func (w *writeChannel) Pair() device.Pair { return w.pair }

// Write sends data in DefaultBLEWriteChunkSize chunks.
func (w *writeChannel) Write(ctx context.Context, data []byte) error {
	w.conn.writeMu.Lock()
	defer w.conn.writeMu.Unlock()

	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-w.conn.disconnected:
			return device.ErrNotConnected
		default:
		}
		n := min(len(data), DefaultBLEWriteChunkSize)
		if err := w.conn.client.WriteCharacteristic(w.char, data[:n], w.noRsp); err != nil {
			return device.NormalizeError(err)
		}
		data = data[n:]
		if len(data) > 0 {
			time.Sleep(DefaultBLEWriteDelay)
		}
	}
	return nil
}
