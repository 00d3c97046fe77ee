package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// writeChunkSize keeps writes inside the default ATT MTU payload.
const writeChunkSize = 20

type connection struct {
	id      string
	dev     bluetooth.Device
	adapter *Adapter
	chars   map[device.Pair]bluetooth.DeviceCharacteristic

	writeMu      sync.Mutex
	disconnected chan struct{}
	closeOnce    sync.Once
}

// newConnection discovers every service and characteristic up front.
func newConnection(id string, dev bluetooth.Device, a *Adapter) (*connection, error) {
	services, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", device.NormalizeError(err))
	}

	c := &connection{
		id:           id,
		dev:          dev,
		adapter:      a,
		chars:        make(map[device.Pair]bluetooth.DeviceCharacteristic),
		disconnected: make(chan struct{}),
	}
	for _, svc := range services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			a.logger.WithError(err).WithField("service", svc.UUID().String()).Debug("Skipping service with undiscoverable characteristics")
			continue
		}
		for _, ch := range chars {
			c.chars[device.NewPair(svc.UUID().String(), ch.UUID().String())] = ch
		}
	}
	a.logger.WithField("address", id).WithField("characteristics", len(c.chars)).Debug("Profile discovered successfully")
	return c, nil
}

func (c *connection) ID() string { return c.id }

func (c *connection) Disconnected() <-chan struct{} { return c.disconnected }

func (c *connection) markDisconnected() {
	c.closeOnce.Do(func() {
		c.adapter.forget(c.id)
		close(c.disconnected)
	})
}

func (c *connection) Disconnect() error {
	select {
	case <-c.disconnected:
		return nil
	default:
	}
	err := c.dev.Disconnect()
	c.markDisconnected()
	return device.NormalizeError(err)
}

func (c *connection) find(pair device.Pair) (bluetooth.DeviceCharacteristic, error) {
	ch, ok := c.chars[pair]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}
	return ch, nil
}

// Subscribe implements device.Connection.
func (c *connection) Subscribe(ctx context.Context, pair device.Pair, handler func([]byte)) (device.Subscription, error) {
	ch, err := c.find(pair)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	groutine.Go(ctx, "tinygo-subscribe", func(context.Context) {
		done <- ch.EnableNotifications(func(buf []byte) {
			handler(append([]byte(nil), buf...))
		})
	})

	select {
	case err := <-done:
		if err != nil {
			return nil, device.NormalizeError(err)
		}
	case <-ctx.Done():
		groutine.Go(context.Background(), "tinygo-subscribe-cleanup", func(context.Context) {
			if err := <-done; err == nil {
				_ = ch.EnableNotifications(nil)
			}
		})
		return nil, ctx.Err()
	}
	return &subscription{conn: c, pair: pair, char: ch}, nil
}

// WriteChannel implements device.Connection. tinygo does not expose
// characteristic properties on every platform, so writability surfaces on
// the first Write.
func (c *connection) WriteChannel(pair device.Pair) (device.WriteChannel, error) {
	ch, err := c.find(pair)
	if err != nil {
		return nil, err
	}
	return &writeChannel{conn: c, pair: pair, char: ch}, nil
}

type subscription struct {
	conn *connection
	pair device.Pair
	char bluetooth.DeviceCharacteristic
	once sync.Once
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
		err = device.NormalizeError(s.char.EnableNotifications(nil))
	})
	return err
}

type writeChannel struct {
	conn *connection
	pair device.Pair
	char bluetooth.DeviceCharacteristic
}

func (w *writeChannel) Pair() device.Pair { return w.pair }

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
		n := min(len(data), writeChunkSize)
		if _, err := w.char.WriteWithoutResponse(data[:n]); err != nil {
			return device.NormalizeError(err)
		}
		data = data[n:]
	}
	return nil
}
