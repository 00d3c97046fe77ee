package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/blecmd/internal/device"
)

// FakeAdapter is an in-memory device.Adapter. Scans replay the configured
// advertisements and then block until the scan context ends, like a radio.
type FakeAdapter struct {
	mu          sync.Mutex
	power       device.PowerState
	watchers    map[int]func(device.PowerState)
	nextWatcher int
	ads         []device.Advertisement
	peripherals map[string]*FakePeripheral
	connectErr  error
	hangConnect bool
	connectHook func()
	scanErr     error
	scans       int
	closed      bool
}

// NewFakeAdapter returns a powered-on adapter with no peripherals.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		power:       device.PowerOn,
		watchers:    make(map[int]func(device.PowerState)),
		peripherals: make(map[string]*FakePeripheral),
	}
}

// WithPower sets the initial power state.
func (a *FakeAdapter) WithPower(state device.PowerState) *FakeAdapter {
	a.power = state
	return a
}

// WithPeripheral registers p for Connect and advertises it during scans.
func (a *FakeAdapter) WithPeripheral(b *PeripheralBuilder) *FakeAdapter {
	p := b.Build()
	a.peripherals[p.ID] = p
	a.ads = append(a.ads, b.Advertisement())
	return a
}

// WithConnectError makes every Connect fail with err.
func (a *FakeAdapter) WithConnectError(err error) *FakeAdapter {
	a.connectErr = err
	return a
}

// WithHangingConnect makes Connect block until its context ends.
func (a *FakeAdapter) WithHangingConnect() *FakeAdapter {
	a.hangConnect = true
	return a
}

// WithConnectHook runs fn after the link is up but before Connect returns,
// ignoring the dial context. It models backends that keep discovering
// services after the caller gave up.
func (a *FakeAdapter) WithConnectHook(fn func()) *FakeAdapter {
	a.connectHook = fn
	return a
}

// WithScanError makes Scan fail with err once the advertisements are replayed.
func (a *FakeAdapter) WithScanError(err error) *FakeAdapter {
	a.scanErr = err
	return a
}

// WithScanAdvertisements returns an array builder that appends raw
// advertisements (including repeats) to the scan replay.
func (a *FakeAdapter) WithScanAdvertisements() *AdvertisementArrayBuilder[*FakeAdapter] {
	ab := NewAdvertisementArrayBuilder[*FakeAdapter]()
	ab.parent = a
	ab.buildFunc = func(parent *FakeAdapter, ads []device.Advertisement) *FakeAdapter {
		parent.ads = append(parent.ads, ads...)
		return parent
	}
	return ab
}

// SetScanAdvertisements replaces what later scans replay.
func (a *FakeAdapter) SetScanAdvertisements(ads ...device.Advertisement) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ads = append([]device.Advertisement(nil), ads...)
}

// Peripheral returns the registered peripheral with id.
func (a *FakeAdapter) Peripheral(id string) *FakePeripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peripherals[id]
}

// SetPower changes the power state and notifies watchers.
func (a *FakeAdapter) SetPower(state device.PowerState) {
	a.mu.Lock()
	a.power = state
	fns := make([]func(device.PowerState), 0, len(a.watchers))
	for _, fn := range a.watchers {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// Scans counts Scan calls.
func (a *FakeAdapter) Scans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

// Closed reports whether Close was called.
func (a *FakeAdapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *FakeAdapter) PowerState() device.PowerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.power
}

func (a *FakeAdapter) WatchPowerState(ctx context.Context, fn func(device.PowerState)) error {
	a.mu.Lock()
	id := a.nextWatcher
	a.nextWatcher++
	a.watchers[id] = fn
	current := a.power
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.watchers, id)
		a.mu.Unlock()
	}()

	fn(current)
	<-ctx.Done()
	return ctx.Err()
}

func (a *FakeAdapter) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	a.mu.Lock()
	a.scans++
	ads := append([]device.Advertisement(nil), a.ads...)
	scanErr := a.scanErr
	a.mu.Unlock()

	for _, adv := range ads {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	if scanErr != nil {
		return scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (a *FakeAdapter) Connect(ctx context.Context, id string) (device.Connection, error) {
	a.mu.Lock()
	p, ok := a.peripherals[id]
	connectErr, hang, hook := a.connectErr, a.hangConnect, a.connectHook
	a.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if connectErr != nil {
		return nil, connectErr
	}
	if !ok {
		return nil, &device.NotFoundError{Resource: "peripheral", UUIDs: []string{id}}
	}
	conn := p.connect()
	if hook != nil {
		hook()
	}
	return conn, nil
}

func (a *FakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// FakePeripheral is the remote side of a FakeAdapter connection.
type FakePeripheral struct {
	ID   string
	Name string

	chars      map[device.Pair]charProps
	hangNotify bool
	subErrs    map[device.Pair]error

	mu           sync.Mutex
	conn         *FakeConnection
	connects     int
	subscribes   []device.Pair
	unsubscribes int
	writes       [][]byte
}

func (p *FakePeripheral) connect() *FakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	p.conn = &FakeConnection{
		peripheral:   p,
		handlers:     make(map[device.Pair]func([]byte)),
		disconnected: make(chan struct{}),
	}
	return p.conn
}

// Notify pushes data to the active subscription, if any. It reports whether
// a handler received it.
func (p *FakePeripheral) Notify(data []byte) bool {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.notify(data)
}

// Drop simulates the peripheral going out of range.
func (p *FakePeripheral) Drop() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.close()
	}
}

// Connection returns the latest connection.
func (p *FakePeripheral) Connection() *FakeConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// Subscribes lists subscribe attempts in order.
func (p *FakePeripheral) Subscribes() []device.Pair {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]device.Pair(nil), p.subscribes...)
}

func (p *FakePeripheral) Unsubscribes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unsubscribes
}

// Writes returns every payload written.
func (p *FakePeripheral) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.writes...)
}

// FakeConnection implements device.Connection.
type FakeConnection struct {
	peripheral *FakePeripheral

	mu           sync.Mutex
	handlers     map[device.Pair]func([]byte)
	disconnected chan struct{}
	closeOnce    sync.Once
	disconnects  int
}

func (c *FakeConnection) ID() string { return c.peripheral.ID }

func (c *FakeConnection) Disconnected() <-chan struct{} { return c.disconnected }

func (c *FakeConnection) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	c.close()
	return nil
}

// Disconnects counts Disconnect calls.
func (c *FakeConnection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *FakeConnection) close() {
	c.closeOnce.Do(func() { close(c.disconnected) })
}

func (c *FakeConnection) isClosed() bool {
	select {
	case <-c.disconnected:
		return true
	default:
		return false
	}
}

func (c *FakeConnection) Subscribe(ctx context.Context, pair device.Pair, handler func([]byte)) (device.Subscription, error) {
	p := c.peripheral
	p.mu.Lock()
	p.subscribes = append(p.subscribes, pair)
	props, ok := p.chars[pair]
	subErr := p.subErrs[pair]
	hang := p.hangNotify
	p.mu.Unlock()

	if c.isClosed() {
		return nil, device.ErrNotConnected
	}
	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if subErr != nil {
		return nil, subErr
	}
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}
	if !props.notify && !props.indicate {
		return nil, errors.New("characteristic does not support notifications")
	}

	c.mu.Lock()
	c.handlers[pair] = handler
	c.mu.Unlock()
	return &fakeSubscription{conn: c, pair: pair}, nil
}

func (c *FakeConnection) notify(data []byte) bool {
	if c.isClosed() {
		return false
	}
	c.mu.Lock()
	handlers := make([]func([]byte), 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
	return len(handlers) > 0
}

func (c *FakeConnection) WriteChannel(pair device.Pair) (device.WriteChannel, error) {
	props, ok := c.peripheral.chars[pair]
	if !ok || !(props.write || props.writeNR) {
		return nil, &device.NotFoundError{Resource: "writable characteristic", UUIDs: []string{pair.Service, pair.Characteristic}}
	}
	return &fakeWriteChannel{conn: c, pair: pair}, nil
}

type fakeSubscription struct {
	conn *FakeConnection
	pair device.Pair
}

func (s *fakeSubscription) Pair() device.Pair { return s.pair }

func (s *fakeSubscription) Unsubscribe() error {
	s.conn.mu.Lock()
	delete(s.conn.handlers, s.pair)
	s.conn.mu.Unlock()

	p := s.conn.peripheral
	p.mu.Lock()
	p.unsubscribes++
	p.mu.Unlock()
	return nil
}

type fakeWriteChannel struct {
	conn *FakeConnection
	pair device.Pair
}

func (w *fakeWriteChannel) Pair() device.Pair { return w.pair }

func (w *fakeWriteChannel) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.conn.isClosed() {
		return device.ErrNotConnected
	}
	p := w.conn.peripheral
	p.mu.Lock()
	p.writes = append(p.writes, append([]byte(nil), data...))
	p.mu.Unlock()
	return nil
}
