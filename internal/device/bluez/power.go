// Package bluez tracks host adapter power through BlueZ over the system D-Bus.
//
// The go-ble and tinygo backends only learn about power once, at adapter
// initialization. Watcher fills the gap on Linux by following the
// org.bluez.Adapter1 Powered property.
package bluez

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecmd/internal/device"
)

const (
	busName      = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"
	propsSignal  = "org.freedesktop.DBus.Properties.PropertiesChanged"

	// DefaultAdapterPath is the first HCI controller.
	DefaultAdapterPath = "/org/bluez/hci0"
)

// Watcher implements device.PowerWatcher for one BlueZ adapter.
type Watcher struct {
	conn   *dbus.Conn
	path   dbus.ObjectPath
	logger *logrus.Logger

	mu    sync.Mutex
	state device.PowerState
}

// NewWatcher opens a private system bus connection and reads the initial
// Powered value. An empty path selects DefaultAdapterPath. The caller owns the
// connection and must Close the watcher.
func NewWatcher(path string, logger *logrus.Logger) (*Watcher, error) {
	if path == "" {
		path = DefaultAdapterPath
	}
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		_ = conn.Close()
		return nil, fmt.Errorf("%s not found on system bus: %w", busName, device.ErrUnsupported)
	}

	w := &Watcher{conn: conn, path: dbus.ObjectPath(path), logger: logger}
	w.state = w.read()
	return w, nil
}

func (w *Watcher) read() device.PowerState {
	var v dbus.Variant
	err := w.conn.Object(busName, w.path).Call(propsIface+".Get", 0, adapterIface, "Powered").Store(&v)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Debug("Failed to read adapter Powered property")
		return device.PowerUnsupported
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return device.PowerUnknown
	}
	return stateFromPowered(powered)
}

// PowerState returns the last observed state.
func (w *Watcher) PowerState() device.PowerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// WatchPowerState reports the current state, then every Powered change,
// until ctx is done.
func (w *Watcher) WatchPowerState(ctx context.Context, fn func(device.PowerState)) error {
	rule := fmt.Sprintf("type='signal',interface='%s',member='PropertiesChanged',path='%s'", propsIface, w.path)
	if err := w.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err; err != nil {
		return fmt.Errorf("subscribe to adapter properties: %w", err)
	}
	defer w.conn.BusObject().Call("org.freedesktop.DBus.RemoveMatch", 0, rule)

	ch := make(chan *dbus.Signal, 16)
	w.conn.Signal(ch)
	defer w.conn.RemoveSignal(ch)

	fn(w.PowerState())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return fmt.Errorf("system bus closed")
			}
			if sig.Path != w.path {
				continue
			}
			state, changed := powerFromSignal(sig)
			if !changed {
				continue
			}
			w.mu.Lock()
			same := w.state == state
			w.state = state
			w.mu.Unlock()
			if !same {
				w.logger.WithField("state", state).Debug("Adapter power changed")
				fn(state)
			}
		}
	}
}

// Close releases the bus connection.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

func stateFromPowered(powered bool) device.PowerState {
	if powered {
		return device.PowerOn
	}
	return device.PowerOff
}

// powerFromSignal extracts the Powered value from a PropertiesChanged signal.
// Body: [interface string, changed map[string]Variant, invalidated []string]
func powerFromSignal(sig *dbus.Signal) (device.PowerState, bool) {
	if sig == nil || sig.Name != propsSignal || len(sig.Body) < 2 {
		return "", false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != adapterIface {
		return "", false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false
	}
	v, ok := changed["Powered"]
	if !ok {
		return "", false
	}
	powered, ok := v.Value().(bool)
	if !ok {
		return "", false
	}
	return stateFromPowered(powered), true
}
