package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Adapter and operation errors
var (
	ErrBluetoothOff = errors.New("bluetooth is turned off")
	ErrUnauthorized = errors.New("bluetooth access is not authorized")
	ErrUnsupported  = errors.New("unsupported")
)

// NormalizeError maps backend error strings to structured errors.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "central manager has invalid state"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "unauthorized"),
		containsIgnoreCase(msg, "permission denied"),
		containsIgnoreCase(msg, "operation not permitted"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// PowerState mirrors the host adapter state as reported by the platform.
type PowerState string

const (
	PowerUnknown      PowerState = "Unknown"
	PowerResetting    PowerState = "Resetting"
	PowerUnsupported  PowerState = "Unsupported"
	PowerUnauthorized PowerState = "Unauthorized"
	PowerOff          PowerState = "PoweredOff"
	PowerOn           PowerState = "PoweredOn"
)

// PowerStateFromError derives the adapter state implied by an initialization error.
func PowerStateFromError(err error) PowerState {
	switch {
	case err == nil:
		return PowerOn
	case errors.Is(err, ErrBluetoothOff):
		return PowerOff
	case errors.Is(err, ErrUnauthorized):
		return PowerUnauthorized
	case errors.Is(err, ErrUnsupported):
		return PowerUnsupported
	default:
		return PowerUnknown
	}
}

// Advertisement is a single discovery event as delivered by a backend.
type Advertisement struct {
	ID          string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
}

// PeripheralRef identifies a discovered peripheral.
// It is captured once during a scan and never mutated afterwards.
type PeripheralRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	RSSI *int   `json:"rssi,omitempty"`
}

// DisplayName falls back to the address when the peripheral did not advertise a name.
func (p PeripheralRef) DisplayName() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name
}

// RefFromAdvertisement captures the identity part of an advertisement.
func RefFromAdvertisement(adv Advertisement) PeripheralRef {
	rssi := adv.RSSI
	return PeripheralRef{
		ID:   adv.ID,
		Name: adv.Name,
		RSSI: &rssi,
	}
}

// PowerWatcher reports adapter power state and its changes.
type PowerWatcher interface {
	PowerState() PowerState
	// WatchPowerState invokes fn with the current state and every change
	// until ctx is done.
	WatchPowerState(ctx context.Context, fn func(PowerState)) error
}

// Adapter is the host side of the BLE link.
type Adapter interface {
	PowerWatcher

	// Scan delivers advertisements to handler until ctx is done.
	Scan(ctx context.Context, handler func(Advertisement)) error
	// Connect dials the peripheral and discovers its services.
	Connect(ctx context.Context, id string) (Connection, error)
	Close() error
}

// Connection is a live link to one peripheral.
type Connection interface {
	ID() string
	// Subscribe enables notifications on the pair. The handler is invoked in
	// arrival order on a backend goroutine.
	Subscribe(ctx context.Context, pair Pair, handler func([]byte)) (Subscription, error)
	// WriteChannel returns a writable handle for the pair.
	WriteChannel(pair Pair) (WriteChannel, error)
	// Disconnected is closed when the link drops, for any reason.
	Disconnected() <-chan struct{}
	Disconnect() error
}

// Subscription is an active notification registration.
type Subscription interface {
	Pair() Pair
	Unsubscribe() error
}

// WriteChannel is a characteristic the central can write to.
type WriteChannel interface {
	Pair() Pair
	Write(ctx context.Context, data []byte) error
}
