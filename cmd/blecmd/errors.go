package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the peripheral dropped the link while a
	// command was running. It is distinct from device.ErrNotConnected, which
	// means no link existed in the first place.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message for the
// terminal. Unknown errors are printed as-is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var nf *device.NotFoundError
	switch {
	case errors.Is(err, session.ErrPermissionDenied), errors.Is(err, device.ErrUnauthorized):
		return "Bluetooth permission denied. Grant this terminal Bluetooth access in system settings and retry."
	case errors.Is(err, session.ErrAdapterNotReady), errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth adapter is not ready. Turn Bluetooth on and retry."
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth LE is not supported on this host."
	case errors.Is(err, session.ErrScanInProgress):
		return "A scan is already running."
	case errors.Is(err, session.ErrAlreadyConnected):
		return "A session is already active. Disconnect first."
	case errors.Is(err, session.ErrNoWriteChannel):
		return "The peripheral exposes no writable command characteristic."
	case errors.Is(err, ErrConnectionLost):
		return "Connection to the peripheral was lost."
	case device.IsConnectionState(err, device.NotConnected):
		return "The peripheral is not connected."
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Timed out: %v", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("The peripheral does not expose the requested %s.", nf.Resource)
	default:
		return err.Error()
	}
}
