package session

import (
	"errors"

	"github.com/srg/blecmd/internal/device"
)

// Session-level errors. Connection state errors reuse the device sentinels so
// errors.Is works across layers.
var (
	ErrAdapterNotReady  = errors.New("bluetooth adapter is not ready")
	ErrPermissionDenied = errors.New("bluetooth permission denied")
	ErrScanInProgress   = errors.New("scan already in progress")
	ErrNoWriteChannel   = errors.New("no writable characteristic on this session")
	ErrNotStarted       = errors.New("session manager not started")
	ErrClosed           = errors.New("session manager closed")

	ErrAlreadyConnected = device.ErrAlreadyConnected
	ErrNotConnected     = device.ErrNotConnected
)
