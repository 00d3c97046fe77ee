package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"permission", fmt.Errorf("scan: %w", session.ErrPermissionDenied), "Bluetooth permission denied. Grant this terminal Bluetooth access in system settings and retry."},
		{"device unauthorized", device.ErrUnauthorized, "Bluetooth permission denied. Grant this terminal Bluetooth access in system settings and retry."},
		{"adapter off", fmt.Errorf("%w: adapter is PoweredOff", session.ErrAdapterNotReady), "Bluetooth adapter is not ready. Turn Bluetooth on and retry."},
		{"already connected", fmt.Errorf("%w: demo session already active", session.ErrAlreadyConnected), "A session is already active. Disconnect first."},
		{"no write channel", session.ErrNoWriteChannel, "The peripheral exposes no writable command characteristic."},
		{"connection lost", ErrConnectionLost, "Connection to the peripheral was lost."},
		{"not found", fmt.Errorf("failed to connect: %w", &device.NotFoundError{Resource: "peripheral", UUIDs: []string{"AA"}}), "The peripheral does not expose the requested peripheral."},
		{"link down", fmt.Errorf("failed to write \"siga\": %w", device.ErrNotConnected), "The peripheral is not connected."},
		{"timeout", fmt.Errorf("failed to connect: %w", context.DeadlineExceeded), "Timed out: failed to connect: context deadline exceeded"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}
