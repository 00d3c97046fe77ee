package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectIsError error
	}{
		{
			name:          "darwin central manager state",
			err:           errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"),
			expectIsError: ErrBluetoothOff,
		},
		{
			name:          "bluetooth turned off",
			err:           errors.New("Bluetooth is turned off"),
			expectIsError: ErrBluetoothOff,
		},
		{
			name:          "linux permission",
			err:           errors.New("can't init hci: operation not permitted"),
			expectIsError: ErrUnauthorized,
		},
		{
			name:          "device not connected",
			err:           errors.New("device not connected"),
			expectIsError: ErrNotConnected,
		},
		{
			name:          "already connected",
			err:           errors.New("device already connected"),
			expectIsError: ErrAlreadyConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.expectIsError)
			assert.ErrorContains(t, got, tt.err.Error(), "original message must be preserved")
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, NormalizeError(nil))
	})

	t.Run("unknown errors pass through", func(t *testing.T) {
		orig := errors.New("something else")
		got := NormalizeError(orig)
		assert.Same(t, orig, got)
		assert.NotErrorIs(t, got, ErrBluetoothOff)
	})
}

func TestConnectionErrorIs(t *testing.T) {
	err := &ConnectionError{State: NotConnected, Msg: "link dropped"}
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, "not_connected: link dropped", err.Error())
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.False(t, IsConnectionState(errors.New("x"), NotConnected))
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "service \"ffe0\" not found",
		(&NotFoundError{Resource: "service", UUIDs: []string{"ffe0"}}).Error())
	assert.Equal(t, "characteristic \"ffe1\" not found in service \"ffe0\"",
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"ffe0", "ffe1"}}).Error())
}

func TestPowerStateFromError(t *testing.T) {
	assert.Equal(t, PowerOn, PowerStateFromError(nil))
	assert.Equal(t, PowerOff, PowerStateFromError(NormalizeError(errors.New("bluetooth is turned off"))))
	assert.Equal(t, PowerUnauthorized, PowerStateFromError(NormalizeError(errors.New("permission denied"))))
	assert.Equal(t, PowerUnknown, PowerStateFromError(errors.New("boom")))
}

func TestPeripheralRef(t *testing.T) {
	ref := RefFromAdvertisement(Advertisement{ID: "AA:BB", Name: "", RSSI: -60})
	assert.Equal(t, "AA:BB", ref.DisplayName())
	if assert.NotNil(t, ref.RSSI) {
		assert.Equal(t, -60, *ref.RSSI)
	}
}
