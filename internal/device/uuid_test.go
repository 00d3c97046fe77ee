package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit lowercase", input: "ffe0", expected: "ffe0"},
		{name: "16-bit uppercase", input: "FFE1", expected: "ffe1"},
		{name: "16-bit with 0x prefix", input: "0x180F", expected: "180f"},
		{name: "SIG base with dashes", input: "0000ffe0-0000-1000-8000-00805f9b34fb", expected: "ffe0"},
		{name: "SIG base without dashes", input: "0000FFE000001000800000805F9B34FB", expected: "ffe0"},
		{name: "SIG base with braces", input: "{0000180d-0000-1000-8000-00805f9b34fb}", expected: "180d"},
		{name: "custom 128-bit", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: NordicUARTService},
		{name: "surrounding whitespace", input: "  ffe1 ", expected: "ffe1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestExpandUUID(t *testing.T) {
	t.Run("16-bit goes into SIG base", func(t *testing.T) {
		got, err := ExpandUUID("FFE0")
		require.NoError(t, err)
		assert.Equal(t, "0000ffe0-0000-1000-8000-00805f9b34fb", got)
	})

	t.Run("128-bit keeps its value", func(t *testing.T) {
		got, err := ExpandUUID(NordicUARTRX)
		require.NoError(t, err)
		assert.Equal(t, "6e400003-b5a3-f393-e0a9-e50e24dcca9e", got)
	})

	t.Run("rejects odd lengths", func(t *testing.T) {
		_, err := ExpandUUID("ffe")
		assert.Error(t, err)
	})

	t.Run("rejects non-hex", func(t *testing.T) {
		_, err := ExpandUUID("zzzzzzzz-b5a3-f393-e0a9-e50e24dcca9e")
		assert.Error(t, err)
	})
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("FFE0", "6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	require.NoError(t, err)
	assert.Equal(t, []string{"ffe0", NordicUARTService}, got)

	_, err = ValidateUUID()
	assert.Error(t, err)

	_, err = ValidateUUID("ffe0", "")
	assert.ErrorContains(t, err, "index 1")
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("FFE0/FFE1")
	require.NoError(t, err)
	assert.Equal(t, Pair{Service: "ffe0", Characteristic: "ffe1"}, p)
	assert.Equal(t, "ffe0/ffe1", p.String())

	_, err = ParsePair("ffe0")
	assert.Error(t, err)

	_, err = ParsePair("ffe0/nothex")
	assert.Error(t, err)
}

func TestDefaultPairs(t *testing.T) {
	notify := DefaultNotifyPairs()
	require.Len(t, notify, 4)
	assert.Equal(t, NewPair(NordicUARTService, NordicUARTRX), notify[0], "primary pair must be tried first")
	assert.Equal(t, NewPair(HM10Service, HM10Char), notify[3])

	write := DefaultWritePairs()
	require.Len(t, write, 2)
	assert.Equal(t, NordicUARTTX, write[0].Characteristic)
}

func TestLookupService(t *testing.T) {
	assert.Equal(t, "Nordic UART Service", LookupService("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.Equal(t, "HM-10 Serial", LookupService("0000ffe0-0000-1000-8000-00805f9b34fb"))
	assert.Empty(t, LookupService("abcd"))
}
