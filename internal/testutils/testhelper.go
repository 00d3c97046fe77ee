package testutils

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Output *bytes.Buffer
}

// NewTestHelper creates a test helper with a debug logger writing to a buffer.
func NewTestHelper(t *testing.T) *TestHelper {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Output: &buf,
	}
}

// CreateArduinoPeripheral returns the usual test peripheral: Nordic UART
// service with notify RX and writable TX.
func CreateArduinoPeripheral(id string) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(`{
		"id": %q,
		"name": "Arduino-Car",
		"services": [
			{
				"uuid": "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
				"characteristics": [
					{ "uuid": "6e400003-b5a3-f393-e0a9-e50e24dcca9e", "properties": "notify" },
					{ "uuid": "6e400002-b5a3-f393-e0a9-e50e24dcca9e", "properties": "write,write-without-response" }
				]
			}
		]
	}`, id)
}

// CreateHM10Peripheral returns an HM-10 style module with a single
// notify+write characteristic.
func CreateHM10Peripheral(id string) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(`{
		"id": %q,
		"name": "HMSoft",
		"services": [
			{ "uuid": "ffe0", "characteristics": [ { "uuid": "ffe1", "properties": "notify,write-without-response" } ] }
		]
	}`, id)
}

// CreateSilentPeripheral has no command service at all.
func CreateSilentPeripheral(id string) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(`{
		"id": %q,
		"name": "Battery",
		"services": [
			{ "uuid": "180f", "characteristics": [ { "uuid": "2a19", "properties": "read,notify" } ] }
		]
	}`, id)
}
