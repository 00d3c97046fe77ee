// Package device defines the host-side BLE abstractions used by the session
// layer.
//
// An Adapter scans and dials peripherals; a Connection subscribes to
// notifications and exposes write channels addressed by a service and
// characteristic Pair. Backends live in subpackages:
//   - goble: github.com/go-ble/ble (macOS CoreBluetooth, Linux HCI)
//   - tinygo: tinygo.org/x/bluetooth (CoreBluetooth, BlueZ, WinRT)
//   - bluez: adapter power tracking over the system D-Bus
//
// UUIDs are carried in normalized form: lowercase hex, no dashes, with SIG
// base UUIDs reduced to their 16-bit short form.
package device
