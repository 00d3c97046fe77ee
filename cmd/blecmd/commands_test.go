package main

import (
	"strings"

	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
	"github.com/srg/blecmd/internal/testutils"
)

func (s *CommandTestSuite) TestScanTable() {
	out, err := s.ExecuteCommand("scan")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).
		WithOptions(testutils.WithTrimSpace(true), testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(out, `
NAME         ADDRESS            RSSI
Arduino-Car  AA:BB:CC:DD:EE:01  -50 dBm
HMSoft       AA:BB:CC:DD:EE:02  -50 dBm
Battery      AA:BB:CC:DD:EE:03  -50 dBm
`)
}

func (s *CommandTestSuite) TestScanJSON() {
	out, err := s.ExecuteCommand("scan", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `[
		{"id": "AA:BB:CC:DD:EE:01", "name": "Arduino-Car", "rssi": -50},
		{"id": "AA:BB:CC:DD:EE:02", "name": "HMSoft", "rssi": -50},
		{"id": "AA:BB:CC:DD:EE:03", "name": "Battery", "rssi": -50}
	]`)
}

func (s *CommandTestSuite) TestScanRejectsUnknownFormat() {
	_, err := s.ExecuteCommand("scan", "--format", "xml")
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid format")
	s.Zero(s.Adapter.Scans(), "invalid flags MUST fail before touching the adapter")
}

func (s *CommandTestSuite) TestScanAdapterOff() {
	s.Adapter.SetPower(device.PowerOff)

	_, err := s.ExecuteCommand("scan")
	s.Require().ErrorIs(err, session.ErrAdapterNotReady)
	s.Contains(FormatUserError(err), "Turn Bluetooth on")
}

func (s *CommandTestSuite) TestMonitorLiveCommands() {
	run := s.StartCommand("monitor", TestDeviceAddress1, "--name", "Arduino-Car", "--count", "2")

	s.NotifyWhenSubscribed(TestDeviceAddress1, "siga")
	s.NotifyWhenSubscribed(TestDeviceAddress1, "pare:0.87:class_stop")

	out, err := run.Wait()
	s.Require().NoError(err)

	s.Contains(out, "Connected to Arduino-Car (subscribed) via "+device.DefaultNotifyPairs()[0].String())
	s.Contains(out, "↑  Siga             97%~  [live]")
	s.Contains(out, "✖  Pare              87%  [live]  class=class_stop")
	s.Contains(out, "Received 2 commands: pare=1 siga=1")
	s.Equal(1, s.Adapter.Peripheral(TestDeviceAddress1).Connection().Disconnects())
}

func (s *CommandTestSuite) TestMonitorFallsBackToSimulation() {
	out, err := s.ExecuteCommand("monitor", TestDeviceAddress3, "--count", "2")
	s.Require().NoError(err)

	s.Contains(out, "No command stream found; showing simulated commands")
	s.Contains(out, "[simulated]")
	s.NotContains(out, "[live]")
}

func (s *CommandTestSuite) TestMonitorConnectionLost() {
	run := s.StartCommand("monitor", TestDeviceAddress2)

	s.NotifyWhenSubscribed(TestDeviceAddress2, "reversa")
	s.Adapter.Peripheral(TestDeviceAddress2).Drop()

	out, err := run.Wait()
	s.Require().ErrorIs(err, ErrConnectionLost)
	s.Contains(out, "↓  Reversa")
	s.Contains(out, "Received 1 commands: reversa=1")
}

func (s *CommandTestSuite) TestMonitorUnknownPeripheral() {
	_, err := s.ExecuteCommand("monitor", "11:22:33:44:55:66")
	s.Require().Error(err)

	var nf *device.NotFoundError
	s.ErrorAs(err, &nf)
}

func (s *CommandTestSuite) TestDemo() {
	out, err := s.ExecuteCommand("demo", "--count", "3")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).
		WithOptions(testutils.WithTrimSpace(true), testutils.WithIgnoreTrailingWhitespace(true)).
		Assert(out, `
Demo mode: Arduino-Sim
↑  Siga             97%~  [demo]
✖  Pare             76%~  [demo]
→  Gire derecha     82%~  [demo]
Received 3 commands: gire_derecha=1 pare=1 siga=1
`)
	s.Zero(s.Adapter.Scans())
}

func (s *CommandTestSuite) TestSend() {
	out, err := s.ExecuteCommand("send", TestDeviceAddress1, " SIGA ")
	s.Require().NoError(err)

	s.Equal("Sent siga to AA:BB:CC:DD:EE:01\n", out)
	s.Equal([][]byte{[]byte("siga\n")}, s.Adapter.Peripheral(TestDeviceAddress1).Writes())
}

func (s *CommandTestSuite) TestSendWithoutWriteChannel() {
	_, err := s.ExecuteCommand("send", TestDeviceAddress3, "pare")
	s.Require().ErrorIs(err, session.ErrNoWriteChannel)
	s.True(strings.Contains(FormatUserError(err), "no writable"))
}

func (s *CommandTestSuite) TestInvalidBackendFlag() {
	_, err := s.ExecuteCommand("scan", "--backend", "bluez")
	s.Require().Error(err)
	s.Contains(err.Error(), "backend")
}
