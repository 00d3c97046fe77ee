package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a FakeAdapter per test.
//
//	type ManagerSuite struct {
//	    testutils.MockBLEPeripheralSuite
//	}
//
//	func (s *ManagerSuite) SetupTest() {
//	    s.WithAdapter().WithPeripheral(testutils.CreateHM10Peripheral("AA"))
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	Adapter *FakeAdapter
}

// SetupSuite is called once before all tests in the suite.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.TestTimeout = 2 * time.Second
}

// SetupTest creates a default adapter unless the embedding suite configured one.
func (s *MockBLEPeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.Adapter == nil {
		s.Adapter = NewFakeAdapter().WithPeripheral(CreateArduinoPeripheral("AA:BB:CC:DD:EE:01"))
	}
}

// TearDownTest resets the adapter for the next test.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	s.Adapter = nil
}

// WithAdapter returns the adapter for configuration in SetupTest.
func (s *MockBLEPeripheralSuite) WithAdapter() *FakeAdapter {
	if s.Adapter == nil {
		s.Adapter = NewFakeAdapter()
	}
	return s.Adapter
}

// WaitFor polls cond until it holds or the suite timeout passes.
func (s *MockBLEPeripheralSuite) WaitFor(cond func() bool, msg string) {
	s.Require().Eventually(cond, s.TestTimeout, 5*time.Millisecond, msg)
}
