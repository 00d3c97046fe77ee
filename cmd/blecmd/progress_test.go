package main

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
	"github.com/srg/blecmd/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressPrinterSilentWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressPrinter(&buf, "Scanning", "Scanning")
	p.Start()
	p.Callback()("Done")
	p.Stop()
	p.Stop()

	assert.Empty(t, buf.String())
	assert.Panics(t, p.Start, "a printer is single-use")
}

func TestProgressPrinterSeconds(t *testing.T) {
	up := NewProgressPrinter(nil, "x", "y")
	assert.Equal(t, 3, up.seconds(3700*time.Millisecond))

	down := NewCountdownProgressPrinter(nil, "x", "y", 10*time.Second)
	assert.Equal(t, 6, down.seconds(3700*time.Millisecond))
	assert.Equal(t, 7, down.seconds(3300*time.Millisecond))
	assert.Equal(t, 0, down.seconds(11*time.Second))
}

func TestAcquirePhase(t *testing.T) {
	assert.Equal(t, "Connecting", acquirePhase(session.AcquireIdle))
	assert.Equal(t, "Negotiating", acquirePhase(session.AcquireNegotiating))
	assert.Equal(t, "Subscribed", acquirePhase(session.AcquireSubscribed))
	assert.Equal(t, "Simulating", acquirePhase(session.AcquireFallback))
}

func TestTrackAcquireReportsPhases(t *testing.T) {
	const id = "AA:BB:CC:DD:EE:01"
	adapter := testutils.NewFakeAdapter().WithPeripheral(testutils.CreateArduinoPeripheral(id))
	m := session.New(adapter, session.DefaultOptions(), nil)
	require.NoError(t, m.Start(context.Background()))
	defer func() { _ = m.Close() }()

	var (
		mu     sync.Mutex
		phases []string
	)
	untrack := trackAcquire(m, func(phase string) {
		mu.Lock()
		phases = append(phases, phase)
		mu.Unlock()
	})
	_, err := m.Connect(context.Background(), device.PeripheralRef{ID: id})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(phases) > 0 && phases[len(phases)-1] == "Subscribed"
	}, 2*time.Second, 10*time.Millisecond)
	untrack()
}
