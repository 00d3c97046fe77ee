package session

import (
	"context"
	"testing"
	"time"

	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverRejectsStaleSession(t *testing.T) {
	h := testutils.NewTestHelper(t)
	m := New(testutils.NewFakeAdapter(), Options{NewTicker: newManualTicker().factory()}, h.Logger)
	require.NoError(t, m.Start(context.Background()))
	defer func() { _ = m.Close() }()

	require.NoError(t, m.ToggleDemoMode(true))
	m.mu.Lock()
	staleID := m.active.id
	m.mu.Unlock()

	ev := command.Event{Command: command.NewSimple("siga"), Origin: command.OriginDemo, ArrivedAt: time.Now()}
	assert.True(t, m.deliver(staleID, ev))

	require.NoError(t, m.Disconnect())
	assert.False(t, m.deliver(staleID, ev), "a tick scheduled before disconnect must be a no-op")
	_, ok := m.Display()
	assert.False(t, ok)

	// A new session gets a new id; the old one stays dead.
	require.NoError(t, m.ToggleDemoMode(true))
	assert.False(t, m.deliver(staleID, ev))
	assert.Zero(t, m.Snapshot().Stats.Total)
}
