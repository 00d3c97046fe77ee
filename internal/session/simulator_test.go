package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/srg/blecmd/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 8), stopped: make(chan struct{})}
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

func (t *manualTicker) factory() func(time.Duration) Ticker {
	return func(time.Duration) Ticker { return t }
}

func TestGeneratorRotatesTokens(t *testing.T) {
	ticker := newManualTicker()
	got := make(chan string, 16)
	gen := &Generator{
		Tokens:    []string{"siga", "pare", "reversa"},
		Period:    time.Second,
		NewTicker: ticker.factory(),
		Emit: func(cmd command.Command) bool {
			got <- cmd.Token
			return true
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Run(ctx)
		close(done)
	}()

	var tokens []string
	for i := 0; i < 4; i++ {
		ticker.ch <- time.Now()
		select {
		case tok := <-got:
			tokens = append(tokens, tok)
		case <-time.After(time.Second):
			t.Fatal("generator did not emit")
		}
	}
	cancel()
	<-done

	assert.Equal(t, []string{"siga", "pare", "reversa", "siga"}, tokens)
	select {
	case <-ticker.stopped:
	default:
		t.Fatal("ticker was not stopped")
	}
}

func TestGeneratorDropsTickAfterCancel(t *testing.T) {
	ticker := newManualTicker()
	emitted := 0
	gen := &Generator{
		Tokens:    command.Tokens,
		NewTicker: ticker.factory(),
		Emit: func(command.Command) bool {
			emitted++
			return true
		},
	}

	// The tick is already pending when the context is cancelled.
	ticker.ch <- time.Now()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen.Run(ctx)
	assert.Zero(t, emitted)
}

func TestGeneratorStopsWhenEmitRefuses(t *testing.T) {
	ticker := newManualTicker()
	calls := 0
	gen := &Generator{
		Tokens:    command.Tokens,
		NewTicker: ticker.factory(),
		Emit: func(command.Command) bool {
			calls++
			return false
		},
	}
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	done := make(chan struct{})
	go func() {
		gen.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("generator kept running after Emit returned false")
	}
	assert.Equal(t, 1, calls)
}

func TestGeneratorWithoutTokensReturns(t *testing.T) {
	gen := &Generator{Emit: func(command.Command) bool { return true }}
	gen.Run(context.Background())
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{DemoPeriod: time.Second}.withDefaults()

	require.NotNil(t, opts.Mapper)
	assert.Equal(t, time.Second, opts.DemoPeriod)
	assert.Equal(t, DefaultSimulatePeriod, opts.SimulatePeriod)
	assert.Equal(t, DefaultNegotiateTimeout, opts.NegotiateTimeout)
	assert.Equal(t, command.Tokens, opts.Tokens)
	assert.Len(t, opts.NotifyPairs, 4)
	assert.Equal(t, command.EncodingRaw, opts.Encoding)
}
