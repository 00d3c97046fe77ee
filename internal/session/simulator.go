package session

import (
	"context"
	"time"

	"github.com/srg/blecmd/internal/command"
)

// Ticker is the part of time.Ticker the generator uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTicker wraps time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Generator synthesizes commands from a fixed rotation, one per tick.
type Generator struct {
	Tokens    []string
	Period    time.Duration
	NewTicker func(time.Duration) Ticker

	// Emit publishes a command. It returns false once the owning session is
	// gone, which stops the generator.
	Emit func(command.Command) bool
}

// Run ticks until ctx is done or Emit refuses a command. The context is
// checked again after each tick so a tick racing with cancellation is dropped.
func (g *Generator) Run(ctx context.Context) {
	if len(g.Tokens) == 0 {
		return
	}
	newTicker := g.NewTicker
	if newTicker == nil {
		newTicker = NewTicker
	}

	t := newTicker(g.Period)
	defer t.Stop()

	for i := 0; ; {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
		if ctx.Err() != nil {
			return
		}
		if !g.Emit(command.NewSimple(g.Tokens[i%len(g.Tokens)])) {
			return
		}
		i++
	}
}
