package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <address>",
	Short: "Connect to a peripheral and display received commands",
	Long: `Connect to a peripheral and display every command it sends.

The first characteristic pair that accepts a subscription (Nordic UART or
HM-10 layouts) becomes the command stream. When none does, a simulated
command stream is shown instead so the display keeps working.

Runs until Ctrl+C, until the peripheral disconnects, or until --count
commands were displayed.`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorName  string
	monitorCount int
)

func init() {
	monitorCmd.Flags().StringVar(&monitorName, "name", "", "Display name for the peripheral")
	monitorCmd.Flags().IntVarP(&monitorCount, "count", "n", 0, "Stop after this many commands (0 for unlimited)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	m, _, err := startManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	out := cmd.OutOrStdout()
	ref := device.PeripheralRef{ID: args[0], Name: monitorName}

	progress := NewProgressPrinter(out, fmt.Sprintf("Connecting to %s", ref.DisplayName()), "Connecting",
		acquirePhase(session.AcquireSubscribed), acquirePhase(session.AcquireFallback))
	progress.Start()
	untrack := trackAcquire(m, progress.Callback())
	state, err := m.Connect(ctx, ref)
	untrack()
	progress.Callback()(acquirePhase(state))
	progress.Stop()
	if err != nil {
		return err
	}

	renderStatus(out, m.Snapshot())
	if state == session.AcquireFallback {
		fmt.Fprintln(out, "No command stream found; showing simulated commands")
	}

	stats, err := watchSession(ctx, out, m, monitorCount)
	_ = m.Disconnect()
	renderStats(out, stats)
	return err
}

func acquirePhase(state session.AcquireState) string {
	switch state {
	case session.AcquireNegotiating:
		return "Negotiating"
	case session.AcquireSubscribed:
		return "Subscribed"
	case session.AcquireFallback:
		return "Simulating"
	default:
		return "Connecting"
	}
}

// trackAcquire polls the session snapshot and reports acquisition phases to
// setPhase until the returned func is called. It reads snapshots rather than
// events so no update is taken away from watchSession.
func trackAcquire(m *session.Manager, setPhase func(string)) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		last := session.AcquireIdle
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if st := m.Snapshot().Acquire; st != last {
					last = st
					setPhase(acquirePhase(st))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// watchSession renders commands from m until ctx ends, the session is
// cleared, or limit commands were shown. It returns the last seen stats.
func watchSession(ctx context.Context, w io.Writer, m *session.Manager, limit int) (session.Stats, error) {
	var (
		stats session.Stats
		shown int
	)
	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case u, ok := <-m.Events():
			if !ok {
				return stats, nil
			}
			switch u.Kind {
			case session.UpdateCommand:
				stats = u.State.Stats
				if u.State.Display != nil {
					renderDisplay(w, *u.State.Display)
				}
				shown++
				if limit > 0 && shown >= limit {
					return stats, nil
				}
			case session.UpdateCleared:
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				return stats, ErrConnectionLost
			}
		}
	}
}
