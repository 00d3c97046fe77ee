package main

import (
	"github.com/spf13/cobra"
)

// demoCmd represents the demo command
var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Display a simulated command stream without hardware",
	Long: `Start demo mode: a synthetic peripheral cycles through the known
commands at the configured demo_period. No peripheral needs to be present.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var demoCount int

func init() {
	demoCmd.Flags().IntVarP(&demoCount, "count", "n", 0, "Stop after this many commands (0 for unlimited)")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	m, _, err := startManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.ToggleDemoMode(true); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	renderStatus(out, m.Snapshot())

	stats, err := watchSession(ctx, out, m, demoCount)
	_ = m.ToggleDemoMode(false)
	renderStats(out, stats)
	return err
}
