package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE peripherals",
	Long: `Scan for Bluetooth Low Energy peripherals in the vicinity.

Each peripheral is listed once, in the order it was first seen. Peripherals
that do not advertise a name are hidden unless named_only is disabled in the
config file.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config scan_timeout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	m, logger, err := startManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	scanCtx := ctx
	remaining := m.ScanTimeout()
	if scanDuration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, scanDuration)
		defer cancel()
		remaining = min(remaining, scanDuration)
	}

	progress := NewCountdownProgressPrinter(cmd.OutOrStdout(), "Scanning for BLE devices", "Scanning", remaining)
	progress.Start()
	devices, err := m.Scan(scanCtx)
	progress.Stop()

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Debug("Scan interrupted, printing partial results")
	default:
		return err
	}

	out := cmd.OutOrStdout()
	if scanFormat == "json" {
		return renderDevicesJSON(out, devices)
	}
	return renderDevicesTable(out, devices)
}
