package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "blecmd",
	Short: "Receive and display driving commands from a BLE peripheral",
	Long: `Bluetooth Low Energy (BLE) command receiver that:

- Scans for nearby peripherals advertising a name
- Connects and negotiates a notification stream (Nordic UART or HM-10)
- Falls back to a simulated command stream when no stream is available
- Renders every received command (siga, pare, gire_derecha, gire_izquierda, reversa)
- Runs a demo mode without any hardware

Configuration is read from ~/.config/blecmd/config.yaml (see --config).`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("blecmd {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(sendCmd)

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Shortcut for --log-level=debug")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/blecmd/config.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "BLE backend (goble, tinygo); overrides config")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
