package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <address> <command>",
	Short: "Write a command token to a peripheral",
	Long: `Connect to a peripheral, write one command token to its writable
characteristic (newline terminated, base64 when payload_encoding is base64)
and disconnect.

Known commands: ` + strings.Join(command.Tokens, ", "),
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	token := strings.ToLower(strings.TrimSpace(args[1]))
	if token == "" {
		return fmt.Errorf("command must not be empty")
	}
	cmd.SilenceUsage = true

	ctx, stop := signalContext(cmd)
	defer stop()

	m, logger, err := startManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if !command.NewMapper().Artifact(token).Known {
		logger.WithField("token", token).Warn("Sending a command the display does not know")
	}

	ref := device.PeripheralRef{ID: args[0]}
	if _, err := m.Connect(ctx, ref); err != nil {
		return err
	}
	defer func() { _ = m.Disconnect() }()

	if err := m.Send(ctx, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", token, ref.DisplayName())
	return nil
}
