package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecmd/internal/config"
)

// loadConfig reads the config file named by --config (or the default
// location) and applies the --backend override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	explicit := path != ""
	if !explicit {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, err
	}

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend = backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// configureLogger creates a logger with the appropriate log level based on flags.
// --log-level takes precedence over --verbose, which takes precedence over
// the config file. Without any of them the logger stays silent.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
	}
	return cfg.NewLogger(level, cmd.ErrOrStderr())
}
