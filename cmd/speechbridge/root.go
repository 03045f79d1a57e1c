package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "speechbridge",
		Short:         "Speech-to-text bridge for client applications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.config/speechbridge/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		serveCmd(),
		dictateCmd(),
		languagesCmd(),
		permissionCmd(),
		initCmd(),
	)
	return root
}

func execute() error {
	return newRootCmd().Execute()
}
