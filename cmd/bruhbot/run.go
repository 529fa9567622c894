package main

import (
	"github.com/small-frappuccino/bruhbot/pkg/app"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	return app.Run(cmd.Context(), configFile)
}
