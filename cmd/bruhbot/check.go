package main

import (
	"errors"
	"fmt"

	"github.com/small-frappuccino/bruhbot/pkg/app"
	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/messages"
	"github.com/small-frappuccino/bruhbot/pkg/util"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config file and print a summary without connecting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath()
			cfg, err := config.Read(path)
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("%w; run 'bruhbot init -c %s' to create one", err, path)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range cfg.Summary() {
				fmt.Fprintln(out, line)
			}
			paths := app.MessagePaths(cfg)
			for _, c := range messages.Categories {
				state := "ok"
				if !util.FileExists(paths[c]) {
					state = "missing (will be created empty)"
				}
				fmt.Fprintf(out, "%s file: %s [%s]\n", c.Label(), paths[c], state)
			}
			for _, w := range cfg.Warnings {
				fmt.Fprintln(out, "warning:", w)
			}
			fmt.Fprintln(out, "config OK")
			return nil
		},
	}
}
