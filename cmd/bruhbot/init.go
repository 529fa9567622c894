package main

import (
	"fmt"

	"github.com/small-frappuccino/bruhbot/pkg/config"
	"github.com/small-frappuccino/bruhbot/pkg/errutil"
	"github.com/small-frappuccino/bruhbot/pkg/util"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath()
			if err := errutil.HandleConfigError("write config template", path, func() error {
				return config.WriteTemplate(path, force)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote config template to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	return util.EnvString("BRUHBOT_CONFIG", config.DefaultFileName)
}
