// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/relinkd/internal/config"
)

var (
	initPath  string
	initForce bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	configInitCmd = &cobra.Command{
		Use:     "init",
		Short:   "Write the default configuration",
		Example: `  relinkd config init --path ./config.yaml`,
		Args:    cobra.NoArgs,
		RunE:    runConfigInit,
	}

	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration (file plus environment)",
		Args:  cobra.NoArgs,
		RunE:  runConfigValidate,
	}
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configValidateCmd)

	configInitCmd.Flags().StringVar(&initPath, "path", "config.yaml", "destination file")
	configInitCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if err := config.WriteDefault(initPath, initForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", initPath)
	return err
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if _, err := config.NewLoader(cfgFile).Load(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return err
}
