// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package commands implements the relinkd command line.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultAddr = "127.0.0.1:7420"

var (
	cfgFile    string
	apiAddr    string
	apiTimeout time.Duration

	rootCmd = &cobra.Command{
		Use:   "relinkd",
		Short: "relinkd - keeps an external display connected",
		Long: `relinkd supervises the link to an external display through a local
gateway. When the link drops it reconnects with exponential backoff, gives up
after a bounded number of attempts and reports every state change.

The serve command runs the daemon. The other commands talk to a running
daemon over its HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); empty means defaults and environment only")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", defaultAddr, "address of a running relinkd API")
	rootCmd.PersistentFlags().DurationVar(&apiTimeout, "timeout", 2*time.Minute, "request timeout for API commands")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
