// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	v1 "github.com/ManuGH/relinkd/internal/api/v1"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

var (
	actionDevice string

	connectCmd = &cobra.Command{
		Use:   "connect",
		Short: "Connect the display",
		Long: `Connect to a visible device. Without --device the first visible device
is used. A successful connect starts the reconnection watchdog.`,
		Example: `  relinkd connect
  relinkd connect --device 3F2A-11`,
		Args: cobra.NoArgs,
		RunE: runAction("/connect", true),
	}

	disconnectCmd = &cobra.Command{
		Use:   "disconnect",
		Short: "Disconnect the display and stop the watchdog",
		Args:  cobra.NoArgs,
		RunE:  runAction("/disconnect", true),
	}

	toggleCmd = &cobra.Command{
		Use:   "toggle",
		Short: "Disconnect when connected, connect otherwise",
		Args:  cobra.NoArgs,
		RunE:  runAction("/toggle", false),
	}

	retryCmd = &cobra.Command{
		Use:   "retry",
		Short: "Reset the failure count and retry the last device",
		Args:  cobra.NoArgs,
		RunE:  runAction("/retry", false),
	}
)

func init() {
	for _, c := range []*cobra.Command{connectCmd, disconnectCmd, toggleCmd, retryCmd} {
		rootCmd.AddCommand(c)
	}
	connectCmd.Flags().StringVarP(&actionDevice, "device", "d", "", "device id to act on")
	disconnectCmd.Flags().StringVarP(&actionDevice, "device", "d", "", "device id to act on")
}

func runAction(path string, takesDevice bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		var body any
		if takesDevice && actionDevice != "" {
			body = v1.DeviceRequest{DeviceID: actionDevice}
		}

		var sum supervisor.Summary
		client := newAPIClient(apiAddr, apiTimeout)
		if err := client.do(cmd.Context(), http.MethodPost, path, body, &sum); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), sum.Message)
		return err
	}
}
