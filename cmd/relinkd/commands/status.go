// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	v1 "github.com/ManuGH/relinkd/internal/api/v1"
)

var (
	outputFormat string

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the reconnection state and the live link",
		Example: `  relinkd status
  relinkd status --format json`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	devicesCmd = &cobra.Command{
		Use:   "devices",
		Short: "List devices visible to the gateway",
		Args:  cobra.NoArgs,
		RunE:  runDevices,
	}
)

func init() {
	rootCmd.AddCommand(statusCmd, devicesCmd)
	statusCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table or json)")
	devicesCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table or json)")
}

func checkFormat() error {
	if outputFormat != "table" && outputFormat != "json" {
		return fmt.Errorf("unknown format %q (want table or json)", outputFormat)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	var st v1.StatusResponse
	if err := newAPIClient(apiAddr, apiTimeout).do(cmd.Context(), http.MethodGet, "/status", nil, &st); err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), st)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STATE\t%s\n", st.State)
	fmt.Fprintf(w, "FAILURES\t%d/%d\n", st.ConsecutiveFailures, st.MaxAttempts)
	fmt.Fprintf(w, "WATCHDOG\t%t\n", st.WatchdogRunning)
	switch {
	case st.GatewayError != "":
		fmt.Fprintf(w, "LINK\tunknown (%s)\n", st.GatewayError)
	case st.Connected:
		fmt.Fprintf(w, "LINK\t%s\n", st.ConnectedDevice)
	default:
		fmt.Fprintln(w, "LINK\tdisconnected")
	}
	if st.LastConnectedID != "" {
		fmt.Fprintf(w, "LAST DEVICE\t%s\n", st.LastConnectedID)
	}
	return w.Flush()
}

func runDevices(cmd *cobra.Command, _ []string) error {
	if err := checkFormat(); err != nil {
		return err
	}
	var resp v1.DevicesResponse
	if err := newAPIClient(apiAddr, apiTimeout).do(cmd.Context(), http.MethodGet, "/devices", nil, &resp); err != nil {
		return err
	}
	if outputFormat == "json" {
		return writeJSON(cmd.OutOrStdout(), resp.Devices)
	}
	if len(resp.Devices) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "No devices visible")
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, d := range resp.Devices {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, d.DisplayName)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
