package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pairedCmd = &cobra.Command{
	Use:   "paired",
	Short: "List paired devices",
	Args:  cobra.NoArgs,
	RunE:  runPaired,
}

var pairedFormat string

func init() {
	pairedCmd.Flags().StringVarP(&pairedFormat, "format", "f", "table", "Output format (table, json)")
}

func runPaired(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(pairedFormat); err != nil {
		return err
	}

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	cmd.SilenceUsage = true

	devices, err := rt.adapter.PairedDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list paired devices: %w", err)
	}
	return printDevices(cmd.OutOrStdout(), pairedFormat, devices)
}
