package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/btclassic/internal/device"
	"github.com/srg/btclassic/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover nearby Bluetooth Classic devices",
	Long: `Runs inquiry for the given duration and lists every device reported,
de-duplicated and sorted by address.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAllowList []string
	scanBlockList []string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 8*time.Second, "Discovery duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(scanFormat); err != nil {
		return err
	}
	if scanDuration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", scanDuration)
	}
	allow, err := normalizeAddresses(scanAllowList)
	if err != nil {
		return err
	}
	block, err := normalizeAddresses(scanBlockList)
	if err != nil {
		return err
	}

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for devices", "Scanning", scanDuration, "Processing results")
	progress.Start()
	devices, err := rt.scanner.Scan(ctx, &scanner.ScanOptions{
		Duration:  scanDuration,
		AllowList: allow,
		BlockList: block,
	}, progress.Callback())
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scan failed: %w", err)
	}
	return printDevices(cmd.OutOrStdout(), scanFormat, devices)
}

func normalizeAddresses(addrs []string) ([]string, error) {
	if len(addrs) == 0 {
		return nil, nil
	}
	return device.ValidateAddress(addrs...)
}
