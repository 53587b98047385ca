package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/btclassic/bridge"
	"github.com/srg/btclassic/internal/device"
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge <device-address>",
	Short: "Expose an RFCOMM connection as a PTY",
	Long: `Connects to the device, creates a pseudo-terminal and copies bytes both ways
until Ctrl+C or the device disconnects. Point any serial tool at the printed
TTY path (or at --symlink).

Example:
  btclassic bridge 00:11:22:33:44:55 --symlink /tmp/rfcomm0
  screen /tmp/rfcomm0`,
	Args: cobra.ExactArgs(1),
	RunE: runBridge,
}

var bridgeSymlink string

func init() {
	bridgeCmd.Flags().StringVar(&bridgeSymlink, "symlink", "", "Create a symlink to the PTY device (e.g., /tmp/rfcomm0)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	addr, err := device.ParseAddress(args[0])
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

	out := cmd.OutOrStdout()
	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Starting bridge for %s", addr), "Connecting", "Running", "Failed")
	progress.Start()
	defer progress.Stop()

	err = bridge.Run(ctx, rt.session, bridge.Options{
		Address:      addr.String(),
		SymlinkPath:  bridgeSymlink,
		PollInterval: rt.cfg.PollInterval,
		Logger:       rt.logger,
	}, progress.Callback(), func(b *bridge.Bridge) {
		fmt.Fprintf(out, "Bridge running: %s <-> %s\n", b.Address(), b.TTYName())
		if b.Symlink() != "" {
			fmt.Fprintf(out, "Symlink: %s\n", b.Symlink())
		}
		fmt.Fprintln(out, "Press Ctrl+C to stop")
	})
	if errors.Is(err, bridge.ErrConnectionLost) {
		return fmt.Errorf("device %s disconnected", addr)
	}
	return err
}
