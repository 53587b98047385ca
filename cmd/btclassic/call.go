package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/btclassic/internal/channel"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [json-arguments]",
	Short: "Dispatch a single method call and print the response",
	Long: `Runs one method through the dispatcher, exactly as a host would over the
method channel, and prints the JSON response. Connections opened by the call
are closed when the command exits.

Examples:
  btclassic call isEnabled
  btclassic call getPairedDevices
  btclassic call writeData '{"address":"00:11:22:33:44:55","data":"hello"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

var callChannel string

func init() {
	callCmd.Flags().StringVar(&callChannel, "channel", "", "Channel to call on (default: the configured base channel)")
}

func runCall(cmd *cobra.Command, args []string) error {
	var arguments any
	if len(args) == 2 {
		var err error
		if arguments, err = channel.DecodeArguments(args[1]); err != nil {
			return err
		}
	}

	rt, err := newRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()
	cmd.SilenceUsage = true

	ch := callChannel
	if ch == "" {
		ch = rt.cfg.ChannelName
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp := channel.NewServer(rt.dispatcher, io.Discard, rt.logger).Dispatch(ctx, &channel.Request{
		Channel:   ch,
		Method:    args[0],
		Arguments: arguments,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return fmt.Errorf("failed to print response: %w", err)
	}
	return ctx.Err()
}
