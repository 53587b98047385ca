package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/btclassic/internal/device"
)

var validFormats = []string{"table", "json"}

func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
}

func printDevices(w io.Writer, format string, devices []device.Info) error {
	if format == "json" {
		if devices == nil {
			devices = []device.Info{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(devices)
	}
	return printDevicesTable(w, devices)
}

// printDevicesTable renders devices with a bold header. The colored status is
// the last column so escape codes do not skew tabwriter alignment.
func printDevicesTable(w io.Writer, devices []device.Info) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices found")
		return nil
	}

	header := color.New(color.Bold)
	connected := color.New(color.FgGreen)
	idle := color.New(color.FgHiBlack)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header.Fprintln(tw, "NAME\tADDRESS\tPAIRED\tSTATUS")
	fmt.Fprintln(tw, strings.Repeat("-", 60))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		paired := "no"
		if d.Paired {
			paired = "yes"
		}
		status := idle.Sprint("disconnected")
		if d.IsConnected {
			status = connected.Sprint("connected")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, d.Address, paired, status)
	}
	return tw.Flush()
}
