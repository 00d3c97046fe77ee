package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
	"github.com/srg/blecmd/internal/session"
)

// hexColor parses "#RRGGBB" into a 24-bit color. Anything else renders plain.
func hexColor(hex string) *color.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.New(color.Reset)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.New(color.Reset)
	}
	return color.RGB(int(v>>16&0xff), int(v>>8&0xff), int(v&0xff))
}

// renderDisplay prints one command line:
//
//	↑  Siga            97%  [live]
func renderDisplay(w io.Writer, d command.Display) {
	c := hexColor(d.Artifact.Color).Add(color.Bold)

	conf := d.ConfidenceText
	if d.Synthesized {
		conf += "~"
	}
	line := fmt.Sprintf("%s  %-15s %5s  [%s]", d.Artifact.Symbol, d.Artifact.Label, conf, d.Origin)
	if d.Class != "" {
		line += "  class=" + d.Class
	}
	_, _ = c.Fprintln(w, line)
}

// renderStats prints per-token totals in token order.
func renderStats(w io.Writer, st session.Stats) {
	if st.Total == 0 {
		fmt.Fprintln(w, "No commands received")
		return
	}
	tokens := make([]string, 0, len(st.PerToken))
	for t := range st.PerToken {
		tokens = append(tokens, t)
	}
	slices.Sort(tokens)

	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		parts = append(parts, fmt.Sprintf("%s=%d", t, st.PerToken[t]))
	}
	fmt.Fprintf(w, "Received %d commands: %s\n", st.Total, strings.Join(parts, " "))
}

// renderStatus prints a session status transition.
func renderStatus(w io.Writer, st session.State) {
	faint := color.New(color.Faint)
	switch {
	case st.Source.Kind == session.SourceDemo:
		_, _ = faint.Fprintf(w, "Demo mode: %s\n", st.Source.Peripheral.DisplayName())
	case st.Connected():
		msg := fmt.Sprintf("Connected to %s (%s)", st.Source.Peripheral.DisplayName(), st.Acquire)
		if st.NotifyPair != nil {
			msg += " via " + st.NotifyPair.String()
			if name := device.LookupService(st.NotifyPair.Service); name != "" {
				msg += " (" + name + ")"
			}
		}
		_, _ = faint.Fprintln(w, msg)
	}
}

func renderDevicesTable(w io.Writer, devices []device.PeripheralRef) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI")
	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		rssi := "-"
		if d.RSSI != nil {
			rssi = fmt.Sprintf("%d dBm", *d.RSSI)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, d.ID, rssi)
	}
	return tw.Flush()
}

func renderDevicesJSON(w io.Writer, devices []device.PeripheralRef) error {
	if devices == nil {
		devices = []device.PeripheralRef{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
