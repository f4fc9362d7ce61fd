package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/shingolive/internal/client"
	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/presence"
	"github.com/alfredjeanlab/shingolive/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show system status and stream diagnostics",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		diag, err := streamClient.Diagnostics(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting diagnostics: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), diag)
		}
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		printDiagnostics(cmd.OutOrStdout(), diag)
		return nil
	},
}

func printDiagnostics(w io.Writer, d *client.Diagnostics) {
	fmt.Fprintln(w, ui.RenderAccent("System:"))
	fmt.Fprintln(w, "  "+ui.Indicator("rds", d.Status.RDS, events.Connected(d.Status.RDS)))
	fmt.Fprintln(w, "  "+ui.Indicator("messaging", d.Status.Messaging, events.Connected(d.Status.Messaging)))

	bus := "not configured"
	switch {
	case d.BusConfigured && d.BusConnected:
		bus = ui.RenderOK("connected")
	case d.BusConfigured:
		bus = ui.RenderFail("disconnected")
	}
	store := "memory only"
	if d.StoreEnabled {
		store = "postgres"
	}

	fmt.Fprintln(w, ui.RenderAccent("Stream:"))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  clients:\t%d\n", d.Clients)
	fmt.Fprintf(tw, "  last event id:\t%d\n", d.LastEventID)
	fmt.Fprintf(tw, "  dropped:\t%d\n", d.Dropped)
	fmt.Fprintf(tw, "  ring buffer:\t%d\n", d.RingBufferSize)
	fmt.Fprintf(tw, "  bus:\t%s\n", bus)
	fmt.Fprintf(tw, "  event log:\t%s\n", store)
	fmt.Fprintf(tw, "  uptime:\t%s\n", d.Uptime)
	tw.Flush()
}

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Short:   "List pages connected to the event stream",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		entries, err := streamClient.Clients(cmd.Context(), all)
		if err != nil {
			return fmt.Errorf("listing clients: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no clients connected")
			return nil
		}
		printClients(cmd.OutOrStdout(), entries)
		return nil
	},
}

func printClients(w io.Writer, entries []presence.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT\tREMOTE\tFILTERS\tEVENTS\tLAST EVENT\tIDLE\tSTATE")
	for _, e := range entries {
		filters := "*"
		if len(e.Filters) > 0 {
			filters = strings.Join(e.Filters, ",")
		}
		last := "-"
		if e.LastEvent != "" {
			last = e.LastEvent
			if e.LastEventID > 0 {
				last = fmt.Sprintf("%s #%d", e.LastEvent, e.LastEventID)
			}
		}
		state := "connected"
		switch {
		case !e.Connected:
			state = "gone"
		case e.Stalled:
			state = "stalled"
		}
		idle := (time.Duration(e.IdleSecs) * time.Second).String()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", e.Client, e.Remote, filters, e.EventCount, last, idle, state)
	}
	tw.Flush()
}

func init() {
	clientsCmd.Flags().Bool("all", false, "include recently disconnected clients")
}
