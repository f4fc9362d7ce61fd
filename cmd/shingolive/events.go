package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/shingolive/internal/client"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:     "events",
	Short:   "List events from the server's event log",
	GroupID: "stream",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetInt64("after")
		names, _ := cmd.Flags().GetStringSlice("name")
		limit, _ := cmd.Flags().GetInt("limit")

		evts, err := streamClient.ListEvents(cmd.Context(), &client.ListEventsRequest{
			After: after,
			Names: names,
			Limit: limit,
		})
		if client.IsNotConfigured(err) {
			return fmt.Errorf("the server has no event log (set SHINGO_DATABASE_URL on the server): %w", err)
		}
		if err != nil {
			return fmt.Errorf("listing events: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), evts)
		}
		if len(evts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no events")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEVENT\tSOURCE\tCREATED\tPAYLOAD")
		for _, e := range evts {
			payload := strings.TrimSpace(string(e.Payload))
			if len(payload) > 60 {
				payload = payload[:57] + "..."
			}
			created := ""
			if !e.CreatedAt.IsZero() {
				created = e.CreatedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Source, created, payload)
		}
		return w.Flush()
	},
}

func init() {
	eventsCmd.Flags().Int64("after", 0, "only events with an id greater than this")
	eventsCmd.Flags().StringSlice("name", nil, "filter by event name (repeatable)")
	eventsCmd.Flags().Int("limit", 100, "maximum number of events")
}
