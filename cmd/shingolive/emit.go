package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alfredjeanlab/shingolive/internal/events"
	"github.com/alfredjeanlab/shingolive/internal/ui"
	"github.com/spf13/cobra"
)

var emitCmd = &cobra.Command{
	Use:   "emit <event> [<json> | -]",
	Short: "Publish a stream event",
	Long: `Publishes one of the stream events to every connected page:

  order-update, inventory-update, node-update, system-status

The payload is a JSON object given as the second argument, or read from
stdin when the argument is "-". It defaults to {}.

  shingolive emit order-update '{"order_id":42}'
  echo '{"rds":"disconnected"}' | shingolive emit system-status -`,
	GroupID: "stream",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !events.IsStreamName(name) {
			return fmt.Errorf("unknown event %q (must be one of %s)", name, strings.Join(events.StreamNames(), ", "))
		}
		arg := ""
		if len(args) == 2 {
			arg = args[1]
		}
		if arg == "-" && cmd.InOrStdin() == os.Stdin && ui.IsTerminal(os.Stdin) {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.RenderMuted("reading payload from stdin, end with Ctrl-D"))
		}
		payload, err := readPayload(arg, cmd.InOrStdin())
		if err != nil {
			return err
		}

		id, err := streamClient.Emit(cmd.Context(), name, payload)
		if err != nil {
			return fmt.Errorf("emitting %s: %w", name, err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"id": id, "event": name})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "emitted %s (id %d)\n", name, id)
		return nil
	},
}

// readPayload returns the event payload from arg, or from stdin when arg is
// "-". It must be valid JSON.
func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	var data []byte
	switch arg {
	case "":
		return json.RawMessage("{}"), nil
	case "-":
		b, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		data = b
	default:
		data = []byte(arg)
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

