package sse

import (
	"fmt"
	"io"
	"strings"
)

// Encode writes evt in event stream framing. Multi-line data is split across
// several data fields. The default event name is omitted.
func Encode(w io.Writer, evt Event) error {
	var b strings.Builder
	if evt.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", evt.ID)
	}
	if evt.Name != "" && evt.Name != DefaultEventName {
		fmt.Fprintf(&b, "event: %s\n", evt.Name)
	}
	if evt.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", evt.Retry.Milliseconds())
	}
	data := strings.ReplaceAll(evt.Data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\r", "\n")
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteComment writes a comment line, used as a keepalive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ":%s\n\n", text)
	return err
}
