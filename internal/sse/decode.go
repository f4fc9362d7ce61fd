package sse

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"
)

// maxLineSize bounds a single field line.
const maxLineSize = 1024 * 1024

// Decoder reads events from an event stream.
type Decoder struct {
	scanner *bufio.Scanner
	lastID  string
	retry   time.Duration
	started bool // past the first line, where a BOM may appear
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	return &Decoder{scanner: scanner}
}

// LastEventID returns the most recent id field seen on the stream.
func (d *Decoder) LastEventID() string { return d.lastID }

// Retry returns the most recent reconnection time sent by the server.
func (d *Decoder) Retry() time.Duration { return d.retry }

// Decode returns the next event. Comment lines and blocks without data are
// skipped. At end of stream an incomplete trailing block is discarded and
// io.EOF is returned.
func (d *Decoder) Decode() (Event, error) {
	var (
		name    string
		data    strings.Builder
		hasData bool
	)
	for d.scanner.Scan() {
		line := d.scanner.Text()
		if !d.started {
			d.started = true
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if line == "" {
			if !hasData {
				name = ""
				continue
			}
			if name == "" {
				name = DefaultEventName
			}
			return Event{
				ID:    d.lastID,
				Name:  name,
				Data:  strings.TrimSuffix(data.String(), "\n"),
				Retry: d.retry,
			}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value := line, ""
		if i := strings.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "event":
			name = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				d.lastID = value
			}
		case "retry":
			if !isDigits(value) {
				break
			}
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				d.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// scanLines splits on LF, CRLF, or a lone CR.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// CR: need one more byte to tell CR from CRLF.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
