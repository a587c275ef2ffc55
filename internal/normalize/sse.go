package normalize

import (
	"bufio"
	"io"
	"strings"

	"github.com/nibzard/foreman/internal/logstream"
)

// Reader parses a Server-Sent-Events stream into SSEEvents. It handles
// the wire framing only: event names, multi-line data fields joined with
// newlines, comment lines, and the blank-line dispatch.
type Reader struct {
	scanner *bufio.Scanner
	name    string
	data    []string
}

// NewReader wraps a raw SSE byte stream.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Reader{scanner: sc}
}

// Next returns the next event, or io.EOF at end of stream. A final
// event without a trailing blank line is still delivered.
func (r *Reader) Next() (SSEEvent, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if ev, ok := r.flush(); ok {
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// Comment, often used as a keep-alive.
		case strings.HasPrefix(line, "event:"):
			r.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			r.data = append(r.data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return SSEEvent{}, err
	}
	if ev, ok := r.flush(); ok {
		return ev, nil
	}
	return SSEEvent{}, io.EOF
}

func (r *Reader) flush() (SSEEvent, bool) {
	if r.name == "" && len(r.data) == 0 {
		return SSEEvent{}, false
	}
	ev := SSEEvent{Name: r.name, Data: strings.Join(r.data, "\n")}
	r.name, r.data = "", nil
	return ev, true
}

// Stream drains an SSE byte stream, writing each canonical event to out.
// It stops at end of input, the first undecodable payload, or the first
// sink error.
func (n *Normalizer) Stream(r io.Reader, out logstream.Sink) error {
	rd := NewReader(r)
	for {
		raw, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		ev, err := n.Normalize(raw)
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}
		if err := out.Write(*ev); err != nil {
			return err
		}
	}
}
