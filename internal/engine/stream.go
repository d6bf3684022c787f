package engine

import (
	"bytes"
	"strings"
)

// FrameReader splits a Server-Sent-Events body into data payloads. Input
// may arrive in arbitrary pieces; an incomplete trailing line is carried
// over to the next Feed. Both LF and CRLF line endings are accepted.
type FrameReader struct {
	partial []byte
}

// Feed consumes the next piece of the body and returns the data payloads
// of every line it completed, in order.
func (r *FrameReader) Feed(p []byte) []string {
	r.partial = append(r.partial, p...)
	var out []string
	for {
		i := bytes.IndexByte(r.partial, '\n')
		if i < 0 {
			break
		}
		if payload, ok := dataPayload(string(r.partial[:i])); ok {
			out = append(out, payload)
		}
		r.partial = r.partial[i+1:]
	}
	// Keep the carry-over small once the buffer has been consumed.
	if len(r.partial) == 0 {
		r.partial = nil
	}
	return out
}

// Flush returns the payload of a final line that had no terminator.
func (r *FrameReader) Flush() []string {
	if len(r.partial) == 0 {
		return nil
	}
	line := string(r.partial)
	r.partial = nil
	if payload, ok := dataPayload(line); ok {
		return []string{payload}
	}
	return nil
}

// dataPayload extracts the value of a "data:" line. Other lines, including
// comments and event names, are ignored.
func dataPayload(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return "", false
	}
	return payload, true
}
