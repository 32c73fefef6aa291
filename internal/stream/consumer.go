package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/picklechips/salary-estimate/internal/estimate"
)

// Snapshot is delivered to the consumer's update callback each time more
// text arrives. Text is the full reconstructed buffer so far; Estimate is the
// parse of that buffer.
type Snapshot struct {
	Estimate estimate.Estimate
	Text     string
}

// UpdateFunc receives the latest snapshot after every chunk and once more at
// stream end.
type UpdateFunc func(Snapshot)

// terminalError is the in-band error frame the relay writes once the HTTP
// status is already committed.
type terminalError struct {
	Error string `json:"error"`
}

// Consume reads a relayed event stream to completion, concatenating the
// data-line fragments into one logical text buffer and re-parsing it after
// every chunk. onUpdate may be nil.
//
// A stream that ends without any data yields a zero Estimate and no error. A
// stream whose whole payload is a JSON-shaped {"error": ...} yields the
// carried error instead of an estimate.
func Consume(r io.Reader, onUpdate UpdateFunc) (estimate.Estimate, error) {
	var (
		pending []byte
		text    strings.Builder
		buf     = make([]byte, 32*1024)
	)

	appendLine := func(line string) {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, dataPrefix) {
			text.WriteString(line[len(dataPrefix):])
		}
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx == -1 {
					break
				}
				appendLine(string(pending[:idx]))
				pending = pending[idx+1:]
			}
			if onUpdate != nil {
				onUpdate(Snapshot{Estimate: estimate.Parse(text.String()), Text: text.String()})
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return estimate.Estimate{}, fmt.Errorf("reading estimate stream: %w", err)
		}
	}

	// The last event may lack a trailing newline.
	if len(pending) > 0 {
		appendLine(string(pending))
	}

	final := text.String()
	if msg, ok := decodeTerminalError(final); ok {
		return estimate.Estimate{}, fmt.Errorf("estimation failed upstream: %s", msg)
	}

	result := estimate.Parse(final)
	if onUpdate != nil {
		onUpdate(Snapshot{Estimate: result, Text: final})
	}
	return result, nil
}

// decodeTerminalError reports whether the accumulated text is the relay's
// JSON-shaped error payload rather than delimited salary text.
func decodeTerminalError(s string) (string, bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") {
		return "", false
	}
	var te terminalError
	if err := json.Unmarshal([]byte(t), &te); err != nil || te.Error == "" {
		return "", false
	}
	return te.Error, true
}
