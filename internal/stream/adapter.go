package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"
)

// Adapter converts raw chat-completion SSE bytes into ordered content
// fragments. It maintains state across chunks to handle partial lines, so a
// frame split across transport chunks is still decoded whole.
type Adapter struct {
	buffer []byte
	done   bool

	// Malformed counts frames dropped because their JSON would not parse.
	Malformed int
}

func NewAdapter() *Adapter {
	return &Adapter{}
}

// Fragments processes one transport chunk and returns the content fragments
// it completed, in upstream order. Lines without the data prefix are skipped.
// A frame that fails to parse is dropped with a log; it never aborts the
// stream. After the termination sentinel no further fragments are emitted.
func (a *Adapter) Fragments(chunk []byte) []string {
	a.buffer = append(a.buffer, chunk...)
	var out []string

	for {
		idx := bytes.IndexByte(a.buffer, '\n')
		if idx == -1 {
			break
		}

		line := strings.TrimRight(string(a.buffer[:idx]), "\r")
		a.buffer = a.buffer[idx+1:]

		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]

		if payload == DoneSentinel {
			a.done = true
			continue
		}
		if a.done {
			continue
		}

		var frame CompletionChunk
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			a.Malformed++
			log.Debug().Err(err).Str("frame", payload).Msg("skipping malformed completion frame")
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}
		if text := frame.Choices[0].Delta.Content; text != "" {
			out = append(out, text)
		}
	}

	return out
}

// Done reports whether the termination sentinel has been seen.
func (a *Adapter) Done() bool {
	return a.done
}
