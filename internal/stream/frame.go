package stream

// DoneSentinel is the payload of the frame that terminates the upstream
// completion stream.
const DoneSentinel = "[DONE]"

const dataPrefix = "data: "

// CompletionChunk is one streamed chat-completion frame. Content fragments
// live at choices[0].delta.content; all other fields are ignored.
type CompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Event encodes a content fragment as one normalized event for downstream
// clients.
func Event(fragment string) []byte {
	return []byte(dataPrefix + fragment + "\n\n")
}
