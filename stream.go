package papyrus

import (
	"fmt"
	"io"
)

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventDelta carries an incremental answer fragment.
	EventDelta StreamEventType = "delta"
	// EventDone marks normal completion of the answer stream.
	EventDone StreamEventType = "done"
	// EventError wraps a mid-stream failure message and terminates the stream.
	EventError StreamEventType = "error"
)

// StreamEvent is one framed event of an answer stream. Every stream is
// well-terminated: the last event is always EventDone or EventError.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
}

// SSE wire framing for the answer endpoint.
const (
	doneSentinel = "[DONE]"
	errorPrefix  = "[ERROR] "
)

// WriteSSE writes ev to w in the answer endpoint's wire framing:
//
//	data: <fragment-text>\n\n
//	data: [DONE]\n\n
//	data: [ERROR] <message>\n\n
func WriteSSE(w io.Writer, ev StreamEvent) error {
	var err error
	switch ev.Type {
	case EventDone:
		_, err = fmt.Fprintf(w, "data: %s\n\n", doneSentinel)
	case EventError:
		_, err = fmt.Fprintf(w, "data: %s%s\n\n", errorPrefix, ev.Content)
	default:
		_, err = fmt.Fprintf(w, "data: %s\n\n", ev.Content)
	}
	return err
}
