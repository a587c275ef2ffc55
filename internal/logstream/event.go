// Package logstream defines the canonical log event shape shared by all
// agent backends and the sinks that consume it.
package logstream

import "fmt"

// Kind identifies the canonical event variants. Every backend-specific log
// format is reduced to these four kinds before anything downstream sees it.
type Kind string

const (
	KindSessionID Kind = "session_id"
	KindStdout    Kind = "stdout"
	KindStderr    Kind = "stderr"
	KindFinished  Kind = "finished"
)

// Event is a single canonical log event. Payload carries the session id for
// KindSessionID, text for KindStdout/KindStderr, and is empty for
// KindFinished.
type Event struct {
	Kind    Kind   `json:"kind"`
	Payload string `json:"payload,omitempty"`
}

// SessionID builds a session-identifier event.
func SessionID(id string) Event {
	return Event{Kind: KindSessionID, Payload: id}
}

// Stdout builds a normalized output event.
func Stdout(text string) Event {
	return Event{Kind: KindStdout, Payload: text}
}

// Stderr builds a normalized error-output event.
func Stderr(text string) Event {
	return Event{Kind: KindStderr, Payload: text}
}

// Finished builds the terminal event for a stream.
func Finished() Event {
	return Event{Kind: KindFinished}
}

func (e Event) String() string {
	if e.Payload == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Payload)
}

// Sink consumes canonical events.
type Sink interface {
	Write(event Event) error
}
