// Package normalize converts provider-specific streaming event payloads
// into the canonical logstream event shape. Each provider speaks its own
// Server-Sent-Events dialect; the normalizer reduces all of them to
// {session_id, stdout, stderr, finished} and ignores everything else.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nibzard/foreman/internal/logstream"
)

// Provider identifies a streaming API dialect.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderOpenAI    Provider = "openai"
)

// Providers returns all supported providers.
func Providers() []Provider {
	return []Provider{ProviderAnthropic, ProviderGoogle, ProviderOpenAI}
}

// SSEEvent is one raw server-sent event: an optional event name and a data
// payload (usually JSON, sometimes a bare sentinel like "[DONE]").
type SSEEvent struct {
	Name string
	Data string
}

// ParseError reports a payload whose base structure could not be decoded at
// all. Unknown-but-parseable events are never errors; they are ignored.
type ParseError struct {
	Provider Provider
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot decode event payload: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Normalizer maps one provider's events to canonical log events.
type Normalizer struct {
	provider Provider
	logger   *log.Logger
}

// New creates a normalizer for the given provider. A nil logger falls back
// to the package default.
func New(provider Provider, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{provider: provider, logger: logger}
}

// Provider returns the provider this normalizer handles.
func (n *Normalizer) Provider() Provider {
	return n.provider
}

// Normalize converts one raw event. It returns (nil, nil) for events that
// produce no canonical output (keep-alives, unknown types, metadata). The
// only error case is a payload whose base structure cannot be decoded.
func (n *Normalizer) Normalize(event SSEEvent) (*logstream.Event, error) {
	switch n.provider {
	case ProviderAnthropic:
		return n.normalizeAnthropic(event)
	case ProviderGoogle:
		return n.normalizeGoogle(event)
	case ProviderOpenAI:
		return n.normalizeOpenAI(event)
	default:
		n.logger.Debug("unknown provider, ignoring event", "provider", n.provider)
		return nil, nil
	}
}

// normalizeAnthropic handles the Anthropic event dialect:
// message_start carries the session id, content_block_delta carries text,
// message_stop terminates, error becomes stderr. content_block_start/stop
// and message_delta are metadata and produce nothing.
func (n *Normalizer) normalizeAnthropic(event SSEEvent) (*logstream.Event, error) {
	if strings.TrimSpace(event.Data) == "" || event.Name == "ping" {
		return nil, nil
	}

	data, err := n.decode(event.Data)
	if err != nil {
		return nil, err
	}

	name := event.Name
	if name == "" {
		name, _ = data["type"].(string)
	}

	switch name {
	case "message_start":
		if msg, ok := data["message"].(map[string]any); ok {
			if id, ok := msg["id"].(string); ok && id != "" {
				ev := logstream.SessionID(id)
				return &ev, nil
			}
		}
		return nil, nil
	case "content_block_delta":
		if delta, ok := data["delta"].(map[string]any); ok {
			if text, ok := delta["text"].(string); ok {
				ev := logstream.Stdout(text)
				return &ev, nil
			}
		}
		return nil, nil
	case "message_stop":
		ev := logstream.Finished()
		return &ev, nil
	case "error":
		msg := "unknown error"
		if errObj, ok := data["error"].(map[string]any); ok {
			if m, ok := errObj["message"].(string); ok && m != "" {
				msg = m
			}
		}
		ev := logstream.Stderr(fmt.Sprintf("anthropic error: %s", msg))
		return &ev, nil
	case "content_block_start", "content_block_stop", "message_delta":
		return nil, nil
	default:
		n.logger.Debug("ignoring unknown anthropic event", "event", name)
		return nil, nil
	}
}

// normalizeGoogle handles the Gemini dialect: a candidates array with parts
// text and finishReason, plus promptFeedback for blocked prompts.
func (n *Normalizer) normalizeGoogle(event SSEEvent) (*logstream.Event, error) {
	if strings.TrimSpace(event.Data) == "" {
		return nil, nil
	}

	data, err := n.decode(event.Data)
	if err != nil {
		return nil, err
	}

	if feedback, ok := data["promptFeedback"].(map[string]any); ok {
		if reason, ok := feedback["blockReason"].(string); ok && reason != "" {
			ev := logstream.Stderr(fmt.Sprintf("google blocked: %s", reason))
			return &ev, nil
		}
	}

	candidates, _ := data["candidates"].([]any)
	for _, c := range candidates {
		candidate, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if reason, ok := candidate["finishReason"].(string); ok {
			switch reason {
			case "STOP", "END_TURN":
				ev := logstream.Finished()
				return &ev, nil
			case "SAFETY":
				ev := logstream.Stderr("google: safety filter triggered")
				return &ev, nil
			}
		}
		if content, ok := candidate["content"].(map[string]any); ok {
			if parts, ok := content["parts"].([]any); ok {
				for _, p := range parts {
					if part, ok := p.(map[string]any); ok {
						if text, ok := part["text"].(string); ok {
							ev := logstream.Stdout(text)
							return &ev, nil
						}
					}
				}
			}
		}
	}

	return nil, nil
}

// normalizeOpenAI handles the OpenAI dialect: a "[DONE]" sentinel, choices
// with delta content and finish_reason, and a top-level id usable as a
// session identifier.
func (n *Normalizer) normalizeOpenAI(event SSEEvent) (*logstream.Event, error) {
	data := strings.TrimSpace(event.Data)
	if data == "[DONE]" {
		ev := logstream.Finished()
		return &ev, nil
	}
	if data == "" {
		return nil, nil
	}

	parsed, err := n.decode(data)
	if err != nil {
		return nil, err
	}

	if errObj, ok := parsed["error"].(map[string]any); ok {
		msg := "unknown error"
		if m, ok := errObj["message"].(string); ok && m != "" {
			msg = m
		}
		ev := logstream.Stderr(fmt.Sprintf("openai error: %s", msg))
		return &ev, nil
	}

	choices, _ := parsed["choices"].([]any)
	for _, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if reason, ok := choice["finish_reason"].(string); ok {
			if reason == "stop" || reason == "length" {
				ev := logstream.Finished()
				return &ev, nil
			}
		}
		if delta, ok := choice["delta"].(map[string]any); ok {
			if content, ok := delta["content"].(string); ok && content != "" {
				ev := logstream.Stdout(content)
				return &ev, nil
			}
		}
	}

	if id, ok := parsed["id"].(string); ok && id != "" {
		ev := logstream.SessionID(id)
		return &ev, nil
	}

	return nil, nil
}

func (n *Normalizer) decode(data string) (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return nil, &ParseError{Provider: n.provider, Cause: err}
	}
	return parsed, nil
}
