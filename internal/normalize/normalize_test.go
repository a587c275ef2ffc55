package normalize

import (
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/nibzard/foreman/internal/logstream"
)

func newTestNormalizer(p Provider) *Normalizer {
	logger := log.New(io.Discard)
	return New(p, logger)
}

func TestAnthropicEvents(t *testing.T) {
	tests := []struct {
		name  string
		event SSEEvent
		want  *logstream.Event
	}{
		{
			name:  "empty payload",
			event: SSEEvent{Data: ""},
			want:  nil,
		},
		{
			name:  "ping keepalive",
			event: SSEEvent{Name: "ping", Data: `{"type":"ping"}`},
			want:  nil,
		},
		{
			name:  "message start yields session id",
			event: SSEEvent{Data: `{"type":"message_start","message":{"id":"msg_01abc"}}`},
			want:  &logstream.Event{Kind: logstream.KindSessionID, Payload: "msg_01abc"},
		},
		{
			name:  "content block delta yields stdout",
			event: SSEEvent{Data: `{"type":"content_block_delta","delta":{"type":"text_delta","text":"hello"}}`},
			want:  &logstream.Event{Kind: logstream.KindStdout, Payload: "hello"},
		},
		{
			name:  "message stop yields finished",
			event: SSEEvent{Data: `{"type":"message_stop"}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "error yields stderr",
			event: SSEEvent{Data: `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
			want:  &logstream.Event{Kind: logstream.KindStderr, Payload: "anthropic error: Overloaded"},
		},
		{
			name:  "content block start is metadata",
			event: SSEEvent{Data: `{"type":"content_block_start","content_block":{"type":"text"}}`},
			want:  nil,
		},
		{
			name:  "message delta is metadata",
			event: SSEEvent{Data: `{"type":"message_delta","usage":{"output_tokens":42}}`},
			want:  nil,
		},
		{
			name:  "unknown event type ignored",
			event: SSEEvent{Data: `{"type":"totally_new_event"}`},
			want:  nil,
		},
		{
			name:  "event name preferred over payload type",
			event: SSEEvent{Name: "message_stop", Data: `{"type":"something_else"}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
	}

	n := newTestNormalizer(ProviderAnthropic)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.event)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			assertEvent(t, got, tt.want)
		})
	}
}

func TestGoogleEvents(t *testing.T) {
	tests := []struct {
		name  string
		event SSEEvent
		want  *logstream.Event
	}{
		{
			name:  "empty payload",
			event: SSEEvent{Data: "  "},
			want:  nil,
		},
		{
			name:  "blocked prompt yields stderr",
			event: SSEEvent{Data: `{"promptFeedback":{"blockReason":"SAFETY"}}`},
			want:  &logstream.Event{Kind: logstream.KindStderr, Payload: "google blocked: SAFETY"},
		},
		{
			name:  "finish reason stop yields finished",
			event: SSEEvent{Data: `{"candidates":[{"finishReason":"STOP"}]}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "finish reason end turn yields finished",
			event: SSEEvent{Data: `{"candidates":[{"finishReason":"END_TURN"}]}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "finish reason safety yields stderr",
			event: SSEEvent{Data: `{"candidates":[{"finishReason":"SAFETY"}]}`},
			want:  &logstream.Event{Kind: logstream.KindStderr, Payload: "google: safety filter triggered"},
		},
		{
			name:  "candidate text yields stdout",
			event: SSEEvent{Data: `{"candidates":[{"content":{"parts":[{"text":"world"}]}}]}`},
			want:  &logstream.Event{Kind: logstream.KindStdout, Payload: "world"},
		},
		{
			name:  "candidate with no text ignored",
			event: SSEEvent{Data: `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"f"}}]}}]}`},
			want:  nil,
		},
		{
			name:  "unknown shape ignored",
			event: SSEEvent{Data: `{"usageMetadata":{"totalTokenCount":7}}`},
			want:  nil,
		},
	}

	n := newTestNormalizer(ProviderGoogle)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.event)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			assertEvent(t, got, tt.want)
		})
	}
}

func TestOpenAIEvents(t *testing.T) {
	tests := []struct {
		name  string
		event SSEEvent
		want  *logstream.Event
	}{
		{
			name:  "empty payload",
			event: SSEEvent{Data: ""},
			want:  nil,
		},
		{
			name:  "done sentinel yields finished",
			event: SSEEvent{Data: "[DONE]"},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "done sentinel with whitespace",
			event: SSEEvent{Data: " [DONE] "},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "error yields stderr",
			event: SSEEvent{Data: `{"error":{"message":"rate limited","type":"rate_limit_error"}}`},
			want:  &logstream.Event{Kind: logstream.KindStderr, Payload: "openai error: rate limited"},
		},
		{
			name:  "finish reason stop yields finished",
			event: SSEEvent{Data: `{"choices":[{"finish_reason":"stop","delta":{}}]}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "finish reason length yields finished",
			event: SSEEvent{Data: `{"choices":[{"finish_reason":"length","delta":{}}]}`},
			want:  &logstream.Event{Kind: logstream.KindFinished},
		},
		{
			name:  "delta content yields stdout",
			event: SSEEvent{Data: `{"id":"chatcmpl-1","choices":[{"delta":{"content":"chunk"}}]}`},
			want:  &logstream.Event{Kind: logstream.KindStdout, Payload: "chunk"},
		},
		{
			name:  "bare id yields session id",
			event: SSEEvent{Data: `{"id":"chatcmpl-1","choices":[{"delta":{"role":"assistant"}}]}`},
			want:  &logstream.Event{Kind: logstream.KindSessionID, Payload: "chatcmpl-1"},
		},
		{
			name:  "empty choices with no id ignored",
			event: SSEEvent{Data: `{"choices":[]}`},
			want:  nil,
		},
	}

	n := newTestNormalizer(ProviderOpenAI)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.event)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			assertEvent(t, got, tt.want)
		})
	}
}

func TestUndecodablePayload(t *testing.T) {
	for _, provider := range Providers() {
		t.Run(string(provider), func(t *testing.T) {
			n := newTestNormalizer(provider)
			_, err := n.Normalize(SSEEvent{Data: "{not json"})
			if err == nil {
				t.Fatal("expected parse error for malformed payload")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if parseErr.Provider != provider {
				t.Errorf("ParseError.Provider = %q, want %q", parseErr.Provider, provider)
			}
		})
	}
}

func assertEvent(t *testing.T, got, want *logstream.Event) {
	t.Helper()
	if want == nil {
		if got != nil {
			t.Fatalf("expected no event, got %+v", *got)
		}
		return
	}
	if got == nil {
		t.Fatalf("expected event %+v, got none", *want)
	}
	if got.Kind != want.Kind || got.Payload != want.Payload {
		t.Errorf("event = %+v, want %+v", *got, *want)
	}
}
