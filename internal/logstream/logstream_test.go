package logstream

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventConstructors(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		kind    Kind
		payload string
	}{
		{"session id", SessionID("sess-1"), KindSessionID, "sess-1"},
		{"stdout", Stdout("hello"), KindStdout, "hello"},
		{"stderr", Stderr("oops"), KindStderr, "oops"},
		{"finished", Finished(), KindFinished, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.event.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", tt.event.Kind, tt.kind)
			}
			if tt.event.Payload != tt.payload {
				t.Errorf("Payload = %q, want %q", tt.event.Payload, tt.payload)
			}
		})
	}
}

func TestEventWireShape(t *testing.T) {
	data, err := json.Marshal(Stdout("chunk"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"kind":"stdout","payload":"chunk"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	data, err = json.Marshal(Finished())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want = `{"kind":"finished"}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestStoreReplayThenLive(t *testing.T) {
	store := NewStore()
	store.Push(SessionID("sess-1"))
	store.Push(Stdout("one"))

	ch, cancel := store.Subscribe()
	defer cancel()

	store.Push(Stdout("two"))
	store.Push(Finished())
	store.Close()

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}

	want := []Event{SessionID("sess-1"), Stdout("one"), Stdout("two"), Finished()}
	if len(got) != len(want) {
		t.Fatalf("received %d events, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStoreSubscribeAfterClose(t *testing.T) {
	store := NewStore()
	store.Push(Stdout("only"))
	store.Close()

	ch, cancel := store.Subscribe()
	defer cancel()

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0] != Stdout("only") {
		t.Errorf("replay after close = %v, want [stdout only]", got)
	}
}

func TestStoreCancelUnblocks(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed after cancel")
	}
}

func TestStoreWriteAfterCloseDiscarded(t *testing.T) {
	store := NewStore()
	store.Close()
	if err := store.Write(Stdout("late")); err != nil {
		t.Fatalf("Write() after close error = %v", err)
	}
	if len(store.History()) != 0 {
		t.Errorf("history after closed write = %v, want empty", store.History())
	}
}

func TestIOSinkJSONL(t *testing.T) {
	var buf bytes.Buffer
	sink := NewIOSink(&buf)

	if err := sink.Write(Stdout("a")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Write(Finished()); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var ev Event
	if err := json.Unmarshal(lines[0], &ev); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if ev.Kind != KindStdout || ev.Payload != "a" {
		t.Errorf("line 1 = %+v, want stdout/a", ev)
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if err := sink.Write(Stderr("boom")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Contains(data, []byte(`"kind":"stderr"`)) {
		t.Errorf("file content = %s, want stderr event", data)
	}
}

func TestMultiSink(t *testing.T) {
	var a, b bytes.Buffer
	multi := NewMultiSink(NewIOSink(&a), NewIOSink(&b))

	if err := multi.Write(Stdout("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if a.Len() == 0 || b.Len() == 0 {
		t.Error("multi sink did not write to all sinks")
	}
}

func TestNormalizeNil(t *testing.T) {
	sink := Normalize(nil)
	if err := sink.Write(Stdout("ignored")); err != nil {
		t.Errorf("Normalize(nil).Write() error = %v", err)
	}
}
