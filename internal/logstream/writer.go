package logstream

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// IOSink writes events as JSONL to an io.Writer.
type IOSink struct {
	w io.Writer
}

// NewIOSink creates a sink that writes one JSON object per line.
func NewIOSink(w io.Writer) *IOSink {
	return &IOSink{w: w}
}

// Write marshals the event and appends a newline.
func (s *IOSink) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal log event: %w", err)
	}
	data = append(data, '\n')
	_, err = s.w.Write(data)
	return err
}

// FileSink persists events as JSONL to a file, creating parent directories
// as needed.
type FileSink struct {
	path string
	file *os.File
	sink *IOSink
}

// NewFileSink opens (or creates) the JSONL file at path.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileSink{path: path, file: file, sink: NewIOSink(file)}, nil
}

// Path returns the log file location.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends one event to the file.
func (s *FileSink) Write(event Event) error {
	return s.sink.Write(event)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	return s.file.Close()
}

// MultiSink fans an event out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to all given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write delivers the event to every sink, collecting errors.
func (m *MultiSink) Write(event Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(event); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multi-sink errors: %v", errs)
	}
	return nil
}

// NullSink discards events.
type NullSink struct{}

// Write does nothing.
func (NullSink) Write(Event) error {
	return nil
}

type lockedSink struct {
	mu   sync.Mutex
	sink Sink
}

func (l *lockedSink) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sink.Write(event)
}

// Normalize returns a sink that is safe for concurrent writers, substituting
// NullSink for nil.
func Normalize(sink Sink) Sink {
	if sink == nil {
		return NullSink{}
	}
	return &lockedSink{sink: sink}
}
