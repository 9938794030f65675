// Package eventlog is the append-only record of what a crawl did: one entry
// per fetch attempt, skipped record and final status.
package eventlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind classifies a log entry.
type Kind string

const (
	KindFetchAttempt    Kind = "fetch_attempt"
	KindMalformedRecord Kind = "malformed_record"
	KindDuplicateRecord Kind = "duplicate_record"
	KindDetailFailure   Kind = "detail_failure"
	KindPageFailure     Kind = "page_failure"
	KindCrawlStatus     Kind = "crawl_status"
)

// Entry is a single line in the crawl log.
type Entry struct {
	Time    time.Time
	Kind    Kind
	URL     string
	Attempt int
	Outcome string
	Status  int
	Latency time.Duration
	Message string
}

// Sink accepts log entries in order. Implementations never rewrite history.
type Sink interface {
	Append(Entry) error
}

// Discard drops every entry.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(Entry) error { return nil }

// FileSink writes entries as slog text lines to an append-only file.
type FileSink struct {
	mu      sync.Mutex
	file    *os.File
	handler slog.Handler
}

// OpenFile opens (or creates) path for appending.
func OpenFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log sink: %w", err)
	}
	return &FileSink{file: f, handler: newHandler(f)}, nil
}

// NewWriterSink writes entries to w. Useful when the caller owns the stream.
func NewWriterSink(w io.Writer) *FileSink {
	return &FileSink{handler: newHandler(w)}
}

func newHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// Append writes e as one timestamped line.
func (s *FileSink) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	record := slog.NewRecord(e.Time, levelFor(e), string(e.Kind), 0)
	if e.URL != "" {
		record.AddAttrs(slog.String("url", e.URL))
	}
	if e.Attempt > 0 {
		record.AddAttrs(slog.Int("attempt", e.Attempt))
	}
	if e.Outcome != "" {
		record.AddAttrs(slog.String("outcome", e.Outcome))
	}
	if e.Status > 0 {
		record.AddAttrs(slog.Int("status", e.Status))
	}
	if e.Latency > 0 {
		record.AddAttrs(slog.Duration("latency", e.Latency))
	}
	if e.Message != "" {
		record.AddAttrs(slog.String("msg_detail", e.Message))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler.Handle(context.Background(), record)
}

// Close syncs and closes the underlying file when the sink owns one.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return fmt.Errorf("sync log sink: %w", err)
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func levelFor(e Entry) slog.Level {
	switch e.Kind {
	case KindMalformedRecord, KindDuplicateRecord, KindDetailFailure:
		return slog.LevelWarn
	case KindPageFailure:
		return slog.LevelError
	case KindFetchAttempt:
		if e.Outcome != "ok" {
			return slog.LevelWarn
		}
	}
	return slog.LevelInfo
}

// Memory keeps entries in memory, mostly for tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of everything appended so far.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Count returns how many entries of kind were appended.
func (m *Memory) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
