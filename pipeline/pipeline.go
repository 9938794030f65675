// Package pipeline persists crawl output: record files, batching and the
// run manifest.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/bookscrape/models"
	"github.com/aluiziolira/bookscrape/parser"
)

var (
	// ErrPipelineClosed is returned when Persist is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []models.BookRecord) error
	Close() error
	Validate() error
}

// Pipeline validates records and hands them to the writer in batches.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	metrics   metrics

	mu     sync.Mutex
	closed bool
}

// NewPipeline builds a pipeline flushing every batchSize records.
func NewPipeline(writer OutputWriter, batchSize int) *Pipeline {
	if batchSize <= 0 {
		batchSize = 64
	}
	return &Pipeline{
		writer:    writer,
		batchSize: batchSize,
		metrics:   newMetrics(),
	}
}

// Persist writes records in encounter order. Records that fail validation
// are counted and skipped; a writer failure stops the call.
func (p *Pipeline) Persist(records []models.BookRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}

	batch := make([]models.BookRecord, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		p.metrics.addProcessed(len(batch))
		batch = batch[:0]
		return nil
	}

	for i := range records {
		if err := parser.ValidateBook(&records[i]); err != nil {
			p.metrics.addValidation("invalid_record")
			slog.Warn("skipping invalid record",
				slog.String("url", records[i].URL),
				slog.Any("error", err),
			)
			continue
		}
		batch = append(batch, records[i])
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// Close flushes the writer and rejects further calls.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// Written returns how many records reached the writer.
func (p *Pipeline) Written() int {
	return int(p.metrics.processedCount())
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"validation_errors": copyValidation,
	}
}
