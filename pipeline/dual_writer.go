package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/models"
)

// DualWriter fans records out to the CSV and JSON files.
type DualWriter struct {
	csvWriter  *CSVWriter
	jsonWriter *JSONWriter
	mu         sync.Mutex
}

// NewDualWriter creates both output files.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create CSV writer: %w", err)
	}

	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create JSON writer: %w", err)
	}

	return &DualWriter{
		csvWriter:  csvWriter,
		jsonWriter: jsonWriter,
	}, nil
}

// Write writes records to both formats.
func (dw *DualWriter) Write(books []models.BookRecord) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(books); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := dw.jsonWriter.Write(books); err != nil {
		return fmt.Errorf("JSON write failed: %w", err)
	}
	return nil
}

// Close closes both writers, reporting every failure.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("CSV close failed: %w", err))
	}
	if err := dw.jsonWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("JSON close failed: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.csvWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("CSV validation failed: %w", err))
	}
	if err := dw.jsonWriter.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("JSON validation failed: %w", err))
	}
	return errors.Join(errs...)
}

// Paths returns the CSV and JSON file names.
func (dw *DualWriter) Paths() []string {
	return []string{dw.csvWriter.Path(), dw.jsonWriter.Path()}
}

// NewWriter picks the writer for cfg.OutputFormat.
func NewWriter(cfg *config.Config) (OutputWriter, []string, error) {
	switch cfg.OutputFormat {
	case "json":
		w, err := NewJSONWriter(cfg.JSONFile())
		if err != nil {
			return nil, nil, err
		}
		return w, []string{w.Path()}, nil
	case "csv":
		w, err := NewCSVWriter(cfg.CSVFile())
		if err != nil {
			return nil, nil, err
		}
		return w, []string{w.Path()}, nil
	case "dual":
		w, err := NewDualWriter(cfg.CSVFile(), cfg.JSONFile())
		if err != nil {
			return nil, nil, err
		}
		return w, w.Paths(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}
