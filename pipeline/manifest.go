package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/models"
)

// Manifest records how a run ended next to its output files. Downstream
// stages read Status to tell a full catalogue from a partial one.
type Manifest struct {
	Status         models.CrawlStatus       `json:"status"`
	Complete       bool                     `json:"complete"`
	AbortReason    string                   `json:"abort_reason,omitempty"`
	Records        int                      `json:"records"`
	Written        int                      `json:"written"`
	Pages          int                      `json:"pages"`
	Requests       int                      `json:"requests"`
	Retries        int                      `json:"retries"`
	Duplicates     int                      `json:"duplicates"`
	DetailFailures int                      `json:"detail_failures"`
	Malformed      []models.MalformedRecord `json:"malformed"`
	FailedURLs     []string                 `json:"failed_urls"`
	ErrorsByType   map[string]int           `json:"errors_by_type"`
	Outputs        []string                 `json:"outputs"`
	StartTime      time.Time                `json:"start_time"`
	EndTime        time.Time                `json:"end_time"`
	Duration       string                   `json:"duration"`
}

// NewManifest summarises result.
func NewManifest(result *models.CrawlResult, outputs []string, written int) Manifest {
	m := Manifest{
		Status:         result.Status,
		Complete:       result.Status.Complete(),
		AbortReason:    result.AbortReason,
		Records:        len(result.Records),
		Written:        written,
		Pages:          result.PageCount,
		Requests:       result.RequestCount,
		Retries:        result.RetryCount,
		Duplicates:     result.DuplicateCount,
		DetailFailures: result.DetailFailures,
		Malformed:      result.Malformed,
		FailedURLs:     result.FailedURLs,
		ErrorsByType:   result.ErrorsByType,
		Outputs:        outputs,
		StartTime:      result.StartTime.UTC(),
		EndTime:        result.EndTime.UTC(),
		Duration:       result.Duration().String(),
	}
	if m.Malformed == nil {
		m.Malformed = []models.MalformedRecord{}
	}
	if m.FailedURLs == nil {
		m.FailedURLs = []string{}
	}
	if m.ErrorsByType == nil {
		m.ErrorsByType = map[string]int{}
	}
	return m
}

// WriteManifest writes m to path via a temp file and rename, so readers
// never see a half-written manifest.
func WriteManifest(path string, m Manifest) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("create manifest temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// Save persists everything in result: the record files for cfg.OutputFormat
// and the manifest. Partial results are written the same way as complete ones.
func Save(cfg *config.Config, result *models.CrawlResult) (Manifest, error) {
	writer, outputs, err := NewWriter(cfg)
	if err != nil {
		return Manifest{}, fmt.Errorf("create writer: %w", err)
	}

	p := NewPipeline(writer, cfg.BatchSize)
	persistErr := p.Persist(result.Records)
	closeErr := p.Close()
	if persistErr != nil {
		return Manifest{}, persistErr
	}
	if closeErr != nil {
		return Manifest{}, fmt.Errorf("close writer: %w", closeErr)
	}
	if err := writer.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("validate output: %w", err)
	}

	manifest := NewManifest(result, outputs, p.Written())
	if err := WriteManifest(cfg.ManifestFile(), manifest); err != nil {
		return Manifest{}, err
	}
	return manifest, nil
}
