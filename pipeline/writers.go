package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/bookscrape/models"
)

// NullMarker stands in for an absent value in CSV output.
const NullMarker = `\N`

// CSVHeader is the column order of the flat output file.
var CSVHeader = []string{
	"title", "price", "rating", "in_stock", "stock_count", "availability",
	"description", "category", "product_info", "image_url", "url", "scraped_at",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(books []models.BookRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for i := range books {
		row, err := csvRow(&books[i])
		if err != nil {
			return err
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

func csvRow(b *models.BookRecord) ([]string, error) {
	stockCount := NullMarker
	if b.Availability.Count != nil {
		stockCount = strconv.Itoa(*b.Availability.Count)
	}
	productInfo := NullMarker
	if b.ProductInfo != nil {
		raw, err := json.Marshal(b.ProductInfo)
		if err != nil {
			return nil, fmt.Errorf("encode product info for %s: %w", b.URL, err)
		}
		productInfo = string(raw)
	}

	return []string{
		b.Title,
		b.Price.String(),
		strconv.Itoa(b.Rating),
		strconv.FormatBool(b.Availability.InStock),
		stockCount,
		b.Availability.Raw,
		orNull(b.Description),
		orNull(b.Category),
		productInfo,
		b.ImageURL,
		b.URL,
		b.ScrapedAt.UTC().Format(time.RFC3339),
	}, nil
}

func orNull(s *string) string {
	if s == nil {
		return NullMarker
	}
	return *s
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.file == nil {
		return nil
	}
	cw.writer.Flush()
	flushErr := cw.writer.Error()
	closeErr := cw.file.Close()
	cw.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush csv writer: %w", flushErr)
	}
	return closeErr
}

// Validate ensures the file exists and holds at least the header.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.path, "csv")
}

// Path returns the output file name.
func (cw *CSVWriter) Path() string {
	return cw.path
}

// jsonRecord mirrors the CSV columns. Absent values encode as null.
type jsonRecord struct {
	Title        string            `json:"title"`
	Price        json.Number       `json:"price"`
	Rating       int               `json:"rating"`
	InStock      bool              `json:"in_stock"`
	StockCount   *int              `json:"stock_count"`
	Availability string            `json:"availability"`
	Description  *string           `json:"description"`
	Category     *string           `json:"category"`
	ProductInfo  map[string]string `json:"product_info"`
	ImageURL     string            `json:"image_url"`
	URL          string            `json:"url"`
	ScrapedAt    time.Time         `json:"scraped_at"`
}

func toJSONRecord(b *models.BookRecord) jsonRecord {
	return jsonRecord{
		Title:        b.Title,
		Price:        json.Number(b.Price.String()),
		Rating:       b.Rating,
		InStock:      b.Availability.InStock,
		StockCount:   b.Availability.Count,
		Availability: b.Availability.Raw,
		Description:  b.Description,
		Category:     b.Category,
		ProductInfo:  b.ProductInfo,
		ImageURL:     b.ImageURL,
		URL:          b.URL,
		ScrapedAt:    b.ScrapedAt.UTC(),
	}
}

// JSONWriter streams records into a single indented JSON array.
type JSONWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	count  int
	mu     sync.Mutex
}

// NewJSONWriter initialises the JSON writer and opens the array.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	if _, err := buffer.WriteString("["); err != nil {
		f.Close()
		return nil, fmt.Errorf("write json prefix: %w", err)
	}
	return &JSONWriter{
		path:   filename,
		file:   f,
		writer: buffer,
	}, nil
}

// Write appends records to the array.
func (jw *JSONWriter) Write(books []models.BookRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for i := range books {
		raw, err := json.MarshalIndent(toJSONRecord(&books[i]), "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		sep := ",\n  "
		if jw.count == 0 {
			sep = "\n  "
		}
		if _, err := jw.writer.WriteString(sep); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		if _, err := jw.writer.Write(raw); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		jw.count++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close terminates the array, flushes buffers and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.file == nil {
		return nil
	}
	suffix := "\n]\n"
	if jw.count == 0 {
		suffix = "]\n"
	}
	if _, err := jw.writer.WriteString(suffix); err != nil {
		return fmt.Errorf("write json suffix: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	err := jw.file.Close()
	jw.file = nil
	return err
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.path, "json")
}

// Path returns the output file name.
func (jw *JSONWriter) Path() string {
	return jw.path
}

func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
