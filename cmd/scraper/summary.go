package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aluiziolira/bookscrape/models"
	"github.com/aluiziolira/bookscrape/pipeline"
	"github.com/jedib0t/go-pretty/v6/table"
)

func printSummary(out io.Writer, result *models.CrawlResult, manifest pipeline.Manifest, manifestPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Scrape %s", result.Status)
	t.AppendRows([]table.Row{
		{"Pages", result.PageCount},
		{"Records", len(result.Records)},
		{"Written", manifest.Written},
		{"Malformed", len(result.Malformed)},
		{"Duplicates", result.DuplicateCount},
		{"Detail failures", result.DetailFailures},
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
		{"Failed URLs", len(result.FailedURLs)},
	})
	if len(result.ErrorsByType) > 0 {
		t.AppendRow(table.Row{"Error types", formatCounts(result.ErrorsByType)})
	}
	if result.AbortReason != "" {
		t.AppendRow(table.Row{"Abort reason", result.AbortReason})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Duration", result.Duration().Round(time.Millisecond)})
	if secs := result.Duration().Seconds(); secs > 0 {
		t.AppendRow(table.Row{"Records/sec", fmt.Sprintf("%.2f", float64(len(result.Records))/secs)})
	}
	t.AppendRow(table.Row{"Outputs", strings.Join(manifest.Outputs, "\n")})
	t.AppendRow(table.Row{"Manifest", manifestPath})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func formatCounts(counts map[string]int) string {
	keys := slices.Sorted(maps.Keys(counts))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
