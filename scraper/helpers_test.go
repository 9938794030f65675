package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/eventlog"
	"github.com/jarcoal/httpmock"
)

const (
	testBase  = "http://example.test"
	testPage1 = testBase + "/catalogue/page-1.html"
	testPage2 = testBase + "/catalogue/page-2.html"
	testPage3 = testBase + "/catalogue/page-3.html"
)

type testBook struct {
	slug, title, price, tier string
}

func (b testBook) url() string {
	return testBase + "/catalogue/" + b.slug + "/index.html"
}

func buildCatalogPage(books []testBook, next string) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section><ol class=\"row\">")

	for _, b := range books {
		builder.WriteString("<li><article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<div class=\"image_container\"><a href=\"%s/index.html\"><img src=\"../media/cache/%s.jpg\"></a></div>", b.slug, b.slug)
		fmt.Fprintf(&builder, "<p class=\"star-rating %s\"></p>", b.tier)
		fmt.Fprintf(&builder, "<h3><a href=\"%s/index.html\" title=\"%s\">%s</a></h3>", b.slug, b.title, b.title)
		fmt.Fprintf(&builder, "<p class=\"price_color\">%s</p>", b.price)
		builder.WriteString("<p class=\"instock availability\">In stock</p>")
		builder.WriteString("</article></li>")
	}
	builder.WriteString("</ol>")

	if next != "" {
		fmt.Fprintf(&builder, "<ul class=\"pager\"><li class=\"next\"><a href=\"%s\">next</a></li></ul>", next)
	}

	builder.WriteString("</section></body></html>")
	return builder.String()
}

func buildDetailPage(title, category string, count int) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb"><li><a href="#">Home</a></li><li><a href="#">Books</a></li><li><a href="#">%s</a></li><li class="active">%s</li></ul>
<div class="product_main"><h1>%s</h1><p class="instock availability">In stock (%d available)</p></div>
<div id="product_description"><h2>Product Description</h2></div><p>About %s.</p>
<table class="table table-striped"><tr><th>UPC</th><td>upc-%s</td></tr></table>
</body></html>`, category, title, title, count, title, title)
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func newTestConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBase
	cfg.StartURL = testPage1
	cfg.MaxPages = 10
	cfg.FollowDetails = false
	cfg.Delay = 250 * time.Millisecond
	cfg.RandomDelay = 0
	cfg.DetailDelay = 50 * time.Millisecond
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Second
	cfg.MaxRetries = 2
	cfg.AbortThreshold = 3
	cfg.DedupeMaxSize = 200
	return cfg
}

// recordingSleeper records requested pauses without waiting.
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.delays = append(r.delays, d)
	return nil
}

// scriptedFetcher replays canned results per URL. The last result for a
// URL repeats; unknown URLs get a 404.
type scriptedFetcher struct {
	results map[string][]FetchResult
	calls   []string
	onFetch func(rawURL string)
}

func (f *scriptedFetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	f.calls = append(f.calls, rawURL)
	if f.onFetch != nil {
		f.onFetch(rawURL)
	}
	if err := ctx.Err(); err != nil {
		return FetchResult{URL: rawURL, Err: err}
	}
	seq := f.results[rawURL]
	if len(seq) == 0 {
		return FetchResult{URL: rawURL, Attempts: 1, StatusCode: 404, Err: ErrNotFound{Err: errors.New("Not Found")}}
	}
	res := seq[0]
	if len(seq) > 1 {
		f.results[rawURL] = seq[1:]
	}
	res.URL = rawURL
	if res.Attempts == 0 {
		res.Attempts = 1
	}
	return res
}

func okResult(body string) FetchResult {
	return FetchResult{Body: []byte(body), StatusCode: 200}
}

func newTestScraper(cfg *config.Config, fetcher PageFetcher) (*Scraper, *eventlog.Memory, *recordingSleeper) {
	mem := eventlog.NewMemory()
	rec := &recordingSleeper{}
	s := NewScraper(cfg, fetcher, mem, NewMetrics())
	s.sleeper = rec
	return s, mem, rec
}
