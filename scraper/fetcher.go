package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/eventlog"
	"github.com/gocolly/colly/v2"
)

const (
	ctxBody   = "body"
	ctxStatus = "status"
)

// FetchResult is the outcome of fetching one URL, retries included.
// Err is nil exactly when Body holds a 2xx response.
type FetchResult struct {
	URL        string
	Body       []byte
	StatusCode int
	Attempts   int
	Latency    time.Duration
	Err        error
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

// PageFetcher retrieves raw markup for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// Fetcher issues GET requests through a synchronous colly collector and
// retries transient failures with exponential backoff.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	sink      eventlog.Sink
	metrics   *Metrics
	sleeper   sleeper
}

// NewFetcher builds a fetcher configured from cfg. A nil sink discards
// attempt entries; nil metrics disables instrumentation.
func NewFetcher(cfg *config.Config, sink eventlog.Sink, metrics *Metrics) (*Fetcher, error) {
	domains, err := allowedDomains(cfg)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(domains...),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	// Error statuses reach OnError instead of OnResponse.
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, r.Body)
		r.Ctx.Put(ctxStatus, r.StatusCode)
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})

	if sink == nil {
		sink = eventlog.Discard
	}
	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		sink:      sink,
		metrics:   metrics,
		sleeper:   realSleeper{},
	}, nil
}

// WithTransport replaces the HTTP transport used for every request.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

func allowedDomains(cfg *config.Config) ([]string, error) {
	var domains []string
	for _, raw := range []string{cfg.BaseURL, cfg.StartURL} {
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse url %q: %w", raw, err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("url %q must include a host", raw)
		}
		domains = append(domains, parsed.Hostname())
	}
	return domains, nil
}

// Fetch retrieves rawURL. Timeouts, connection failures, 5xx and 429 are
// retried up to MaxRetries times; other statuses fail immediately. Every
// attempt is appended to the sink. Fetch never panics on network failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := FetchResult{URL: rawURL}
	started := time.Now()
	maxAttempts := f.cfg.MaxRetries + 1

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Err = err
			break
		}

		body, status, latency, err := f.do(rawURL)
		result.Attempts = attempt
		result.StatusCode = status
		result.Err = err
		f.record(rawURL, attempt, status, latency, err)
		if err == nil {
			result.Body = body
			break
		}
		if !IsRetryable(err) || attempt == maxAttempts {
			break
		}

		wait := backoff(f.cfg.RetryBackoff, f.cfg.RetryBackoffMax, attempt)
		f.metrics.IncRetries()
		slog.Debug("retrying request",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
		)
		if werr := f.sleeper.sleep(ctx, wait); werr != nil {
			result.Err = werr
			break
		}
	}

	result.Latency = time.Since(started)
	return result
}

func (f *Fetcher) do(rawURL string) ([]byte, int, time.Duration, error) {
	cctx := colly.NewContext()
	start := time.Now()
	err := f.collector.Request(http.MethodGet, rawURL, nil, cctx, nil)
	latency := time.Since(start)

	status, _ := cctx.GetAny(ctxStatus).(int)
	if err != nil {
		return nil, status, latency, classifyError(err, status)
	}
	body, _ := cctx.GetAny(ctxBody).([]byte)
	if status >= http.StatusMultipleChoices {
		return nil, status, latency, classifyError(nil, status)
	}
	return body, status, latency, nil
}

func (f *Fetcher) record(rawURL string, attempt, status int, latency time.Duration, err error) {
	outcome := "ok"
	message := ""
	if err != nil {
		outcome = errorTypeLabel(err)
		message = err.Error()
		f.metrics.IncError(outcome)
		slog.Warn("request failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.String("category", outcome),
			slog.Any("error", err),
		)
	}
	f.metrics.IncRequest(outcome)
	f.metrics.ObserveDuration(latency)

	if aerr := f.sink.Append(eventlog.Entry{
		Kind:    eventlog.KindFetchAttempt,
		URL:     rawURL,
		Attempt: attempt,
		Outcome: outcome,
		Status:  status,
		Latency: latency,
		Message: message,
	}); aerr != nil {
		slog.Error("append fetch attempt", slog.Any("error", aerr))
	}
}
