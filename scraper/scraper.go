package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/aluiziolira/bookscrape/config"
	"github.com/aluiziolira/bookscrape/eventlog"
	"github.com/aluiziolira/bookscrape/models"
	"github.com/aluiziolira/bookscrape/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const reasonInterrupted = "interrupted"

// Scraper drives the crawl: fetch a catalogue page, extract it, pause,
// follow the next link. One request is in flight at a time.
type Scraper struct {
	cfg     *config.Config
	fetcher PageFetcher
	sink    eventlog.Sink
	Metrics *Metrics

	sleeper sleeper
	jitter  func(limit time.Duration) time.Duration
	now     func() time.Time
}

// NewScraper wires a controller around fetcher. A nil sink discards log
// entries; nil metrics disables instrumentation.
func NewScraper(cfg *config.Config, fetcher PageFetcher, sink eventlog.Sink, metrics *Metrics) *Scraper {
	if sink == nil {
		sink = eventlog.Discard
	}
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		sink:    sink,
		Metrics: metrics,
		sleeper: realSleeper{},
		jitter:  randomJitter,
		now:     time.Now,
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit)))
}

// crawlState is owned by a single Run call.
type crawlState struct {
	state        State
	currentURL   string
	body         []byte
	pagesVisited int
	consecutive  int
	abortReason  string

	records   []models.BookRecord
	malformed []models.MalformedRecord
	seen      *lru.Cache[string, struct{}]

	failedURLs     []string
	errorsByType   map[string]int
	requests       int
	retries        int
	duplicates     int
	detailFailures int
}

// Run crawls from the configured entry URL until the catalogue ends,
// MaxPages is reached, consecutive failures hit AbortThreshold or ctx is
// cancelled. The result always carries whatever was collected.
func (s *Scraper) Run(ctx context.Context) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	seen, err := lru.New[string, struct{}](s.cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	st := &crawlState{
		state:        StateStart,
		seen:         seen,
		errorsByType: make(map[string]int),
	}
	start := s.now()

	for !st.state.Terminal() {
		next := s.step(ctx, st)
		slog.Debug("crawl state",
			slog.String("from", st.state.String()),
			slog.String("to", next.String()),
			slog.String("url", st.currentURL),
		)
		st.state = next
	}

	result := &models.CrawlResult{
		Status:         models.StatusComplete,
		AbortReason:    st.abortReason,
		Records:        st.records,
		Malformed:      st.malformed,
		FailedURLs:     st.failedURLs,
		ErrorsByType:   st.errorsByType,
		StartTime:      start,
		EndTime:        s.now(),
		PageCount:      st.pagesVisited,
		RequestCount:   st.requests,
		RetryCount:     st.retries,
		DuplicateCount: st.duplicates,
		DetailFailures: st.detailFailures,
	}
	if st.state == StateAborted {
		result.Status = models.StatusAborted
	}

	s.append(eventlog.Entry{
		Kind:    eventlog.KindCrawlStatus,
		Outcome: string(result.Status),
		Message: fmt.Sprintf("pages=%d records=%d malformed=%d duplicates=%d %s",
			result.PageCount, len(result.Records), len(result.Malformed), result.DuplicateCount, result.AbortReason),
	})
	slog.Info("crawl finished",
		slog.String("status", string(result.Status)),
		slog.Int("pages", result.PageCount),
		slog.Int("records", len(result.Records)),
		slog.Int("malformed", len(result.Malformed)),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (s *Scraper) step(ctx context.Context, st *crawlState) State {
	switch st.state {
	case StateStart:
		st.currentURL = s.cfg.EntryURL()
		return StateFetching
	case StateFetching:
		return s.fetchPage(ctx, st)
	case StateExtracting:
		return s.extractPage(ctx, st)
	case StateDelaying:
		return s.pause(ctx, st)
	default:
		return st.state
	}
}

func (s *Scraper) fetchPage(ctx context.Context, st *crawlState) State {
	if ctx.Err() != nil {
		st.abortReason = reasonInterrupted
		return StateAborted
	}

	res := s.fetcher.Fetch(ctx, st.currentURL)
	s.countRequests(st, res)
	if ctx.Err() != nil {
		st.abortReason = reasonInterrupted
		return StateAborted
	}

	if !res.OK() {
		st.consecutive++
		label := errorTypeLabel(res.Err)
		st.errorsByType[label]++
		if !slices.Contains(st.failedURLs, st.currentURL) {
			st.failedURLs = append(st.failedURLs, st.currentURL)
		}
		s.append(eventlog.Entry{
			Kind:    eventlog.KindPageFailure,
			URL:     st.currentURL,
			Attempt: res.Attempts,
			Outcome: label,
			Status:  res.StatusCode,
			Message: fmt.Sprintf("consecutive failures %d/%d: %v", st.consecutive, s.cfg.AbortThreshold, res.Err),
		})
		if st.consecutive >= s.cfg.AbortThreshold {
			st.abortReason = fmt.Sprintf("%d consecutive fetch failures at %s: %v", st.consecutive, st.currentURL, res.Err)
			return StateAborted
		}
		return StateDelaying
	}

	st.pagesVisited++
	st.consecutive = 0
	st.body = res.Body
	s.Metrics.IncPages()
	return StateExtracting
}

func (s *Scraper) extractPage(ctx context.Context, st *crawlState) State {
	pageURL := st.currentURL
	body := st.body
	st.body = nil
	st.currentURL = ""

	page, err := parser.ExtractCatalogue(body, pageURL)
	if err != nil {
		st.errorsByType["extract"]++
		s.append(eventlog.Entry{
			Kind:    eventlog.KindPageFailure,
			URL:     pageURL,
			Outcome: "extract",
			Message: err.Error(),
		})
		return StateDelaying
	}

	for _, m := range page.Malformed {
		st.malformed = append(st.malformed, m)
		s.Metrics.IncSkipped("malformed")
		s.append(eventlog.Entry{
			Kind:    eventlog.KindMalformedRecord,
			URL:     pageURL,
			Outcome: "malformed",
			Message: fmt.Sprintf("entry %d %q: %s", m.Index, m.Title, m.Reason),
		})
	}

	fresh := make([]models.BookRecord, 0, len(page.Records))
	for _, rec := range page.Records {
		if found, _ := st.seen.ContainsOrAdd(rec.URL, struct{}{}); found {
			st.duplicates++
			s.Metrics.IncSkipped("duplicate")
			s.append(eventlog.Entry{
				Kind:    eventlog.KindDuplicateRecord,
				URL:     rec.URL,
				Outcome: "duplicate",
				Message: fmt.Sprintf("already seen, listed again on %s", pageURL),
			})
			continue
		}
		fresh = append(fresh, rec)
	}

	if s.cfg.FollowDetails {
		s.enrich(ctx, st, fresh)
	}
	scrapedAt := s.now()
	for i := range fresh {
		fresh[i].ScrapedAt = scrapedAt
	}
	st.records = append(st.records, fresh...)
	s.Metrics.AddItems(len(fresh))

	st.currentURL = page.NextURL
	slog.Info("page scraped",
		slog.String("url", pageURL),
		slog.Int("records", len(fresh)),
		slog.Int("malformed", len(page.Malformed)),
		slog.Bool("has_next", page.HasNext()),
	)
	return StateDelaying
}

// enrich fetches each record's product page and merges the detail fields.
// Failures leave the listing fields untouched and never count toward the
// abort threshold.
func (s *Scraper) enrich(ctx context.Context, st *crawlState, records []models.BookRecord) {
	for i := range records {
		rec := &records[i]
		if err := s.sleeper.sleep(ctx, s.cfg.DetailDelay); err != nil {
			return
		}
		s.Metrics.ObserveDelay(s.cfg.DetailDelay)

		res := s.fetcher.Fetch(ctx, rec.URL)
		s.countRequests(st, res)
		if ctx.Err() != nil {
			return
		}
		if !res.OK() {
			st.errorsByType[errorTypeLabel(res.Err)]++
			s.detailFailed(st, rec.URL, res.StatusCode, res.Err)
			continue
		}

		detail, err := parser.ExtractDetail(res.Body, rec.URL)
		if err != nil {
			s.detailFailed(st, rec.URL, res.StatusCode, err)
			continue
		}
		detail.Apply(rec)
	}
}

func (s *Scraper) detailFailed(st *crawlState, rawURL string, status int, err error) {
	st.detailFailures++
	s.Metrics.IncSkipped("detail")
	s.append(eventlog.Entry{
		Kind:    eventlog.KindDetailFailure,
		URL:     rawURL,
		Outcome: errorTypeLabel(err),
		Status:  status,
		Message: err.Error(),
	})
}

func (s *Scraper) pause(ctx context.Context, st *crawlState) State {
	// Enrichment stops quietly on cancellation; the crawl must not look finished.
	if ctx.Err() != nil {
		st.abortReason = reasonInterrupted
		return StateAborted
	}
	if st.currentURL == "" || st.pagesVisited >= s.cfg.MaxPages {
		return StateDone
	}

	wait := s.cfg.Delay + s.jitter(s.cfg.RandomDelay)
	if err := s.sleeper.sleep(ctx, wait); err != nil {
		st.abortReason = reasonInterrupted
		return StateAborted
	}
	s.Metrics.ObserveDelay(wait)
	return StateFetching
}

func (s *Scraper) countRequests(st *crawlState, res FetchResult) {
	st.requests += res.Attempts
	if res.Attempts > 1 {
		st.retries += res.Attempts - 1
	}
}

func (s *Scraper) append(e eventlog.Entry) {
	if e.Time.IsZero() {
		e.Time = s.now()
	}
	if err := s.sink.Append(e); err != nil {
		slog.Error("append log entry", slog.String("kind", string(e.Kind)), slog.Any("error", err))
	}
}
