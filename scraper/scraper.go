// Package scraper drives acquisition: it walks listing pages or ID ranges,
// acquires every item and commits each page as one checkpoint.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-tululu/artifacts"
	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetcher"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// Committer persists one checkpoint and knows which IDs are already stored.
type Committer interface {
	Commit(ctx context.Context, page int, books []*models.Book) (int, error)
	Seen(id int) bool
}

// Scraper crawls the catalogue and feeds a Committer.
type Scraper struct {
	cfg      *config.Config
	client   *fetcher.Client
	acquirer *Acquirer
	Metrics  *metrics.Metrics
	runID    string

	pageCount   int64
	storedCount int64

	mu           sync.Mutex
	outcomes     map[string]int
	errorsByType map[string]int
	failedPages  []int
	catalogEnd   int
}

// NewScraper builds a scraper and its HTTP client from cfg.
func NewScraper(cfg *config.Config) (*Scraper, error) {
	m := metrics.New()
	client, err := fetcher.NewClient(cfg, m)
	if err != nil {
		return nil, err
	}
	downloader := artifacts.NewDownloader(cfg, client, m)

	return &Scraper{
		cfg:          cfg,
		client:       client,
		acquirer:     NewAcquirer(cfg, client, downloader, m),
		Metrics:      m,
		runID:        uuid.NewString(),
		outcomes:     make(map[string]int),
		errorsByType: make(map[string]int),
	}, nil
}

// WithTransport replaces the HTTP transport of the underlying client.
func (s *Scraper) WithTransport(transport http.RoundTripper) {
	s.client.WithTransport(transport)
}

// RunID identifies this scraper instance in logs and the summary.
func (s *Scraper) RunID() string {
	return s.runID
}

// ListingURL is listing page n of category.
func ListingURL(base string, category, page int) string {
	return fmt.Sprintf("%s/l%d/%d", base, category, page)
}

// Run walks listing pages StartPage..EndPage. A redirected listing page marks
// the end of the catalogue. Cancellation is honoured between pages; the page
// in flight is always committed.
func (s *Scraper) Run(ctx context.Context, c Committer) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	logger := slog.With(slog.String("run_id", s.runID))
	logger.Info("crawl started",
		slog.Int("category", s.cfg.CategoryID),
		slog.Int("start_page", s.cfg.StartPage),
		slog.Int("end_page", s.cfg.EndPage),
	)

	for page := s.cfg.StartPage; page <= s.cfg.EndPage; page++ {
		if ctx.Err() != nil {
			logger.Info("crawl interrupted", slog.Int("next_page", page))
			break
		}

		listing, err := s.listPage(ctx, page)
		if err != nil {
			if fetcher.IsNotFound(err) {
				logger.Info("catalogue end reached", slog.Int("page", page))
				if s.cfg.StopAtCatalogEnd {
					s.setCatalogEnd(page)
					break
				}
				continue
			}
			if isCanceled(err) {
				logger.Info("crawl interrupted", slog.Int("next_page", page))
				break
			}
			s.pageFailed(page, err)
			continue
		}

		if err := s.processBatch(ctx, c, listing); err != nil {
			return s.result(start), err
		}
	}

	res := s.result(start)
	logger.Info("crawl finished", slog.Int("pages", res.PageCount), slog.Int("stored", res.StoredCount))
	return res, nil
}

// RunIDs acquires StartID..EndID directly, committing every BatchSize IDs.
func (s *Scraper) RunIDs(ctx context.Context, c Committer) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	logger := slog.With(slog.String("run_id", s.runID))
	logger.Info("id walk started", slog.Int("start_id", s.cfg.StartID), slog.Int("end_id", s.cfg.EndID))

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	batch := 0
	for first := s.cfg.StartID; first <= s.cfg.EndID; first += batchSize {
		if ctx.Err() != nil {
			logger.Info("id walk interrupted", slog.Int("next_id", first))
			break
		}
		batch++

		last := min(first+batchSize-1, s.cfg.EndID)
		ids := make([]int, 0, last-first+1)
		for id := first; id <= last; id++ {
			ids = append(ids, id)
		}

		if err := s.processBatch(ctx, c, models.CatalogPage{Number: batch, IDs: ids}); err != nil {
			return s.result(start), err
		}
	}

	res := s.result(start)
	logger.Info("id walk finished", slog.Int("batches", res.PageCount), slog.Int("stored", res.StoredCount))
	return res, nil
}

func (s *Scraper) listPage(ctx context.Context, page int) (models.CatalogPage, error) {
	listingURL := ListingURL(s.cfg.BaseURLTrimmed(), s.cfg.CategoryID, page)
	resp, err := s.client.FetchExisting(ctx, listingURL, nil)
	if err != nil {
		return models.CatalogPage{}, err
	}
	ids, err := parser.ParseListing(resp.Body)
	if err != nil {
		return models.CatalogPage{}, err
	}
	slog.Debug("listing parsed", slog.Int("page", page), slog.Int("items", len(ids)))
	return models.CatalogPage{Number: page, IDs: ids}, nil
}

// processBatch acquires the page IDs with at most Workers in flight and
// commits the records in page order. The work is detached from ctx so an
// interrupt never leaves a half-processed checkpoint.
func (s *Scraper) processBatch(ctx context.Context, c Committer, listing models.CatalogPage) error {
	page, ids := listing.Number, listing.IDs
	work := context.WithoutCancel(ctx)
	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	books := make([]*models.Book, len(ids))
	g, gctx := errgroup.WithContext(work)
	g.SetLimit(workers)
	for i, id := range ids {
		if c.Seen(id) {
			s.recordOutcome(Result{ID: id, Outcome: OutcomeAlreadyStored})
			continue
		}
		i, id := i, id
		g.Go(func() error {
			res, err := s.acquirer.Acquire(gctx, id)
			if err != nil {
				return fmt.Errorf("acquire %d: %w", id, err)
			}
			s.recordOutcome(res)
			books[i] = res.Book
			return nil
		})
	}
	fatal := g.Wait()

	batch := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book != nil {
			batch = append(batch, book)
		}
	}

	stored, err := c.Commit(work, page, batch)
	if err != nil {
		return fmt.Errorf("commit page %d: %w", page, err)
	}
	if fatal != nil {
		return fatal
	}

	atomic.AddInt64(&s.pageCount, 1)
	atomic.AddInt64(&s.storedCount, int64(stored))
	slog.Info("page committed",
		slog.String("run_id", s.runID),
		slog.Int("page", page),
		slog.Int("items", len(ids)),
		slog.Int("records", len(batch)),
		slog.Int("stored", stored),
	)
	return nil
}

func (s *Scraper) recordOutcome(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[string(res.Outcome)]++
	if res.Cause != nil {
		s.errorsByType[causeLabel(res.Cause)]++
	}
}

func (s *Scraper) pageFailed(page int, err error) {
	slog.Error("listing page failed",
		slog.String("run_id", s.runID),
		slog.Int("page", page),
		slog.String("category", causeLabel(err)),
		slog.Any("error", err),
	)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failedPages = append(s.failedPages, page)
	s.errorsByType[causeLabel(err)]++
}

func (s *Scraper) setCatalogEnd(page int) {
	s.mu.Lock()
	s.catalogEnd = page
	s.mu.Unlock()
}

func (s *Scraper) result(start time.Time) *models.ScraperResult {
	requests, retries := s.client.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes := make(map[string]int, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	errorsByType := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		errorsByType[k] = v
	}
	failed := make([]int, len(s.failedPages))
	copy(failed, s.failedPages)

	return &models.ScraperResult{
		RunID:          s.runID,
		StartTime:      start,
		EndTime:        time.Now(),
		PageCount:      int(atomic.LoadInt64(&s.pageCount)),
		StoredCount:    int(atomic.LoadInt64(&s.storedCount)),
		Outcomes:       outcomes,
		ErrorsByType:   errorsByType,
		FailedPages:    failed,
		RetryCount:     retries,
		RequestCount:   requests,
		CatalogEndPage: s.catalogEnd,
	}
}
