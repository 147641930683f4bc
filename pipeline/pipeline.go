// Package pipeline validates, de-duplicates and persists records one
// checkpoint at a time through a single writer goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

var (
	// ErrPipelineClosed is returned when Commit is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when pending commits outlive the drain timeout.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

const defaultDrainTimeout = 30 * time.Second

// OutputWriter persists records and reports how many were new.
type OutputWriter interface {
	Write(books []*models.Book) (int, error)
	Close() error
	Validate() error
}

type commitRequest struct {
	page  int
	books []*models.Book
	done  chan commitResult
}

type commitResult struct {
	stored int
	err    error
}

// Pipeline serialises checkpoint commits onto one writer.
type Pipeline struct {
	writer   OutputWriter
	commitCh chan commitRequest
	seen     *lru.Cache[int, struct{}]
	prom     *metrics.Metrics

	wg           sync.WaitGroup
	drainTimeout time.Duration

	stats *stats

	mu      sync.Mutex // guards closed/err/started
	closed  bool
	started bool
	err     error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline whose de-duplication window holds
// cfg.DedupeMaxSize IDs.
func NewPipeline(writer OutputWriter, cfg *config.Config, m *metrics.Metrics) (*Pipeline, error) {
	if writer == nil {
		return nil, fmt.Errorf("pipeline: writer is nil")
	}
	size := cfg.DedupeMaxSize
	if size <= 0 {
		size = config.DefaultConfig().DedupeMaxSize
	}
	seen, err := lru.New[int, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	buffer := cfg.Workers
	if buffer <= 0 {
		buffer = 1
	}

	return &Pipeline{
		writer:       writer,
		commitCh:     make(chan commitRequest, buffer),
		seen:         seen,
		prom:         m,
		drainTimeout: defaultDrainTimeout,
		stats:        newStats(),
		shutdown:     make(chan struct{}),
	}, nil
}

// Start launches the writer goroutine. Calling it twice is a no-op.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.closed || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.worker()
}

// Seed marks ids as already persisted.
func (p *Pipeline) Seed(ids []int) {
	for _, id := range ids {
		p.seen.Add(id, struct{}{})
	}
}

// Seen reports whether id was persisted by this run or seeded.
func (p *Pipeline) Seen(id int) bool {
	return p.seen.Contains(id)
}

// Commit hands one checkpoint to the writer and blocks until it is durable.
// An empty batch is still committed. It returns the number of records stored.
func (p *Pipeline) Commit(ctx context.Context, page int, books []*models.Book) (int, error) {
	closed, err := p.state()
	if err != nil {
		return 0, err
	}
	if closed {
		return 0, ErrPipelineClosed
	}

	req := commitRequest{page: page, books: books, done: make(chan commitResult, 1)}
	if err := p.enqueue(ctx, req); err != nil {
		return 0, err
	}

	select {
	case res := <-req.done:
		return res.stored, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops accepting commits and waits for queued ones to finish.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		close(p.commitCh)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return ErrPipelineCloseTimeout
	}
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.stats.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("committed_pages", snapshot["committed_pages"].(int64)),
					slog.Int64("stored_records", snapshot["stored_records"].(int64)),
					slog.Int("validation_kinds", len(snapshot["validation_errors"].(map[string]int))),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for req := range p.commitCh {
		if err := p.Err(); err != nil {
			req.done <- commitResult{err: fmt.Errorf("%w: %v", ErrPipelineClosed, err)}
			continue
		}

		stored, err := p.commit(req)
		if err != nil {
			err = fmt.Errorf("commit page %d: %w", req.page, err)
			p.setErr(err)
		}
		req.done <- commitResult{stored: stored, err: err}
	}
}

func (p *Pipeline) commit(req commitRequest) (int, error) {
	batch := make([]*models.Book, 0, len(req.books))
	inBatch := make(map[int]struct{}, len(req.books))
	for _, book := range req.books {
		prepared := p.prepare(book)
		if prepared == nil {
			continue
		}
		if _, dup := inBatch[prepared.ID]; dup {
			p.stats.addValidation("duplicate_id")
			continue
		}
		inBatch[prepared.ID] = struct{}{}
		batch = append(batch, prepared)
	}

	stored, err := p.writer.Write(batch)
	if err != nil {
		return 0, err
	}

	for _, book := range batch {
		p.seen.Add(book.ID, struct{}{})
	}
	p.stats.addCommit(stored)
	p.prom.AddCommitted(stored)
	slog.Debug("page committed", slog.Int("page", req.page), slog.Int("records", len(batch)), slog.Int("stored", stored))
	return stored, nil
}

func (p *Pipeline) prepare(book *models.Book) *models.Book {
	if err := parser.ValidateBook(book); err != nil {
		p.stats.addValidation("invalid_record")
		return nil
	}

	if p.seen.Contains(book.ID) {
		p.stats.addValidation("duplicate_id")
		return nil
	}

	parser.NormalizeBook(book)
	return book
}

func (p *Pipeline) enqueue(ctx context.Context, req commitRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.commitCh <- req:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = err
	p.closed = true
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type stats struct {
	mu         sync.Mutex
	pages      int64
	stored     int64
	validation map[string]int
}

func newStats() *stats {
	return &stats{
		validation: make(map[string]int),
	}
}

func (s *stats) addCommit(stored int) {
	s.mu.Lock()
	s.pages++
	s.stored += int64(stored)
	s.mu.Unlock()
}

func (s *stats) addValidation(kind string) {
	s.mu.Lock()
	s.validation[kind]++
	s.mu.Unlock()
}

func (s *stats) snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	copyValidation := make(map[string]int, len(s.validation))
	for k, v := range s.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"committed_pages":   s.pages,
		"stored_records":    s.stored,
		"validation_errors": copyValidation,
	}
}
