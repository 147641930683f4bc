package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Book
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(books []*models.Book) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return 0, mw.writeErr
	}
	copyBatch := make([]*models.Book, len(books))
	copy(copyBatch, books)
	mw.batches = append(mw.batches, copyBatch)
	return len(books), nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	started chan struct{}
	once    sync.Once
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(books []*models.Book) (int, error) {
	bw.once.Do(func() { close(bw.started) })
	<-bw.blockCh
	return len(books), nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func newTestPipeline(t *testing.T, writer OutputWriter) *Pipeline {
	t.Helper()
	p, err := NewPipeline(writer, config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	p.Start()
	return p
}

func TestPipelineCommitValidationAndDedup(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer)

	valid := &models.Book{ID: 5, Title: " Mystery  House ", Genres: []string{"Horror"}}
	invalid := &models.Book{ID: 6, Title: ""}
	duplicate := &models.Book{ID: 5, Title: "Mystery House"}

	stored, err := p.Commit(context.Background(), 1, []*models.Book{valid, invalid, duplicate})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if stored != 1 {
		t.Fatalf("stored = %d, want 1", stored)
	}

	again, err := p.Commit(context.Background(), 2, []*models.Book{{ID: 5, Title: "Mystery House"}})
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if again != 0 {
		t.Fatalf("stored on second commit = %d, want 0", again)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written books = %d, want 1", got)
	}
	if writer.batches[0][0].Title != "Mystery House" {
		t.Fatalf("title not normalised: %q", writer.batches[0][0].Title)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_id"] != 2 {
		t.Fatalf("duplicate_id = %d, want 2", validation["duplicate_id"])
	}
	if metrics["committed_pages"].(int64) != 2 {
		t.Fatalf("committed_pages = %v, want 2", metrics["committed_pages"])
	}
}

func TestPipelineCommitsEmptyBatch(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer)

	if _, err := p.Commit(context.Background(), 3, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 1 || sizes[0] != 0 {
		t.Fatalf("batch sizes = %v, want [0]", sizes)
	}
}

func TestPipelineSeedSkipsStoredIDs(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer)
	p.Seed([]int{1, 2})

	if !p.Seen(1) || p.Seen(3) {
		t.Fatalf("unexpected seen state")
	}

	stored, err := p.Commit(context.Background(), 1, []*models.Book{
		{ID: 1, Title: "One"},
		{ID: 3, Title: "Three"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if stored != 1 || !p.Seen(3) {
		t.Fatalf("stored = %d, seen(3) = %v", stored, p.Seen(3))
	}
	_ = p.Close()
}

func TestPipelineWriteErrorClosesPipeline(t *testing.T) {
	writeErr := errors.New("disk full")
	writer := &mockWriter{writeErr: writeErr}
	p := newTestPipeline(t, writer)

	_, err := p.Commit(context.Background(), 1, []*models.Book{{ID: 1, Title: "One"}})
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if p.Seen(1) {
		t.Fatalf("failed record must not be marked as seen")
	}

	if _, err := p.Commit(context.Background(), 2, nil); !errors.Is(err, writeErr) {
		t.Fatalf("expected sticky error, got %v", err)
	}
	if err := p.Close(); !errors.Is(err, writeErr) {
		t.Fatalf("close error = %v, want write error", err)
	}
}

func TestPipelineCommitAfterClose(t *testing.T) {
	p := newTestPipeline(t, &mockWriter{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Commit(context.Background(), 1, nil); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineConcurrentCommits(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, writer)

	var wg sync.WaitGroup
	for page := 1; page <= 10; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			books := []*models.Book{
				{ID: page*10 + 1, Title: "A"},
				{ID: page*10 + 2, Title: "B"},
			}
			if _, err := p.Commit(context.Background(), page, books); err != nil {
				t.Errorf("commit page %d: %v", page, err)
			}
		}(page)
	}
	wg.Wait()

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := writer.totalWritten(); got != 20 {
		t.Fatalf("written books = %d, want 20", got)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	writer := &blockingWriter{started: make(chan struct{}), blockCh: make(chan struct{})}
	p := newTestPipeline(t, writer)
	p.drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		close(writer.blockCh)
	})

	go func() {
		_, _ = p.Commit(context.Background(), 1, []*models.Book{{ID: 1, Title: "Blocked"}})
	}()
	<-writer.started

	if err := p.Close(); !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}
