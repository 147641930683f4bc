package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// DualWriter persists to the JSON store and mirrors new records into the CSV index.
type DualWriter struct {
	store *JSONStore
	index *CSVIndex
	mu    sync.Mutex
}

// NewDualWriter opens the store and the index.
func NewDualWriter(storeFilename, indexFilename string) (*DualWriter, error) {
	store, err := NewJSONStore(storeFilename)
	if err != nil {
		return nil, fmt.Errorf("open json store: %w", err)
	}

	index, err := NewCSVIndex(indexFilename)
	if err != nil {
		return nil, fmt.Errorf("open csv index: %w", err)
	}

	return &DualWriter{
		store: store,
		index: index,
	}, nil
}

// Store exposes the underlying JSON store.
func (dw *DualWriter) Store() *JSONStore {
	return dw.store
}

// Write appends to the store first; only records the store accepted reach the index.
func (dw *DualWriter) Write(books []*models.Book) (int, error) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	added, err := dw.store.Append(books)
	if err != nil {
		return 0, fmt.Errorf("json store append: %w", err)
	}

	if _, err := dw.index.Write(added); err != nil {
		return len(added), fmt.Errorf("csv index write: %w", err)
	}

	return len(added), nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close failed: %w", err))
	}
	if err := dw.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close failed: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates both outputs.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.index.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("csv validation failed: %w", err))
	}
	if err := dw.store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("json validation failed: %w", err))
	}
	return errors.Join(errs...)
}
