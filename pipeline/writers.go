package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-tululu/artifacts"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

// JSONStore keeps every record in a single JSON array. Each append rewrites
// the whole file through a temp file and rename, so the store is valid JSON
// at all times.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore opens the store at filename, creating parent directories and
// an empty array when the file does not exist yet.
func NewJSONStore(filename string) (*JSONStore, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	store := &JSONStore{path: filename}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		if err := store.save([]*models.Book{}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, artifacts.ErrIO{Op: "stat", Path: filename, Err: err}
	}
	return store, nil
}

// Path returns the store location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load returns all stored records in insertion order.
func (s *JSONStore) Load() ([]*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Append adds books that are not stored yet and returns the ones written.
// Records with an ID already present are dropped.
func (s *JSONStore) Append(books []*models.Book) ([]*models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return nil, err
	}

	stored := make(map[int]struct{}, len(existing))
	for _, book := range existing {
		if book.ID != 0 {
			stored[book.ID] = struct{}{}
		}
	}

	added := make([]*models.Book, 0, len(books))
	for _, book := range books {
		if book == nil {
			continue
		}
		if book.ID != 0 {
			if _, dup := stored[book.ID]; dup {
				continue
			}
			stored[book.ID] = struct{}{}
		}
		added = append(added, book)
	}

	if err := s.save(append(existing, added...)); err != nil {
		return nil, err
	}
	return added, nil
}

// Write appends books and reports how many were new.
func (s *JSONStore) Write(books []*models.Book) (int, error) {
	added, err := s.Append(books)
	return len(added), err
}

// IDs lists the IDs already stored.
func (s *JSONStore) IDs() ([]int, error) {
	books, err := s.Load()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(books))
	for _, book := range books {
		if book.ID != 0 {
			ids = append(ids, book.ID)
		}
	}
	return ids, nil
}

// Close is a no-op; every append is already durable.
func (s *JSONStore) Close() error {
	return nil
}

// Validate ensures the store decodes as a JSON array.
func (s *JSONStore) Validate() error {
	if _, err := s.Load(); err != nil {
		return fmt.Errorf("validate json store: %w", err)
	}
	return nil
}

func (s *JSONStore) load() ([]*models.Book, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []*models.Book{}, nil
	}
	if err != nil {
		return nil, artifacts.ErrIO{Op: "read", Path: s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []*models.Book{}, nil
	}

	var books []*models.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", s.path, err)
	}
	if books == nil {
		books = []*models.Book{}
	}
	return books, nil
}

func (s *JSONStore) save(books []*models.Book) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(books); err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	return artifacts.WriteFileAtomic(s.path, buf.Bytes())
}

var csvHeader = []string{"id", "title", "author", "genres", "book_path", "img_src"}

// CSVIndex mirrors stored records into a flat CSV file.
type CSVIndex struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVIndex opens filename for appending. The header row is written only
// when the file is new, so resumed runs keep extending the same index.
func NewCSVIndex(filename string) (*CSVIndex, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, artifacts.ErrIO{Op: "open", Path: filename, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, artifacts.ErrIO{Op: "stat", Path: filename, Err: err}
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVIndex{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one row per book.
func (ci *CSVIndex) Write(books []*models.Book) (int, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	for _, book := range books {
		record := []string{
			strconv.Itoa(book.ID),
			book.Title,
			book.Author,
			strings.Join(book.Genres, "; "),
			book.TextPath,
			book.ImagePath,
		}
		if err := ci.writer.Write(record); err != nil {
			return 0, fmt.Errorf("write csv record: %w", err)
		}
	}
	ci.writer.Flush()
	if err := ci.writer.Error(); err != nil {
		return 0, fmt.Errorf("flush csv records: %w", err)
	}
	return len(books), nil
}

// Close flushes and closes the file handle.
func (ci *CSVIndex) Close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	ci.writer.Flush()
	if err := ci.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return ci.file.Close()
}

// Validate ensures the index has at least its header.
func (ci *CSVIndex) Validate() error {
	info, err := ci.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return artifacts.ErrIO{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}
