package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

func readStore(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("store is not valid json: %v\n%s", err, data)
	}
	return decoded
}

func TestJSONStoreInitialisesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "book_list.json")

	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("path = %q, want %q", store.Path(), path)
	}
	if got := readStore(t, path); len(got) != 0 {
		t.Fatalf("records = %d, want 0", len(got))
	}

	if _, err := store.Append(nil); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if got := readStore(t, path); len(got) != 0 {
		t.Fatalf("records after empty append = %d, want 0", len(got))
	}
}

func TestJSONStoreAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_list.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	first := &models.Book{
		ID:        5,
		Title:     "Mystery House",
		Genres:    []string{"Horror"},
		Comments:  []string{"Great read", "Scary"},
		ImagePath: "images/5.jpg",
		TextPath:  "books/5. Mystery House.txt",
		ImageURL:  "https://tululu.test/img/5.jpg",
	}
	if _, err := store.Append([]*models.Book{first}); err != nil {
		t.Fatalf("append: %v", err)
	}

	second := &models.Book{ID: 6, Title: "No Text <b>", Author: "Jane Doe", Genres: []string{}}
	added, err := store.Append([]*models.Book{{ID: 5, Title: "Mystery House"}, second})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(added) != 1 || added[0].ID != 6 {
		t.Fatalf("added = %v, want only id 6", added)
	}

	records := readStore(t, path)
	want := []map[string]interface{}{
		{
			"id":        float64(5),
			"title":     "Mystery House",
			"genres":    []interface{}{"Horror"},
			"comments":  []interface{}{"Great read", "Scary"},
			"img_src":   "images/5.jpg",
			"book_path": "books/5. Mystery House.txt",
		},
		{
			"id":       float64(6),
			"title":    "No Text <b>",
			"author":   "Jane Doe",
			"genres":   []interface{}{},
			"comments": nil,
		},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("store mismatch (-want +got):\n%s", diff)
	}

	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "<b>") {
		t.Fatalf("html must not be escaped: %s", raw)
	}

	ids, err := store.IDs()
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if diff := cmp.Diff([]int{5, 6}, ids); diff != "" {
		t.Fatalf("IDs() mismatch (-want +got):\n%s", diff)
	}
	if err := store.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestJSONStoreReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_list.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.Write([]*models.Book{{ID: 1, Title: "One", Genres: []string{}}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reopened, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	books, err := reopened.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(books) != 1 || books[0].Title != "One" {
		t.Fatalf("books = %v", books)
	}
}

func TestJSONStoreValidateRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_list.json")
	if err := os.WriteFile(path, []byte(`[{"id": 1,`), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Validate(); err == nil {
		t.Fatalf("expected validation error for corrupt store")
	}
	if _, err := store.Append([]*models.Book{{ID: 2, Title: "Two"}}); err == nil {
		t.Fatalf("append must not overwrite a corrupt store")
	}
}

func TestCSVIndexWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.csv")

	index, err := NewCSVIndex(path)
	if err != nil {
		t.Fatalf("create csv index: %v", err)
	}
	book := &models.Book{
		ID:        5,
		Title:     "Mystery House",
		Genres:    []string{"Horror", "Mystery"},
		TextPath:  "books/5. Mystery House.txt",
		ImagePath: "images/5.jpg",
	}
	if _, err := index.Write([]*models.Book{book}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := index.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	reopened, err := NewCSVIndex(path)
	if err != nil {
		t.Fatalf("reopen csv index: %v", err)
	}
	if _, err := reopened.Write([]*models.Book{{ID: 6, Title: "Other"}}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := [][]string{
		csvHeader,
		{"5", "Mystery House", "", "Horror; Mystery", "books/5. Mystery House.txt", "images/5.jpg"},
		{"6", "Other", "", "", "", ""},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "book_list.json")
	csvPath := filepath.Join(dir, "books.csv")

	writer, err := NewDualWriter(storePath, csvPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	books := []*models.Book{{ID: 1, Title: "One"}, {ID: 2, Title: "Two"}}
	if n, err := writer.Write(books); err != nil || n != 2 {
		t.Fatalf("write dual: n=%d err=%v", n, err)
	}
	if n, err := writer.Write(books[:1]); err != nil || n != 0 {
		t.Fatalf("duplicate write: n=%d err=%v", n, err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if got := readStore(t, storePath); len(got) != 2 {
		t.Fatalf("store records = %d, want 2", len(got))
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 3 {
		t.Fatalf("csv lines = %d, want 3", lines)
	}
}
