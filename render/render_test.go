package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

func makeBooks(n int) []*models.Book {
	books := make([]*models.Book, n)
	for i := range books {
		books[i] = &models.Book{ID: i + 1, Title: fmt.Sprintf("Book %d", i+1), Genres: []string{}}
	}
	return books
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		total     int
		wantPages int
		wantLast  int
	}{
		{total: 0, wantPages: 0},
		{total: 1, wantPages: 1, wantLast: 1},
		{total: 20, wantPages: 1, wantLast: 20},
		{total: 21, wantPages: 2, wantLast: 1},
		{total: 45, wantPages: 3, wantLast: 5},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_books", tt.total), func(t *testing.T) {
			books := makeBooks(tt.total)
			pages := Paginate(books, PageSize)
			if len(pages) != tt.wantPages {
				t.Fatalf("pages = %d, want %d", len(pages), tt.wantPages)
			}
			if tt.wantPages == 0 {
				return
			}
			if got := len(pages[len(pages)-1]); got != tt.wantLast {
				t.Fatalf("last page size = %d, want %d", got, tt.wantLast)
			}

			next := 1
			for _, page := range pages {
				for _, book := range page {
					if book.ID != next {
						t.Fatalf("order broken: got id %d, want %d", book.ID, next)
					}
					next++
				}
			}
		})
	}
}

func TestRenderSite(t *testing.T) {
	books := makeBooks(21)
	books[0] = &models.Book{
		ID:        5,
		Title:     "Mystery <House>",
		Genres:    []string{"Horror"},
		ImagePath: "images/5.jpg",
		TextPath:  "books/5. Mystery House.txt",
	}

	r, err := NewRenderer("", PageSize)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out := t.TempDir()
	written, err := r.RenderSite(books, out)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("pages written = %d, want 2", len(written))
	}

	first, err := os.ReadFile(filepath.Join(out, PagesDir, "index1.html"))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	html := string(first)
	for _, want := range []string{
		`src="../images/5.jpg"`,
		`href="../books/5.%20Mystery%20House.txt"`,
		`Mystery &lt;House&gt;`,
		`href="index2.html"`,
		`Horror`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page 1 missing %q", want)
		}
	}
	if strings.Contains(html, "Book 21") {
		t.Errorf("page 1 must hold only the first %d books", PageSize)
	}

	second, err := os.ReadFile(filepath.Join(out, PagesDir, "index2.html"))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	if !strings.Contains(string(second), "Book 21") || !strings.Contains(string(second), `href="index1.html"`) {
		t.Errorf("page 2 content unexpected:\n%s", second)
	}
}

func TestRenderSiteLinksIntoAssetDir(t *testing.T) {
	base := t.TempDir()
	books := []*models.Book{{
		ID:        5,
		Title:     "Mystery House",
		Genres:    []string{},
		ImagePath: "covers/5.jpg",
		TextPath:  "texts/5. Mystery House.txt",
	}}

	r, err := NewRenderer("", PageSize)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	r.WithAssetDir(filepath.Join(base, "data"))
	out := filepath.Join(base, "site")
	if _, err := r.RenderSite(books, out); err != nil {
		t.Fatalf("render: %v", err)
	}

	page, err := os.ReadFile(filepath.Join(out, PagesDir, "index1.html"))
	if err != nil {
		t.Fatalf("read page: %v", err)
	}
	for _, want := range []string{
		`src="../../data/covers/5.jpg"`,
		`href="../../data/texts/5.%20Mystery%20House.txt"`,
	} {
		if !strings.Contains(string(page), want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
}

func TestRenderSiteEmptyStore(t *testing.T) {
	r, err := NewRenderer("", PageSize)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	written, err := r.RenderSite(nil, t.TempDir())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("pages written = %d, want 1", len(written))
	}
}

func TestLoadBooks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book_list.json")
	content := `[{"id": 5, "title": "Mystery House", "genres": ["Horror"], "comments": null, "img_src": "images/5.jpg"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	books, err := LoadBooks(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(books) != 1 || books[0].ImagePath != "images/5.jpg" || books[0].Comments != nil {
		t.Fatalf("unexpected books: %+v", books[0])
	}
}
