// Package render turns the record store into a paginated static site.
package render

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-tululu/artifacts"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

// PageSize is the number of books per rendered page.
const PageSize = 20

//go:embed templates/index.html
var defaultTemplate string

// PagesDir is the site subdirectory holding the rendered pages.
const PagesDir = "pages"

// Paginate splits books into consecutive chunks of size, preserving order.
// It yields ceil(len(books)/size) pages.
func Paginate(books []*models.Book, size int) [][]*models.Book {
	if size <= 0 {
		size = PageSize
	}
	pages := make([][]*models.Book, 0, (len(books)+size-1)/size)
	for start := 0; start < len(books); start += size {
		end := min(start+size, len(books))
		pages = append(pages, books[start:end])
	}
	return pages
}

// BookView is what a template sees for one book. Paths are relative to the
// pages directory.
type BookView struct {
	Title    string
	Author   string
	Genres   []string
	ImageSrc string
	TextPath string
}

// Page is the template input for one rendered page.
type Page struct {
	Number int
	Books  []BookView
	Pages  []int
	Prev   int
	Next   int
}

// LoadBooks reads the record store at filename.
func LoadBooks(filename string) ([]*models.Book, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	var books []*models.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return nil, fmt.Errorf("decode store %s: %w", filename, err)
	}
	return books, nil
}

// Renderer writes pages with a parsed template.
type Renderer struct {
	tmpl     *template.Template
	pageSize int
	assetDir string
}

// NewRenderer parses the built-in template, or the file at templatePath when
// it is not empty.
func NewRenderer(templatePath string, pageSize int) (*Renderer, error) {
	text := defaultTemplate
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return nil, fmt.Errorf("read template: %w", err)
		}
		text = string(data)
	}

	tmpl, err := template.New("index").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if pageSize <= 0 {
		pageSize = PageSize
	}
	return &Renderer{tmpl: tmpl, pageSize: pageSize}, nil
}

// WithAssetDir sets the directory that stored img_src and book_path values
// are relative to. By default it is the site directory itself.
func (r *Renderer) WithAssetDir(dir string) {
	r.assetDir = dir
}

// RenderSite writes outDir/pages/index{N}.html for every page and returns
// the written paths. An empty store still produces one page.
func (r *Renderer) RenderSite(books []*models.Book, outDir string) ([]string, error) {
	chunks := Paginate(books, r.pageSize)
	if len(chunks) == 0 {
		chunks = [][]*models.Book{{}}
	}

	root, err := r.assetRoot(outDir)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, len(chunks))
	for i := range chunks {
		numbers[i] = i + 1
	}

	written := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		page := Page{
			Number: i + 1,
			Books:  views(chunk, root),
			Pages:  numbers,
		}
		if i > 0 {
			page.Prev = i
		}
		if i+1 < len(chunks) {
			page.Next = i + 2
		}

		var buf bytes.Buffer
		if err := r.tmpl.Execute(&buf, page); err != nil {
			return written, fmt.Errorf("render page %d: %w", page.Number, err)
		}

		target := filepath.Join(outDir, PagesDir, fmt.Sprintf("index%d.html", page.Number))
		if err := artifacts.WriteFileAtomic(target, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, target)
	}

	slog.Info("site rendered", slog.Int("books", len(books)), slog.Int("pages", len(written)), slog.String("dir", outDir))
	return written, nil
}

// assetRoot is the slash path from the pages directory to the asset directory.
func (r *Renderer) assetRoot(outDir string) (string, error) {
	if r.assetDir == "" {
		return "..", nil
	}
	pagesDir, err := filepath.Abs(filepath.Join(outDir, PagesDir))
	if err != nil {
		return "", fmt.Errorf("resolve pages dir: %w", err)
	}
	assetDir, err := filepath.Abs(r.assetDir)
	if err != nil {
		return "", fmt.Errorf("resolve asset dir: %w", err)
	}
	rel, err := filepath.Rel(pagesDir, assetDir)
	if err != nil {
		return "", fmt.Errorf("relate asset dir to %s: %w", pagesDir, err)
	}
	return filepath.ToSlash(rel), nil
}

func views(books []*models.Book, root string) []BookView {
	out := make([]BookView, 0, len(books))
	for _, book := range books {
		view := BookView{
			Title:  book.Title,
			Author: book.Author,
			Genres: book.Genres,
		}
		if book.ImagePath != "" {
			view.ImageSrc = path.Join(root, filepath.ToSlash(book.ImagePath))
		}
		if book.TextPath != "" {
			view.TextPath = path.Join(root, filepath.ToSlash(book.TextPath))
		}
		out = append(out, view)
	}
	return out
}
