package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

// ErrExtraction marks a detail page that exists but lacks a required field.
var ErrExtraction = errors.New("extraction failed")

// titleSeparator splits "Title :: Author" in the page heading.
const titleSeparator = "::"

// Extract parses a detail page into a partial book. Only the title is
// required; author, cover, comments and genres may be missing.
func Extract(markup []byte, pageURL *url.URL) (*models.Book, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", ErrExtraction, err)
	}

	title, author, err := TitleAuthor(doc)
	if err != nil {
		return nil, err
	}

	return &models.Book{
		Title:    title,
		Author:   author,
		ImageURL: CoverURL(doc, pageURL),
		Comments: Comments(doc),
		Genres:   Genres(doc),
	}, nil
}

// TitleAuthor reads the leading h1: the title is the text before the
// separator, the author is the nested link.
func TitleAuthor(doc *goquery.Document) (string, string, error) {
	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return "", "", fmt.Errorf("%w: no heading", ErrExtraction)
	}

	author := NormalizeText(heading.Find("a").First().Text())
	text := heading.Text()

	var title string
	if before, _, found := strings.Cut(text, titleSeparator); found {
		title = before
	} else {
		title = text
		if author != "" {
			title = strings.TrimSuffix(NormalizeText(title), author)
		}
	}

	title = NormalizeText(title)
	if title == "" {
		return "", "", fmt.Errorf("%w: empty title", ErrExtraction)
	}
	return title, author, nil
}

// CoverURL resolves the cover image inside the .bookimage container
// against pageURL. It returns "" when the page has no cover.
func CoverURL(doc *goquery.Document, pageURL *url.URL) string {
	src, ok := doc.Find(".bookimage img").First().Attr("src")
	src = strings.TrimSpace(src)
	if !ok || src == "" {
		return ""
	}
	if pageURL == nil {
		return src
	}
	resolved, err := pageURL.Parse(src)
	if err != nil {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

// Comments returns the span text of every .texts block, or nil when the page
// has no comment section at all.
func Comments(doc *goquery.Document) []string {
	blocks := doc.Find(".texts")
	if blocks.Length() == 0 {
		return nil
	}

	comments := make([]string, 0, blocks.Length())
	blocks.Each(func(_ int, block *goquery.Selection) {
		span := block.Find("span").First()
		if span.Length() == 0 {
			return
		}
		if text := strings.TrimSpace(span.Text()); text != "" {
			comments = append(comments, text)
		}
	})
	return comments
}

// Genres returns the link texts inside span.d_book; never nil.
func Genres(doc *goquery.Document) []string {
	genres := []string{}
	doc.Find("span.d_book").First().Find("a").Each(func(_ int, link *goquery.Selection) {
		if text := NormalizeText(link.Text()); text != "" {
			genres = append(genres, text)
		}
	})
	return genres
}
