package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-tululu/models"
)

var digitRun = regexp.MustCompile(`\d+`)

// ValidateBook ensures the scraper captured the required fields.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if b.ID <= 0 {
		return fmt.Errorf("book %q has no id", b.Title)
	}
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book %d missing title", b.ID)
	}
	return nil
}

// NormalizeText collapses runs of whitespace, non-breaking spaces included.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeBook cleans the free-text fields of b in place.
func NormalizeBook(b *models.Book) {
	b.Title = NormalizeText(b.Title)
	b.Author = NormalizeText(b.Author)

	genres := make([]string, 0, len(b.Genres))
	for _, genre := range b.Genres {
		if genre = NormalizeText(genre); genre != "" {
			genres = append(genres, genre)
		}
	}
	b.Genres = genres

	if b.Comments != nil {
		comments := make([]string, 0, len(b.Comments))
		for _, comment := range b.Comments {
			if comment = strings.TrimSpace(comment); comment != "" {
				comments = append(comments, comment)
			}
		}
		b.Comments = comments
	}
}

// BookIDFromHref returns the first run of digits in the path of href.
func BookIDFromHref(href string) (int, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, false
	}
	match := digitRun.FindString(u.Path)
	if match == "" {
		return 0, false
	}
	id, err := strconv.Atoi(match)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
