// Package models defines data structures for the scraper.
package models

import "time"

// Book is one catalogue item as persisted in the record store.
//
// Comments keeps nil and empty apart: nil means the page had no comment
// section and encodes as null.
type Book struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Author    string   `json:"author,omitempty"`
	Genres    []string `json:"genres"`
	Comments  []string `json:"comments"`
	ImagePath string   `json:"img_src,omitempty"`
	TextPath  string   `json:"book_path,omitempty"`

	// ImageURL is the resolved cover address; only the downloaded path is stored.
	ImageURL string `json:"-"`
}

// CatalogPage is one listing page and the item IDs found on it.
type CatalogPage struct {
	Number int
	IDs    []int
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	RunID          string
	StartTime      time.Time
	EndTime        time.Time
	PageCount      int
	StoredCount    int
	Outcomes       map[string]int
	ErrorsByType   map[string]int
	FailedPages    []int
	RetryCount     int
	RequestCount   int
	CatalogEndPage int
}
