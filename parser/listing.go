package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var detailPath = regexp.MustCompile(`(?:^|/)b\d+/?$`)

// ParseListing returns the item IDs of a listing page in page order, without
// duplicates. A page with no item rows yields an empty slice.
func ParseListing(markup []byte) ([]int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse listing html: %w", err)
	}

	ids := []int{}
	seen := make(map[int]struct{})
	doc.Find("table.d_book").Each(func(_ int, row *goquery.Selection) {
		href, ok := detailLink(row)
		if !ok {
			return
		}
		id, ok := BookIDFromHref(href)
		if !ok {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	})
	return ids, nil
}

func detailLink(row *goquery.Selection) (string, bool) {
	var href string
	row.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		candidate, _ := link.Attr("href")
		if detailPath.MatchString(strings.TrimSpace(candidate)) {
			href = candidate
			return false
		}
		return true
	})
	if href != "" {
		return href, true
	}

	row.Find("a[title]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		title, _ := link.Attr("title")
		if strings.Contains(strings.ToLower(title), "читать") {
			href, _ = link.Attr("href")
			return false
		}
		return true
	})
	return href, href != ""
}
