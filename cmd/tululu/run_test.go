package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

func TestApplyRange(t *testing.T) {
	tests := []struct {
		name      string
		byID      bool
		args      []string
		wantStart int
		wantEnd   int
		wantErr   bool
	}{
		{name: "no args keeps pages", args: nil, wantStart: 1, wantEnd: 10},
		{name: "pages", args: []string{"3", "7"}, wantStart: 3, wantEnd: 7},
		{name: "single page extends end", args: []string{"12"}, wantStart: 12, wantEnd: 12},
		{name: "ids", byID: true, args: []string{"5", "9"}, wantStart: 5, wantEnd: 9},
		{name: "not a number", args: []string{"x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.ByID = tt.byID
			err := applyRange(cfg, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			start, end := cfg.StartPage, cfg.EndPage
			if tt.byID {
				start, end = cfg.StartID, cfg.EndID
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Fatalf("range = [%d, %d], want [%d, %d]", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DestDir = "/data"
	result := &models.ScraperResult{
		RunID:          "run-1",
		PageCount:      2,
		StoredCount:    3,
		Outcomes:       map[string]int{"complete": 3, "not_found": 1},
		ErrorsByType:   map[string]int{"retries_exhausted": 1},
		FailedPages:    []int{4},
		CatalogEndPage: 5,
	}

	var out bytes.Buffer
	printSummary(&out, cfg, result, time.Second, map[string]interface{}{
		"validation_errors": map[string]int{"duplicate_id": 2},
	})

	text := out.String()
	for _, want := range []string{"run-1", "Outcome: complete", "Error: retries_exhausted", "[4]", "Dropped: duplicate_id", "/data/book_list.json"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
