package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
)

func printSummary(out io.Writer, cfg *config.Config, result *models.ScraperResult, duration time.Duration, metrics map[string]interface{}) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Acquisition complete")
	t.AppendHeader(table.Row{"Metric", "Value"})

	unit := "Pages committed"
	if cfg.ByID {
		unit = "Batches committed"
	}
	t.AppendRows([]table.Row{
		{"Run ID", result.RunID},
		{unit, result.PageCount},
		{"Records stored", result.StoredCount},
	})

	for _, key := range sortedKeys(result.Outcomes) {
		t.AppendRow(table.Row{"Outcome: " + key, result.Outcomes[key]})
	}

	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Requests", result.RequestCount},
		{"Retries", result.RetryCount},
	})
	for _, key := range sortedKeys(result.ErrorsByType) {
		t.AppendRow(table.Row{"Error: " + key, result.ErrorsByType[key]})
	}
	if len(result.FailedPages) > 0 {
		t.AppendRow(table.Row{"Failed pages", fmt.Sprint(result.FailedPages)})
	}
	if result.CatalogEndPage > 0 {
		t.AppendRow(table.Row{"Catalogue ended at page", result.CatalogEndPage})
	}
	if validation, ok := metrics["validation_errors"].(map[string]int); ok {
		for _, key := range sortedKeys(validation) {
			t.AppendRow(table.Row{"Dropped: " + key, validation[key]})
		}
	}

	t.AppendSeparator()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.StoredCount) / duration.Seconds()
	}
	t.AppendRows([]table.Row{
		{"Duration", duration.Round(time.Millisecond)},
		{"Records/sec", fmt.Sprintf("%.2f", itemsPerSec)},
		{"Store", cfg.StorePath()},
	})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
