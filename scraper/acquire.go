package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-tululu/artifacts"
	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetcher"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// Outcome labels what happened to one item.
type Outcome string

const (
	OutcomeComplete         Outcome = "complete"
	OutcomePartial          Outcome = "partial"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeTransient        Outcome = "transient"
	OutcomeHTTPError        Outcome = "http_error"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeTextMissing      Outcome = "text_missing"
	OutcomeAlreadyStored    Outcome = "already_stored"
)

// Result is the acquisition verdict for one item. Book is nil unless the
// record should be persisted.
type Result struct {
	ID      int
	Book    *models.Book
	Outcome Outcome
	Cause   error
}

// Acquirer runs probe, extraction and downloads for a single item.
type Acquirer struct {
	cfg        *config.Config
	client     artifacts.Fetcher
	downloader *artifacts.Downloader
	metrics    *metrics.Metrics
}

// NewAcquirer wires an acquirer.
func NewAcquirer(cfg *config.Config, client artifacts.Fetcher, downloader *artifacts.Downloader, m *metrics.Metrics) *Acquirer {
	return &Acquirer{cfg: cfg, client: client, downloader: downloader, metrics: m}
}

// DetailURL is the catalogue page of item id.
func DetailURL(base string, id int) string {
	return fmt.Sprintf("%s/b%d/", base, id)
}

// Acquire fetches item id and its artifacts. The error is reserved for local
// filesystem failures and cancellation; every remote failure is folded into
// the returned Outcome.
func (a *Acquirer) Acquire(ctx context.Context, id int) (Result, error) {
	res, err := a.acquire(ctx, id)
	if err != nil {
		return res, err
	}

	a.metrics.IncItem(string(res.Outcome))
	attrs := []any{slog.Int("id", id), slog.String("outcome", string(res.Outcome))}
	if res.Book != nil {
		attrs = append(attrs, slog.String("title", res.Book.Title))
	}
	if res.Cause != nil {
		attrs = append(attrs, slog.Any("cause", res.Cause))
	}
	switch res.Outcome {
	case OutcomeComplete:
		slog.Info("item acquired", attrs...)
	case OutcomeNotFound:
		slog.Debug("item not found", attrs...)
	default:
		slog.Warn("item incomplete", attrs...)
	}
	return res, nil
}

func (a *Acquirer) acquire(ctx context.Context, id int) (Result, error) {
	res := Result{ID: id}

	resp, err := a.client.FetchExisting(ctx, DetailURL(a.cfg.BaseURLTrimmed(), id), nil)
	if err != nil {
		if isCanceled(err) {
			return res, err
		}
		res.Outcome, res.Cause = remoteOutcome(err), err
		return res, nil
	}

	book, err := parser.Extract(resp.Body, resp.URL)
	if err != nil {
		res.Outcome, res.Cause = OutcomeExtractionFailed, err
		return res, nil
	}
	book.ID = id
	res.Outcome = OutcomeComplete

	if !a.cfg.SkipText {
		text, err := a.downloader.DownloadText(ctx, id, book.Title)
		switch {
		case err == nil:
			book.TextPath = text.Path
		case fetcher.IsNotFound(err):
			res.Outcome, res.Cause = OutcomeTextMissing, err
			return res, nil
		case artifacts.IsIO(err), isCanceled(err):
			return res, err
		default:
			res.Outcome, res.Cause = OutcomePartial, err
		}
	}

	if !a.cfg.SkipImages && book.ImageURL != "" {
		image, err := a.downloader.DownloadImage(ctx, book.ImageURL)
		switch {
		case err == nil:
			book.ImagePath = image.Path
		case artifacts.IsIO(err), isCanceled(err):
			return res, err
		default:
			slog.Warn("cover download failed", slog.Int("id", id), slog.String("url", book.ImageURL), slog.Any("error", err))
			if res.Cause == nil {
				res.Outcome, res.Cause = OutcomePartial, err
			}
		}
	}

	if a.cfg.SaveComments {
		if _, err := a.downloader.SaveComments(id, book.Comments); err != nil {
			return res, err
		}
	}

	res.Book = book
	return res, nil
}

func remoteOutcome(err error) Outcome {
	switch {
	case fetcher.IsNotFound(err):
		return OutcomeNotFound
	case fetcher.IsExhausted(err):
		return OutcomeTransient
	default:
		return OutcomeHTTPError
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && !fetcher.IsExhausted(err))
}

func causeLabel(err error) string {
	if errors.Is(err, parser.ErrExtraction) {
		return "extraction"
	}
	return fetcher.ErrorTypeLabel(err)
}
