package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/models"
	"github.com/aluiziolira/go-scrape-tululu/pipeline"
	"github.com/aluiziolira/go-scrape-tululu/scraper"
)

func runAcquisition(cmd *cobra.Command, args []string) error {
	if err := applyRange(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, store, err := createWriter(cfg)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, finishing the current page")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.NewPipeline(writer, cfg, s.Metrics)
	if err != nil {
		return err
	}
	if cfg.SkipStored {
		ids, err := store.IDs()
		if err != nil {
			return fmt.Errorf("reading stored ids: %w", err)
		}
		p.Seed(ids)
		slog.Debug("store seeded", slog.Int("ids", len(ids)))
	}
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	slog.Info("starting acquisition",
		slog.String("run_id", s.RunID()),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("by_id", cfg.ByID),
		slog.Int("workers", cfg.Workers),
		slog.String("store", store.Path()),
	)

	startTime := time.Now()
	var result *models.ScraperResult
	var runErr error
	if cfg.ByID {
		result, runErr = s.RunIDs(ctx, p)
	} else {
		result, runErr = s.Run(ctx, p)
	}

	closeErr := p.Close()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil || closeErr != nil {
		if result != nil {
			printSummary(os.Stdout, cfg, result, time.Since(startTime), p.GetMetrics())
		}
		return errors.Join(runErr, closeErr)
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printSummary(os.Stdout, cfg, result, time.Since(startTime), p.GetMetrics())
	return nil
}

// applyRange maps the optional positional [start end] onto pages or IDs.
func applyRange(cfg *config.Config, args []string) error {
	bounds := make([]int, len(args))
	for i, arg := range args {
		value, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid range bound %q: %w", arg, err)
		}
		bounds[i] = value
	}

	start, end := &cfg.StartPage, &cfg.EndPage
	if cfg.ByID {
		start, end = &cfg.StartID, &cfg.EndID
	}
	switch len(bounds) {
	case 2:
		*start, *end = bounds[0], bounds[1]
	case 1:
		*start = bounds[0]
		if *end < *start {
			*end = *start
		}
	}
	return nil
}

func createWriter(cfg *config.Config) (pipeline.OutputWriter, *pipeline.JSONStore, error) {
	if indexPath := cfg.IndexPath(); indexPath != "" {
		dw, err := pipeline.NewDualWriter(cfg.StorePath(), indexPath)
		if err != nil {
			return nil, nil, err
		}
		return dw, dw.Store(), nil
	}

	store, err := pipeline.NewJSONStore(cfg.StorePath())
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}
