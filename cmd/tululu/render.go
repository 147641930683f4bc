package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-tululu/render"
)

var renderOpts struct {
	template string
	outDir   string
	pageSize int
	serve    string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Builds the static catalogue site from the JSON store.",
	Args:  cobra.NoArgs,
	RunE:  runRender,
}

func init() {
	flags := renderCmd.Flags()
	flags.StringVar(&renderOpts.template, "template", "", "HTML template file, the built-in one when empty")
	flags.StringVar(&renderOpts.outDir, "out", "", "Site directory, defaults to --dest; links point back into --dest")
	flags.IntVar(&renderOpts.pageSize, "page-size", render.PageSize, "Books per page")
	flags.StringVar(&renderOpts.serve, "serve", "", "Serve the site on this address after rendering (e.g. :8000)")
}

func runRender(cmd *cobra.Command, args []string) error {
	outDir := renderOpts.outDir
	if outDir == "" {
		outDir = cfg.DestDir
	}

	books, err := render.LoadBooks(cfg.StorePath())
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(renderOpts.template, renderOpts.pageSize)
	if err != nil {
		return err
	}
	r.WithAssetDir(cfg.DestDir)
	if _, err := r.RenderSite(books, outDir); err != nil {
		return fmt.Errorf("rendering site: %w", err)
	}

	if renderOpts.serve == "" {
		return nil
	}
	return serveSite(cmd.Context(), renderOpts.serve, outDir)
}

func serveSite(parent context.Context, addr, dir string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           http.FileServer(http.Dir(dir)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving site", slog.String("addr", addr), slog.String("index", "/"+render.PagesDir+"/index1.html"))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
