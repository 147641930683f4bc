package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aluiziolira/go-scrape-tululu/config"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "tululu [start end]",
	Short: "Downloads books, covers and metadata from the tululu.org catalogue.",
	Long: `Walks the listing pages of a catalogue category (or, with --ids, a range of
book IDs), saves every book text and cover and appends the metadata to a JSON
store after each page.`,
	Args:              cobra.RangeArgs(0, 2),
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
	RunE:              runAcquisition,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file applied before environment and flags")
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Catalogue base URL")
	flags.StringVar(&cfg.DestDir, "dest", cfg.DestDir, "Destination directory for artifacts and the store")
	flags.StringVar(&cfg.StoreFile, "store", cfg.StoreFile, "JSON store file, relative to --dest")
	flags.StringVar(&cfg.IndexFile, "index", cfg.IndexFile, "Optional CSV index file, relative to --dest")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose logging")

	local := rootCmd.Flags()
	local.BoolVar(&cfg.ByID, "ids", cfg.ByID, "Walk book IDs instead of listing pages")
	local.IntVar(&cfg.CategoryID, "category", cfg.CategoryID, "Catalogue category to crawl")
	local.IntVar(&cfg.StartPage, "start-page", cfg.StartPage, "First listing page")
	local.IntVar(&cfg.EndPage, "end-page", cfg.EndPage, "Last listing page")
	local.IntVar(&cfg.StartID, "start-id", cfg.StartID, "First book ID in --ids mode")
	local.IntVar(&cfg.EndID, "end-id", cfg.EndID, "Last book ID in --ids mode")
	local.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "IDs per checkpoint in --ids mode")
	local.BoolVar(&cfg.StopAtCatalogEnd, "stop-at-end", cfg.StopAtCatalogEnd, "Stop when a listing page redirects")
	local.BoolVar(&cfg.SkipStored, "skip-stored", cfg.SkipStored, "Do not fetch books already in the store")
	local.IntVar(&cfg.Workers, "workers", cfg.Workers, "Books acquired concurrently within a page")
	local.StringVar(&cfg.BooksDir, "books-dir", cfg.BooksDir, "Text directory, relative to --dest")
	local.StringVar(&cfg.ImagesDir, "images-dir", cfg.ImagesDir, "Cover directory, relative to --dest")
	local.StringVar(&cfg.CommentsDir, "comments-dir", cfg.CommentsDir, "Comments directory, relative to --dest")
	local.BoolVar(&cfg.SkipText, "skip-txt", cfg.SkipText, "Do not download book texts")
	local.BoolVar(&cfg.SkipImages, "skip-imgs", cfg.SkipImages, "Do not download covers")
	local.BoolVar(&cfg.SaveComments, "save-comments", cfg.SaveComments, "Write comments to a file per book")
	local.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	local.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Attempts per request, first one included")
	local.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	local.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	local.Float64Var(&cfg.RequestsPerSecond, "rps", cfg.RequestsPerSecond, "Request rate limit, 0 disables")
	local.IntVar(&cfg.Burst, "burst", cfg.Burst, "Rate limiter burst")
	local.DurationVar(&cfg.Delay, "delay", cfg.Delay, "Delay between requests")
	local.DurationVar(&cfg.RandomDelay, "random-delay", cfg.RandomDelay, "Random jitter added to --delay")
	local.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header")
	local.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	local.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	rootCmd.AddCommand(renderCmd)
}

// prepare layers the config file and TULULU_* variables under the flags the
// user actually passed.
func prepare(cmd *cobra.Command, args []string) error {
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}

	slog.SetDefault(newLogger(cfg.Verbose))
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
