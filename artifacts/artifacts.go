// Package artifacts downloads item texts and cover images into the
// destination tree and skips anything already on disk.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-tululu/config"
	"github.com/aluiziolira/go-scrape-tululu/fetcher"
	"github.com/aluiziolira/go-scrape-tululu/metrics"
	"github.com/aluiziolira/go-scrape-tululu/parser"
)

// Fetcher is the subset of the HTTP client the downloader needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) (*fetcher.Response, error)
	FetchExisting(ctx context.Context, rawURL string, query url.Values) (*fetcher.Response, error)
}

// Artifact is a file stored under the destination directory.
type Artifact struct {
	// Path is relative to the destination directory and uses forward slashes.
	Path string
	// Cached is set when the file was already present and no request was made.
	Cached bool
}

// ErrIO wraps a local filesystem failure.
type ErrIO struct {
	Op   string
	Path string
	Err  error
}

func (e ErrIO) Error() string {
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e ErrIO) Unwrap() error {
	return e.Err
}

// IsIO reports whether err is a local filesystem failure.
func IsIO(err error) bool {
	var ioErr ErrIO
	return errors.As(err, &ioErr)
}

// ErrNoFilename is returned for an image URL without a usable last segment.
var ErrNoFilename = errors.New("image url has no file name")

// Downloader saves text bodies, cover images and comment files.
type Downloader struct {
	cfg     *config.Config
	client  Fetcher
	metrics *metrics.Metrics
}

// NewDownloader wires a downloader to client.
func NewDownloader(cfg *config.Config, client Fetcher, m *metrics.Metrics) *Downloader {
	return &Downloader{cfg: cfg, client: client, metrics: m}
}

// TextFilename is the on-disk name of an item text.
func TextFilename(id int, title string) string {
	return parser.SanitizeFilename(fmt.Sprintf("%d. %s", id, title)) + ".txt"
}

// ImageFilename is the on-disk name of a cover image: the sanitised last
// path segment of imageURL.
func ImageFilename(imageURL string) (string, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "", fmt.Errorf("parse image url %q: %w", imageURL, err)
	}
	base := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	name := parser.SanitizeFilename(base)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: %s", ErrNoFilename, imageURL)
	}
	return name, nil
}

// DownloadText stores the text body of item id. An existing file is reused
// without a request. A redirect from the text endpoint comes back as
// fetcher.ErrNotFound.
func (d *Downloader) DownloadText(ctx context.Context, id int, title string) (Artifact, error) {
	rel := d.relPath(d.cfg.BooksDir, TextFilename(id, title))
	if cached, err := d.exists(rel); err != nil || cached {
		if cached {
			d.metrics.IncArtifact("text", "cached")
		}
		return Artifact{Path: rel, Cached: cached}, err
	}

	textURL := d.cfg.BaseURLTrimmed() + "/txt.php"
	resp, err := d.client.FetchExisting(ctx, textURL, url.Values{"id": {strconv.Itoa(id)}})
	if err != nil {
		d.metrics.IncArtifact("text", fetcher.ErrorTypeLabel(err))
		return Artifact{}, err
	}

	if err := d.write(rel, resp.Body); err != nil {
		return Artifact{}, err
	}
	d.metrics.IncArtifact("text", "downloaded")
	slog.Debug("text saved", slog.Int("id", id), slog.String("path", rel), slog.Int("bytes", len(resp.Body)))
	return Artifact{Path: rel}, nil
}

// DownloadImage stores the cover at imageURL, following redirects. Bytes
// are written verbatim.
func (d *Downloader) DownloadImage(ctx context.Context, imageURL string) (Artifact, error) {
	name, err := ImageFilename(imageURL)
	if err != nil {
		d.metrics.IncArtifact("image", "invalid_url")
		return Artifact{}, err
	}

	rel := d.relPath(d.cfg.ImagesDir, name)
	if cached, err := d.exists(rel); err != nil || cached {
		if cached {
			d.metrics.IncArtifact("image", "cached")
		}
		return Artifact{Path: rel, Cached: cached}, err
	}

	resp, err := d.client.Fetch(ctx, imageURL, fetcher.Options{FollowRedirects: true})
	if err != nil {
		d.metrics.IncArtifact("image", fetcher.ErrorTypeLabel(err))
		return Artifact{}, err
	}

	if err := d.write(rel, resp.Body); err != nil {
		return Artifact{}, err
	}
	d.metrics.IncArtifact("image", "downloaded")
	return Artifact{Path: rel}, nil
}

// SaveComments writes one comment per line to comments/{id}_comments.txt.
// Nothing is written for an item without comments.
func (d *Downloader) SaveComments(id int, comments []string) (Artifact, error) {
	if len(comments) == 0 {
		return Artifact{}, nil
	}

	rel := d.relPath(d.cfg.CommentsDir, fmt.Sprintf("%d_comments.txt", id))
	if cached, err := d.exists(rel); err != nil || cached {
		return Artifact{Path: rel, Cached: cached}, err
	}

	body := strings.Join(comments, "\n") + "\n"
	if err := d.write(rel, []byte(body)); err != nil {
		return Artifact{}, err
	}
	d.metrics.IncArtifact("comments", "written")
	return Artifact{Path: rel}, nil
}

func (d *Downloader) relPath(dir, name string) string {
	return filepath.ToSlash(filepath.Join(dir, name))
}

func (d *Downloader) absPath(rel string) string {
	return filepath.Join(d.cfg.DestDir, filepath.FromSlash(rel))
}

func (d *Downloader) exists(rel string) (bool, error) {
	target := d.absPath(rel)
	info, err := os.Stat(target)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, ErrIO{Op: "stat", Path: target, Err: err}
	}
}

func (d *Downloader) write(rel string, data []byte) error {
	return WriteFileAtomic(d.absPath(rel), data)
}

// WriteFileAtomic writes data to a temp file next to target and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ErrIO{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return ErrIO{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return ErrIO{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return ErrIO{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ErrIO{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return ErrIO{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return ErrIO{Op: "rename", Path: target, Err: err}
	}
	return nil
}
