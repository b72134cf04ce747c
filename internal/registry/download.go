package registry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

// Downloader fetches protocol files into a directory, limited to a fixed
// number of requests per second.
type Downloader struct {
	dir        string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewDownloader returns a downloader writing into dir. perSecond <= 0 means
// no limit.
func NewDownloader(dir string, perSecond float64, log *slog.Logger) *Downloader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Downloader{
		dir:        dir,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log,
	}
}

// Download saves rawURL under the downloader's directory, named by the last
// URL path segment, and returns the local path.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("download %s: url has no file name", rawURL)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	dest := filepath.Join(d.dir, name)
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write %s: %w", dest, err)
	}

	d.log.Info("downloaded protocol", "url", rawURL, "path", dest, "bytes", n)
	return dest, nil
}
