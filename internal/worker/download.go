// Package worker drives many MRF files through internal/mrf concurrently,
// and gives internal/toc a shared HTTP download helper.
package worker

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
)

var httpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	},
	Timeout: 3 * time.Hour, // large files at slow CDN speeds can take over an hour
}

// DownloadHTTP performs an HTTP GET with exponential-backoff retries.
// Caller is responsible for closing resp.Body.
func DownloadHTTP(ctx context.Context, url string) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if reqErr != nil {
			return nil, fmt.Errorf("creating request: %w", reqErr)
		}

		resp, err = httpClient.Do(req)
		if err != nil {
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		resp.Body.Close()
		err = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, err // don't retry client errors
		}
	}

	return nil, fmt.Errorf("download failed after retries: %w", err)
}

// NewGzipReader opens a gzip decompression reader. parallel selects
// klauspost/pgzip over the single-threaded standard library implementation.
func NewGzipReader(r io.Reader, parallel bool) (io.ReadCloser, error) {
	if parallel {
		return pgzip.NewReader(r)
	}
	return gzip.NewReader(r)
}

// FileNameFromURL extracts a human-readable filename from a URL, ignoring
// any query string.
func FileNameFromURL(url string) string {
	path := url
	if idx := strings.IndexByte(url, '?'); idx >= 0 {
		path = url[:idx]
	}
	return filepath.Base(path)
}
