package mrf

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	pgzip "github.com/klauspost/pgzip"
)

// Suffix is one of the three recognized Input Source suffixes.
type Suffix int

const (
	SuffixJSON Suffix = iota
	SuffixJSONGZ
	SuffixZip
)

// DetectSuffix case-insensitively matches identifier's trailing suffix.
func DetectSuffix(identifier string) (Suffix, error) {
	lower := strings.ToLower(identifier)
	// strip a query string, if any, before suffix matching.
	if idx := strings.IndexByte(lower, '?'); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, ".json.gz"):
		return SuffixJSONGZ, nil
	case strings.HasSuffix(lower, ".json"):
		return SuffixJSON, nil
	case strings.HasSuffix(lower, ".zip"):
		return SuffixZip, nil
	default:
		return 0, newError(InvalidInput, "unrecognized suffix for %q", identifier)
	}
}

func isRemote(identifier string) bool {
	u, err := url.Parse(identifier)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Input is an opened byte stream positioned at JSON byte 0, plus its close
// action (SPEC_FULL.md §4.1's "return a readable byte stream ... and a close
// action").
type Input struct {
	Reader  io.Reader
	closers []func() error
}

// Close runs every close action registered while opening this Input, in
// reverse order (innermost wrapper first), deleting any zip extraction.
func (in *Input) Close() error {
	var firstErr error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (in *Input) defer_(f func() error) { in.closers = append(in.closers, f) }

// httpClient returns cfg.HTTPClient, or a default tuned the way this
// org's MRF download helper tunes one: generous idle-connection limits and a
// long overall timeout, since MRFs can take hours to transfer.
func httpClient(cfg *Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: 3 * time.Hour,
	}
}

// OpenInput resolves cfg.file() to a readable byte stream per SPEC_FULL.md
// §4.1/§10: local or remote, .json/.json.gz/.zip, with zip fully buffered,
// extracted into cfg.DownloadsDir, and removed on Close.
func OpenInput(ctx context.Context, cfg *Config) (*Input, error) {
	identifier := cfg.file()
	suffix, err := DetectSuffix(identifier)
	if err != nil {
		return nil, err
	}

	if suffix == SuffixZip {
		return openZipInput(ctx, cfg, identifier)
	}

	if isRemote(identifier) {
		return openRemoteInput(ctx, cfg, identifier, suffix)
	}
	return openLocalInput(cfg, identifier, suffix)
}

func openLocalInput(cfg *Config, path string, suffix Suffix) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mrf: opening local input %s: %w", path, err)
	}
	in := &Input{}
	in.defer_(f.Close)

	if suffix == SuffixJSONGZ {
		gz, err := newGzipReader(f, cfg.UseParallelGzip)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mrf: opening gzip reader for %s: %w", path, err)
		}
		in.defer_(gz.Close)
		in.Reader = gz
		return in, nil
	}
	in.Reader = f
	return in, nil
}

func openRemoteInput(ctx context.Context, cfg *Config, u string, suffix Suffix) (*Input, error) {
	resp, err := downloadHTTP(ctx, httpClient(cfg), u)
	if err != nil {
		return nil, fmt.Errorf("mrf: downloading %s: %w", u, err)
	}
	in := &Input{}
	in.defer_(resp.Body.Close)

	if suffix == SuffixJSONGZ {
		// The body is the raw gzip payload itself, not something the
		// transport's Content-Encoding handling would touch — wrap it
		// ourselves.
		gz, err := newGzipReader(resp.Body, cfg.UseParallelGzip)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("mrf: opening gzip reader for %s: %w", u, err)
		}
		in.defer_(gz.Close)
		in.Reader = gz
		return in, nil
	}
	// Plain .json: the net/http transport already decodes a gzip
	// Content-Encoding transparently when we haven't set Accept-Encoding
	// ourselves, so resp.Body is already plaintext JSON either way.
	in.Reader = resp.Body
	return in, nil
}

// openZipInput downloads u (or reads it locally) in full, extracts its
// single JSON member into cfg.DownloadsDir, and reopens that member as a
// local .json/.json.gz input. Zip's central directory sits at the end of the
// archive, so a zip source cannot be streamed the way .json/.json.gz can —
// it must be fully materialized before extraction, per SPEC_FULL.md §10.
func openZipInput(ctx context.Context, cfg *Config, identifier string) (*Input, error) {
	var body []byte
	var err error
	if isRemote(identifier) {
		var resp *http.Response
		resp, err = downloadHTTP(ctx, httpClient(cfg), identifier)
		if err != nil {
			return nil, fmt.Errorf("mrf: downloading zip %s: %w", identifier, err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
	} else {
		body, err = os.ReadFile(identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("mrf: reading zip %s: %w", identifier, err)
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, newError(InvalidInput, "opening zip %s: %v", identifier, err)
	}
	if len(zr.File) != 1 {
		return nil, newError(InvalidInput, "zip %s must contain exactly one file, found %d", identifier, len(zr.File))
	}
	member := zr.File[0]

	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		return nil, fmt.Errorf("mrf: creating downloads dir %s: %w", cfg.DownloadsDir, err)
	}
	extractedPath := filepath.Join(cfg.DownloadsDir, newDownloadName()+filepath.Ext(member.Name))

	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("mrf: opening zip member %s: %w", member.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(extractedPath)
	if err != nil {
		return nil, fmt.Errorf("mrf: creating extracted file %s: %w", extractedPath, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(extractedPath)
		return nil, fmt.Errorf("mrf: extracting zip member %s: %w", member.Name, err)
	}
	out.Close()

	suffix, err := DetectSuffix(extractedPath)
	if err != nil {
		os.Remove(extractedPath)
		return nil, newError(InvalidInput, "zip %s's member %s has an unrecognized suffix", identifier, member.Name)
	}

	in, err := openLocalInput(cfg, extractedPath, suffix)
	if err != nil {
		os.Remove(extractedPath)
		return nil, err
	}
	in.defer_(func() error { return os.Remove(extractedPath) })
	return in, nil
}

func newGzipReader(r io.Reader, parallel bool) (io.ReadCloser, error) {
	if parallel {
		return pgzip.NewReader(r)
	}
	return gzip.NewReader(r)
}
