package mrf

import "net/http"

// Config is the Orchestrator's configuration for one file, matching the
// configuration inputs named in SPEC_FULL.md §6.
type Config struct {
	// URL is the file's source identifier (local path or http(s) URL).
	URL string
	// File overrides the identifier used to compute filename/filename_hash;
	// defaults to URL.
	File string
	// OutDir is where the seven CSV tables are written/appended.
	OutDir string
	// DownloadsDir holds zip extractions; must exist or be creatable.
	DownloadsDir string

	CodeFilter CodeFilter
	NPIFilter  NPIFilter

	// ResolverWorkers bounds the Reference Resolver's concurrent fetch pool.
	// Zero selects the recommended default (300).
	ResolverWorkers int

	// HTTPClient is shared by the Input Source and Reference Resolver. A nil
	// value selects a default client tuned for long-lived MRF downloads.
	HTTPClient *http.Client

	// UseParallelGzip selects klauspost/pgzip over stdlib compress/gzip for
	// .json.gz decompression. The zero value (false) selects compress/gzip.
	UseParallelGzip bool

	// OnDebug, if set, receives every point SPEC_FULL.md §7 calls out as a
	// debug-log site (transient fetch failures, skip decisions, per-code
	// write confirmations). Nil discards them silently.
	OnDebug func(format string, args ...any)
}

func (c *Config) debugf(format string, args ...any) {
	if c.OnDebug != nil {
		c.OnDebug(format, args...)
	}
}

func (c *Config) resolverWorkers() int {
	if c.ResolverWorkers > 0 {
		return c.ResolverWorkers
	}
	return 300
}

func (c *Config) file() string {
	if c.File != "" {
		return c.File
	}
	return c.URL
}
