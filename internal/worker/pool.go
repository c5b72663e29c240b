package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gyeh/mrfflatten/internal/mrf"
	"github.com/gyeh/mrfflatten/internal/progress"
)

// FileResult is the outcome of flattening one URL.
type FileResult struct {
	URL string
	Err error
}

// Pool flattens many MRF URLs concurrently, each against its own Config
// (same filters and out_dir, distinct URL/File), bounded to Workers
// in-flight files at a time.
type Pool struct {
	Workers  int
	Base     mrf.Config
	Progress progress.Manager
}

// Run flattens every URL and returns one FileResult per input, in order.
func (p *Pool) Run(ctx context.Context, urls []string) []FileResult {
	results := make([]FileResult, len(urls))

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx] = FileResult{URL: u, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			var tracker progress.Tracker
			if p.Progress != nil {
				tracker = p.Progress.NewTracker(idx, len(urls), FileNameFromURL(u))
				tracker.SetStage("flattening")
			}

			cfg := p.Base
			cfg.URL = u
			cfg.File = ""
			cfg.OnDebug = func(format string, args ...any) {
				slog.Debug(fmt.Sprintf(format, args...))
			}

			err := mrf.ProcessFile(ctx, &cfg)
			results[idx] = FileResult{URL: u, Err: err}
			if tracker != nil {
				tracker.Done()
			}
		}(i, url)
	}

	wg.Wait()
	if p.Progress != nil {
		p.Progress.Wait()
	}
	return results
}
