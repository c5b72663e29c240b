package mrf

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const maxDownloadRetries = 3

// downloadHTTP issues a GET against u, retrying transient failures with
// backoff, adapted from this org's npi-rates download helper: network
// errors and 5xx responses retry, 4xx responses do not (the request itself
// is wrong, retrying won't help).
func downloadHTTP(ctx context.Context, client *http.Client, u string) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= maxDownloadRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: HTTP %d", resp.StatusCode)
		} else if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, u)
		} else {
			return resp, nil
		}

		if attempt < maxDownloadRetries {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("downloading %s after %d attempts: %w", u, maxDownloadRetries, lastErr)
}

// newDownloadName returns a collision-free basename (no extension) for a
// file materialized into the downloads directory.
func newDownloadName() string {
	return uuid.NewString()
}
