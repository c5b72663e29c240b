// Package toc resolves a Table-of-Contents file published alongside MRFs
// into the concrete in-network file URLs for one plan, so a batch run can
// discover what to flatten without the operator hand-collecting URLs.
package toc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gyeh/mrfflatten/internal/worker"
)

// ReportingPlan is one plan entry within a reporting structure.
type ReportingPlan struct {
	PlanName   string `json:"plan_name"`
	PlanIDType string `json:"plan_id_type"`
	PlanID     string `json:"plan_id"`
}

// InNetworkFile is an in-network MRF file reference in a TOC.
type InNetworkFile struct {
	Description string `json:"description"`
	Location    string `json:"location"`
}

// ResolveResult holds one TOC resolution's output.
type ResolveResult struct {
	ReportingEntityName string
	URLs                []string // deduplicated, insertion-ordered
	MatchedStructures    int
}

// ResolveTOC streams a TOC JSON document from r, collecting in-network MRF
// URLs for every reporting_structure whose reporting_plans contains planID
// (case-insensitive exact match). onStructure, if non-nil, is called with
// the running count of structures processed.
func ResolveTOC(r io.Reader, planID string, onStructure func(int)) (*ResolveResult, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading opening token: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected '{', got %v", tok)
	}

	result := &ResolveResult{}
	seen := map[string]struct{}{}
	planIDLower := []byte(strings.ToLower(planID))

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", tok)
		}

		switch key {
		case "reporting_entity_name":
			var name string
			if err := dec.Decode(&name); err != nil {
				return nil, fmt.Errorf("decoding reporting_entity_name: %w", err)
			}
			result.ReportingEntityName = name

		case "reporting_structure":
			if err := streamReportingStructure(dec, planID, planIDLower, result, seen, onStructure); err != nil {
				return nil, fmt.Errorf("streaming reporting_structure: %w", err)
			}

		default:
			if err := skipValue(dec); err != nil {
				return nil, fmt.Errorf("skipping key %q: %w", key, err)
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading closing token: %w", err)
	}
	return result, nil
}

// streamReportingStructure reads the reporting_structure array element by
// element, pre-filtering each by a cheap substring scan of its raw bytes
// before paying for a full unmarshal.
func streamReportingStructure(
	dec *json.Decoder,
	planID string,
	planIDLower []byte,
	result *ResolveResult,
	seen map[string]struct{},
	onStructure func(int),
) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading array start: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("expected '[', got %v", tok)
	}

	count := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding element: %w", err)
		}
		count++
		if onStructure != nil {
			onStructure(count)
		}

		if !bytes.Contains(bytes.ToLower(raw), planIDLower) {
			continue
		}

		var entry struct {
			ReportingPlans []ReportingPlan `json:"reporting_plans"`
			InNetworkFiles []InNetworkFile `json:"in_network_files"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue // skip malformed
		}

		matched := false
		for _, plan := range entry.ReportingPlans {
			if strings.EqualFold(plan.PlanID, planID) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		result.MatchedStructures++

		for _, f := range entry.InNetworkFiles {
			if f.Location == "" {
				continue
			}
			if _, exists := seen[f.Location]; !exists {
				seen[f.Location] = struct{}{}
				result.URLs = append(result.URLs, f.Location)
			}
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading array end: %w", err)
	}
	return nil
}

// FetchAndResolve downloads tocURL, decompressing gzip when the response
// indicates it, and resolves in-network MRF URLs for planID.
func FetchAndResolve(ctx context.Context, tocURL, planID string) (*ResolveResult, error) {
	resp, err := worker.DownloadHTTP(ctx, tocURL)
	if err != nil {
		return nil, fmt.Errorf("downloading TOC: %w", err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	contentType := resp.Header.Get("Content-Type")
	isGzip := strings.Contains(contentType, "gzip") || strings.HasSuffix(strings.ToLower(tocURL), ".gz")
	if isGzip {
		gzReader, err := worker.NewGzipReader(reader, false)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	return ResolveTOC(reader, planID, nil)
}

// skipValue reads and discards the next JSON value from dec.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil // primitive, already consumed
	}
	switch delim {
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return err
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	case '[':
		for dec.More() {
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token()
		return err
	}
	return nil
}
