package mrf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// quiescenceDelay is the pause before the shared HTTP session is considered
// safe to walk away from, so in-flight keep-alive connections wind down
// gracefully — SPEC_FULL.md §5's "~250ms quiescence delay", carried over
// unchanged from the reference Python processor's asyncio.sleep(.250).
const quiescenceDelay = 250 * time.Millisecond

type refWorkItem struct {
	url     string
	groupID float64
}

type refResult struct {
	groupID float64
	groups  []ProviderGroup
}

// BuildReferenceMap builds the group_id -> []ProviderGroup map per
// SPEC_FULL.md §4.4. p must be positioned exactly as the Orchestrator leaves
// it after folding the Plan header: the next event is either
// ("provider_references", start_array, nil) or the start of in_network.
// Returns the structural case detected (1, 2, or 3) alongside the map.
func BuildReferenceMap(ctx context.Context, cfg *Config, p *Parser) (map[float64][]ProviderGroup, int, error) {
	peeked, err := p.Peek()
	if err != nil {
		if err == ErrStreamExhausted {
			return map[float64][]ProviderGroup{}, 3, nil
		}
		return nil, 0, err
	}

	var structuralCase int
	if peeked.Prefix == "provider_references" && peeked.Type == StartArray {
		structuralCase = 1
		p.Next() // consume the start_array
	} else {
		_, err := Navigate(p, Pattern{Prefix: prefixPattern(""), Value: "provider_references"})
		if err != nil {
			if IsKind(err, EndOfStream) {
				return map[float64][]ProviderGroup{}, 3, nil
			}
			return nil, 0, err
		}
		startEv, err := p.Next()
		if err != nil {
			return nil, 0, err
		}
		if startEv.Type != StartArray {
			return nil, 0, newError(InvalidMRF, "provider_references is not an array")
		}
		structuralCase = 2
	}

	refs, err := buildReferenceObjects(p)
	if err != nil {
		return nil, 0, err
	}

	refMap, err := resolveReferences(ctx, cfg, refs)
	if err != nil {
		return nil, 0, err
	}
	return refMap, structuralCase, nil
}

// buildReferenceObjects builds each element of the (already-entered)
// provider_references array as an independent value, stopping at the
// array's end_array.
func buildReferenceObjects(p *Parser) ([]map[string]any, error) {
	var refs []map[string]any
	for {
		ev, err := p.Peek()
		if err != nil {
			return nil, err
		}
		if ev.Type == EndArray {
			p.Next()
			return refs, nil
		}
		start, err := p.Next()
		if err != nil {
			return nil, err
		}
		v, err := buildValue(p, start)
		if err != nil {
			return nil, err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, newError(InvalidMRF, "provider_references element is not an object")
		}
		refs = append(refs, m)
	}
}

// buildValue builds one complete value starting from first (its start_map,
// start_array, or scalar event, already consumed from the stream), using a
// scoped Builder private to this call.
func buildValue(p *Parser, first Event) (any, error) {
	b := NewBuilder()
	b.Event(first)
	for b.Depth() > 0 {
		ev, err := p.Next()
		if err != nil {
			return nil, err
		}
		b.Event(ev)
	}
	return b.Last, nil
}

// resolveReferences classifies each reference object as inline or remote,
// then drains the remote ones through a bounded worker pool sharing one
// HTTP client — the Go equivalent of the reference Python processor's
// asyncio.Queue + 300 worker tasks, per SPEC_FULL.md §5/§9.
func resolveReferences(ctx context.Context, cfg *Config, refs []map[string]any) (map[float64][]ProviderGroup, error) {
	refMap := make(map[float64][]ProviderGroup, len(refs))

	work := make(chan refWorkItem, len(refs))
	var mu sync.Mutex
	var results []refResult

	var wg sync.WaitGroup
	workers := cfg.resolverWorkers()
	if workers > len(refs)+1 {
		workers = len(refs) + 1
	}
	if workers < 1 {
		workers = 1
	}
	client := httpClient(cfg)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				groups, err := fetchReference(ctx, client, item.url)
				if err != nil {
					cfg.debugf("transient fetch failure for group %v: %v", item.groupID, err)
					continue
				}
				groups = filterGroups(groups, cfg.NPIFilter)
				if len(groups) == 0 {
					continue
				}
				mu.Lock()
				results = append(results, refResult{groupID: item.groupID, groups: groups})
				mu.Unlock()
			}
		}()
	}

	for _, ref := range refs {
		groupID, _ := ref["provider_group_id"].(float64)
		if raw, ok := ref["provider_groups"].([]any); ok && len(raw) > 0 {
			groups := decodeGroups(raw)
			groups = filterGroups(groups, cfg.NPIFilter)
			if len(groups) > 0 {
				refMap[groupID] = append(refMap[groupID], groups...)
			}
			continue
		}
		if loc, ok := ref["location"].(string); ok && loc != "" {
			work <- refWorkItem{url: loc, groupID: groupID}
		}
	}
	close(work)
	wg.Wait()

	select {
	case <-time.After(quiescenceDelay):
	case <-ctx.Done():
	}

	for _, r := range results {
		refMap[r.groupID] = append(refMap[r.groupID], r.groups...)
	}
	return refMap, nil
}

// fetchReference GETs url and decodes its body's provider_groups. A non-2xx
// response or network error is surfaced as an error to the caller, which
// treats it as TransientFetch: logged and dropped, never fatal.
func fetchReference(ctx context.Context, client *http.Client, url string) ([]ProviderGroup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding reference body: %w", err)
	}
	raw, _ := decoded["provider_groups"].([]any)
	return decodeGroups(raw), nil
}

func decodeGroup(m map[string]any) (ProviderGroup, bool) {
	rawNPI, _ := m["npi"].([]any)
	npis := make([]string, 0, len(rawNPI))
	for _, v := range rawNPI {
		if s, ok := npiToString(v); ok {
			npis = append(npis, s)
		}
	}
	tinMap, _ := m["tin"].(map[string]any)
	tin := TIN{}
	if tinMap != nil {
		tin.Type, _ = tinMap["type"].(string)
		tin.Value, _ = tinMap["value"].(string)
	}
	return ProviderGroup{NPI: npis, TIN: tin}, true
}

func decodeGroups(raw []any) []ProviderGroup {
	groups := make([]ProviderGroup, 0, len(raw))
	for _, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if g, ok := decodeGroup(m); ok {
			groups = append(groups, g)
		}
	}
	return groups
}
