package mrf

import (
	"math"
	"sort"
	"strconv"
)

// filterGroups applies the NPI filter to each group's NPI list, coercing it
// to sorted strings, and drops a group entirely once no NPI survives — the
// "NPI filtering on inline groups" rule in SPEC_FULL.md §4.5. With an empty
// filter every NPI survives, so this also doubles as the "always sorted"
// normalization SPEC_FULL.md §3 requires regardless of filtering.
func filterGroups(groups []ProviderGroup, npiFilter NPIFilter) []ProviderGroup {
	out := make([]ProviderGroup, 0, len(groups))
	for _, g := range groups {
		kept := make([]string, 0, len(g.NPI))
		for _, n := range g.NPI {
			if npiFilter.Allows(n) {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			continue
		}
		sort.Strings(kept)
		out = append(out, ProviderGroup{NPI: kept, TIN: g.TIN})
	}
	return out
}

// StreamInNetworkItems streams the in_network array, positioned right after
// its start_array has been consumed, applying the early-skip, reference
// swap, and NPI-filter rules in SPEC_FULL.md §4.5. yield is called once per
// surviving item, in order; returning an error from yield aborts the stream.
func StreamInNetworkItems(p *Parser, cfg *Config, refMap map[float64][]ProviderGroup, yield func(InNetworkItem) error) error {
	for {
		peeked, err := p.Peek()
		if err != nil {
			return err
		}
		if peeked.Type == EndArray {
			p.Next()
			return nil
		}

		start, err := p.Next()
		if err != nil {
			return err
		}
		raw, skipped, err := buildInNetworkItem(p, cfg, start)
		if err != nil {
			return err
		}
		if skipped {
			continue
		}

		item := decodeInNetworkItem(raw)
		if !swapAndFilter(&item, refMap, cfg.NPIFilter) {
			continue
		}
		if err := yield(item); err != nil {
			return err
		}
	}
}

// buildInNetworkItem builds one in_network element, checking the early-skip
// condition after every event so a disqualified item is abandoned (and its
// remaining events discarded straight from the Parser) before it's ever
// fully materialized.
func buildInNetworkItem(p *Parser, cfg *Config, start Event) (map[string]any, bool, error) {
	b := NewBuilder()
	b.Event(start)

	for b.Depth() > 0 {
		ev, err := p.Next()
		if err != nil {
			return nil, false, err
		}
		b.Event(ev)

		if b.Depth() != 1 {
			continue // inside a nested container; not the item's own fields yet
		}
		if shouldSkipItem(b.CurrentMap(), cfg.CodeFilter) {
			if _, err := Navigate(p, Pattern{Prefix: prefixPattern(start.Prefix), Type: typePattern(EndMap)}); err != nil {
				return nil, false, err
			}
			b.DiscardTop()
			cfg.debugf("skipped in_network item at %s", start.Prefix)
			return nil, true, nil
		}
	}
	return b.Last.(map[string]any), false, nil
}

func shouldSkipItem(cur map[string]any, codeFilter CodeFilter) bool {
	if cur == nil {
		return false
	}
	if rawCode, codeOK := cur["billing_code"]; codeOK {
		if rawType, typeOK := cur["billing_code_type"]; typeOK {
			codeType, _ := rawType.(string)
			if !codeFilter.Allows(codeType, stringifyScalar(rawCode)) {
				return true
			}
		}
	}
	if rawArr, ok := cur["negotiation_arrangement"]; ok {
		arrangement, _ := rawArr.(string)
		if arrangement != "ffs" {
			return true
		}
	}
	return false
}

// swapAndFilter performs the reference swap and NPI filtering for every rate
// on item, dropping rates (and, if none remain, the item) whose groups end
// up empty. refMap entries are already NPI-filtered (done once, during
// resolution); inline groups declared directly on the rate are filtered
// here, matching the single-pass-per-group policy in SPEC_FULL.md §9.
func swapAndFilter(item *InNetworkItem, refMap map[float64][]ProviderGroup, npiFilter NPIFilter) bool {
	kept := item.NegotiatedRates[:0]
	for _, rate := range item.NegotiatedRates {
		rate.ProviderGroups = filterGroups(rate.ProviderGroups, npiFilter)
		for _, refID := range rate.ProviderReferences {
			if groups, ok := refMap[refID]; ok {
				rate.ProviderGroups = append(rate.ProviderGroups, groups...)
			}
		}
		rate.ProviderReferences = nil
		if len(rate.ProviderGroups) > 0 {
			kept = append(kept, rate)
		}
	}
	item.NegotiatedRates = kept
	return len(item.NegotiatedRates) > 0
}

func stringifyScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func decodeInNetworkItem(m map[string]any) InNetworkItem {
	item := InNetworkItem{
		BillingCodeType:        str(m["billing_code_type"]),
		BillingCodeTypeVersion: str(m["billing_code_type_version"]),
		BillingCode:            stringifyScalar(m["billing_code"]),
		NegotiationArrangement: str(m["negotiation_arrangement"]),
	}
	if ratesRaw, ok := m["negotiated_rates"].([]any); ok {
		for _, rv := range ratesRaw {
			if rm, ok := rv.(map[string]any); ok {
				item.NegotiatedRates = append(item.NegotiatedRates, decodeRate(rm))
			}
		}
	}
	return item
}

func decodeRate(rm map[string]any) NegotiatedRate {
	rate := NegotiatedRate{}
	if groupsRaw, ok := rm["provider_groups"].([]any); ok {
		rate.ProviderGroups = decodeGroups(groupsRaw)
	}
	if refsRaw, ok := rm["provider_references"].([]any); ok {
		for _, rv := range refsRaw {
			if f, ok := rv.(float64); ok {
				rate.ProviderReferences = append(rate.ProviderReferences, f)
			}
		}
	}
	if pricesRaw, ok := rm["negotiated_prices"].([]any); ok {
		for _, pv := range pricesRaw {
			if pm, ok := pv.(map[string]any); ok {
				rate.NegotiatedPrices = append(rate.NegotiatedPrices, decodePrice(pm))
			}
		}
	}
	return rate
}

func decodePrice(pm map[string]any) NegotiatedPrice {
	price := NegotiatedPrice{
		NegotiatedType:        str(pm["negotiated_type"]),
		BillingClass:          str(pm["billing_class"]),
		ExpirationDate:        str(pm["expiration_date"]),
		AdditionalInformation: str(pm["additional_information"]),
	}
	if r, ok := pm["negotiated_rate"].(float64); ok {
		price.NegotiatedRate = r
	}
	price.ServiceCode = decodeStringList(pm["service_code"])
	price.BillingCodeModifier = decodeStringList(pm["billing_code_modifier"])
	return price
}

func decodeStringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
