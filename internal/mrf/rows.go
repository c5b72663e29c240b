package mrf

import (
	"sort"
	"strings"
)

// NormalizeStringList trims whitespace from each value, drops anything that
// becomes empty, and sorts what's left — the resolution of SPEC_FULL.md §9's
// open question on service_code/billing_code_modifier normalization.
func NormalizeStringList(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		t := strings.TrimSpace(v)
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// BuildFileRow derives the files table row for one source identifier.
func BuildFileRow(identifier string) (FileRow, error) {
	filename := FilenameFromIdentifier(identifier)
	hash, err := filenameHash(filename)
	if err != nil {
		return FileRow{}, err
	}
	return FileRow{Filename: filename, FilenameHash: hash, URL: identifier}, nil
}

// BuildPlanRow hashes the plan header's content fields into the plans table row.
func BuildPlanRow(plan Plan) (PlanRow, error) {
	hash, err := Hash(map[string]any{
		"reporting_entity_name": plan.ReportingEntityName,
		"reporting_entity_type": plan.ReportingEntityType,
		"plan_name":             plan.PlanName,
		"plan_id":               plan.PlanID,
		"plan_id_type":          plan.PlanIDType,
		"plan_market_type":      plan.PlanMarketType,
		"last_updated_on":       plan.LastUpdatedOn,
		"version":               plan.Version,
	})
	if err != nil {
		return PlanRow{}, err
	}
	return PlanRow{Plan: plan, PlanHash: hash}, nil
}

// BuildPlanFileRow links a plan to a file — no hash of its own, just the pair.
func BuildPlanFileRow(planHash, filenameHash uint64) PlanFileRow {
	return PlanFileRow{PlanHash: planHash, FilenameHash: filenameHash}
}

// BuildCodeRow hashes an in-network item's billing code identity.
func BuildCodeRow(item InNetworkItem) (CodeRow, error) {
	hash, err := Hash(map[string]any{
		"billing_code_type":         item.BillingCodeType,
		"billing_code_type_version": item.BillingCodeTypeVersion,
		"billing_code":              item.BillingCode,
	})
	if err != nil {
		return CodeRow{}, err
	}
	return CodeRow{
		BillingCodeType:        item.BillingCodeType,
		BillingCodeTypeVersion: item.BillingCodeTypeVersion,
		BillingCode:            item.BillingCode,
		CodeHash:               hash,
	}, nil
}

// MaterializeRows turns one already-filtered, already-swapped InNetworkItem
// into its prices/provider_groups/link rows. Each rate contributes its own
// prices and groups; the link rows are the Cartesian product of that rate's
// price hashes and group hashes, per SPEC_FULL.md §6 — a price negotiated
// for a rate applies to every provider group sharing that rate, and vice
// versa.
func MaterializeRows(item InNetworkItem, filenameHash uint64) (CodeRow, []PriceRow, []GroupRow, []PriceGroupRow, error) {
	codeRow, err := BuildCodeRow(item)
	if err != nil {
		return CodeRow{}, nil, nil, nil, err
	}

	var prices []PriceRow
	var groups []GroupRow
	var links []PriceGroupRow

	for _, rate := range item.NegotiatedRates {
		groupHashes := make([]uint64, 0, len(rate.ProviderGroups))
		for _, g := range rate.ProviderGroups {
			row, hash, err := buildGroupRow(g)
			if err != nil {
				return CodeRow{}, nil, nil, nil, err
			}
			groups = append(groups, row)
			groupHashes = append(groupHashes, hash)
		}

		priceHashes := make([]uint64, 0, len(rate.NegotiatedPrices))
		for _, price := range rate.NegotiatedPrices {
			row, hash, err := buildPriceRow(price, codeRow.CodeHash, filenameHash)
			if err != nil {
				return CodeRow{}, nil, nil, nil, err
			}
			prices = append(prices, row)
			priceHashes = append(priceHashes, hash)
		}

		for _, ph := range priceHashes {
			for _, gh := range groupHashes {
				links = append(links, PriceGroupRow{ProviderGroupHash: gh, PriceHash: ph})
			}
		}
	}
	return codeRow, prices, groups, links, nil
}

func buildPriceRow(price NegotiatedPrice, codeHash, filenameHash uint64) (PriceRow, uint64, error) {
	serviceCode := NormalizeStringList(price.ServiceCode)
	modifier := NormalizeStringList(price.BillingCodeModifier)

	hash, err := Hash(map[string]any{
		"billing_class":          price.BillingClass,
		"negotiated_type":        price.NegotiatedType,
		"expiration_date":        price.ExpirationDate,
		"negotiated_rate":        price.NegotiatedRate,
		"additional_information": price.AdditionalInformation,
		"service_code":           serviceCode,
		"billing_code_modifier":  modifier,
		"code_hash":              codeHash,
		"filename_hash":          filenameHash,
	})
	if err != nil {
		return PriceRow{}, 0, err
	}
	row := PriceRow{
		BillingClass:          price.BillingClass,
		NegotiatedType:        price.NegotiatedType,
		ExpirationDate:        price.ExpirationDate,
		NegotiatedRate:        price.NegotiatedRate,
		AdditionalInformation: price.AdditionalInformation,
		ServiceCode:           serviceCode,
		BillingCodeModifier:   modifier,
		CodeHash:              codeHash,
		FilenameHash:          filenameHash,
		PriceHash:             hash,
	}
	return row, hash, nil
}

func buildGroupRow(g ProviderGroup) (GroupRow, uint64, error) {
	npis := append([]string(nil), g.NPI...)
	sort.Strings(npis)

	hash, err := Hash(map[string]any{
		"npi_numbers": npis,
		"tin_type":    g.TIN.Type,
		"tin_value":   g.TIN.Value,
	})
	if err != nil {
		return GroupRow{}, 0, err
	}
	row := GroupRow{NPINumbers: npis, TINType: g.TIN.Type, TINValue: g.TIN.Value, ProviderGroupHash: hash}
	return row, hash, nil
}
