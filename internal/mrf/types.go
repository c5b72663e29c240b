package mrf

// TIN is a Taxpayer Identification Number, carried with its type (ein/npi)
// and value, exactly as it appears on a provider group.
type TIN struct {
	Type  string
	Value string
}

// ProviderGroup is one provider group: a list of NPIs sharing one TIN. NPI is
// coerced to strings as soon as a group is decoded off the wire (decodeGroup
// in resolver.go), since every downstream consumer — NPI filtering, hashing,
// the npi_numbers CSV column — treats NPIs as strings; see SPEC_FULL.md §6.
type ProviderGroup struct {
	NPI []string
	TIN TIN
}

// NegotiatedPrice is one negotiated_prices entry on a rate.
type NegotiatedPrice struct {
	NegotiatedRate        float64
	NegotiatedType        string
	BillingClass          string
	ExpirationDate        string
	AdditionalInformation string
	ServiceCode           []string
	BillingCodeModifier   []string
}

// NegotiatedRate is one element of negotiated_rates: a set of prices and the
// provider groups (inline, or swapped in from the reference map) they apply
// to.
type NegotiatedRate struct {
	ProviderReferences []float64
	ProviderGroups     []ProviderGroup
	NegotiatedPrices   []NegotiatedPrice
}

// InNetworkItem is one billing code together with its negotiated rates.
type InNetworkItem struct {
	BillingCodeType        string
	BillingCodeTypeVersion string
	BillingCode            string
	NegotiationArrangement string
	NegotiatedRates        []NegotiatedRate
}

// Plan is the top-level plan header, folded from the scalar fields seen
// before provider_references/in_network.
type Plan struct {
	ReportingEntityName string
	ReportingEntityType string
	PlanName            string
	PlanID              string
	PlanIDType          string
	PlanMarketType      string
	LastUpdatedOn       string
	Version             string
}

// --- output row shapes, one per CSV table (column order lives in csvwriter.go) ---

type FileRow struct {
	Filename     string
	FilenameHash uint64
	URL          string
}

type PlanRow struct {
	Plan
	PlanHash uint64
}

type PlanFileRow struct {
	PlanHash     uint64
	FilenameHash uint64
}

type CodeRow struct {
	BillingCodeType        string
	BillingCodeTypeVersion string
	BillingCode            string
	CodeHash               uint64
}

type PriceRow struct {
	BillingClass          string
	NegotiatedType        string
	ExpirationDate        string
	NegotiatedRate        float64
	AdditionalInformation string
	ServiceCode           []string
	BillingCodeModifier   []string
	CodeHash              uint64
	FilenameHash          uint64
	PriceHash             uint64
}

type GroupRow struct {
	NPINumbers        []string
	TINType           string
	TINValue          string
	ProviderGroupHash uint64
}

type PriceGroupRow struct {
	ProviderGroupHash uint64
	PriceHash         uint64
}
