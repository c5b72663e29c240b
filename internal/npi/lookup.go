// Package npi looks up providers in the NPPES NPI Registry, used for
// pre-flight validation of an --npi-filter file before a flatten run spends
// hours walking a multi-gigabyte MRF for NPIs that don't exist.
package npi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const registryURL = "https://npiregistry.cms.hhs.gov/api/?version=2.1"

var client = &http.Client{Timeout: 10 * time.Second}

// ProviderInfo holds the key details returned by the NPPES NPI Registry.
type ProviderInfo struct {
	NPI             int64
	Name            string // "LAST, FIRST MIDDLE" for individuals, org name otherwise
	Type            string // "Individual" or "Organization"
	PrimaryTaxonomy string
	Status          string // "A" = active
}

type apiResponse struct {
	ResultCount int         `json:"result_count"`
	Results     []apiResult `json:"results"`
}

type apiResult struct {
	Number          string        `json:"number"`
	EnumerationType string        `json:"enumeration_type"`
	Basic           apiBasic      `json:"basic"`
	Taxonomies      []apiTaxonomy `json:"taxonomies"`
}

type apiBasic struct {
	FirstName        string `json:"first_name"`
	MiddleName       string `json:"middle_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name"`
	Status           string `json:"status"`
}

type apiTaxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
}

// Lookup queries the NPPES NPI Registry for a single NPI number. Returns
// nil if the NPI is not found.
func Lookup(ctx context.Context, number int64) (*ProviderInfo, error) {
	u := fmt.Sprintf("%s&number=%d", registryURL, number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying NPI registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NPI registry returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing NPI registry response: %w", err)
	}
	if apiResp.ResultCount == 0 || len(apiResp.Results) == 0 {
		return nil, nil
	}
	return resultToProviderInfo(apiResp.Results[0]), nil
}

// LookupAll queries the registry for every NPI in npis concurrently.
// Results and errors are returned in the same order as npis; a missing NPI
// has a nil ProviderInfo and nil error.
func LookupAll(ctx context.Context, npis []int64) ([]*ProviderInfo, []error) {
	results := make([]*ProviderInfo, len(npis))
	errs := make([]error, len(npis))

	type indexedResult struct {
		idx  int
		info *ProviderInfo
		err  error
	}
	ch := make(chan indexedResult, len(npis))
	for i, n := range npis {
		go func(idx int, number int64) {
			info, err := Lookup(ctx, number)
			ch <- indexedResult{idx, info, err}
		}(i, n)
	}
	for range npis {
		r := <-ch
		results[r.idx] = r.info
		errs[r.idx] = r.err
	}
	return results, errs
}

func resultToProviderInfo(r apiResult) *ProviderInfo {
	npiNum, _ := strconv.ParseInt(r.Number, 10, 64)
	info := &ProviderInfo{NPI: npiNum, Status: r.Basic.Status}

	if r.EnumerationType == "NPI-1" {
		info.Type = "Individual"
		info.Name = formatIndividualName(r.Basic)
	} else {
		info.Type = "Organization"
		info.Name = r.Basic.OrganizationName
	}

	for _, t := range r.Taxonomies {
		if t.Primary {
			info.PrimaryTaxonomy = t.Desc
			break
		}
	}
	if info.PrimaryTaxonomy == "" && len(r.Taxonomies) > 0 {
		info.PrimaryTaxonomy = r.Taxonomies[0].Desc
	}
	return info
}

func formatIndividualName(b apiBasic) string {
	parts := []string{cleanField(b.LastName)}
	if first := cleanField(b.FirstName); first != "" {
		parts = append(parts, first)
	}
	name := strings.Join(parts, ", ")
	if middle := cleanField(b.MiddleName); middle != "" {
		name += " " + middle
	}
	return name
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if s == "--" || s == "" {
		return ""
	}
	return s
}
