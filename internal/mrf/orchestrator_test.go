package mrf

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

const basicMRF = `{
	"reporting_entity_name": "Test Health Plan",
	"reporting_entity_type": "health_insurance_issuer",
	"plan_name": "Gold PPO",
	"plan_id": "12345",
	"plan_id_type": "HIOS",
	"plan_market_type": "group",
	"last_updated_on": "2025-01-01",
	"version": "1.0",
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [111], "tin": {"type": "ein", "value": "1"}}]}
	],
	"in_network": [
		{
			"billing_code_type": "CPT", "billing_code": "99213",
			"negotiation_arrangement": "ffs",
			"negotiated_rates": [{
				"provider_references": [1],
				"negotiated_prices": [{"negotiated_rate": 100.0, "negotiated_type": "negotiated", "billing_class": "professional", "expiration_date": "2025-12-31"}]
			}]
		}
	]
}`

// mrfWithReferencesAfterInNetwork is structural case 2: the reference table
// appears after in_network, forcing the Orchestrator to reopen the input.
const mrfWithReferencesAfterInNetwork = `{
	"reporting_entity_name": "Test Health Plan",
	"plan_name": "Gold PPO",
	"plan_id": "12345",
	"in_network": [
		{
			"billing_code_type": "CPT", "billing_code": "99213",
			"negotiation_arrangement": "ffs",
			"negotiated_rates": [{
				"provider_references": [1],
				"negotiated_prices": [{"negotiated_rate": 100.0, "negotiated_type": "negotiated", "billing_class": "professional", "expiration_date": "2025-12-31"}]
			}]
		}
	],
	"provider_references": [
		{"provider_group_id": 1, "provider_groups": [{"npi": [111], "tin": {"type": "ein", "value": "1"}}]}
	]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessFile_BasicCase1(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plan.json", basicMRF)
	outDir := filepath.Join(dir, "out")

	cfg := &Config{URL: input, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads")}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	assertRowCount(t, outDir, "codes.csv", 1)
	assertRowCount(t, outDir, "prices.csv", 1)
	assertRowCount(t, outDir, "provider_groups.csv", 1)
	assertRowCount(t, outDir, "prices_provider_groups.csv", 1)
	assertRowCount(t, outDir, "plans.csv", 1)
	assertRowCount(t, outDir, "files.csv", 1)
	assertRowCount(t, outDir, "plans_files.csv", 1)
}

func TestProcessFile_StructuralCase2ReopensInput(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plan.json", mrfWithReferencesAfterInNetwork)
	outDir := filepath.Join(dir, "out")

	cfg := &Config{URL: input, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads")}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	// The reference declared after in_network must still resolve and swap in.
	assertRowCount(t, outDir, "provider_groups.csv", 1)
	rows := readCSV(t, filepath.Join(outDir, "provider_groups.csv"))
	if rows[1][0] != `["111"]` {
		t.Fatalf("expected the deferred reference's NPI to resolve, got %v", rows[1])
	}
}

func TestProcessFile_GzippedInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(basicMRF)); err != nil {
		t.Fatal(err)
	}
	gz.Close()
	f.Close()

	outDir := filepath.Join(dir, "out")
	cfg := &Config{URL: path, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads"), UseParallelGzip: false}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	assertRowCount(t, outDir, "codes.csv", 1)
}

func TestProcessFile_CodeFilterExcludesEverything(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plan.json", basicMRF)
	outDir := filepath.Join(dir, "out")

	cfg := &Config{
		URL: input, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads"),
		CodeFilter: CodeFilter{CodeKey{Type: "CPT", Code: "00000"}: {}},
	}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	// No codes survive, but the file/plan rows are still written.
	assertRowCount(t, outDir, "files.csv", 1)
	assertRowCount(t, outDir, "plans.csv", 1)
	if _, err := os.Stat(filepath.Join(outDir, "codes.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected codes.csv to never be created when every item is filtered out")
	}
}

func TestProcessFile_CodeHashSetEqualityBetweenCodesAndPrices(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plan.json", basicMRF)
	outDir := filepath.Join(dir, "out")

	cfg := &Config{URL: input, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads")}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	codes := readCSV(t, filepath.Join(outDir, "codes.csv"))
	prices := readCSV(t, filepath.Join(outDir, "prices.csv"))

	codeHashes := map[string]bool{}
	for _, row := range codes[1:] {
		codeHashes[row[3]] = true
	}
	for _, row := range prices[1:] {
		if !codeHashes[row[7]] {
			t.Fatalf("prices.csv references code_hash %q not present in codes.csv", row[7])
		}
	}
}

func TestProcessFile_ProviderGroupHashSetInclusion(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "plan.json", basicMRF)
	outDir := filepath.Join(dir, "out")

	cfg := &Config{URL: input, OutDir: outDir, DownloadsDir: filepath.Join(dir, "downloads")}
	if err := ProcessFile(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	groups := readCSV(t, filepath.Join(outDir, "provider_groups.csv"))
	links := readCSV(t, filepath.Join(outDir, "prices_provider_groups.csv"))

	groupHashes := map[string]bool{}
	for _, row := range groups[1:] {
		groupHashes[row[3]] = true
	}
	for _, row := range links[1:] {
		if !groupHashes[row[0]] {
			t.Fatalf("prices_provider_groups.csv references provider_group_hash %q not present in provider_groups.csv", row[0])
		}
	}
}

func assertRowCount(t *testing.T, outDir, table string, want int) {
	t.Helper()
	rows := readCSV(t, filepath.Join(outDir, table))
	got := len(rows) - 1 // minus header
	if got != want {
		t.Fatalf("%s: expected %d data rows, got %d: %v", table, want, got, rows)
	}
}
