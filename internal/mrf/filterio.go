package mrf

import (
	"encoding/csv"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
)

// CodeKey identifies a billing code by (type, code), the pair the code
// filter is keyed on.
type CodeKey struct {
	Type string
	Code string
}

// CodeFilter is the set of (billing_code_type, billing_code) pairs to keep.
// A nil/empty filter means "keep everything".
type CodeFilter map[CodeKey]struct{}

// Allows reports whether (codeType, code) survives the filter.
func (f CodeFilter) Allows(codeType, code string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[CodeKey{Type: codeType, Code: code}]
	return ok
}

// NPIFilter is the set of NPI strings to keep. A nil/empty filter means
// "keep everything".
type NPIFilter map[string]struct{}

func (f NPIFilter) Allows(npi string) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[npi]
	return ok
}

// LoadCodeFilter reads a two-column CSV (type,code) into a CodeFilter, the
// way the reference Python processor's import_csv_to_set loads a filter
// file, generalized to this filter's two-column shape.
func LoadCodeFilter(filename string) (CodeFilter, error) {
	rows, err := readCSVSet(filename)
	if err != nil {
		return nil, err
	}
	filter := make(CodeFilter, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("mrf: code filter %s: row %q needs two columns", filename, row)
		}
		filter[CodeKey{Type: strings.TrimSpace(row[0]), Code: strings.TrimSpace(row[1])}] = struct{}{}
	}
	return filter, nil
}

// LoadNPIFilter reads a single-column CSV of NPIs into an NPIFilter.
func LoadNPIFilter(filename string) (NPIFilter, error) {
	rows, err := readCSVSet(filename)
	if err != nil {
		return nil, err
	}
	filter := make(NPIFilter, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		filter[strings.TrimSpace(row[0])] = struct{}{}
	}
	return filter, nil
}

func readCSVSet(filename string) ([][]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("mrf: opening filter file %s: %w", filename, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("mrf: reading filter file %s: %w", filename, err)
	}
	return rows, nil
}

// FilenameFromIdentifier returns the first dot-separated segment of
// identifier's basename, matching SPEC_FULL.md §3's filename invariant
// ("plan.json.gz" and "plan.json" both yield "plan").
func FilenameFromIdentifier(identifier string) string {
	base := path.Base(identifier)
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}
	if idx := strings.IndexByte(base, '.'); idx >= 0 {
		return base[:idx]
	}
	return base
}

// npiToString coerces a decoded NPI (float64 off the wire, or already a
// string) to its canonical string form.
func npiToString(v any) (string, bool) {
	switch n := v.(type) {
	case float64:
		return strconv.FormatInt(int64(n), 10), true
	case string:
		return n, true
	default:
		return "", false
	}
}
