package mrf

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// tableLocks guards the open-and-maybe-write-header step and every row
// append per (out_dir, table) pair, so that concurrent batch workers
// (internal/worker.Pool) each holding their own Writer against a shared
// out_dir never race on the header-written-once check or interleave
// partial rows.
var tableLocks sync.Map // map[string]*sync.Mutex, keyed by filepath.Join(outDir, table)

func tableLock(path string) *sync.Mutex {
	mu, _ := tableLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

var tableHeaders = map[string][]string{
	"files":  {"filename", "filename_hash", "url"},
	"plans": {
		"reporting_entity_name", "reporting_entity_type", "plan_name", "plan_id",
		"plan_id_type", "plan_market_type", "last_updated_on", "version", "plan_hash",
	},
	"plans_files": {"plan_hash", "filename_hash"},
	"codes":       {"billing_code_type", "billing_code_type_version", "billing_code", "code_hash"},
	"prices": {
		"billing_class", "negotiated_type", "expiration_date", "negotiated_rate",
		"additional_information", "service_code", "billing_code_modifier",
		"code_hash", "filename_hash", "price_hash",
	},
	"provider_groups":         {"npi_numbers", "tin_type", "tin_value", "provider_group_hash"},
	"prices_provider_groups":  {"provider_group_hash", "price_hash"},
}

type csvTable struct {
	f  *os.File
	w  *csv.Writer
	mu *sync.Mutex
}

// Writer appends rows to the seven fixed CSV tables in out_dir, per
// SPEC_FULL.md §6: opened append, newline translation left to encoding/csv,
// headers written only on first create.
type Writer struct {
	dir    string
	tables map[string]*csvTable
}

// NewWriter creates out_dir if needed and returns a Writer with no tables
// open yet — each is opened lazily on first append.
func NewWriter(outDir string) (*Writer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mrf: creating out_dir %s: %w", outDir, err)
	}
	return &Writer{dir: outDir, tables: map[string]*csvTable{}}, nil
}

func (w *Writer) table(name string) (*csvTable, error) {
	if t, ok := w.tables[name]; ok {
		return t, nil
	}
	path := filepath.Join(w.dir, name+".csv")
	mu := tableLock(path)

	mu.Lock()
	defer mu.Unlock()

	needsHeader := true
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		needsHeader = false
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("mrf: opening %s: %w", path, err)
	}
	t := &csvTable{f: f, w: csv.NewWriter(f), mu: mu}
	if needsHeader {
		if err := t.w.Write(tableHeaders[name]); err != nil {
			f.Close()
			return nil, fmt.Errorf("mrf: writing header for %s: %w", path, err)
		}
		t.w.Flush()
		if err := t.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("mrf: flushing header for %s: %w", path, err)
		}
	}
	w.tables[name] = t
	return t, nil
}

func (w *Writer) writeRow(tableName string, row []string) error {
	t, err := w.table(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("mrf: writing row to %s: %w", tableName, err)
	}
	t.w.Flush()
	return t.w.Error()
}

func (w *Writer) AppendFile(row FileRow) error {
	return w.writeRow("files", []string{row.Filename, formatHash(row.FilenameHash), row.URL})
}

func (w *Writer) AppendPlan(row PlanRow) error {
	return w.writeRow("plans", []string{
		row.ReportingEntityName, row.ReportingEntityType, row.PlanName, row.PlanID,
		row.PlanIDType, row.PlanMarketType, row.LastUpdatedOn, row.Version,
		formatHash(row.PlanHash),
	})
}

func (w *Writer) AppendPlanFile(row PlanFileRow) error {
	return w.writeRow("plans_files", []string{formatHash(row.PlanHash), formatHash(row.FilenameHash)})
}

func (w *Writer) AppendCode(row CodeRow) error {
	return w.writeRow("codes", []string{
		row.BillingCodeType, row.BillingCodeTypeVersion, row.BillingCode, formatHash(row.CodeHash),
	})
}

func (w *Writer) AppendPrices(rows []PriceRow) error {
	for _, row := range rows {
		serviceCode, err := formatStringArray(row.ServiceCode)
		if err != nil {
			return err
		}
		modifier, err := formatStringArray(row.BillingCodeModifier)
		if err != nil {
			return err
		}
		if err := w.writeRow("prices", []string{
			row.BillingClass, row.NegotiatedType, row.ExpirationDate,
			strconv.FormatFloat(row.NegotiatedRate, 'f', -1, 64),
			row.AdditionalInformation, serviceCode, modifier,
			formatHash(row.CodeHash), formatHash(row.FilenameHash), formatHash(row.PriceHash),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) AppendGroups(rows []GroupRow) error {
	for _, row := range rows {
		npis, err := formatStringArray(row.NPINumbers)
		if err != nil {
			return err
		}
		if err := w.writeRow("provider_groups", []string{
			npis, row.TINType, row.TINValue, formatHash(row.ProviderGroupHash),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) AppendPriceGroups(rows []PriceGroupRow) error {
	for _, row := range rows {
		if err := w.writeRow("prices_provider_groups", []string{
			formatHash(row.ProviderGroupHash), formatHash(row.PriceHash),
		}); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every table file opened so far.
func (w *Writer) Close() error {
	var firstErr error
	for _, t := range w.tables {
		t.w.Flush()
		if err := t.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func formatHash(h uint64) string { return strconv.FormatUint(h, 10) }

func formatStringArray(vals []string) (string, error) {
	if len(vals) == 0 {
		return "[]", nil
	}
	buf, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("mrf: encoding string array: %w", err)
	}
	return string(buf), nil
}
