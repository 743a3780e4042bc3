// Package ingest loads raw transaction ledgers and prepares them for
// analysis. Loading keeps every row as strings; the validator reports on
// quality and the cleaner decides what survives, so a messy file degrades
// row by row instead of failing whole.
package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/savegress/fraudlens/pkg/models"
)

// requiredColumns are the ledger columns an analysis run cannot do without.
// Extra columns are ignored.
var requiredColumns = []string{"step", "type", "amount", "nameOrig", "nameDest"}

// SchemaError reports a ledger header that cannot support an analysis run.
// It is fatal: no rows are returned alongside it.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "ledger missing required columns: " + strings.Join(e.Missing, ", ")
}

// RawRecord is one unparsed ledger row. Values stay as strings until the
// cleaner decides what survives.
type RawRecord struct {
	Step     string
	Type     string
	Amount   string
	NameOrig string
	NameDest string
}

// Loader reads transaction ledgers from CSV files.
type Loader struct{}

// NewLoader creates a new ledger loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads the CSV ledger at path.
func (l *Loader) Load(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return l.LoadReader(f)
}

// LoadReader reads a CSV ledger with a header row. The header must contain
// the five required columns. Short rows come back with empty fields; nothing
// is parsed or dropped here.
func (l *Loader) LoadReader(r io.Reader) ([]RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{Missing: requiredColumns}
	}
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	pick := func(row []string, col string) string {
		i := index[col]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []RawRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, RawRecord{
			Step:     pick(row, "step"),
			Type:     pick(row, "type"),
			Amount:   pick(row, "amount"),
			NameOrig: pick(row, "nameOrig"),
			NameDest: pick(row, "nameDest"),
		})
	}
	return records, nil
}

// Validate summarizes the quality of loaded rows without modifying them.
// Valid goes false only when cleaning could not possibly leave a usable
// batch behind.
func Validate(records []RawRecord) models.ValidationReport {
	report := models.ValidationReport{
		TotalRows:        len(records),
		MissingValues:    make(map[string]int),
		TypeDistribution: make(map[string]int),
	}

	usable := 0
	seen := make(map[RawRecord]bool, len(records))
	for _, rec := range records {
		if rec.Step == "" {
			report.MissingValues["step"]++
		}
		if rec.Type == "" {
			report.MissingValues["type"]++
		} else {
			report.TypeDistribution[strings.ToUpper(rec.Type)]++
		}
		if rec.Amount == "" {
			report.MissingValues["amount"]++
		}
		if rec.NameOrig == "" {
			report.MissingValues["nameOrig"]++
		}
		if rec.NameDest == "" {
			report.MissingValues["nameDest"]++
		}

		if seen[rec] {
			report.DuplicateRows++
		}
		seen[rec] = true

		amount, amountErr := strconv.ParseFloat(rec.Amount, 64)
		step, stepErr := strconv.Atoi(rec.Step)
		if amountErr == nil {
			if amount < 0 {
				report.NegativeAmounts++
			} else if amount == 0 {
				report.ZeroAmounts++
			}
		}
		if amountErr == nil && stepErr == nil && amount >= 0 && step >= 0 {
			usable++
		}
	}

	for _, col := range requiredColumns {
		if n := report.MissingValues[col]; n > 0 {
			report.Issues = append(report.Issues, strconv.Itoa(n)+" rows missing "+col)
		}
	}
	if report.NegativeAmounts > 0 {
		report.Issues = append(report.Issues, strconv.Itoa(report.NegativeAmounts)+" rows with negative amounts")
	}
	if report.DuplicateRows > 0 {
		report.Issues = append(report.Issues, strconv.Itoa(report.DuplicateRows)+" duplicate rows")
	}

	report.Valid = usable > 0
	if len(records) == 0 {
		report.Issues = append(report.Issues, "no data rows")
	} else if usable == 0 {
		report.Issues = append(report.Issues, "no usable rows after validation")
	}
	return report
}
