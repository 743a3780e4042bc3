package ingest

import (
	"strconv"
	"strings"

	"github.com/savegress/fraudlens/pkg/models"
)

// Cleaner turns raw ledger rows into the cleaned transaction table.
type Cleaner struct{}

// NewCleaner creates a new cleaner.
func NewCleaner() *Cleaner { return &Cleaner{} }

// Clean applies the repair and drop sequence: rows with unparseable amounts
// or steps go first, empty categorical fields are filled with UNKNOWN, exact
// duplicates collapse to one occurrence, negative amounts are dropped, and
// the surviving rows get their derived hour, day and time period. Transaction
// types are uppercased.
func (c *Cleaner) Clean(records []RawRecord) ([]models.Transaction, models.CleaningSummary) {
	summary := models.CleaningSummary{RowsIn: len(records)}

	type parsed struct {
		rec    RawRecord
		step   int
		amount float64
	}

	kept := make([]parsed, 0, len(records))
	for _, rec := range records {
		amount, err := strconv.ParseFloat(rec.Amount, 64)
		if rec.Amount == "" || err != nil {
			summary.DroppedInvalidAmount++
			continue
		}
		step, err := strconv.Atoi(rec.Step)
		if rec.Step == "" || err != nil || step < 0 {
			summary.DroppedInvalidStep++
			continue
		}

		if rec.Type == "" {
			rec.Type = "UNKNOWN"
			summary.FilledUnknown++
		}
		if rec.NameOrig == "" {
			rec.NameOrig = "UNKNOWN"
			summary.FilledUnknown++
		}
		if rec.NameDest == "" {
			rec.NameDest = "UNKNOWN"
			summary.FilledUnknown++
		}

		kept = append(kept, parsed{rec: rec, step: step, amount: amount})
	}

	seen := make(map[RawRecord]bool, len(kept))
	txns := make([]models.Transaction, 0, len(kept))
	for _, p := range kept {
		if seen[p.rec] {
			summary.DroppedDuplicates++
			continue
		}
		seen[p.rec] = true

		if p.amount < 0 {
			summary.DroppedNegativeAmount++
			continue
		}

		hour := p.step % 24
		txns = append(txns, models.Transaction{
			Step:       p.step,
			Type:       models.TransactionType(strings.ToUpper(p.rec.Type)),
			Amount:     p.amount,
			NameOrig:   p.rec.NameOrig,
			NameDest:   p.rec.NameDest,
			Hour:       hour,
			Day:        p.step / 24,
			TimePeriod: timePeriodFor(hour),
		})
	}

	summary.RowsOut = len(txns)
	return txns, summary
}

func timePeriodFor(hour int) models.TimePeriod {
	switch {
	case hour < 6:
		return models.TimePeriodNight
	case hour < 12:
		return models.TimePeriodMorning
	case hour < 18:
		return models.TimePeriodAfternoon
	default:
		return models.TimePeriodEvening
	}
}
