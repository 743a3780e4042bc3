package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/savegress/fraudlens/internal/risk"
	"github.com/savegress/fraudlens/pkg/models"
)

// ExportAll writes the flagged transaction ledger, the per-customer risk
// summary and the rendered text report for a run into
// <output_dir>/<run_id>/.
func (g *Generator) ExportAll(runID string, report *models.AnalysisReport, flagged []models.FlaggedTransaction, scores []models.RiskScore) error {
	dir := filepath.Join(g.config.OutputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	if err := exportFile(filepath.Join(dir, "flagged_transactions.csv"), func(w io.Writer) error {
		return WriteFlaggedCSV(w, flagged)
	}); err != nil {
		return err
	}
	if err := exportFile(filepath.Join(dir, "customer_risk_summary.csv"), func(w io.Writer) error {
		return WriteRiskSummaryCSV(w, scores, flagged)
	}); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.txt"), []byte(RenderText(report)), 0o644); err != nil {
		return fmt.Errorf("writing text report: %w", err)
	}
	return nil
}

func exportFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteFlaggedCSV writes flagged transactions ordered by descending
// suspicion score.
func WriteFlaggedCSV(out io.Writer, flagged []models.FlaggedTransaction) error {
	w := csv.NewWriter(out)

	header := []string{
		"step", "type", "amount", "nameOrig", "nameDest",
		"hour", "day", "time_period",
		"suspicion_score", "suspicion_reasons", "risk_band", "risk_score_normalized",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing flagged transactions header: %w", err)
	}

	rows := make([]models.FlaggedTransaction, len(flagged))
	copy(rows, flagged)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].SuspicionScore > rows[j].SuspicionScore
	})

	for _, ft := range rows {
		normalized := ""
		if ft.RiskScoreNormalized != nil {
			normalized = formatFloat(*ft.RiskScoreNormalized)
		}
		record := []string{
			strconv.Itoa(ft.Step),
			string(ft.Type),
			formatFloat(ft.Amount),
			ft.NameOrig,
			ft.NameDest,
			strconv.Itoa(ft.Hour),
			strconv.Itoa(ft.Day),
			string(ft.TimePeriod),
			formatFloat(ft.SuspicionScore),
			ft.SuspicionReasons,
			string(ft.RiskBand),
			normalized,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing flagged transaction row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// WriteRiskSummaryCSV writes one row per scored customer ordered by
// descending normalized risk score, including the z-score breakdown and
// the count of that customer's flagged transactions.
func WriteRiskSummaryCSV(out io.Writer, scores []models.RiskScore, flagged []models.FlaggedTransaction) error {
	w := csv.NewWriter(out)

	weights := risk.DefaultWeights()
	header := []string{"customer_id", "risk_score", "risk_score_normalized"}
	for _, wf := range weights {
		header = append(header, "z_"+wf.Name)
	}
	header = append(header,
		"risk_band",
		"transaction_count", "total_amount", "avg_amount", "max_amount",
		"transactions_per_day", "unique_recipients",
		"night_transaction_ratio", "high_value_ratio",
		"flagged_transaction_count",
	)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing risk summary header: %w", err)
	}

	flaggedByCustomer := make(map[string]int)
	for _, ft := range flagged {
		flaggedByCustomer[ft.NameOrig]++
	}

	rows := make([]models.RiskScore, len(scores))
	copy(rows, scores)
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RiskScoreNormalized > rows[j].RiskScoreNormalized
	})

	for _, rs := range rows {
		record := []string{
			rs.CustomerID,
			formatFloat(rs.RiskScore),
			formatFloat(rs.RiskScoreNormalized),
		}
		for _, wf := range weights {
			record = append(record, formatFloat(rs.ZScores["z_"+wf.Name]))
		}
		record = append(record,
			string(rs.RiskBand),
			strconv.Itoa(rs.TransactionCount),
			formatFloat(rs.TotalAmount),
			formatFloat(rs.AvgAmount),
			formatFloat(rs.MaxAmount),
			formatFloat(rs.TransactionsPerDay),
			strconv.Itoa(rs.UniqueRecipients),
			formatFloat(rs.NightTransactionRatio),
			formatFloat(rs.HighValueRatio),
			strconv.Itoa(flaggedByCustomer[rs.CustomerID]),
		)
		if err := w.Write(record); err != nil {
			return fmt.Errorf("writing risk summary row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
