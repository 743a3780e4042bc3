// Package reporting assembles the analysis outputs of a run into a report
// structure, a rendered text summary and the CSV exports.
package reporting

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/savegress/fraudlens/internal/config"
	"github.com/savegress/fraudlens/pkg/models"
	"github.com/shopspring/decimal"
)

// Generator builds and holds analysis reports keyed by run id.
type Generator struct {
	config  *config.ReportingConfig
	reports map[string]*models.AnalysisReport
	mu      sync.RWMutex
}

// NewGenerator creates a new report generator.
func NewGenerator(cfg *config.ReportingConfig) *Generator {
	return &Generator{
		config:  cfg,
		reports: make(map[string]*models.AnalysisReport),
	}
}

// BuildReport computes the report for a completed run and registers it under
// the run id.
func (g *Generator) BuildReport(runID string, txns []models.Transaction, scores []models.RiskScore, flagged []models.FlaggedTransaction) *models.AnalysisReport {
	report := &models.AnalysisReport{
		GeneratedAt:       time.Now(),
		TotalTransactions: len(txns),
		FlaggedCount:      len(flagged),
	}

	customers := make(map[string]struct{})
	total := decimal.Zero
	for _, txn := range txns {
		customers[txn.NameOrig] = struct{}{}
		total = total.Add(decimal.NewFromFloat(txn.Amount))
	}
	report.UniqueCustomers = len(customers)
	report.TotalVolume = total
	report.AvgTransactionAmount = decimal.Zero
	if len(txns) > 0 {
		report.AvgTransactionAmount = total.Div(decimal.NewFromInt(int64(len(txns))))
		report.FlaggedRate = float64(len(flagged)) / float64(len(txns)) * 100
	}

	flaggedVolume := decimal.Zero
	for _, ft := range flagged {
		flaggedVolume = flaggedVolume.Add(decimal.NewFromFloat(ft.Amount))
		if ft.SuspicionScore > 50 {
			report.HighSuspicionCount++
		}
	}
	report.FlaggedVolume = flaggedVolume

	report.BandDistribution = bandDistribution(scores)
	for _, bc := range report.BandDistribution {
		switch bc.Band {
		case models.RiskBandCritical:
			report.CriticalCustomers = bc.Count
		case models.RiskBandHigh:
			report.HighRiskCustomers = bc.Count
		}
	}

	topCustomers := g.config.TopCustomers
	if topCustomers <= 0 {
		topCustomers = 20
	}
	topTransactions := g.config.TopTransactions
	if topTransactions <= 0 {
		topTransactions = 10
	}
	report.TopRiskCustomers = topRiskCustomers(scores, topCustomers)
	report.ReasonCounts = reasonCounts(flagged)
	report.TopSuspicious = topSuspicious(flagged, topTransactions)
	report.FlaggedByType = flaggedByType(flagged)

	g.mu.Lock()
	g.reports[runID] = report
	g.mu.Unlock()
	return report
}

// GetReport retrieves the report of a run.
func (g *Generator) GetReport(runID string) (*models.AnalysisReport, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	report, ok := g.reports[runID]
	return report, ok
}

func bandDistribution(scores []models.RiskScore) []models.BandCount {
	counts := make(map[models.RiskBand]int)
	for _, s := range scores {
		counts[s.RiskBand]++
	}

	order := []models.RiskBand{
		models.RiskBandLow,
		models.RiskBandMedium,
		models.RiskBandHigh,
		models.RiskBandCritical,
	}
	out := make([]models.BandCount, 0, len(order))
	for _, band := range order {
		bc := models.BandCount{Band: band, Count: counts[band]}
		if len(scores) > 0 {
			bc.Percent = float64(bc.Count) / float64(len(scores)) * 100
		}
		out = append(out, bc)
	}
	return out
}

func topRiskCustomers(scores []models.RiskScore, n int) []models.RiskScore {
	top := make([]models.RiskScore, len(scores))
	copy(top, scores)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].RiskScoreNormalized > top[j].RiskScoreNormalized
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}

func reasonCounts(flagged []models.FlaggedTransaction) []models.ReasonCount {
	counts := make(map[string]int)
	for _, ft := range flagged {
		for _, reason := range strings.Split(ft.SuspicionReasons, "; ") {
			reason = strings.TrimSpace(reason)
			if reason != "" {
				counts[reason]++
			}
		}
	}

	out := make([]models.ReasonCount, 0, len(counts))
	for reason, count := range counts {
		rc := models.ReasonCount{Reason: reason, Count: count}
		if len(flagged) > 0 {
			rc.Percent = float64(count) / float64(len(flagged)) * 100
		}
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

func topSuspicious(flagged []models.FlaggedTransaction, n int) []models.FlaggedTransaction {
	top := make([]models.FlaggedTransaction, len(flagged))
	copy(top, flagged)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].SuspicionScore > top[j].SuspicionScore
	})
	if len(top) > n {
		top = top[:n]
	}
	return top
}

type typeAccumulator struct {
	count  int
	volume decimal.Decimal
}

func flaggedByType(flagged []models.FlaggedTransaction) []models.TypeBreakdown {
	byType := make(map[models.TransactionType]*typeAccumulator)
	for _, ft := range flagged {
		acc := byType[ft.Type]
		if acc == nil {
			acc = &typeAccumulator{}
			byType[ft.Type] = acc
		}
		acc.count++
		acc.volume = acc.volume.Add(decimal.NewFromFloat(ft.Amount))
	}

	out := make([]models.TypeBreakdown, 0, len(byType))
	for typ, acc := range byType {
		tb := models.TypeBreakdown{Type: typ, Count: acc.count, Volume: acc.volume}
		if len(flagged) > 0 {
			tb.Percent = float64(acc.count) / float64(len(flagged)) * 100
		}
		out = append(out, tb)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}
