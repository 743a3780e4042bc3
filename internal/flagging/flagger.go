// Package flagging applies transaction-level detection rules on top of the
// customer risk table. Rules contribute score and reasons per row; a
// transaction is suspicious once any flagging rule fires, and score-only
// contributions sharpen the ordering without flagging on their own.
package flagging

import (
	"sort"
	"strings"

	"github.com/savegress/fraudlens/internal/stats"
	"github.com/savegress/fraudlens/pkg/models"
)

// DefaultZThreshold is the amount z-score beyond which a transaction counts
// as an outlier. It is the only tunable of the default rule set.
const DefaultZThreshold = 3.0

// BatchStats holds the batch-relative amount statistics the rules judge
// against. It is threaded through Flag explicitly so callers control which
// population a transaction is compared to.
type BatchStats struct {
	AmountMean   float64 `json:"amount_mean"`
	AmountStd    float64 `json:"amount_std"`
	AmountP90    float64 `json:"amount_p90"`
	AmountMedian float64 `json:"amount_median"`
}

// ComputeBatchStats derives rule statistics from the batch itself. The
// standard deviation is the sample form; a single-row batch therefore has no
// spread and the outlier rule stays inert.
func ComputeBatchStats(txns []models.Transaction) BatchStats {
	amounts := make([]float64, len(txns))
	for i, txn := range txns {
		amounts[i] = txn.Amount
	}
	mean := stats.Mean(amounts)
	return BatchStats{
		AmountMean:   mean,
		AmountStd:    stats.StdDev(amounts, mean),
		AmountP90:    stats.Percentile(amounts, 90),
		AmountMedian: stats.Median(amounts),
	}
}

// Contribution is one rule verdict against one batch row. Flag marks the row
// suspicious; a contribution without it still raises the score and records
// its reason.
type Contribution struct {
	Row    int
	Score  float64
	Reason string
	Flag   bool
}

// Rule inspects the whole batch and emits contributions by row index.
type Rule interface {
	Name() string
	Apply(txns []models.Transaction, batch BatchStats, risk map[string]models.RiskScore) []Contribution
}

// Flagger runs the detection rule set over a batch.
type Flagger struct {
	rules []Rule
}

// NewFlagger creates a flagger with the default rule set and outlier
// threshold.
func NewFlagger() *Flagger {
	return NewFlaggerWithThreshold(DefaultZThreshold)
}

// NewFlaggerWithThreshold creates a flagger whose outlier rule uses the
// given z-score threshold.
func NewFlaggerWithThreshold(zThreshold float64) *Flagger {
	return &Flagger{
		rules: []Rule{
			NewAmountOutlierRule(zThreshold),
			NewTimingRule(),
			NewVelocityRule(),
			NewStructuringRule(),
			NewHighRiskRule(),
		},
	}
}

// Flag annotates every transaction with the rule verdicts, joining reasons
// in rule order, and returns the suspicious subset sorted by suspicion score
// descending. Ties keep batch order.
func (f *Flagger) Flag(txns []models.Transaction, riskScores []models.RiskScore, batch BatchStats) []models.FlaggedTransaction {
	if len(txns) == 0 {
		return []models.FlaggedTransaction{}
	}

	riskByCustomer := make(map[string]models.RiskScore, len(riskScores))
	for _, rs := range riskScores {
		riskByCustomer[rs.CustomerID] = rs
	}

	annotated := make([]models.FlaggedTransaction, len(txns))
	reasons := make([][]string, len(txns))
	for i, txn := range txns {
		annotated[i] = models.FlaggedTransaction{Transaction: txn}
		if rs, ok := riskByCustomer[txn.NameOrig]; ok {
			norm := rs.RiskScoreNormalized
			annotated[i].RiskScoreNormalized = &norm
			annotated[i].RiskBand = rs.RiskBand
		}
	}

	for _, rule := range f.rules {
		for _, c := range rule.Apply(txns, batch, riskByCustomer) {
			annotated[c.Row].SuspicionScore += c.Score
			if c.Flag {
				annotated[c.Row].IsSuspicious = true
			}
			reasons[c.Row] = append(reasons[c.Row], c.Reason)
		}
	}

	flagged := make([]models.FlaggedTransaction, 0)
	for i := range annotated {
		annotated[i].SuspicionReasons = strings.Join(reasons[i], "; ")
		if annotated[i].IsSuspicious {
			flagged = append(flagged, annotated[i])
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].SuspicionScore > flagged[j].SuspicionScore
	})
	return flagged
}
