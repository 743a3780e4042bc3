// Package risk turns aggregated customer features into composite risk
// scores. Each weighted feature is z-scored against the batch itself, so a
// customer is only ever risky relative to the population they arrived with.
package risk

import (
	"math"
	"sort"

	"github.com/savegress/fraudlens/internal/stats"
	"github.com/savegress/fraudlens/pkg/models"
)

// WeightedFeature pairs a feature name with its share of the composite score.
type WeightedFeature struct {
	Name   string
	Weight float64
}

// DefaultWeights returns the standard scoring weights. They sum to 1.0.
func DefaultWeights() []WeightedFeature {
	return []WeightedFeature{
		{Name: "total_amount", Weight: 0.15},
		{Name: "avg_amount", Weight: 0.10},
		{Name: "max_amount", Weight: 0.10},
		{Name: "transaction_count", Weight: 0.08},
		{Name: "transactions_per_day", Weight: 0.12},
		{Name: "amount_per_day", Weight: 0.12},
		{Name: "unique_recipients", Weight: 0.08},
		{Name: "night_transaction_ratio", Weight: 0.12},
		{Name: "high_value_ratio", Weight: 0.09},
		{Name: "max_single_transaction_ratio", Weight: 0.04},
	}
}

// extractors maps weighted feature names onto customer feature fields.
// Weights whose name has no extractor are skipped, so a scorer configured
// with extra names degrades instead of failing.
var extractors = map[string]func(models.CustomerFeatures) float64{
	"total_amount":                 func(f models.CustomerFeatures) float64 { return f.TotalAmount },
	"avg_amount":                   func(f models.CustomerFeatures) float64 { return f.AvgAmount },
	"max_amount":                   func(f models.CustomerFeatures) float64 { return f.MaxAmount },
	"transaction_count":            func(f models.CustomerFeatures) float64 { return float64(f.TransactionCount) },
	"transactions_per_day":         func(f models.CustomerFeatures) float64 { return f.TransactionsPerDay },
	"amount_per_day":               func(f models.CustomerFeatures) float64 { return f.AmountPerDay },
	"unique_recipients":            func(f models.CustomerFeatures) float64 { return float64(f.UniqueRecipients) },
	"night_transaction_ratio":      func(f models.CustomerFeatures) float64 { return f.NightTransactionRatio },
	"high_value_ratio":             func(f models.CustomerFeatures) float64 { return f.HighValueRatio },
	"max_single_transaction_ratio": func(f models.CustomerFeatures) float64 { return f.MaxSingleTransactionRatio },
}

// Scorer computes composite risk scores for a batch of customers.
type Scorer struct {
	weights []WeightedFeature
}

// NewScorer creates a scorer with the default weighted feature set.
func NewScorer() *Scorer {
	return &Scorer{weights: DefaultWeights()}
}

// NewScorerWithWeights creates a scorer with a custom weighted feature set.
func NewScorerWithWeights(weights []WeightedFeature) *Scorer {
	return &Scorer{weights: weights}
}

// Score computes per-customer risk from the batch of feature rows. The raw
// composite is the weighted sum of absolute z-scores; it is min-max rescaled
// to [0,100] and banded by batch percentiles. Results are sorted by customer
// id.
func (s *Scorer) Score(features []models.CustomerFeatures) []models.RiskScore {
	if len(features) == 0 {
		return []models.RiskScore{}
	}

	n := len(features)
	scores := make([]models.RiskScore, n)
	for i, f := range features {
		scores[i] = models.RiskScore{
			CustomerID:            f.CustomerID,
			ZScores:               make(map[string]float64, len(s.weights)),
			TransactionCount:      f.TransactionCount,
			TotalAmount:           f.TotalAmount,
			AvgAmount:             f.AvgAmount,
			MaxAmount:             f.MaxAmount,
			TransactionsPerDay:    f.TransactionsPerDay,
			UniqueRecipients:      f.UniqueRecipients,
			NightTransactionRatio: f.NightTransactionRatio,
			HighValueRatio:        f.HighValueRatio,
		}
	}

	for _, wf := range s.weights {
		extract, ok := extractors[wf.Name]
		if !ok {
			continue
		}

		column := make([]float64, n)
		for i, f := range features {
			column[i] = stats.Sanitize(extract(f))
		}
		mean := stats.Mean(column)
		std := stats.PopStdDev(column, mean)

		key := "z_" + wf.Name
		for i := range scores {
			z := 0.0
			if n >= 2 && std > 0 {
				z = (column[i] - mean) / std
			}
			scores[i].ZScores[key] = z
			scores[i].RiskScore += wf.Weight * math.Abs(z)
		}
	}

	normalize(scores)
	assignBands(scores)

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].CustomerID < scores[j].CustomerID
	})
	return scores
}

// normalize rescales raw composite scores to [0,100]. A batch with no spread
// maps every customer to 50.
func normalize(scores []models.RiskScore) {
	minScore, maxScore := scores[0].RiskScore, scores[0].RiskScore
	for _, sc := range scores[1:] {
		if sc.RiskScore < minScore {
			minScore = sc.RiskScore
		}
		if sc.RiskScore > maxScore {
			maxScore = sc.RiskScore
		}
	}

	span := maxScore - minScore
	for i := range scores {
		if span > 0 {
			scores[i].RiskScoreNormalized = (scores[i].RiskScore - minScore) / span * 100
		} else {
			scores[i].RiskScoreNormalized = 50
		}
	}
}

// assignBands classifies normalized scores against the batch's own
// percentiles. Thresholds are checked lowest first; a score below none of
// them lands in Critical, which is also where a batch with no spread ends up.
func assignBands(scores []models.RiskScore) {
	normalized := make([]float64, len(scores))
	for i, sc := range scores {
		normalized[i] = sc.RiskScoreNormalized
	}
	p75 := stats.Percentile(normalized, 75)
	p90 := stats.Percentile(normalized, 90)
	p95 := stats.Percentile(normalized, 95)

	for i := range scores {
		switch v := scores[i].RiskScoreNormalized; {
		case v < p75:
			scores[i].RiskBand = models.RiskBandLow
		case v < p90:
			scores[i].RiskBand = models.RiskBandMedium
		case v < p95:
			scores[i].RiskBand = models.RiskBandHigh
		default:
			scores[i].RiskBand = models.RiskBandCritical
		}
	}
}
