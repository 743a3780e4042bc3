package flagging

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/savegress/fraudlens/pkg/models"
)

// AmountOutlierRule flags transactions whose amount is a statistical outlier
// within the batch.
type AmountOutlierRule struct {
	threshold float64
}

// NewAmountOutlierRule creates an outlier rule with the given z-score
// threshold.
func NewAmountOutlierRule(threshold float64) *AmountOutlierRule {
	return &AmountOutlierRule{threshold: threshold}
}

func (r *AmountOutlierRule) Name() string { return "amount_outlier" }

func (r *AmountOutlierRule) Apply(txns []models.Transaction, batch BatchStats, _ map[string]models.RiskScore) []Contribution {
	if len(txns) < 2 || batch.AmountStd <= 0 {
		return nil
	}

	var out []Contribution
	for i, txn := range txns {
		z := (txn.Amount - batch.AmountMean) / batch.AmountStd
		if math.Abs(z) > r.threshold {
			out = append(out, Contribution{
				Row:    i,
				Score:  math.Abs(z) * 10,
				Reason: "High-value outlier",
				Flag:   true,
			})
		}
	}
	return out
}

// TimingRule flags late-night transactions and raises the score of weekend
// transactions above the batch's 90th amount percentile.
type TimingRule struct{}

// NewTimingRule creates a new timing rule.
func NewTimingRule() *TimingRule { return &TimingRule{} }

func (r *TimingRule) Name() string { return "timing" }

func (r *TimingRule) Apply(txns []models.Transaction, batch BatchStats, _ map[string]models.RiskScore) []Contribution {
	var out []Contribution
	for i, txn := range txns {
		if txn.Hour >= 0 && txn.Hour < 6 {
			out = append(out, Contribution{
				Row:    i,
				Score:  15,
				Reason: "Late night transaction",
				Flag:   true,
			})
		}
	}
	for i, txn := range txns {
		if txn.Day%7 >= 5 && txn.Amount > batch.AmountP90 {
			out = append(out, Contribution{
				Row:    i,
				Score:  10,
				Reason: "Weekend high-value transaction",
			})
		}
	}
	return out
}

// VelocityRule flags rapid back-to-back transactions and raises the score of
// sustained bursts. Rows are examined per customer in step order; the first
// transaction of a customer never counts as rapid.
type VelocityRule struct{}

// NewVelocityRule creates a new velocity rule.
func NewVelocityRule() *VelocityRule { return &VelocityRule{} }

func (r *VelocityRule) Name() string { return "velocity" }

func (r *VelocityRule) Apply(txns []models.Transaction, _ BatchStats, _ map[string]models.RiskScore) []Contribution {
	idx := make([]int, len(txns))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := txns[idx[a]], txns[idx[b]]
		if ta.NameOrig != tb.NameOrig {
			return ta.NameOrig < tb.NameOrig
		}
		return ta.Step < tb.Step
	})

	var out []Contribution
	for k := 1; k < len(idx); k++ {
		cur, prev := txns[idx[k]], txns[idx[k-1]]
		if cur.NameOrig == prev.NameOrig && cur.Step-prev.Step <= 1 {
			out = append(out, Contribution{
				Row:    idx[k],
				Score:  20,
				Reason: "Rapid successive transaction",
				Flag:   true,
			})
		}
	}

	// A trailing window of five holds five transactions from the fifth one
	// on, so burst marks the fifth and later rows of each customer.
	position := 0
	for k, i := range idx {
		if k == 0 || txns[i].NameOrig != txns[idx[k-1]].NameOrig {
			position = 0
		}
		position++
		if position >= 5 {
			out = append(out, Contribution{
				Row:    i,
				Score:  15,
				Reason: "Burst activity detected",
			})
		}
	}
	return out
}

// structuringThresholds are the reporting limits customers structure under,
// checked highest first.
var structuringThresholds = []float64{10000, 5000, 3000}

// StructuringRule flags clusters of transactions kept just below round
// reporting thresholds. A customer needs at least minCluster near-threshold
// transactions before any of them is flagged; a single transaction can match
// several thresholds and accumulate each reason.
type StructuringRule struct {
	minCluster int
}

// NewStructuringRule creates a structuring rule requiring clusters of three.
func NewStructuringRule() *StructuringRule { return &StructuringRule{minCluster: 3} }

func (r *StructuringRule) Name() string { return "structuring" }

func (r *StructuringRule) Apply(txns []models.Transaction, _ BatchStats, _ map[string]models.RiskScore) []Contribution {
	var out []Contribution
	for _, threshold := range structuringThresholds {
		lower, upper := 0.85*threshold, 0.99*threshold

		counts := make(map[string]int)
		var near []int
		for i, txn := range txns {
			if txn.Amount >= lower && txn.Amount < upper {
				counts[txn.NameOrig]++
				near = append(near, i)
			}
		}

		reason := fmt.Sprintf("Potential structuring near $%s", formatThreshold(threshold))
		for _, i := range near {
			if counts[txns[i].NameOrig] >= r.minCluster {
				out = append(out, Contribution{
					Row:    i,
					Score:  25,
					Reason: reason,
					Flag:   true,
				})
			}
		}
	}
	return out
}

// formatThreshold renders a threshold with thousands separators, 10000 as
// "10,000".
func formatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// HighRiskRule propagates customer-level risk onto individual transactions.
// Rows whose customer has no entry in the risk table are left alone.
type HighRiskRule struct{}

// NewHighRiskRule creates a new high-risk propagation rule.
func NewHighRiskRule() *HighRiskRule { return &HighRiskRule{} }

func (r *HighRiskRule) Name() string { return "high_risk_customer" }

func (r *HighRiskRule) Apply(txns []models.Transaction, batch BatchStats, risk map[string]models.RiskScore) []Contribution {
	var out []Contribution
	for i, txn := range txns {
		rs, ok := risk[txn.NameOrig]
		if !ok {
			continue
		}
		if rs.RiskBand == models.RiskBandHigh || rs.RiskBand == models.RiskBandCritical {
			out = append(out, Contribution{
				Row:    i,
				Score:  0.3 * rs.RiskScoreNormalized,
				Reason: "High-risk customer",
				Flag:   true,
			})
		}
	}
	for i, txn := range txns {
		rs, ok := risk[txn.NameOrig]
		if !ok {
			continue
		}
		if rs.RiskBand == models.RiskBandCritical && txn.Amount > batch.AmountMedian {
			out = append(out, Contribution{
				Row:    i,
				Score:  30,
				Reason: "Critical risk customer large transaction",
			})
		}
	}
	return out
}
