package flagging

import (
	"math"
	"testing"

	"github.com/savegress/fraudlens/pkg/models"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func plainTxn(step int, amount float64, orig string) models.Transaction {
	return models.Transaction{
		Step:     step,
		Type:     models.TransactionTypePayment,
		Amount:   amount,
		NameOrig: orig,
		NameDest: "D1",
		Hour:     step % 24,
		Day:      step / 24,
	}
}

func TestAmountOutlierRule(t *testing.T) {
	rule := NewAmountOutlierRule(3.0)
	if rule.Name() != "amount_outlier" {
		t.Errorf("name = %q", rule.Name())
	}

	batch := BatchStats{AmountMean: 100, AmountStd: 10}
	txns := []models.Transaction{
		plainTxn(12, 100, "C1"), // z = 0
		plainTxn(12, 131, "C2"), // z = 3.1
		plainTxn(12, 145, "C3"), // z = 4.5
		plainTxn(12, 60, "C4"),  // z = -4
	}

	contribs := rule.Apply(txns, batch, nil)
	if len(contribs) != 3 {
		t.Fatalf("expected 3 contributions, got %d", len(contribs))
	}

	want := []struct {
		row   int
		score float64
	}{
		{1, 31},
		{2, 45},
		{3, 40},
	}
	for i, w := range want {
		c := contribs[i]
		if c.Row != w.row || !almostEqual(c.Score, w.score) {
			t.Errorf("contribution %d = row %d score %v, want row %d score %v",
				i, c.Row, c.Score, w.row, w.score)
		}
		if c.Reason != "High-value outlier" || !c.Flag {
			t.Errorf("contribution %d = %+v", i, c)
		}
	}
}

func TestAmountOutlierRule_Inert(t *testing.T) {
	rule := NewAmountOutlierRule(3.0)

	// No spread means no z-scores, however extreme the amounts look.
	txns := []models.Transaction{
		plainTxn(12, 100, "C1"),
		plainTxn(12, 1e9, "C2"),
	}
	if got := rule.Apply(txns, BatchStats{AmountMean: 100, AmountStd: 0}, nil); got != nil {
		t.Errorf("zero-std batch produced contributions: %v", got)
	}

	single := []models.Transaction{plainTxn(12, 1e9, "C1")}
	if got := rule.Apply(single, BatchStats{AmountMean: 0, AmountStd: 100}, nil); got != nil {
		t.Errorf("single-row batch produced contributions: %v", got)
	}
}

func TestTimingRule(t *testing.T) {
	rule := NewTimingRule()
	if rule.Name() != "timing" {
		t.Errorf("name = %q", rule.Name())
	}

	batch := BatchStats{AmountP90: 500}
	txns := []models.Transaction{
		{Step: 3, Amount: 100, NameOrig: "C1", Hour: 3, Day: 0},     // late night
		{Step: 150, Amount: 100, NameOrig: "C2", Hour: 6, Day: 6},   // weekend, small
		{Step: 150, Amount: 1000, NameOrig: "C3", Hour: 6, Day: 6},  // weekend, large
		{Step: 60, Amount: 1000, NameOrig: "C4", Hour: 12, Day: 2},  // weekday, large
		{Step: 122, Amount: 1000, NameOrig: "C5", Hour: 2, Day: 5},  // both
	}

	contribs := rule.Apply(txns, batch, nil)
	if len(contribs) != 4 {
		t.Fatalf("expected 4 contributions, got %d: %v", len(contribs), contribs)
	}

	// Late-night contributions come first, then weekend ones.
	if c := contribs[0]; c.Row != 0 || c.Score != 15 || !c.Flag || c.Reason != "Late night transaction" {
		t.Errorf("late night contribution = %+v", c)
	}
	if c := contribs[1]; c.Row != 4 || c.Score != 15 || !c.Flag {
		t.Errorf("late night contribution = %+v", c)
	}
	if c := contribs[2]; c.Row != 2 || c.Score != 10 || c.Flag || c.Reason != "Weekend high-value transaction" {
		t.Errorf("weekend contribution = %+v", c)
	}
	if c := contribs[3]; c.Row != 4 || c.Score != 10 || c.Flag {
		t.Errorf("weekend contribution = %+v", c)
	}
}

func TestVelocityRule_Rapid(t *testing.T) {
	rule := NewVelocityRule()
	if rule.Name() != "velocity" {
		t.Errorf("name = %q", rule.Name())
	}

	txns := []models.Transaction{
		plainTxn(10, 100, "C1"),
		plainTxn(11, 100, "C1"), // delta 1
		plainTxn(50, 100, "C1"), // delta 39
		plainTxn(11, 100, "C2"), // first for C2
	}

	contribs := rule.Apply(txns, BatchStats{}, nil)
	if len(contribs) != 1 {
		t.Fatalf("expected 1 contribution, got %d: %v", len(contribs), contribs)
	}
	c := contribs[0]
	if c.Row != 1 || c.Score != 20 || !c.Flag || c.Reason != "Rapid successive transaction" {
		t.Errorf("rapid contribution = %+v", c)
	}
}

func TestVelocityRule_SameStep(t *testing.T) {
	rule := NewVelocityRule()

	same := []models.Transaction{
		plainTxn(100, 50, "C1"),
		plainTxn(100, 60, "C1"),
	}
	if got := rule.Apply(same, BatchStats{}, nil); len(got) != 1 {
		t.Errorf("two same-step transactions: %d contributions, want 1", len(got))
	}

	apart := []models.Transaction{
		plainTxn(100, 50, "C1"),
		plainTxn(200, 60, "C1"),
	}
	if got := rule.Apply(apart, BatchStats{}, nil); len(got) != 0 {
		t.Errorf("well-spaced transactions: %d contributions, want 0", len(got))
	}
}

func TestVelocityRule_Burst(t *testing.T) {
	rule := NewVelocityRule()

	// Six transactions spaced ten steps apart: no rapid pairs, but the
	// fifth and sixth fill a trailing window of five.
	var txns []models.Transaction
	for i := 0; i < 6; i++ {
		txns = append(txns, plainTxn(10+i*10, 100, "C1"))
	}
	txns = append(txns, plainTxn(10, 100, "C2"))

	contribs := rule.Apply(txns, BatchStats{}, nil)
	if len(contribs) != 2 {
		t.Fatalf("expected 2 burst contributions, got %d: %v", len(contribs), contribs)
	}
	for i, c := range contribs {
		if c.Row != 4+i || c.Score != 15 || c.Flag || c.Reason != "Burst activity detected" {
			t.Errorf("burst contribution %d = %+v", i, c)
		}
	}
}

func TestStructuringRule(t *testing.T) {
	rule := NewStructuringRule()
	if rule.Name() != "structuring" {
		t.Errorf("name = %q", rule.Name())
	}

	txns := []models.Transaction{
		plainTxn(10, 9200, "C1"),
		plainTxn(20, 9300, "C1"),
		plainTxn(30, 9100, "C1"),
		plainTxn(40, 9200, "C2"), // only two for C2
		plainTxn(50, 9300, "C2"),
		plainTxn(60, 4500, "C3"), // three near 5,000
		plainTxn(70, 4600, "C3"),
		plainTxn(80, 4700, "C3"),
	}

	contribs := rule.Apply(txns, BatchStats{}, nil)
	if len(contribs) != 6 {
		t.Fatalf("expected 6 contributions, got %d: %v", len(contribs), contribs)
	}
	for i := 0; i < 3; i++ {
		c := contribs[i]
		if c.Row != i || c.Score != 25 || !c.Flag || c.Reason != "Potential structuring near $10,000" {
			t.Errorf("structuring contribution %d = %+v", i, c)
		}
	}
	for i := 3; i < 6; i++ {
		c := contribs[i]
		if c.Row != i+2 || c.Reason != "Potential structuring near $5,000" {
			t.Errorf("structuring contribution %d = %+v", i, c)
		}
	}
}

func TestStructuringRule_Bounds(t *testing.T) {
	rule := NewStructuringRule()

	// 8500 is inside the 10,000 band, 9900 is just outside it.
	inside := []models.Transaction{
		plainTxn(10, 8500, "C1"),
		plainTxn(20, 8500, "C1"),
		plainTxn(30, 8500, "C1"),
	}
	if got := rule.Apply(inside, BatchStats{}, nil); len(got) != 3 {
		t.Errorf("lower bound: %d contributions, want 3", len(got))
	}

	outside := []models.Transaction{
		plainTxn(10, 9900, "C1"),
		plainTxn(20, 9900, "C1"),
		plainTxn(30, 9900, "C1"),
	}
	if got := rule.Apply(outside, BatchStats{}, nil); len(got) != 0 {
		t.Errorf("upper bound: %d contributions, want 0", len(got))
	}
}

func TestHighRiskRule(t *testing.T) {
	rule := NewHighRiskRule()
	if rule.Name() != "high_risk_customer" {
		t.Errorf("name = %q", rule.Name())
	}

	risk := map[string]models.RiskScore{
		"C_high": {CustomerID: "C_high", RiskScoreNormalized: 80, RiskBand: models.RiskBandHigh},
		"C_crit": {CustomerID: "C_crit", RiskScoreNormalized: 95, RiskBand: models.RiskBandCritical},
		"C_low":  {CustomerID: "C_low", RiskScoreNormalized: 10, RiskBand: models.RiskBandLow},
	}
	batch := BatchStats{AmountMedian: 500}
	txns := []models.Transaction{
		plainTxn(10, 100, "C_high"),
		plainTxn(20, 600, "C_crit"),
		plainTxn(30, 400, "C_crit"), // below median, no large-transaction bump
		plainTxn(40, 9999, "C_low"),
		plainTxn(50, 9999, "C_unknown"),
	}

	contribs := rule.Apply(txns, batch, risk)
	if len(contribs) != 4 {
		t.Fatalf("expected 4 contributions, got %d: %v", len(contribs), contribs)
	}

	if c := contribs[0]; c.Row != 0 || !almostEqual(c.Score, 24) || !c.Flag || c.Reason != "High-risk customer" {
		t.Errorf("high-risk contribution = %+v", c)
	}
	if c := contribs[1]; c.Row != 1 || !almostEqual(c.Score, 28.5) || !c.Flag {
		t.Errorf("critical contribution = %+v", c)
	}
	if c := contribs[2]; c.Row != 2 || !almostEqual(c.Score, 28.5) || !c.Flag {
		t.Errorf("critical contribution = %+v", c)
	}
	if c := contribs[3]; c.Row != 1 || c.Score != 30 || c.Flag || c.Reason != "Critical risk customer large transaction" {
		t.Errorf("large-transaction contribution = %+v", c)
	}
}

func TestFormatThreshold(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{100, "100"},
		{3000, "3,000"},
		{5000, "5,000"},
		{10000, "10,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatThreshold(tt.in); got != tt.want {
			t.Errorf("formatThreshold(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
