package reporting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/savegress/fraudlens/pkg/models"
	"github.com/shopspring/decimal"
)

// RenderText renders the full analyst-facing text report.
func RenderText(r *models.AnalysisReport) string {
	banner := strings.Repeat("=", 80)
	rule := strings.Repeat("-", 80)

	var b strings.Builder
	b.WriteString(banner + "\n")
	b.WriteString("BANK TRANSACTION RISK & ANOMALY ANALYSIS REPORT\n")
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	b.WriteString(banner + "\n\n")

	b.WriteString("EXECUTIVE SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total Transactions Analyzed: %s\n", formatInt(r.TotalTransactions))
	fmt.Fprintf(&b, "Unique Customers Analyzed: %s\n", formatInt(r.UniqueCustomers))
	fmt.Fprintf(&b, "Total Transaction Volume: $%s\n", formatMoney(r.TotalVolume))
	fmt.Fprintf(&b, "Average Transaction Amount: $%s\n", formatMoney(r.AvgTransactionAmount))
	fmt.Fprintf(&b, "\nSuspicious Transactions Detected: %s\n", formatInt(r.FlaggedCount))
	fmt.Fprintf(&b, "Percentage of Flagged Transactions: %.2f%%\n", r.FlaggedRate)
	fmt.Fprintf(&b, "Total Flagged Transaction Volume: $%s\n\n", formatMoney(r.FlaggedVolume))

	b.WriteString("CUSTOMER RISK DISTRIBUTION\n")
	b.WriteString(rule + "\n")
	for _, bc := range r.BandDistribution {
		fmt.Fprintf(&b, "%-12s: %6s customers (%5.2f%%)\n", bc.Band, formatInt(bc.Count), bc.Percent)
	}
	b.WriteString("\n")

	b.WriteString("TOP 20 HIGHEST RISK CUSTOMERS\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-6s%-20s%-12s%-12s%-15s%-15s\n",
		"Rank", "Customer ID", "Risk Score", "Risk Band", "Transactions", "Total Amount")
	b.WriteString(rule + "\n")
	for i, rs := range r.TopRiskCustomers {
		fmt.Fprintf(&b, "%-6d%-20s%11.2f %-12s%-15d$%13s\n",
			i+1, rs.CustomerID, rs.RiskScoreNormalized, rs.RiskBand,
			rs.TransactionCount, formatMoneyFloat(rs.TotalAmount))
	}
	b.WriteString("\n")

	b.WriteString("SUSPICIOUS TRANSACTION REASON ANALYSIS\n")
	b.WriteString(rule + "\n")
	for _, rc := range r.ReasonCounts {
		fmt.Fprintf(&b, "%-50s: %6s (%5.2f%%)\n", rc.Reason, formatInt(rc.Count), rc.Percent)
	}
	b.WriteString("\n")

	b.WriteString("TOP 10 MOST SUSPICIOUS TRANSACTIONS\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "%-15s%-15s%-12s%-18s%-12s\n",
		"Customer", "Amount", "Type", "Suspicion Score", "Risk Band")
	b.WriteString(rule + "\n")
	for _, ft := range r.TopSuspicious {
		fmt.Fprintf(&b, "%-15s$%13s %-12s%17.2f %-12s\n",
			ft.NameOrig, formatMoneyFloat(ft.Amount), ft.Type, ft.SuspicionScore, ft.RiskBand)
	}
	b.WriteString("\n")

	b.WriteString("FLAGGED TRANSACTIONS BY TYPE\n")
	b.WriteString(rule + "\n")
	for _, tb := range r.FlaggedByType {
		fmt.Fprintf(&b, "%-15s: %6s transactions (%5.2f%%) - $%s\n",
			tb.Type, formatInt(tb.Count), tb.Percent, formatMoney(tb.Volume))
	}
	b.WriteString("\n")

	b.WriteString("METHODOLOGY\n")
	b.WriteString(rule + "\n")
	b.WriteString("This analysis employed the following techniques:\n\n")
	b.WriteString("1. Feature Engineering:\n")
	b.WriteString("   - Transaction counts and amounts per customer\n")
	b.WriteString("   - Temporal patterns (daily velocity, time-of-day analysis)\n")
	b.WriteString("   - Behavioral metrics (volatility, regularity, diversity)\n")
	b.WriteString("   - Per-type activity breakdowns\n\n")
	b.WriteString("2. Risk Scoring:\n")
	b.WriteString("   - Z-score normalization for key features\n")
	b.WriteString("   - Weighted composite risk score calculation\n")
	b.WriteString("   - Percentile-based risk band classification\n\n")
	b.WriteString("3. Anomaly Detection:\n")
	b.WriteString("   - Statistical outlier detection (Z-score > 3)\n")
	b.WriteString("   - Timing pattern analysis\n")
	b.WriteString("   - Transaction velocity monitoring\n")
	b.WriteString("   - Structuring pattern detection\n")
	b.WriteString("   - High-risk customer transaction flagging\n\n")

	b.WriteString("RECOMMENDATIONS\n")
	b.WriteString(rule + "\n")
	b.WriteString("1. Immediate Review Required:\n")
	fmt.Fprintf(&b, "   - %d Critical risk customers require immediate investigation\n", r.CriticalCustomers)
	fmt.Fprintf(&b, "   - %d transactions with very high suspicion scores\n\n", r.HighSuspicionCount)
	b.WriteString("2. Enhanced Monitoring:\n")
	fmt.Fprintf(&b, "   - %d High risk customers should be placed under enhanced monitoring\n", r.HighRiskCustomers)
	b.WriteString("   - Implement real-time alerts for transactions from flagged customers\n\n")
	b.WriteString("3. Process Improvements:\n")
	b.WriteString("   - Review transaction limits for high-risk profiles\n")
	b.WriteString("   - Implement additional verification for late-night transactions\n")
	b.WriteString("   - Monitor for structuring patterns across multiple accounts\n\n")

	b.WriteString(banner + "\n")
	b.WriteString("END OF REPORT\n")
	b.WriteString(banner + "\n")
	return b.String()
}

// formatInt renders an integer with thousands separators.
func formatInt(n int) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := groupDigits(strconv.Itoa(n))
	if neg {
		return "-" + s
	}
	return s
}

// formatMoney renders a decimal amount with two places and thousands
// separators.
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	out := groupDigits(s[:dot]) + s[dot:]
	if neg {
		return "-" + out
	}
	return out
}

func formatMoneyFloat(v float64) string {
	return formatMoney(decimal.NewFromFloat(v))
}

func groupDigits(s string) string {
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
