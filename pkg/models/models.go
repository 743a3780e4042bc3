package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of ledger transaction
type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "TRANSFER"
	TransactionTypeCashOut  TransactionType = "CASH_OUT"
	TransactionTypeCashIn   TransactionType = "CASH_IN"
	TransactionTypePayment  TransactionType = "PAYMENT"
	TransactionTypeDebit    TransactionType = "DEBIT"
	TransactionTypeUnknown  TransactionType = "UNKNOWN"
)

// TimePeriod represents the time-of-day bucket derived from the hour of a step
type TimePeriod string

const (
	TimePeriodNight     TimePeriod = "Night"     // hour in [0,6)
	TimePeriodMorning   TimePeriod = "Morning"   // hour in [6,12)
	TimePeriodAfternoon TimePeriod = "Afternoon" // hour in [12,18)
	TimePeriodEvening   TimePeriod = "Evening"   // hour in [18,24)
)

// Transaction represents a single cleaned ledger event. Step is the ledger's
// monotone time unit; hour, day and time period are derived from it by the
// cleaner and read-only afterwards.
type Transaction struct {
	Step       int             `json:"step"`
	Type       TransactionType `json:"type"`
	Amount     float64         `json:"amount"`
	NameOrig   string          `json:"nameOrig"`
	NameDest   string          `json:"nameDest"`
	Hour       int             `json:"hour"`
	Day        int             `json:"day"`
	TimePeriod TimePeriod      `json:"time_period"`
}

// CustomerFeatures holds the behavioral profile of one origin customer,
// aggregated over a complete transaction batch. TypeCounts is zero-filled
// over every transaction type observed in the batch so the schema is
// identical for all customers.
type CustomerFeatures struct {
	CustomerID                string         `json:"customer_id"`
	TransactionCount          int            `json:"transaction_count"`
	TotalAmount               float64        `json:"total_amount"`
	AvgAmount                 float64        `json:"avg_amount"`
	MedianAmount              float64        `json:"median_amount"`
	MaxAmount                 float64        `json:"max_amount"`
	MinAmount                 float64        `json:"min_amount"`
	StdAmount                 float64        `json:"std_amount"`
	TypeCounts                map[string]int `json:"type_counts"`
	FirstDay                  int            `json:"first_day"`
	LastDay                   int            `json:"last_day"`
	UniqueDaysActive          int            `json:"unique_days_active"`
	NightTransactions         int            `json:"night_transactions"`
	UniqueRecipients          int            `json:"unique_recipients"`
	DaysSinceFirst            int            `json:"days_since_first"`
	TransactionsPerDay        float64        `json:"transactions_per_day"`
	AmountPerDay              float64        `json:"amount_per_day"`
	NightTransactionRatio     float64        `json:"night_transaction_ratio"`
	MaxSingleTransactionRatio float64        `json:"max_single_transaction_ratio"`
	HighValueTransactions     int            `json:"high_value_transactions"`
	HighValueRatio            float64        `json:"high_value_ratio"`
	TransactionTypeDiversity  int            `json:"transaction_type_diversity"`
	WeekendTransactions       int            `json:"weekend_transactions"`
	TransactionRegularity     float64        `json:"transaction_regularity"`
}

// RiskBand represents the ordinal risk classification of a customer
type RiskBand string

const (
	RiskBandLow      RiskBand = "Low"
	RiskBandMedium   RiskBand = "Medium"
	RiskBandHigh     RiskBand = "High"
	RiskBandCritical RiskBand = "Critical"
)

// RiskBandLevel returns the ordinal position of a band, with Low as 0.
// Unknown bands map below Low so absent joins never count as risky.
func RiskBandLevel(b RiskBand) int {
	switch b {
	case RiskBandLow:
		return 0
	case RiskBandMedium:
		return 1
	case RiskBandHigh:
		return 2
	case RiskBandCritical:
		return 3
	default:
		return -1
	}
}

// RiskScore represents the composite risk assessment of one customer.
// ZScores is keyed "z_<feature>"; the trailing fields are raw feature copies
// carried along for reporting.
type RiskScore struct {
	CustomerID            string             `json:"customer_id"`
	RiskScore             float64            `json:"risk_score"`
	RiskScoreNormalized   float64            `json:"risk_score_normalized"`
	RiskBand              RiskBand           `json:"risk_band"`
	ZScores               map[string]float64 `json:"z_scores"`
	TransactionCount      int                `json:"transaction_count"`
	TotalAmount           float64            `json:"total_amount"`
	AvgAmount             float64            `json:"avg_amount"`
	MaxAmount             float64            `json:"max_amount"`
	TransactionsPerDay    float64            `json:"transactions_per_day"`
	UniqueRecipients      int                `json:"unique_recipients"`
	NightTransactionRatio float64            `json:"night_transaction_ratio"`
	HighValueRatio        float64            `json:"high_value_ratio"`
}

// FlaggedTransaction represents a transaction annotated by the detection
// rules. RiskScoreNormalized is nil and RiskBand empty when the origin
// customer has no row in the risk table; such rows are never eligible for
// the high-risk propagation rule.
type FlaggedTransaction struct {
	Transaction
	RiskScoreNormalized *float64 `json:"risk_score_normalized"`
	RiskBand            RiskBand `json:"risk_band,omitempty"`
	IsSuspicious        bool     `json:"is_suspicious"`
	SuspicionScore      float64  `json:"suspicion_score"`
	SuspicionReasons    string   `json:"suspicion_reasons"`
}

// RunStatus represents the lifecycle state of an analysis run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// AnalysisRun represents one end-to-end pipeline execution over a batch
type AnalysisRun struct {
	ID                  string     `json:"id"`
	Source              string     `json:"source"`
	Status              RunStatus  `json:"status"`
	Stage               string     `json:"stage,omitempty"`
	Progress            int        `json:"progress"`
	TotalTransactions   int        `json:"total_transactions"`
	CleanedTransactions int        `json:"cleaned_transactions"`
	CustomersScored     int        `json:"customers_scored"`
	FlaggedCount        int        `json:"flagged_count"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// ValidationReport summarizes the quality of a raw transaction file before
// cleaning. Valid is false only for fatal conditions (missing columns, no
// usable rows); counts describe soft issues the cleaner repairs or drops.
type ValidationReport struct {
	TotalRows        int            `json:"total_rows"`
	MissingValues    map[string]int `json:"missing_values"`
	NegativeAmounts  int            `json:"negative_amounts"`
	ZeroAmounts      int            `json:"zero_amounts"`
	DuplicateRows    int            `json:"duplicate_rows"`
	TypeDistribution map[string]int `json:"type_distribution"`
	Issues           []string       `json:"issues,omitempty"`
	Valid            bool           `json:"valid"`
}

// CleaningSummary records what the cleaner changed or dropped
type CleaningSummary struct {
	RowsIn                int `json:"rows_in"`
	RowsOut               int `json:"rows_out"`
	DroppedInvalidAmount  int `json:"dropped_invalid_amount"`
	DroppedInvalidStep    int `json:"dropped_invalid_step"`
	DroppedNegativeAmount int `json:"dropped_negative_amount"`
	DroppedDuplicates     int `json:"dropped_duplicates"`
	FilledUnknown         int `json:"filled_unknown"`
}

// BandCount is one row of the risk band distribution
type BandCount struct {
	Band    RiskBand `json:"band"`
	Count   int      `json:"count"`
	Percent float64  `json:"percent"`
}

// ReasonCount is one row of the suspicion reason frequency analysis
type ReasonCount struct {
	Reason  string  `json:"reason"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// TypeBreakdown summarizes flagged transactions of one type
type TypeBreakdown struct {
	Type    TransactionType `json:"type"`
	Count   int             `json:"count"`
	Percent float64         `json:"percent"`
	Volume  decimal.Decimal `json:"volume"`
}

// AnalysisReport is the reporting view over a completed run: dataset
// overview, flag overview, distributions and the top offender lists.
type AnalysisReport struct {
	GeneratedAt          time.Time            `json:"generated_at"`
	TotalTransactions    int                  `json:"total_transactions"`
	UniqueCustomers      int                  `json:"unique_customers"`
	TotalVolume          decimal.Decimal      `json:"total_volume"`
	AvgTransactionAmount decimal.Decimal      `json:"avg_transaction_amount"`
	FlaggedCount         int                  `json:"flagged_count"`
	FlaggedRate          float64              `json:"flagged_rate"`
	FlaggedVolume        decimal.Decimal      `json:"flagged_volume"`
	BandDistribution     []BandCount          `json:"band_distribution"`
	TopRiskCustomers     []RiskScore          `json:"top_risk_customers"`
	ReasonCounts         []ReasonCount        `json:"reason_counts"`
	TopSuspicious        []FlaggedTransaction `json:"top_suspicious"`
	FlaggedByType        []TypeBreakdown      `json:"flagged_by_type"`
	CriticalCustomers    int                  `json:"critical_customers"`
	HighRiskCustomers    int                  `json:"high_risk_customers"`
	HighSuspicionCount   int                  `json:"high_suspicion_count"`
}
