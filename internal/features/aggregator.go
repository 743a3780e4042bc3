// Package features builds per-customer behavioral profiles from cleaned
// transaction batches. The aggregator is the first pipeline stage; its
// output feeds the risk scorer.
package features

import (
	"runtime"
	"sort"
	"sync"

	"github.com/savegress/fraudlens/internal/stats"
	"github.com/savegress/fraudlens/pkg/models"
)

// highValuePercentile is the global amount percentile above which a
// transaction counts as high-value for a customer's profile.
const highValuePercentile = 95.0

// Aggregator computes one CustomerFeatures row per distinct origin
// customer in a batch. It is stateless and safe for concurrent use.
type Aggregator struct {
	workers int
}

// NewAggregator creates an aggregator that fans grouped computation out
// across available CPUs.
func NewAggregator() *Aggregator {
	return &Aggregator{workers: runtime.NumCPU()}
}

// NewAggregatorWithWorkers creates an aggregator with a fixed worker count.
// Zero or negative falls back to the CPU count.
func NewAggregatorWithWorkers(workers int) *Aggregator {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Aggregator{workers: workers}
}

// HighValueThreshold returns the batch-global 95th-percentile amount.
// It is computed once per run and threaded into Aggregate so multiple
// batches can be profiled independently.
func HighValueThreshold(txns []models.Transaction) float64 {
	if len(txns) == 0 {
		return 0
	}
	amounts := make([]float64, len(txns))
	for i, txn := range txns {
		amounts[i] = txn.Amount
	}
	return stats.Percentile(amounts, highValuePercentile)
}

// Aggregate groups the batch by origin customer and computes every feature
// of the customer profile. Rows come back sorted by customer id so repeated
// runs over the same input produce identical output. Counted categories
// (types, weekend, high-value) are zero-filled, never left missing.
func (a *Aggregator) Aggregate(txns []models.Transaction, highValueThreshold float64) []models.CustomerFeatures {
	if len(txns) == 0 {
		return []models.CustomerFeatures{}
	}

	groups := make(map[string][]int)
	typeSet := make(map[string]struct{})
	for i, txn := range txns {
		groups[txn.NameOrig] = append(groups[txn.NameOrig], i)
		typeSet[string(txn.Type)] = struct{}{}
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)

	customers := make([]string, 0, len(groups))
	for id := range groups {
		customers = append(customers, id)
	}
	sort.Strings(customers)

	results := make([]models.CustomerFeatures, len(customers))

	workers := a.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(customers) {
		workers = len(customers)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				id := customers[i]
				results[i] = buildCustomer(id, groups[id], txns, types, highValueThreshold)
			}
		}()
	}
	for i := range customers {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func buildCustomer(id string, rows []int, txns []models.Transaction, types []string, highValueThreshold float64) models.CustomerFeatures {
	f := models.CustomerFeatures{
		CustomerID: id,
		TypeCounts: make(map[string]int, len(types)),
	}
	for _, t := range types {
		f.TypeCounts[t] = 0
	}

	amounts := make([]float64, len(rows))
	days := make(map[int]struct{})
	recipients := make(map[string]struct{})
	ownTypes := make(map[models.TransactionType]struct{})

	f.FirstDay = txns[rows[0]].Day
	f.LastDay = txns[rows[0]].Day
	f.MinAmount = txns[rows[0]].Amount

	for i, row := range rows {
		txn := txns[row]
		amounts[i] = txn.Amount

		f.TotalAmount += txn.Amount
		if txn.Amount > f.MaxAmount {
			f.MaxAmount = txn.Amount
		}
		if txn.Amount < f.MinAmount {
			f.MinAmount = txn.Amount
		}

		f.TypeCounts[string(txn.Type)]++
		ownTypes[txn.Type] = struct{}{}

		if txn.Day < f.FirstDay {
			f.FirstDay = txn.Day
		}
		if txn.Day > f.LastDay {
			f.LastDay = txn.Day
		}
		days[txn.Day] = struct{}{}
		recipients[txn.NameDest] = struct{}{}

		if txn.Hour >= 0 && txn.Hour < 6 {
			f.NightTransactions++
		}
		if txn.Day%7 >= 5 {
			f.WeekendTransactions++
		}
		if txn.Amount > highValueThreshold {
			f.HighValueTransactions++
		}
	}

	count := len(rows)
	f.TransactionCount = count
	f.AvgAmount = stats.Mean(amounts)
	f.MedianAmount = stats.Median(amounts)
	f.StdAmount = stats.StdDev(amounts, f.AvgAmount)
	f.UniqueDaysActive = len(days)
	f.UniqueRecipients = len(recipients)
	f.TransactionTypeDiversity = len(ownTypes)

	// The span is floored to one day so per-day rates never divide by zero.
	f.DaysSinceFirst = f.LastDay - f.FirstDay
	if f.DaysSinceFirst == 0 {
		f.DaysSinceFirst = 1
	}

	f.TransactionsPerDay = float64(count) / float64(f.DaysSinceFirst)
	f.AmountPerDay = f.TotalAmount / float64(f.DaysSinceFirst)
	f.NightTransactionRatio = float64(f.NightTransactions) / float64(count)
	f.HighValueRatio = float64(f.HighValueTransactions) / float64(count)
	if f.TotalAmount > 0 {
		f.MaxSingleTransactionRatio = f.MaxAmount / f.TotalAmount
	}
	f.TransactionRegularity = f.StdAmount / (f.AvgAmount + 1)

	f.TransactionsPerDay = stats.Sanitize(f.TransactionsPerDay)
	f.AmountPerDay = stats.Sanitize(f.AmountPerDay)
	f.NightTransactionRatio = stats.Sanitize(f.NightTransactionRatio)
	f.HighValueRatio = stats.Sanitize(f.HighValueRatio)
	f.MaxSingleTransactionRatio = stats.Sanitize(f.MaxSingleTransactionRatio)
	f.TransactionRegularity = stats.Sanitize(f.TransactionRegularity)

	return f
}
