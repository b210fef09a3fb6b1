package calculator

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripsettle/internal/models"
)

// Pair is a directed (debtor, creditor) key.
type Pair struct {
	From string
	To   string
}

// RawTransfer is a netted debt between two participants before settled
// history is folded in.
type RawTransfer struct {
	From   string // Person who owes
	To     string // Person who is owed
	Amount decimal.Decimal
}

// included reports whether an allocation passes the currency filter.
// An empty filter admits everything.
func included(a Allocation, currencyFilter string) bool {
	return currencyFilter == "" || strings.EqualFold(a.Expense.Currency, currencyFilter)
}

// Summarize folds allocations into one PersonSummary per participant who
// paid for or shares at least one included expense.
//
// Algorithm:
// - For each expense: payer contributed +amount, each participant owes their contribution
// - Aggregate: net = total_paid - total_owed, computed once at the end
//
// No pairwise netting happens here; see NetPairwise.
func Summarize(allocations []Allocation, currencyFilter string) map[string]models.PersonSummary {
	summaries := make(map[string]*models.PersonSummary)
	get := func(id string) *models.PersonSummary {
		s, ok := summaries[id]
		if !ok {
			s = newSummary(id)
			summaries[id] = s
		}
		return s
	}

	for _, a := range allocations {
		if !included(a, currencyFilter) {
			continue
		}
		payer := get(a.Expense.PayerUserID)
		payer.TotalPaidBase = payer.TotalPaidBase.Add(a.Expense.Amount)

		for _, c := range a.Contributions {
			s := get(c.ParticipantID)
			s.TotalOwedBase = s.TotalOwedBase.Add(c.Amount)
		}
	}

	out := make(map[string]models.PersonSummary, len(summaries))
	for id, s := range summaries {
		s.NetBase = s.TotalPaidBase.Sub(s.TotalOwedBase)
		out[id] = *s
	}
	return out
}

func newSummary(id string) *models.PersonSummary {
	return &models.PersonSummary{
		UserID:         id,
		TotalPaidBase:  decimal.Zero,
		TotalOwedBase:  decimal.Zero,
		SettledOutBase: decimal.Zero,
		SettledInBase:  decimal.Zero,
		NetBase:        decimal.Zero,
	}
}

// NetPairwise derives at most one directed transfer per unordered pair of
// participants, straight from the expenses.
//
// Algorithm:
// - debt[P][payer] += contribution(P) for every non-payer participant P
// - for each pair {A,B}: net = debt[A][B] - debt[B][A]; emit A->B if positive,
//   B->A if negative, nothing if zero
//
// This minimizes transfers per pair only; it does not search for a global
// minimum across the group. Output is sorted by (From, To).
func NetPairwise(allocations []Allocation, currencyFilter string) []RawTransfer {
	debts := make(map[Pair]decimal.Decimal)
	for _, a := range allocations {
		if !included(a, currencyFilter) {
			continue
		}
		payer := a.Expense.PayerUserID
		for _, c := range a.Contributions {
			if c.ParticipantID == payer || c.Amount.IsZero() {
				continue
			}
			key := Pair{From: c.ParticipantID, To: payer}
			debts[key] = debts[key].Add(c.Amount)
		}
	}

	var transfers []RawTransfer
	for _, key := range unorderedPairs(debts) {
		net := debts[key].Sub(debts[Pair{From: key.To, To: key.From}])
		switch net.Sign() {
		case 1:
			transfers = append(transfers, RawTransfer{From: key.From, To: key.To, Amount: net})
		case -1:
			transfers = append(transfers, RawTransfer{From: key.To, To: key.From, Amount: net.Neg()})
		}
	}
	sortRaw(transfers)
	return transfers
}

// unorderedPairs returns each pair once, with From < To, in sorted order.
func unorderedPairs[V any](m map[Pair]V) []Pair {
	seen := make(map[Pair]bool, len(m))
	var pairs []Pair
	for key := range m {
		p := canonical(key)
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairLess(pairs[i], pairs[j]) })
	return pairs
}

func canonical(p Pair) Pair {
	if p.To < p.From {
		return Pair{From: p.To, To: p.From}
	}
	return p
}

func pairLess(a, b Pair) bool {
	if a.From != b.From {
		return a.From < b.From
	}
	return a.To < b.To
}

func sortRaw(ts []RawTransfer) {
	sort.Slice(ts, func(i, j int) bool {
		return pairLess(Pair{ts[i].From, ts[i].To}, Pair{ts[j].From, ts[j].To})
	})
}
