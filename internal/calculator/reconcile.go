package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripsettle/internal/models"
)

// DefaultTolerance is the remaining amount at or below which a pair with
// settled history counts as fully discharged.
var DefaultTolerance = decimal.New(1, -2)

// ReconcileInput is everything the reconciler needs for one trip.
type ReconcileInput struct {
	TripID       string
	BaseCurrency string

	// Summaries are fresh from Summarize.
	Summaries map[string]models.PersonSummary

	// Raw transfers are fresh from NetPairwise.
	Raw []RawTransfer

	// Prior is the trip's currently persisted transfer set. Only entries
	// with IsSettled are read.
	Prior []models.MinimalTransfer

	Tolerance decimal.Decimal
	Now       time.Time

	// NewID generates IDs for new unsettled transfers.
	NewID func() string
}

// Reconcile folds previously settled transfers into a fresh computation and
// returns the next snapshot.
//
// Algorithm:
//  1. Index settled amounts by pair.
//  2. Credit each settled payer and debit each settled receiver, so their
//     net balances reflect the discharged debt.
//  3. For every pair, subtract the settled amount from the raw netted debt.
//     Pairs without settled history keep their raw transfer. Pairs with
//     history emit the remainder when it exceeds the tolerance, in whichever
//     direction it points (an overpayment flips the direction).
//
// Settled transfers are carried into the result unchanged; unsettled ones
// get fresh IDs. The result depends only on the inputs, so recomputing with
// the same expenses and settled history yields the same amounts.
func Reconcile(in ReconcileInput) (models.SettlementSummary, []models.MinimalTransfer) {
	summaries := make(map[string]models.PersonSummary, len(in.Summaries))
	for id, s := range in.Summaries {
		summaries[id] = s
	}
	get := func(id string) models.PersonSummary {
		if s, ok := summaries[id]; ok {
			return s
		}
		return *newSummary(id)
	}

	// Signed per unordered pair: positive means pair.From owes pair.To.
	settled := make(map[Pair]decimal.Decimal)
	var history []models.MinimalTransfer
	for _, t := range in.Prior {
		if !t.IsSettled {
			continue
		}
		history = append(history, t)

		from := get(t.FromUserID)
		from.SettledOutBase = from.SettledOutBase.Add(t.AmountBase)
		summaries[t.FromUserID] = from

		to := get(t.ToUserID)
		to.SettledInBase = to.SettledInBase.Add(t.AmountBase)
		summaries[t.ToUserID] = to

		key := canonical(Pair{From: t.FromUserID, To: t.ToUserID})
		settled[key] = settled[key].Add(signed(key, t.FromUserID, t.AmountBase).Neg())
	}

	for id, s := range summaries {
		s.NetBase = s.TotalPaidBase.Sub(s.TotalOwedBase).Add(s.SettledOutBase).Sub(s.SettledInBase)
		summaries[id] = s
	}

	remaining := make(map[Pair]decimal.Decimal, len(in.Raw)+len(settled))
	for _, r := range in.Raw {
		key := canonical(Pair{From: r.From, To: r.To})
		remaining[key] = remaining[key].Add(signed(key, r.From, r.Amount))
	}
	for key, amt := range settled {
		remaining[key] = remaining[key].Add(amt)
	}

	var transfers []models.MinimalTransfer
	for _, key := range unorderedPairs(remaining) {
		amount := remaining[key]
		if _, hasHistory := settled[key]; hasHistory && amount.Abs().LessThanOrEqual(in.Tolerance) {
			continue
		}
		if amount.IsZero() {
			continue
		}
		t := models.MinimalTransfer{
			ID:         in.NewID(),
			TripID:     in.TripID,
			FromUserID: key.From,
			ToUserID:   key.To,
			AmountBase: amount,
			ComputedAt: in.Now,
		}
		if amount.IsNegative() {
			t.FromUserID, t.ToUserID = key.To, key.From
			t.AmountBase = amount.Neg()
		}
		transfers = append(transfers, t)
	}
	sort.SliceStable(transfers, func(i, j int) bool {
		return pairLess(Pair{transfers[i].FromUserID, transfers[i].ToUserID}, Pair{transfers[j].FromUserID, transfers[j].ToUserID})
	})

	summary := models.SettlementSummary{
		TripID:          in.TripID,
		BaseCurrency:    in.BaseCurrency,
		PersonSummaries: summaries,
		LastComputedAt:  in.Now,
	}
	return summary, append(transfers, history...)
}

// signed orients amount for a canonical pair: positive when from is key.From.
func signed(key Pair, from string, amount decimal.Decimal) decimal.Decimal {
	if from == key.From {
		return amount
	}
	return amount.Neg()
}
