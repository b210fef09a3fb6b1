package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripsettle/internal/models"
)

// Validate checks the ledger invariants of a reconciled snapshot and returns
// a *ValidationError listing every violation, or nil.
//
// Checks:
//   - net balances sum to zero, and each net matches its own totals
//   - every transfer is positive and between two different known participants
//   - at most one open transfer per pair, never one in each direction
//   - each participant's net is cleared by their open transfers, within
//     tolerance for every counterparty pair that was dropped as discharged
func Validate(summary models.SettlementSummary, transfers []models.MinimalTransfer, tolerance decimal.Decimal) error {
	var violations []string

	ids := make([]string, 0, len(summary.PersonSummaries))
	for id := range summary.PersonSummaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := decimal.Zero
	for _, id := range ids {
		s := summary.PersonSummaries[id]
		total = total.Add(s.NetBase)
		want := s.TotalPaidBase.Sub(s.TotalOwedBase).Add(s.SettledOutBase).Sub(s.SettledInBase)
		if !s.NetBase.Equal(want) {
			violations = append(violations, fmt.Sprintf("participant %s: net %s does not match totals %s", id, s.NetBase, want))
		}
	}
	if !total.IsZero() {
		violations = append(violations, fmt.Sprintf("net balances sum to %s, want 0", total))
	}

	open := make(map[Pair]int)
	flow := make(map[string]decimal.Decimal, len(ids))
	for _, t := range transfers {
		if !t.AmountBase.IsPositive() {
			violations = append(violations, fmt.Sprintf("transfer %s (%s->%s) has non-positive amount %s", t.ID, t.FromUserID, t.ToUserID, t.AmountBase))
		}
		if t.FromUserID == t.ToUserID {
			violations = append(violations, fmt.Sprintf("transfer %s pays %s to themselves", t.ID, t.FromUserID))
		}
		for _, party := range []string{t.FromUserID, t.ToUserID} {
			if _, ok := summary.PersonSummaries[party]; !ok {
				violations = append(violations, fmt.Sprintf("transfer %s references unknown participant %s", t.ID, party))
			}
		}
		if t.IsSettled {
			continue
		}
		open[Pair{From: t.FromUserID, To: t.ToUserID}]++
		flow[t.FromUserID] = flow[t.FromUserID].Add(t.AmountBase)
		flow[t.ToUserID] = flow[t.ToUserID].Sub(t.AmountBase)
	}

	for _, key := range unorderedPairs(open) {
		forward, backward := open[key], open[Pair{From: key.To, To: key.From}]
		if forward > 1 {
			violations = append(violations, fmt.Sprintf("duplicate open transfers %s->%s", key.From, key.To))
		}
		if backward > 1 {
			violations = append(violations, fmt.Sprintf("duplicate open transfers %s->%s", key.To, key.From))
		}
		if forward > 0 && backward > 0 {
			violations = append(violations, fmt.Sprintf("pair %s/%s has open transfers in both directions", key.From, key.To))
		}
	}

	allowance := tolerance
	if len(ids) > 2 {
		allowance = tolerance.Mul(decimal.NewFromInt(int64(len(ids) - 1)))
	}
	for _, id := range ids {
		residual := summary.PersonSummaries[id].NetBase.Add(flow[id])
		if residual.Abs().GreaterThan(allowance) {
			violations = append(violations, fmt.Sprintf("participant %s: net %s is not cleared by open transfers (residual %s)",
				id, summary.PersonSummaries[id].NetBase, residual))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{TripID: summary.TripID, Violations: violations}
	}
	return nil
}
