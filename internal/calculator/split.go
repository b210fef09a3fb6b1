package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/money"
)

// shareTolerance bounds how far the assignment shares of a line item may
// drift from 1 (e.g. three shares of 0.3333).
var shareTolerance = decimal.New(1, -4)

// Allocation pairs an expense with its computed contributions.
type Allocation struct {
	Expense       models.Expense
	Contributions []models.ParticipantContribution
}

// AllocateAll allocates every expense. Expenses that fail are left out of
// the allocations and reported individually, in input order.
func AllocateAll(expenses []models.Expense) ([]Allocation, []*SplitError) {
	allocations := make([]Allocation, 0, len(expenses))
	var failures []*SplitError
	for _, e := range expenses {
		contributions, err := Allocate(e)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		allocations = append(allocations, Allocation{Expense: e, Contributions: contributions})
	}
	return allocations, failures
}

// Allocate computes how much each participant owes for one expense.
// The returned contributions follow e.ParticipantIDs order and sum exactly
// to e.Amount.
//
// Algorithm:
//   - Equal: amount in minor units is divided by n; the remainder is handed
//     out one unit at a time from the front of the participant list.
//   - Weighted: all but the last share are amount × w / Σw rounded to the
//     minor unit; the last participant takes what is left.
//   - Itemized: each item is split among its assignees, tax and service charge
//     are spread over item subtotals, and the rounding residual goes to the
//     participant with the largest subtotal (ties: smallest participant ID).
func Allocate(e models.Expense) ([]models.ParticipantContribution, *SplitError) {
	if len(e.ParticipantIDs) == 0 {
		return nil, splitErrorf(e.ID, "expense has no participants")
	}
	if dup, ok := firstDuplicate(e.ParticipantIDs); ok {
		return nil, splitErrorf(e.ID, "participant %q listed twice", dup)
	}
	if !e.Amount.IsPositive() {
		return nil, splitErrorf(e.ID, "amount must be positive, got %s", e.Amount)
	}
	cur, err := money.Lookup(e.Currency)
	if err != nil {
		return nil, splitErrorf(e.ID, "%v", err)
	}
	if !cur.IsExact(e.Amount) {
		return nil, splitErrorf(e.ID, "amount %s is finer than the %s minor unit", e.Amount, cur)
	}

	var amounts []decimal.Decimal
	switch e.SplitKind {
	case models.SplitEqual, "":
		amounts = splitEqual(cur, e.Amount, len(e.ParticipantIDs))
	case models.SplitWeighted:
		weights, serr := orderedWeights(e)
		if serr != nil {
			return nil, serr
		}
		amounts = splitWeighted(cur, e.Amount, weights)
	case models.SplitItemized:
		var serr *SplitError
		amounts, serr = splitItemized(cur, e)
		if serr != nil {
			return nil, serr
		}
	default:
		return nil, splitErrorf(e.ID, "unknown split kind %q", e.SplitKind)
	}

	contributions := make([]models.ParticipantContribution, len(e.ParticipantIDs))
	for i, p := range e.ParticipantIDs {
		contributions[i] = models.ParticipantContribution{ParticipantID: p, Amount: amounts[i]}
	}
	return contributions, nil
}

// splitEqual divides an exact total into n parts differing by at most one
// minor unit. Earlier positions receive the extra units.
func splitEqual(cur money.Currency, total decimal.Decimal, n int) []decimal.Decimal {
	units := total.Shift(cur.MinorUnits).IntPart()
	base := units / int64(n)
	rem := units % int64(n)

	out := make([]decimal.Decimal, n)
	for i := range out {
		share := base
		if int64(i) < rem {
			share++
		}
		out[i] = cur.FromMinor(share)
	}
	return out
}

// splitWeighted divides total proportionally to weights. The last position
// absorbs the rounding so the parts sum to total exactly.
func splitWeighted(cur money.Currency, total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	sum := decimal.Sum(weights[0], weights[1:]...)

	out := make([]decimal.Decimal, n)
	assigned := decimal.Zero
	for i := 0; i < n-1; i++ {
		share := cur.Round(total.Mul(weights[i]).Div(sum))
		// Rounding up a run of shares can overshoot a tiny trailing weight.
		if assigned.Add(share).GreaterThan(total) {
			share = total.Sub(assigned)
		}
		out[i] = share
		assigned = assigned.Add(share)
	}
	out[n-1] = total.Sub(assigned)
	return out
}

func orderedWeights(e models.Expense) ([]decimal.Decimal, *SplitError) {
	if len(e.Weights) == 0 {
		return nil, splitErrorf(e.ID, "weighted split without weights")
	}
	weights := make([]decimal.Decimal, len(e.ParticipantIDs))
	for i, p := range e.ParticipantIDs {
		w, ok := e.Weights[p]
		if !ok {
			return nil, splitErrorf(e.ID, "no weight for participant %q", p)
		}
		if !w.IsPositive() {
			return nil, splitErrorf(e.ID, "weight for %q must be positive, got %s", p, w)
		}
		weights[i] = w
	}
	if len(e.Weights) != len(e.ParticipantIDs) {
		for p := range e.Weights {
			if !contains(e.ParticipantIDs, p) {
				return nil, splitErrorf(e.ID, "weight given for non-participant %q", p)
			}
		}
	}
	return weights, nil
}

func splitItemized(cur money.Currency, e models.Expense) ([]decimal.Decimal, *SplitError) {
	if len(e.LineItems) == 0 {
		return nil, splitErrorf(e.ID, "itemized split without line items")
	}
	extras := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"tax", e.Extras.Tax},
		{"service charge", e.Extras.ServiceCharge},
	}
	for _, x := range extras {
		if x.amount.IsNegative() {
			return nil, splitErrorf(e.ID, "%s must not be negative, got %s", x.name, x.amount)
		}
		if !cur.IsExact(x.amount) {
			return nil, splitErrorf(e.ID, "%s %s is finer than the %s minor unit", x.name, x.amount, cur)
		}
	}

	pos := make(map[string]int, len(e.ParticipantIDs))
	for i, p := range e.ParticipantIDs {
		pos[p] = i
	}
	n := len(e.ParticipantIDs)
	subtotal := zeros(n)
	taxBase := zeros(n)
	serviceBase := zeros(n)
	itemsTotal := decimal.Zero

	for _, li := range e.LineItems {
		if !li.Quantity.IsPositive() {
			return nil, splitErrorf(e.ID, "item %q quantity must be positive, got %s", li.Name, li.Quantity)
		}
		if li.UnitPrice.IsNegative() {
			return nil, splitErrorf(e.ID, "item %q unit price must not be negative, got %s", li.Name, li.UnitPrice)
		}
		if len(li.Assignments) == 0 {
			return nil, splitErrorf(e.ID, "item %q is not assigned to anyone", li.Name)
		}

		shares := make([]decimal.Decimal, len(li.Assignments))
		seen := make(map[string]bool, len(li.Assignments))
		for j, a := range li.Assignments {
			if _, ok := pos[a.ParticipantID]; !ok {
				return nil, splitErrorf(e.ID, "item %q assigned to non-participant %q", li.Name, a.ParticipantID)
			}
			if seen[a.ParticipantID] {
				return nil, splitErrorf(e.ID, "item %q assigns %q twice", li.Name, a.ParticipantID)
			}
			seen[a.ParticipantID] = true
			if !a.Share.IsPositive() {
				return nil, splitErrorf(e.ID, "item %q share for %q must be positive, got %s", li.Name, a.ParticipantID, a.Share)
			}
			shares[j] = a.Share
		}
		if sum := decimal.Sum(shares[0], shares[1:]...); sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(shareTolerance) {
			return nil, splitErrorf(e.ID, "item %q shares sum to %s, want 1", li.Name, sum)
		}

		itemTotal := cur.Round(li.Total())
		itemsTotal = itemsTotal.Add(itemTotal)

		var parts []decimal.Decimal
		if allEqual(shares) {
			parts = splitEqual(cur, itemTotal, len(shares))
		} else {
			parts = splitWeighted(cur, itemTotal, shares)
		}
		for j, a := range li.Assignments {
			p := pos[a.ParticipantID]
			subtotal[p] = subtotal[p].Add(parts[j])
			if li.Taxable {
				taxBase[p] = taxBase[p].Add(parts[j])
			}
			if li.ServiceChargeable {
				serviceBase[p] = serviceBase[p].Add(parts[j])
			}
		}
	}

	grandTotal := itemsTotal.Add(e.Extras.Tax).Add(e.Extras.ServiceCharge)
	if !grandTotal.Equal(e.Amount) {
		return nil, splitErrorf(e.ID, "amount %s does not match items plus extras %s", e.Amount, grandTotal)
	}

	taxShares := spreadProportional(cur, e.Extras.Tax, taxBase, subtotal)
	serviceShares := spreadProportional(cur, e.Extras.ServiceCharge, serviceBase, subtotal)

	totals := make([]decimal.Decimal, n)
	computed := decimal.Zero
	for i := range totals {
		totals[i] = subtotal[i].Add(taxShares[i]).Add(serviceShares[i])
		computed = computed.Add(totals[i])
	}
	if residual := grandTotal.Sub(computed); !residual.IsZero() {
		k := adjustmentTarget(e.ParticipantIDs, subtotal)
		totals[k] = totals[k].Add(residual)
	}
	return totals, nil
}

// spreadProportional rounds each participant's share of extra independently.
// An empty base falls back to item subtotals, then to an equal spread.
func spreadProportional(cur money.Currency, extra decimal.Decimal, base, subtotal []decimal.Decimal) []decimal.Decimal {
	out := zeros(len(base))
	if extra.IsZero() {
		return out
	}
	weights := base
	sum := decimal.Sum(decimal.Zero, weights...)
	if sum.IsZero() {
		weights = subtotal
		sum = decimal.Sum(decimal.Zero, weights...)
	}
	if sum.IsZero() {
		weights = make([]decimal.Decimal, len(base))
		for i := range weights {
			weights[i] = decimal.NewFromInt(1)
		}
		sum = decimal.NewFromInt(int64(len(weights)))
	}
	for i, w := range weights {
		out[i] = cur.Round(extra.Mul(w).Div(sum))
	}
	return out
}

// adjustmentTarget picks who absorbs the itemized rounding residual: the
// largest item subtotal, ties broken by the lexicographically smallest ID.
func adjustmentTarget(ids []string, subtotal []decimal.Decimal) int {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := subtotal[order[a]], subtotal[order[b]]
		if !sa.Equal(sb) {
			return sa.GreaterThan(sb)
		}
		return ids[order[a]] < ids[order[b]]
	})
	return order[0]
}

func zeros(n int) []decimal.Decimal {
	out := make([]decimal.Decimal, n)
	for i := range out {
		out[i] = decimal.Zero
	}
	return out
}

func allEqual(ds []decimal.Decimal) bool {
	for _, d := range ds[1:] {
		if !d.Equal(ds[0]) {
			return false
		}
	}
	return true
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return "", false
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
