package service

import (
	"sort"

	"github.com/mmynk/tripsettle/internal/calculator"
	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/settlement"
	"github.com/mmynk/tripsettle/pkg/api"
)

func expenseFromAPI(tripID string, e api.Expense) models.Expense {
	kind := models.SplitKind(e.SplitKind)
	if kind == "" {
		kind = models.SplitEqual
	}
	out := models.Expense{
		ID:             e.ID,
		TripID:         tripID,
		Description:    e.Description,
		PayerUserID:    e.PayerID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		ParticipantIDs: e.ParticipantIDs,
		SplitKind:      kind,
		Weights:        e.Weights,
		Extras:         models.Extras{Tax: e.Tax, ServiceCharge: e.ServiceCharge},
	}
	for _, li := range e.LineItems {
		item := models.LineItem{
			Name:              li.Name,
			Quantity:          li.Quantity,
			UnitPrice:         li.UnitPrice,
			Taxable:           li.Taxable,
			ServiceChargeable: li.ServiceChargeable,
		}
		for _, a := range li.Assignments {
			item.Assignments = append(item.Assignments, models.Assignment{ParticipantID: a.ParticipantID, Share: a.Share})
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func expenseToAPI(e models.Expense) api.Expense {
	out := api.Expense{
		ID:             e.ID,
		Description:    e.Description,
		PayerID:        e.PayerUserID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		ParticipantIDs: e.ParticipantIDs,
		SplitKind:      string(e.SplitKind),
		Weights:        e.Weights,
		Tax:            e.Extras.Tax,
		ServiceCharge:  e.Extras.ServiceCharge,
		CreatedAt:      e.CreatedAt,
	}
	for _, li := range e.LineItems {
		item := api.LineItem{
			Name:              li.Name,
			Quantity:          li.Quantity,
			UnitPrice:         li.UnitPrice,
			Taxable:           li.Taxable,
			ServiceChargeable: li.ServiceChargeable,
		}
		for _, a := range li.Assignments {
			item.Assignments = append(item.Assignments, api.Assignment{ParticipantID: a.ParticipantID, Share: a.Share})
		}
		out.LineItems = append(out.LineItems, item)
	}
	return out
}

func tripToAPI(t *models.Trip) api.Trip {
	return api.Trip{
		ID:                t.ID,
		Name:              t.Name,
		BaseCurrency:      t.BaseCurrency,
		Participants:      t.Participants,
		CreatedAt:         t.CreatedAt,
		ExpensesUpdatedAt: t.ExpensesUpdatedAt,
	}
}

// settlementToAPI lists people by user ID and keeps the snapshot's transfer order.
func settlementToAPI(res *settlement.Result) api.Settlement {
	out := api.Settlement{
		TripID:            res.Summary.TripID,
		BaseCurrency:      res.Summary.BaseCurrency,
		LastComputedAt:    res.Summary.LastComputedAt,
		People:            make([]api.PersonSummary, 0, len(res.Summary.PersonSummaries)),
		Transfers:         make([]api.Transfer, 0, len(res.Transfers)),
		SkippedExpenseIDs: res.Skipped,
	}
	for _, p := range res.Summary.PersonSummaries {
		out.People = append(out.People, api.PersonSummary{
			UserID:     p.UserID,
			TotalPaid:  p.TotalPaidBase,
			TotalOwed:  p.TotalOwedBase,
			SettledOut: p.SettledOutBase,
			SettledIn:  p.SettledInBase,
			Net:        p.NetBase,
		})
	}
	sort.Slice(out.People, func(i, j int) bool { return out.People[i].UserID < out.People[j].UserID })

	for _, t := range res.Transfers {
		out.Transfers = append(out.Transfers, api.Transfer{
			ID:         t.ID,
			FromUserID: t.FromUserID,
			ToUserID:   t.ToUserID,
			Amount:     t.AmountBase,
			ComputedAt: t.ComputedAt,
			IsSettled:  t.IsSettled,
			SettledAt:  t.SettledAt,
		})
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, api.SplitFailure{ExpenseID: f.ExpenseID, Reason: f.Reason})
	}
	return out
}

func contributionsToAPI(cs []models.ParticipantContribution) []api.ParticipantAmount {
	out := make([]api.ParticipantAmount, len(cs))
	for i, c := range cs {
		out[i] = api.ParticipantAmount{ParticipantID: c.ParticipantID, Amount: c.Amount}
	}
	return out
}

// allocate wraps calculator.Allocate so a nil *SplitError never becomes a non-nil error.
func allocate(e models.Expense) ([]models.ParticipantContribution, error) {
	cs, serr := calculator.Allocate(e)
	if serr != nil {
		return nil, serr
	}
	return cs, nil
}
