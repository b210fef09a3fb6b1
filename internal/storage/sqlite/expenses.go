package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/storage"
)

// CreateExpense persists a new expense with its participants, weights and
// line items, and bumps the trip's expense change marker.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	now := s.now().UTC()
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = now
	}
	expense.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := touchTrip(ctx, tx, expense.TripID, now); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, trip_id, description, payer_user_id, amount, currency, split_kind,
		 tax, service_charge, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		expense.ID, expense.TripID, expense.Description, expense.PayerUserID,
		expense.Amount.String(), expense.Currency, string(expense.SplitKind),
		expense.Extras.Tax.String(), expense.Extras.ServiceCharge.String(),
		expense.CreatedAt.UnixNano(), expense.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return persistErr("insert expense", err)
	}

	for i, userID := range expense.ParticipantIDs {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_participants (expense_id, position, user_id) VALUES (?, ?, ?)",
			expense.ID, i, userID,
		)
		if err != nil {
			return persistErr("insert expense participant", err)
		}
	}

	for userID, weight := range expense.Weights {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO expense_weights (expense_id, user_id, weight) VALUES (?, ?, ?)",
			expense.ID, userID, weight.String(),
		)
		if err != nil {
			return persistErr("insert expense weight", err)
		}
	}

	for i := range expense.LineItems {
		item := &expense.LineItems[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO line_items (id, expense_id, position, name, quantity, unit_price, taxable, service_chargeable)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, expense.ID, i, item.Name, item.Quantity.String(), item.UnitPrice.String(),
			item.Taxable, item.ServiceChargeable,
		)
		if err != nil {
			return persistErr("insert line item", err)
		}

		for j, a := range item.Assignments {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO line_item_assignments (line_item_id, position, user_id, share) VALUES (?, ?, ?, ?)",
				item.ID, j, a.ParticipantID, a.Share.String(),
			)
			if err != nil {
				return persistErr("insert line item assignment", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

// DeleteExpense removes an expense and bumps the trip's expense change marker.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, tripID, expenseID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND trip_id = ?", expenseID, tripID)
	if err != nil {
		return persistErr("delete expense", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("delete expense", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}

	if err := touchTrip(ctx, tx, tripID, s.now().UTC()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

// GetExpensesByTrip retrieves every expense of a trip, oldest first.
// An unknown trip yields an error wrapping storage.ErrNotFound.
func (s *SQLiteStore) GetExpensesByTrip(ctx context.Context, tripID string) ([]models.Expense, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM trips WHERE id = ?", tripID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", tripID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("check trip existence", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trip_id, description, payer_user_id, amount, currency, split_kind,
		 tax, service_charge, created_at, updated_at
		 FROM expenses WHERE trip_id = ? ORDER BY created_at, id`,
		tripID,
	)
	if err != nil {
		return nil, persistErr("list expenses", err)
	}

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		var kind string
		var createdAt, updatedAt int64
		if err := rows.Scan(&e.ID, &e.TripID, &e.Description, &e.PayerUserID, &e.Amount, &e.Currency, &kind,
			&e.Extras.Tax, &e.Extras.ServiceCharge, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, persistErr("scan expense", err)
		}
		e.SplitKind = models.SplitKind(kind)
		e.CreatedAt = fromNanos(createdAt)
		e.UpdatedAt = fromNanos(updatedAt)
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate expenses", err)
	}

	// Children are loaded after the parent cursor is closed; the store holds one connection.
	for i := range expenses {
		if err := s.loadExpenseDetails(ctx, &expenses[i]); err != nil {
			return nil, err
		}
	}
	return expenses, nil
}

func (s *SQLiteStore) loadExpenseDetails(ctx context.Context, e *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM expense_participants WHERE expense_id = ? ORDER BY position", e.ID)
	if err != nil {
		return persistErr("get expense participants", err)
	}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return persistErr("scan expense participant", err)
		}
		e.ParticipantIDs = append(e.ParticipantIDs, userID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return persistErr("iterate expense participants", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT user_id, weight FROM expense_weights WHERE expense_id = ?", e.ID)
	if err != nil {
		return persistErr("get expense weights", err)
	}
	for rows.Next() {
		var userID string
		var weight decimal.Decimal
		if err := rows.Scan(&userID, &weight); err != nil {
			rows.Close()
			return persistErr("scan expense weight", err)
		}
		if e.Weights == nil {
			e.Weights = make(map[string]decimal.Decimal)
		}
		e.Weights[userID] = weight
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return persistErr("iterate expense weights", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, name, quantity, unit_price, taxable, service_chargeable
		 FROM line_items WHERE expense_id = ? ORDER BY position`, e.ID)
	if err != nil {
		return persistErr("get line items", err)
	}
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Quantity, &item.UnitPrice,
			&item.Taxable, &item.ServiceChargeable); err != nil {
			rows.Close()
			return persistErr("scan line item", err)
		}
		e.LineItems = append(e.LineItems, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return persistErr("iterate line items", err)
	}

	for i := range e.LineItems {
		item := &e.LineItems[i]
		rows, err := s.db.QueryContext(ctx,
			"SELECT user_id, share FROM line_item_assignments WHERE line_item_id = ? ORDER BY position", item.ID)
		if err != nil {
			return persistErr("get line item assignments", err)
		}
		for rows.Next() {
			var a models.Assignment
			if err := rows.Scan(&a.ParticipantID, &a.Share); err != nil {
				rows.Close()
				return persistErr("scan line item assignment", err)
			}
			item.Assignments = append(item.Assignments, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return persistErr("iterate line item assignments", err)
		}
	}
	return nil
}
