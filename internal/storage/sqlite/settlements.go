package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/storage"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetSettlementSummary retrieves the trip's persisted summary. It returns
// nil and no error when the trip has never been computed.
func (s *SQLiteStore) GetSettlementSummary(ctx context.Context, tripID string) (*models.SettlementSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	return getSummary(ctx, tx, tripID)
}

// GetTransfers retrieves the trip's persisted transfer set in snapshot order.
func (s *SQLiteStore) GetTransfers(ctx context.Context, tripID string) ([]models.MinimalTransfer, error) {
	return getTransfers(ctx, s.db, tripID)
}

// GetSettlement reads the summary and the transfer set in one transaction,
// so both always come from the same ReplaceSettlement.
func (s *SQLiteStore) GetSettlement(ctx context.Context, tripID string) (*models.SettlementSummary, []models.MinimalTransfer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	summary, err := getSummary(ctx, tx, tripID)
	if err != nil || summary == nil {
		return nil, nil, err
	}
	transfers, err := getTransfers(ctx, tx, tripID)
	if err != nil {
		return nil, nil, err
	}
	return summary, transfers, nil
}

func getSummary(ctx context.Context, q queryer, tripID string) (*models.SettlementSummary, error) {
	summary := &models.SettlementSummary{TripID: tripID}
	var computedAt, version int64
	err := q.QueryRowContext(ctx,
		"SELECT base_currency, last_computed_at, expenses_version FROM settlement_summaries WHERE trip_id = ?",
		tripID,
	).Scan(&summary.BaseCurrency, &computedAt, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get settlement summary", err)
	}
	summary.LastComputedAt = fromNanos(computedAt)
	summary.ExpensesVersion = fromNanos(version)

	rows, err := q.QueryContext(ctx,
		`SELECT user_id, total_paid, total_owed, settled_out, settled_in, net
		 FROM person_summaries WHERE trip_id = ?`,
		tripID,
	)
	if err != nil {
		return nil, persistErr("get person summaries", err)
	}
	defer rows.Close()

	summary.PersonSummaries = make(map[string]models.PersonSummary)
	for rows.Next() {
		var p models.PersonSummary
		if err := rows.Scan(&p.UserID, &p.TotalPaidBase, &p.TotalOwedBase,
			&p.SettledOutBase, &p.SettledInBase, &p.NetBase); err != nil {
			return nil, persistErr("scan person summary", err)
		}
		summary.PersonSummaries[p.UserID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate person summaries", err)
	}

	return summary, nil
}

func getTransfers(ctx context.Context, q queryer, tripID string) ([]models.MinimalTransfer, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, trip_id, from_user_id, to_user_id, amount, computed_at, is_settled, settled_at
		 FROM transfers WHERE trip_id = ? ORDER BY position`,
		tripID,
	)
	if err != nil {
		return nil, persistErr("list transfers", err)
	}
	defer rows.Close()

	var transfers []models.MinimalTransfer
	for rows.Next() {
		var t models.MinimalTransfer
		var computedAt int64
		var settledAt sql.NullInt64
		if err := rows.Scan(&t.ID, &t.TripID, &t.FromUserID, &t.ToUserID, &t.AmountBase,
			&computedAt, &t.IsSettled, &settledAt); err != nil {
			return nil, persistErr("scan transfer", err)
		}
		t.ComputedAt = fromNanos(computedAt)
		if settledAt.Valid {
			at := fromNanos(settledAt.Int64)
			t.SettledAt = &at
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate transfers", err)
	}

	return transfers, nil
}

// ReplaceSettlement swaps the trip's summary and transfer set in one transaction.
func (s *SQLiteStore) ReplaceSettlement(ctx context.Context, tripID string, summary models.SettlementSummary, transfers []models.MinimalTransfer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	// Deleting the summary cascades to its person summaries.
	if _, err := tx.ExecContext(ctx, "DELETE FROM settlement_summaries WHERE trip_id = ?", tripID); err != nil {
		return persistErr("delete settlement summary", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM transfers WHERE trip_id = ?", tripID); err != nil {
		return persistErr("delete transfers", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_summaries (trip_id, base_currency, last_computed_at, expenses_version)
		 VALUES (?, ?, ?, ?)`,
		tripID, summary.BaseCurrency, summary.LastComputedAt.UnixNano(), summary.ExpensesVersion.UnixNano(),
	)
	if err != nil {
		return persistErr("insert settlement summary", err)
	}

	for _, p := range summary.PersonSummaries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO person_summaries (trip_id, user_id, total_paid, total_owed, settled_out, settled_in, net)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tripID, p.UserID, p.TotalPaidBase.String(), p.TotalOwedBase.String(),
			p.SettledOutBase.String(), p.SettledInBase.String(), p.NetBase.String(),
		)
		if err != nil {
			return persistErr("insert person summary", err)
		}
	}

	for i, t := range transfers {
		var settledAt any
		if t.SettledAt != nil {
			settledAt = t.SettledAt.UnixNano()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transfers (id, trip_id, position, from_user_id, to_user_id, amount, computed_at, is_settled, settled_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, tripID, i, t.FromUserID, t.ToUserID, t.AmountBase.String(),
			t.ComputedAt.UnixNano(), t.IsSettled, settledAt,
		)
		if err != nil {
			return persistErr("insert transfer", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

// MarkTransferSettled flags a transfer as paid. Marking an already settled
// transfer keeps its original settlement time.
func (s *SQLiteStore) MarkTransferSettled(ctx context.Context, tripID, transferID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transfers SET is_settled = 1, settled_at = ? WHERE id = ? AND trip_id = ? AND is_settled = 0",
		at.UTC().UnixNano(), transferID, tripID,
	)
	if err != nil {
		return persistErr("mark transfer settled", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("mark transfer settled", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx,
		"SELECT 1 FROM transfers WHERE id = ? AND trip_id = ?", transferID, tripID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("transfer %s: %w", transferID, storage.ErrNotFound)
	}
	if err != nil {
		return persistErr("check transfer existence", err)
	}
	return nil
}
