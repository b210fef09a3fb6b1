// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/tripsettle/internal/models"
	"github.com/mmynk/tripsettle/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; snapshot swaps are never interleaved.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrip persists a new trip with its participants.
func (s *SQLiteStore) CreateTrip(ctx context.Context, trip *models.Trip) error {
	if trip.ID == "" {
		trip.ID = uuid.New().String()
	}
	if trip.CreatedAt.IsZero() {
		trip.CreatedAt = s.now().UTC()
	}
	if trip.ExpensesUpdatedAt.IsZero() {
		trip.ExpensesUpdatedAt = trip.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO trips (id, name, base_currency, created_at, expenses_updated_at) VALUES (?, ?, ?, ?, ?)",
		trip.ID, trip.Name, trip.BaseCurrency, trip.CreatedAt.UnixNano(), trip.ExpensesUpdatedAt.UnixNano(),
	)
	if err != nil {
		return persistErr("insert trip", err)
	}

	for i, userID := range trip.Participants {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO trip_participants (trip_id, position, user_id) VALUES (?, ?, ?)",
			trip.ID, i, userID,
		)
		if err != nil {
			return persistErr("insert trip participant", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("commit transaction", err)
	}
	return nil
}

// GetTrip retrieves a trip by ID, including its participants.
func (s *SQLiteStore) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	trip := &models.Trip{}
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, base_currency, created_at, expenses_updated_at FROM trips WHERE id = ?",
		tripID,
	).Scan(&trip.ID, &trip.Name, &trip.BaseCurrency, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip %s: %w", tripID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get trip", err)
	}
	trip.CreatedAt = fromNanos(createdAt)
	trip.ExpensesUpdatedAt = fromNanos(updatedAt)

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM trip_participants WHERE trip_id = ? ORDER BY position",
		tripID,
	)
	if err != nil {
		return nil, persistErr("get trip participants", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, persistErr("scan trip participant", err)
		}
		trip.Participants = append(trip.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate trip participants", err)
	}

	return trip, nil
}

// touchTrip bumps the trip's expense change marker inside tx. The marker
// strictly increases even when the clock does not.
func touchTrip(ctx context.Context, tx *sql.Tx, tripID string, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE trips SET expenses_updated_at = MAX(expenses_updated_at + 1, ?) WHERE id = ?",
		at.UnixNano(), tripID,
	)
	if err != nil {
		return persistErr("touch trip", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("touch trip", err)
	}
	if n == 0 {
		return fmt.Errorf("trip %s: %w", tripID, storage.ErrNotFound)
	}
	return nil
}

func persistErr(op string, err error) error {
	return &storage.PersistenceError{Op: op, Err: err}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
