package sqlite

import "database/sql"

// schema sets up the database tables. It runs on startup to ensure tables exist.
// Money columns are TEXT holding exact decimal strings. Timestamps are Unix nanoseconds.
// IMPORTANT: trips must be created BEFORE every table that references it.
const schema = `
CREATE TABLE IF NOT EXISTS trips (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    base_currency TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expenses_updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trip_participants (
    trip_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (trip_id, user_id),
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    trip_id TEXT NOT NULL,
    description TEXT NOT NULL,
    payer_user_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    split_kind TEXT NOT NULL,
    tax TEXT NOT NULL DEFAULT '0',
    service_charge TEXT NOT NULL DEFAULT '0',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_participants (
    expense_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (expense_id, position),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS expense_weights (
    expense_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    weight TEXT NOT NULL,
    PRIMARY KEY (expense_id, user_id),
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS line_items (
    id TEXT PRIMARY KEY,
    expense_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    quantity TEXT NOT NULL,
    unit_price TEXT NOT NULL,
    taxable INTEGER NOT NULL,
    service_chargeable INTEGER NOT NULL,
    FOREIGN KEY (expense_id) REFERENCES expenses(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS line_item_assignments (
    line_item_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    user_id TEXT NOT NULL,
    share TEXT NOT NULL,
    PRIMARY KEY (line_item_id, position),
    FOREIGN KEY (line_item_id) REFERENCES line_items(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS settlement_summaries (
    trip_id TEXT PRIMARY KEY,
    base_currency TEXT NOT NULL,
    last_computed_at INTEGER NOT NULL,
    expenses_version INTEGER NOT NULL,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS person_summaries (
    trip_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    total_paid TEXT NOT NULL,
    total_owed TEXT NOT NULL,
    settled_out TEXT NOT NULL,
    settled_in TEXT NOT NULL,
    net TEXT NOT NULL,
    PRIMARY KEY (trip_id, user_id),
    FOREIGN KEY (trip_id) REFERENCES settlement_summaries(trip_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS transfers (
    id TEXT PRIMARY KEY,
    trip_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    from_user_id TEXT NOT NULL,
    to_user_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    computed_at INTEGER NOT NULL,
    is_settled INTEGER NOT NULL DEFAULT 0,
    settled_at INTEGER,
    FOREIGN KEY (trip_id) REFERENCES trips(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_trip_participants_trip_id ON trip_participants(trip_id);
CREATE INDEX IF NOT EXISTS idx_expenses_trip_id ON expenses(trip_id);
CREATE INDEX IF NOT EXISTS idx_line_items_expense_id ON line_items(expense_id);
CREATE INDEX IF NOT EXISTS idx_person_summaries_trip_id ON person_summaries(trip_id);
CREATE INDEX IF NOT EXISTS idx_transfers_trip_id ON transfers(trip_id);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
