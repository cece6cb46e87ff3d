package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
//
// Prices and price deltas are stored as TEXT holding canonical decimal
// strings; comparisons in queries go through CAST(... AS REAL).
// change_logs is insert-only: no code path updates or deletes rows, they
// only disappear when their item is deleted (ON DELETE CASCADE).
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    email         TEXT NOT NULL,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    is_admin      INTEGER NOT NULL DEFAULT 0,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS categories (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id                  INTEGER PRIMARY KEY,
    name                TEXT NOT NULL,
    description         TEXT,
    quantity            INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
    price               TEXT NOT NULL DEFAULT '0',
    low_stock_threshold INTEGER,
    category_id         INTEGER REFERENCES categories(id) ON DELETE SET NULL,
    owner_id            INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    image               BLOB,
    image_mime          TEXT,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category_id);
CREATE INDEX IF NOT EXISTS idx_items_name ON items(name);

CREATE TABLE IF NOT EXISTS change_logs (
    id              INTEGER PRIMARY KEY,
    item_id         INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    change_quantity INTEGER,
    change_price    TEXT,
    reason          TEXT NOT NULL,
    details         TEXT,
    changed_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    changed_by      INTEGER NOT NULL REFERENCES users(id),
    CHECK (change_quantity IS NOT NULL OR change_price IS NOT NULL OR details IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_change_logs_item ON change_logs(item_id);
CREATE INDEX IF NOT EXISTS idx_change_logs_changed_at ON change_logs(changed_at);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
