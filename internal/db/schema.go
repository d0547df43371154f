package db

import (
	"database/sql"
	"fmt"
)

// schema is the full server database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'manager', 'user')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS devices (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    serial     TEXT NOT NULL UNIQUE,
    category   TEXT NOT NULL,
    location   TEXT,
    status     TEXT NOT NULL DEFAULT 'inventory'
               CHECK (status IN ('inventory', 'assigned', 'maintenance', 'retired', 'lost')),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS assignments (
    id               INTEGER PRIMARY KEY,
    device_id        INTEGER NOT NULL REFERENCES devices(id),
    user_id          INTEGER NOT NULL REFERENCES users(id),
    requested_by     INTEGER REFERENCES users(id),
    approved_by      INTEGER REFERENCES users(id),
    status           TEXT NOT NULL CHECK (status IN ('pending_approval', 'assigned', 'returned')),
    assigned_at      DATETIME,
    approved_at      DATETIME,
    returned_at      DATETIME,
    notes            TEXT,
    return_condition TEXT,
    return_notes     TEXT,
    return_photo     TEXT,
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_assignments_device ON assignments(device_id, status);

-- A device has at most one active assignment.
CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_device
    ON assignments(device_id) WHERE status = 'assigned';

CREATE TABLE IF NOT EXISTS audit_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    entity     TEXT NOT NULL,
    entity_id  INTEGER NOT NULL,
    action     TEXT NOT NULL,
    old_status TEXT,
    new_status TEXT,
    comments   TEXT,
    actor_id   INTEGER,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity ON audit_logs(entity, entity_id);

CREATE TRIGGER IF NOT EXISTS audit_logs_no_update
    BEFORE UPDATE ON audit_logs
    BEGIN SELECT RAISE(ABORT, 'audit log is append-only'); END;

CREATE TRIGGER IF NOT EXISTS audit_logs_no_delete
    BEFORE DELETE ON audit_logs
    BEGIN SELECT RAISE(ABORT, 'audit log is append-only'); END;

CREATE TABLE IF NOT EXISTS maintenance (
    id          INTEGER PRIMARY KEY,
    device_id   INTEGER NOT NULL REFERENCES devices(id),
    description TEXT NOT NULL,
    created_by  INTEGER REFERENCES users(id),
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS photos (
    id         INTEGER PRIMARY KEY,
    data       BLOB NOT NULL,
    mime       TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sync_receipts (
    key        TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    device_id  INTEGER NOT NULL DEFAULT 0,
    user_id    INTEGER NOT NULL DEFAULT 0,
    result_id  INTEGER NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// clientSchema is the schema of the client-held offline queue file.
const clientSchema = `
CREATE TABLE IF NOT EXISTS queue (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    key         TEXT NOT NULL UNIQUE,
    type        TEXT NOT NULL CHECK (type IN ('assign', 'return')),
    payload     TEXT NOT NULL,
    enqueued_at DATETIME NOT NULL
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

// EnsureClientSchema creates the offline queue tables if they don't already exist.
func EnsureClientSchema(db *sql.DB) error {
	_, err := db.Exec(clientSchema)
	if err != nil {
		return fmt.Errorf("creating client schema: %w", err)
	}
	return nil
}
