package repositories

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
            user_id TEXT PRIMARY KEY,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            updated_at TEXT NOT NULL
        )`,
	`CREATE TABLE IF NOT EXISTS groups (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL,
            is_closed INTEGER NOT NULL DEFAULT 0,
            access_type TEXT NOT NULL DEFAULT 'open' CHECK (access_type IN ('open', 'password')),
            password_hash TEXT NULL,
            share_token TEXT NOT NULL UNIQUE,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            CHECK ((access_type = 'password') = (password_hash IS NOT NULL))
        )`,
	`CREATE INDEX IF NOT EXISTS idx_groups_owner ON groups (owner_id)`,
	`CREATE TABLE IF NOT EXISTS memberships (
            id TEXT PRIMARY KEY,
            group_id TEXT NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
            user_id TEXT NULL,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL,
            phone TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            notifications_enabled INTEGER NOT NULL DEFAULT 0,
            joined_at TEXT NOT NULL,
            departed_at TEXT NULL
        )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS memberships_active_email_key ON memberships (group_id, email) WHERE departed_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS memberships_active_user_key ON memberships (group_id, user_id) WHERE departed_at IS NULL AND user_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id, departed_at)`,
	`CREATE TABLE IF NOT EXISTS notification_events (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            id TEXT NOT NULL UNIQUE,
            group_id TEXT NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
            event_type TEXT NOT NULL CHECK (event_type IN ('member_joined', 'member_left', 'group_closed')),
            data TEXT NOT NULL DEFAULT '{}',
            created_at TEXT NOT NULL
        )`,
	`CREATE INDEX IF NOT EXISTS idx_notification_events_group ON notification_events (group_id, seq)`,
	`CREATE TABLE IF NOT EXISTS relay_cursors (
            name TEXT PRIMARY KEY,
            seq INTEGER NOT NULL DEFAULT 0
        )`,
}

// SQLite serializes writers, so row locks are not needed.
var sqliteDialect = &dialect{
	name:       "sqlite",
	schema:     sqliteSchema,
	lockSuffix: func(Lock) string { return "" },
	mapError:   mapSQLiteError,
}

// NewSQLiteStore builds a Store backed by SQLite and ensures its schema.
func NewSQLiteStore(db *sql.DB) (Store, error) {
	return newSQLStore(db, sqliteDialect)
}

func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return err
	}
	if sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
		return err
	}
	msg := sqErr.Error()
	switch {
	case strings.Contains(msg, "groups.share_token"):
		return ErrShareTokenTaken
	case strings.Contains(msg, "memberships.user_id"):
		return ErrDuplicateActiveUser
	case strings.Contains(msg, "memberships.email"):
		return ErrDuplicateActiveEmail
	default:
		return err
	}
}
