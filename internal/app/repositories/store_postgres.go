package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// EventsChannel is the LISTEN/NOTIFY channel that receives the sequence number of
// every committed notification event.
const EventsChannel = "notification_events"

const eventsAppendLock int64 = 0x6e6f7469667931

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
            user_id TEXT PRIMARY KEY,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE TABLE IF NOT EXISTS groups (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            owner_id TEXT NOT NULL,
            is_closed BOOLEAN NOT NULL DEFAULT FALSE,
            access_type TEXT NOT NULL DEFAULT 'open' CHECK (access_type IN ('open', 'password')),
            password_hash TEXT NULL,
            share_token TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT groups_share_token_key UNIQUE (share_token),
            CONSTRAINT groups_password_hash_check CHECK ((access_type = 'password') = (password_hash IS NOT NULL))
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
            notifications_enabled BOOLEAN NOT NULL DEFAULT FALSE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            departed_at TIMESTAMPTZ NULL
        )`,
	`CREATE UNIQUE INDEX IF NOT EXISTS memberships_active_email_key ON memberships (group_id, email) WHERE departed_at IS NULL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS memberships_active_user_key ON memberships (group_id, user_id) WHERE departed_at IS NULL AND user_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id, departed_at)`,
	`CREATE TABLE IF NOT EXISTS notification_events (
            seq BIGSERIAL PRIMARY KEY,
            id TEXT NOT NULL UNIQUE,
            group_id TEXT NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
            event_type TEXT NOT NULL CHECK (event_type IN ('member_joined', 'member_left', 'group_closed')),
            data JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`,
	`CREATE INDEX IF NOT EXISTS idx_notification_events_group ON notification_events (group_id, seq)`,
	`CREATE TABLE IF NOT EXISTS relay_cursors (
            name TEXT PRIMARY KEY,
            seq BIGINT NOT NULL DEFAULT 0
        )`,
}

var postgresDialect = &dialect{
	name:     "postgres",
	numbered: true,
	schema:   postgresSchema,
	lockSuffix: func(l Lock) string {
		switch l {
		case LockShare:
			return " FOR SHARE"
		case LockUpdate:
			return " FOR UPDATE"
		default:
			return ""
		}
	},
	mapError: mapPostgresError,
	beforeAppend: func(ctx context.Context, ex execer) error {
		// held until commit, so seq order matches commit order for the relay cursor
		_, err := ex.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, eventsAppendLock)
		return err
	},
	afterAppend: func(ctx context.Context, ex execer, evt *notification.Event) error {
		// delivered by the server only once the surrounding transaction commits
		_, err := ex.ExecContext(ctx, `SELECT pg_notify($1, $2)`, EventsChannel, strconv.FormatInt(evt.Seq, 10))
		return err
	},
}

// NewPostgresStore builds a Store backed by PostgreSQL and ensures its schema.
func NewPostgresStore(db *sql.DB) (Store, error) {
	return newSQLStore(db, postgresDialect)
}

func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return uniqueViolation(pgErr.ConstraintName, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return uniqueViolation(pqErr.Constraint, err)
	}
	return err
}

func uniqueViolation(constraint string, err error) error {
	switch constraint {
	case "groups_share_token_key":
		return ErrShareTokenTaken
	case "memberships_active_email_key":
		return ErrDuplicateActiveEmail
	case "memberships_active_user_key":
		return ErrDuplicateActiveUser
	default:
		return err
	}
}
