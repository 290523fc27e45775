package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures what differs between the SQL engines behind the store.
type dialect struct {
	name         string
	numbered     bool
	schema       []string
	lockSuffix   func(Lock) string
	mapError     func(error) error
	beforeAppend func(ctx context.Context, ex execer) error
	afterAppend  func(ctx context.Context, ex execer, evt *notification.Event) error
}

type sqlStore struct {
	*sqlQueries
	db *sql.DB
}

type sqlQueries struct {
	ex execer
	d  *dialect
}

func newSQLStore(db *sql.DB, d *dialect) (*sqlStore, error) {
	s := &sqlStore{db: db, sqlQueries: &sqlQueries{ex: db, d: d}}
	if err := s.ensureSchema(); err != nil {
		return nil, fmt.Errorf("ensure %s schema: %w", d.name, err)
	}
	return s, nil
}

func (s *sqlStore) ensureSchema() error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqlStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(&sqlQueries{ex: tx, d: s.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.d.mapError(err)
	}
	return nil
}

func (s *sqlStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *sqlStore) DB() *sql.DB { return s.db }

func (q *sqlQueries) bind(query string) string {
	if !q.d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (q *sqlQueries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.ex.ExecContext(ctx, q.bind(query), args...)
	return res, q.d.mapError(err)
}

const groupColumns = `id, name, description, owner_id, is_closed, access_type, password_hash, share_token, created_at, updated_at`

func scanGroup(sc interface{ Scan(...any) error }) (*group.Group, error) {
	var (
		g       group.Group
		access  string
		hash    sql.NullString
		created dbTime
		updated dbTime
	)
	if err := sc.Scan(&g.ID, &g.Name, &g.Description, &g.OwnerID, &g.IsClosed, &access, &hash, &g.ShareToken, &created, &updated); err != nil {
		return nil, err
	}
	g.AccessType = group.AccessType(access)
	g.PasswordHash = hash.String
	g.CreatedAt = created.Time
	g.UpdatedAt = updated.Time
	return &g, nil
}

func (q *sqlQueries) InsertGroup(ctx context.Context, g *group.Group) error {
	_, err := q.exec(ctx, `
        INSERT INTO groups (`+groupColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.Description, g.OwnerID, g.IsClosed, string(g.AccessType),
		nullString(g.PasswordHash), g.ShareToken, g.CreatedAt.UTC(), g.UpdatedAt.UTC(),
	)
	return err
}

func (q *sqlQueries) GetGroup(ctx context.Context, id string, lock Lock) (*group.Group, error) {
	row := q.ex.QueryRowContext(ctx, q.bind(`SELECT `+groupColumns+` FROM groups WHERE id = ?`+q.d.lockSuffix(lock)), id)
	g, err := scanGroup(row)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	return g, nil
}

func (q *sqlQueries) GetGroupByToken(ctx context.Context, token string, lock Lock) (*group.Group, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	row := q.ex.QueryRowContext(ctx, q.bind(`SELECT `+groupColumns+` FROM groups WHERE share_token = ?`+q.d.lockSuffix(lock)), token)
	g, err := scanGroup(row)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	return g, nil
}

func (q *sqlQueries) UpdateGroup(ctx context.Context, g *group.Group) error {
	res, err := q.exec(ctx, `
        UPDATE groups
        SET name = ?,
            description = ?,
            owner_id = ?,
            is_closed = ?,
            access_type = ?,
            password_hash = ?,
            share_token = ?,
            updated_at = ?
        WHERE id = ?`,
		g.Name, g.Description, g.OwnerID, g.IsClosed, string(g.AccessType),
		nullString(g.PasswordHash), g.ShareToken, g.UpdatedAt.UTC(), g.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (q *sqlQueries) DeleteGroup(ctx context.Context, id string) error {
	// explicit cascade; SQLite only honours ON DELETE CASCADE with foreign_keys on
	if _, err := q.exec(ctx, `DELETE FROM notification_events WHERE group_id = ?`, id); err != nil {
		return err
	}
	if _, err := q.exec(ctx, `DELETE FROM memberships WHERE group_id = ?`, id); err != nil {
		return err
	}
	res, err := q.exec(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (q *sqlQueries) listGroups(ctx context.Context, query string, args ...any) ([]*group.Group, error) {
	rows, err := q.ex.QueryContext(ctx, q.bind(query), args...)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	defer rows.Close()
	var out []*group.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (q *sqlQueries) ListGroupsByOwner(ctx context.Context, userID string) ([]*group.Group, error) {
	return q.listGroups(ctx, `
        SELECT `+groupColumns+`
        FROM groups
        WHERE owner_id = ?
        ORDER BY created_at DESC, id`, userID)
}

func (q *sqlQueries) ListGroupsForUser(ctx context.Context, userID string) ([]*group.Group, error) {
	return q.listGroups(ctx, `
        SELECT `+groupColumns+`
        FROM groups g
        WHERE g.owner_id = ?
           OR EXISTS (
                SELECT 1 FROM memberships m
                WHERE m.group_id = g.id AND m.user_id = ? AND m.departed_at IS NULL
           )
        ORDER BY g.created_at DESC, g.id`, userID, userID)
}

const membershipColumns = `id, group_id, user_id, first_name, last_name, email, phone, avatar_url, notifications_enabled, joined_at, departed_at`

func scanMembership(sc interface{ Scan(...any) error }) (*membership.Membership, error) {
	var (
		m        membership.Membership
		userID   sql.NullString
		joined   dbTime
		departed dbTime
	)
	if err := sc.Scan(&m.ID, &m.GroupID, &userID, &m.FirstName, &m.LastName, &m.Email, &m.Phone, &m.AvatarURL, &m.NotificationsEnabled, &joined, &departed); err != nil {
		return nil, err
	}
	m.UserID = userID.String
	m.JoinedAt = joined.Time
	if departed.Valid {
		t := departed.Time
		m.DepartedAt = &t
	}
	return &m, nil
}

func (q *sqlQueries) InsertMembership(ctx context.Context, m *membership.Membership) error {
	var departed any
	if m.DepartedAt != nil {
		departed = m.DepartedAt.UTC()
	}
	_, err := q.exec(ctx, `
        INSERT INTO memberships (`+membershipColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.GroupID, nullString(m.UserID), m.FirstName, m.LastName, m.Email,
		m.Phone, m.AvatarURL, m.NotificationsEnabled, m.JoinedAt.UTC(), departed,
	)
	return err
}

func (q *sqlQueries) GetMembership(ctx context.Context, id string) (*membership.Membership, error) {
	row := q.ex.QueryRowContext(ctx, q.bind(`SELECT `+membershipColumns+` FROM memberships WHERE id = ?`), id)
	m, err := scanMembership(row)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	return m, nil
}

func (q *sqlQueries) ActiveMembershipByUser(ctx context.Context, groupID, userID string) (*membership.Membership, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	row := q.ex.QueryRowContext(ctx, q.bind(`
        SELECT `+membershipColumns+`
        FROM memberships
        WHERE group_id = ? AND user_id = ? AND departed_at IS NULL`), groupID, userID)
	m, err := scanMembership(row)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	return m, nil
}

func (q *sqlQueries) listMemberships(ctx context.Context, query string, args ...any) ([]*membership.Membership, error) {
	rows, err := q.ex.QueryContext(ctx, q.bind(query), args...)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	defer rows.Close()
	var out []*membership.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q *sqlQueries) ListActiveMemberships(ctx context.Context, groupID string) ([]*membership.Membership, error) {
	return q.listMemberships(ctx, `
        SELECT `+membershipColumns+`
        FROM memberships
        WHERE group_id = ? AND departed_at IS NULL
        ORDER BY joined_at ASC, id`, groupID)
}

func (q *sqlQueries) ListActiveMembershipsByUser(ctx context.Context, userID string) ([]*membership.Membership, error) {
	if userID == "" {
		return nil, nil
	}
	return q.listMemberships(ctx, `
        SELECT `+membershipColumns+`
        FROM memberships
        WHERE user_id = ? AND departed_at IS NULL
        ORDER BY joined_at ASC, id`, userID)
}

func (q *sqlQueries) CountActiveMemberships(ctx context.Context, groupID string) (int, error) {
	var n int
	err := q.ex.QueryRowContext(ctx, q.bind(`SELECT COUNT(*) FROM memberships WHERE group_id = ? AND departed_at IS NULL`), groupID).Scan(&n)
	if err != nil {
		return 0, q.d.mapError(err)
	}
	return n, nil
}

func (q *sqlQueries) MarkDeparted(ctx context.Context, membershipID string, at time.Time) error {
	res, err := q.exec(ctx, `
        UPDATE memberships
        SET departed_at = ?
        WHERE id = ?
          AND departed_at IS NULL
          AND NOT EXISTS (
                SELECT 1 FROM groups g
                WHERE g.id = memberships.group_id AND g.owner_id = memberships.user_id
          )`, at.UTC(), membershipID)
	if err != nil {
		return err
	}
	if err := requireAffected(res); !errors.Is(err, ErrNotFound) {
		return err
	}
	m, err := q.GetMembership(ctx, membershipID)
	if err != nil || !m.Active() {
		return ErrNotFound
	}
	return ErrOwnerMembership
}

func (q *sqlQueries) UpdateMembershipsForUser(ctx context.Context, userID string, patch profile.Patch) (int64, error) {
	if userID == "" || patch.Empty() {
		return 0, nil
	}
	var (
		sets []string
		args []any
	)
	if patch.FirstName != nil {
		sets = append(sets, "first_name = ?")
		args = append(args, *patch.FirstName)
	}
	if patch.LastName != nil {
		sets = append(sets, "last_name = ?")
		args = append(args, *patch.LastName)
	}
	if patch.Phone != nil {
		sets = append(sets, "phone = ?")
		args = append(args, *patch.Phone)
	}
	if patch.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *patch.AvatarURL)
	}
	args = append(args, userID)
	res, err := q.exec(ctx, `UPDATE memberships SET `+strings.Join(sets, ", ")+` WHERE user_id = ? AND departed_at IS NULL`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const eventColumns = `seq, id, group_id, event_type, data, created_at`

func scanEvent(sc interface{ Scan(...any) error }) (*notification.Event, error) {
	var (
		evt     notification.Event
		kind    string
		data    []byte
		created dbTime
	)
	if err := sc.Scan(&evt.Seq, &evt.ID, &evt.GroupID, &kind, &data, &created); err != nil {
		return nil, err
	}
	evt.Type = notification.Type(kind)
	evt.Data = data
	evt.CreatedAt = created.Time
	return &evt, nil
}

func (q *sqlQueries) AppendEvent(ctx context.Context, evt *notification.Event) error {
	if q.d.beforeAppend != nil {
		if err := q.d.beforeAppend(ctx, q.ex); err != nil {
			return q.d.mapError(err)
		}
	}
	err := q.ex.QueryRowContext(ctx, q.bind(`
        INSERT INTO notification_events (id, group_id, event_type, data, created_at)
        VALUES (?, ?, ?, ?, ?)
        RETURNING seq`),
		evt.ID, evt.GroupID, string(evt.Type), string(evt.Data), evt.CreatedAt.UTC(),
	).Scan(&evt.Seq)
	if err != nil {
		return q.d.mapError(err)
	}
	if q.d.afterAppend != nil {
		return q.d.afterAppend(ctx, q.ex, evt)
	}
	return nil
}

func (q *sqlQueries) listEvents(ctx context.Context, query string, args ...any) ([]*notification.Event, error) {
	rows, err := q.ex.QueryContext(ctx, q.bind(query), args...)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	defer rows.Close()
	var out []*notification.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (q *sqlQueries) ListEvents(ctx context.Context, groupID string) ([]*notification.Event, error) {
	return q.listEvents(ctx, `SELECT `+eventColumns+` FROM notification_events WHERE group_id = ? ORDER BY seq ASC`, groupID)
}

func (q *sqlQueries) ListEventsAfter(ctx context.Context, seq int64, limit int) ([]*notification.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.listEvents(ctx, `SELECT `+eventColumns+` FROM notification_events WHERE seq > ? ORDER BY seq ASC LIMIT ?`, seq, limit)
}

const profileColumns = `user_id, first_name, last_name, email, phone, avatar_url, updated_at`

func (q *sqlQueries) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var (
		p       profile.Profile
		updated dbTime
	)
	err := q.ex.QueryRowContext(ctx, q.bind(`SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`), userID).
		Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.AvatarURL, &updated)
	if err != nil {
		return nil, q.d.mapError(err)
	}
	p.UpdatedAt = updated.Time
	return &p, nil
}

func (q *sqlQueries) UpsertProfile(ctx context.Context, p *profile.Profile) error {
	_, err := q.exec(ctx, `
        INSERT INTO profiles (`+profileColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (user_id)
        DO UPDATE SET first_name = excluded.first_name,
                      last_name = excluded.last_name,
                      email = excluded.email,
                      phone = excluded.phone,
                      avatar_url = excluded.avatar_url,
                      updated_at = excluded.updated_at`,
		p.UserID, p.FirstName, p.LastName, p.Email, p.Phone, p.AvatarURL, p.UpdatedAt.UTC(),
	)
	return err
}

func (q *sqlQueries) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	res, err := q.exec(ctx, `
        UPDATE profiles
        SET first_name = ?, last_name = ?, email = ?, phone = ?, avatar_url = ?, updated_at = ?
        WHERE user_id = ?`,
		p.FirstName, p.LastName, p.Email, p.Phone, p.AvatarURL, p.UpdatedAt.UTC(), p.UserID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (q *sqlQueries) DeleteProfile(ctx context.Context, userID string) error {
	res, err := q.exec(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (q *sqlQueries) GetCursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := q.ex.QueryRowContext(ctx, q.bind(`SELECT seq FROM relay_cursors WHERE name = ?`), name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, q.d.mapError(err)
	}
	return seq, nil
}

func (q *sqlQueries) SaveCursor(ctx context.Context, name string, seq int64) error {
	_, err := q.exec(ctx, `
        INSERT INTO relay_cursors (name, seq) VALUES (?, ?)
        ON CONFLICT (name) DO UPDATE SET seq = excluded.seq`, name, seq)
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// dbTime scans timestamps from drivers that return either time.Time or text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case int64:
		t.Time, t.Valid = time.Unix(0, v).UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *dbTime) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized time value %q", raw)
}
