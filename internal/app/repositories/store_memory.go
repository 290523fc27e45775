package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
)

type memoryState struct {
	groups      map[string]*group.Group
	memberships map[string]*membership.Membership
	events      []*notification.Event
	profiles    map[string]*profile.Profile
	cursors     map[string]int64
	seq         int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		groups:      make(map[string]*group.Group),
		memberships: make(map[string]*membership.Membership),
		profiles:    make(map[string]*profile.Profile),
		cursors:     make(map[string]int64),
	}
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		groups:      make(map[string]*group.Group, len(s.groups)),
		memberships: make(map[string]*membership.Membership, len(s.memberships)),
		events:      make([]*notification.Event, len(s.events)),
		profiles:    make(map[string]*profile.Profile, len(s.profiles)),
		cursors:     make(map[string]int64, len(s.cursors)),
		seq:         s.seq,
	}
	for k, v := range s.groups {
		out.groups[k] = v.Clone()
	}
	for k, v := range s.memberships {
		out.memberships[k] = v.Clone()
	}
	// events are immutable once appended
	copy(out.events, s.events)
	for k, v := range s.profiles {
		out.profiles[k] = v.Clone()
	}
	for k, v := range s.cursors {
		out.cursors[k] = v
	}
	return out
}

type memoryStore struct {
	*memoryQueries
	mu    sync.RWMutex
	state *memoryState
}

// memoryQueries works either on the committed state (taking the store lock per
// call) or on a transaction's private copy (the store lock is already held).
type memoryQueries struct {
	store *memoryStore
	tx    *memoryState
}

// NewInMemoryStore returns a Store that keeps everything in process memory.
// Transactions are serialized by a single lock and applied copy-on-write.
func NewInMemoryStore() Store {
	s := &memoryStore{state: newMemoryState()}
	s.memoryQueries = &memoryQueries{store: s}
	return s
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(&memoryQueries{store: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memoryStore) Close() error { return nil }

func (q *memoryQueries) read() (*memoryState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.RLock()
	return q.store.state, q.store.mu.RUnlock
}

func (q *memoryQueries) write() (*memoryState, func()) {
	if q.tx != nil {
		return q.tx, func() {}
	}
	q.store.mu.Lock()
	return q.store.state, q.store.mu.Unlock
}

func (q *memoryQueries) InsertGroup(ctx context.Context, g *group.Group) error {
	st, done := q.write()
	defer done()
	if tokenTaken(st, g.ShareToken, g.ID) {
		return ErrShareTokenTaken
	}
	st.groups[g.ID] = g.Clone()
	return nil
}

func (q *memoryQueries) GetGroup(ctx context.Context, id string, lock Lock) (*group.Group, error) {
	st, done := q.read()
	defer done()
	g, ok := st.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

func (q *memoryQueries) GetGroupByToken(ctx context.Context, token string, lock Lock) (*group.Group, error) {
	st, done := q.read()
	defer done()
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	for _, g := range st.groups {
		if g.ShareToken == token {
			return g.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (q *memoryQueries) UpdateGroup(ctx context.Context, g *group.Group) error {
	st, done := q.write()
	defer done()
	if _, ok := st.groups[g.ID]; !ok {
		return ErrNotFound
	}
	if tokenTaken(st, g.ShareToken, g.ID) {
		return ErrShareTokenTaken
	}
	st.groups[g.ID] = g.Clone()
	return nil
}

func (q *memoryQueries) DeleteGroup(ctx context.Context, id string) error {
	st, done := q.write()
	defer done()
	if _, ok := st.groups[id]; !ok {
		return ErrNotFound
	}
	delete(st.groups, id)
	for mid, m := range st.memberships {
		if m.GroupID == id {
			delete(st.memberships, mid)
		}
	}
	kept := st.events[:0:0]
	for _, evt := range st.events {
		if evt.GroupID != id {
			kept = append(kept, evt)
		}
	}
	st.events = kept
	return nil
}

func (q *memoryQueries) ListGroupsByOwner(ctx context.Context, userID string) ([]*group.Group, error) {
	st, done := q.read()
	defer done()
	var out []*group.Group
	for _, g := range st.groups {
		if g.OwnerID == userID {
			out = append(out, g.Clone())
		}
	}
	sortGroups(out)
	return out, nil
}

func (q *memoryQueries) ListGroupsForUser(ctx context.Context, userID string) ([]*group.Group, error) {
	st, done := q.read()
	defer done()
	member := make(map[string]bool)
	for _, m := range st.memberships {
		if m.Active() && m.UserID == userID {
			member[m.GroupID] = true
		}
	}
	var out []*group.Group
	for _, g := range st.groups {
		if g.OwnerID == userID || member[g.ID] {
			out = append(out, g.Clone())
		}
	}
	sortGroups(out)
	return out, nil
}

func (q *memoryQueries) InsertMembership(ctx context.Context, m *membership.Membership) error {
	st, done := q.write()
	defer done()
	if m.DepartedAt == nil {
		for _, existing := range st.memberships {
			if existing.GroupID != m.GroupID || !existing.Active() {
				continue
			}
			if m.UserID != "" && existing.UserID == m.UserID {
				return ErrDuplicateActiveUser
			}
			if existing.Email == m.Email {
				return ErrDuplicateActiveEmail
			}
		}
	}
	st.memberships[m.ID] = m.Clone()
	return nil
}

func (q *memoryQueries) GetMembership(ctx context.Context, id string) (*membership.Membership, error) {
	st, done := q.read()
	defer done()
	m, ok := st.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (q *memoryQueries) ActiveMembershipByUser(ctx context.Context, groupID, userID string) (*membership.Membership, error) {
	st, done := q.read()
	defer done()
	if userID == "" {
		return nil, ErrNotFound
	}
	for _, m := range st.memberships {
		if m.GroupID == groupID && m.UserID == userID && m.Active() {
			return m.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (q *memoryQueries) ListActiveMemberships(ctx context.Context, groupID string) ([]*membership.Membership, error) {
	st, done := q.read()
	defer done()
	var out []*membership.Membership
	for _, m := range st.memberships {
		if m.GroupID == groupID && m.Active() {
			out = append(out, m.Clone())
		}
	}
	sortMemberships(out)
	return out, nil
}

func (q *memoryQueries) ListActiveMembershipsByUser(ctx context.Context, userID string) ([]*membership.Membership, error) {
	st, done := q.read()
	defer done()
	var out []*membership.Membership
	if userID == "" {
		return out, nil
	}
	for _, m := range st.memberships {
		if m.UserID == userID && m.Active() {
			out = append(out, m.Clone())
		}
	}
	sortMemberships(out)
	return out, nil
}

func (q *memoryQueries) CountActiveMemberships(ctx context.Context, groupID string) (int, error) {
	st, done := q.read()
	defer done()
	n := 0
	for _, m := range st.memberships {
		if m.GroupID == groupID && m.Active() {
			n++
		}
	}
	return n, nil
}

func (q *memoryQueries) MarkDeparted(ctx context.Context, membershipID string, at time.Time) error {
	st, done := q.write()
	defer done()
	m, ok := st.memberships[membershipID]
	if !ok || !m.Active() {
		return ErrNotFound
	}
	if g, ok := st.groups[m.GroupID]; ok && m.UserID != "" && g.OwnerID == m.UserID {
		return ErrOwnerMembership
	}
	left := at.UTC()
	m.DepartedAt = &left
	return nil
}

func (q *memoryQueries) UpdateMembershipsForUser(ctx context.Context, userID string, patch profile.Patch) (int64, error) {
	st, done := q.write()
	defer done()
	if userID == "" || patch.Empty() {
		return 0, nil
	}
	var n int64
	for _, m := range st.memberships {
		if m.UserID != userID || !m.Active() {
			continue
		}
		if patch.FirstName != nil {
			m.FirstName = *patch.FirstName
		}
		if patch.LastName != nil {
			m.LastName = *patch.LastName
		}
		if patch.Phone != nil {
			m.Phone = *patch.Phone
		}
		if patch.AvatarURL != nil {
			m.AvatarURL = *patch.AvatarURL
		}
		n++
	}
	return n, nil
}

func (q *memoryQueries) AppendEvent(ctx context.Context, evt *notification.Event) error {
	st, done := q.write()
	defer done()
	if _, ok := st.groups[evt.GroupID]; !ok {
		return ErrNotFound
	}
	st.seq++
	evt.Seq = st.seq
	cp := *evt
	cp.Data = append([]byte(nil), evt.Data...)
	st.events = append(st.events, &cp)
	return nil
}

func (q *memoryQueries) ListEvents(ctx context.Context, groupID string) ([]*notification.Event, error) {
	st, done := q.read()
	defer done()
	var out []*notification.Event
	for _, evt := range st.events {
		if evt.GroupID == groupID {
			cp := *evt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (q *memoryQueries) ListEventsAfter(ctx context.Context, seq int64, limit int) ([]*notification.Event, error) {
	st, done := q.read()
	defer done()
	var out []*notification.Event
	for _, evt := range st.events {
		if evt.Seq <= seq {
			continue
		}
		cp := *evt
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (q *memoryQueries) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	st, done := q.read()
	defer done()
	p, ok := st.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (q *memoryQueries) UpsertProfile(ctx context.Context, p *profile.Profile) error {
	st, done := q.write()
	defer done()
	st.profiles[p.UserID] = p.Clone()
	return nil
}

func (q *memoryQueries) UpdateProfile(ctx context.Context, p *profile.Profile) error {
	st, done := q.write()
	defer done()
	if _, ok := st.profiles[p.UserID]; !ok {
		return ErrNotFound
	}
	st.profiles[p.UserID] = p.Clone()
	return nil
}

func (q *memoryQueries) DeleteProfile(ctx context.Context, userID string) error {
	st, done := q.write()
	defer done()
	if _, ok := st.profiles[userID]; !ok {
		return ErrNotFound
	}
	delete(st.profiles, userID)
	return nil
}

func (q *memoryQueries) GetCursor(ctx context.Context, name string) (int64, error) {
	st, done := q.read()
	defer done()
	return st.cursors[name], nil
}

func (q *memoryQueries) SaveCursor(ctx context.Context, name string, seq int64) error {
	st, done := q.write()
	defer done()
	st.cursors[name] = seq
	return nil
}

func tokenTaken(st *memoryState, token, groupID string) bool {
	for id, g := range st.groups {
		if id != groupID && g.ShareToken == token {
			return true
		}
	}
	return false
}

func sortGroups(items []*group.Group) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func sortMemberships(items []*membership.Membership) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].JoinedAt.Equal(items[j].JoinedAt) {
			return items[i].JoinedAt.Before(items[j].JoinedAt)
		}
		return items[i].ID < items[j].ID
	})
}
