package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
	"github.com/faeln1/go-contact-groups/internal/platform/database"
	"github.com/faeln1/go-contact-groups/pkg/logger"
	"github.com/faeln1/go-contact-groups/pkg/storage"
)

// stepClock advances one second per reading so join order is deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type harness struct {
	ctx      context.Context
	store    repositories.Store
	groups   GroupService
	members  MembershipService
	profiles ProfileService
	reaper   *OwnershipReaper
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	membership MembershipOptions
	tokens     *TokenIssuer
	objects    storage.Service
	store      func(t *testing.T) repositories.Store
}

func withMembershipOptions(o MembershipOptions) harnessOption {
	return func(c *harnessConfig) { c.membership = o }
}

func withTokens(t *TokenIssuer) harnessOption {
	return func(c *harnessConfig) { c.tokens = t }
}

func withObjects(s storage.Service) harnessOption {
	return func(c *harnessConfig) { c.objects = s }
}

func withStore(open func(t *testing.T) repositories.Store) harnessOption {
	return func(c *harnessConfig) { c.store = open }
}

func memoryStore(*testing.T) repositories.Store {
	return repositories.NewInMemoryStore()
}

func sqliteStore(t *testing.T) repositories.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "groups.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := database.OpenSQLite(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store, err := repositories.NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// forEachStore runs fn once per store backend, each with a fresh harness.
func forEachStore(t *testing.T, fn func(t *testing.T, h *harness)) {
	backends := []struct {
		name string
		open func(t *testing.T) repositories.Store
	}{
		{"memory", memoryStore},
		{"sqlite", sqliteStore},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newHarness(t, withStore(b.open)))
		})
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{tokens: NewTokenIssuer(), store: memoryStore}
	for _, o := range opts {
		o(&cfg)
	}
	log := logger.InitForTests().App
	clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := cfg.store(t)
	passwords := NewPasswordGate(bcrypt.MinCost)
	emitter := NewNotificationEmitter(clock.now)

	gs := NewGroupService(store, passwords, cfg.tokens, emitter, log).(*groupService)
	gs.now = clock.now
	ms := NewMembershipService(store, passwords, emitter, cfg.membership, log).(*membershipService)
	ms.now = clock.now
	ps := NewProfileService(store, cfg.objects, log).(*profileService)
	ps.now = clock.now
	reaper := NewOwnershipReaper(store, emitter, log)
	reaper.now = clock.now

	return &harness{
		ctx:      context.Background(),
		store:    store,
		groups:   gs,
		members:  ms,
		profiles: ps,
		reaper:   reaper,
	}
}

func (h *harness) account(t *testing.T, userID, first, last, email string) {
	t.Helper()
	if _, err := h.profiles.Upsert(h.ctx, userID, profile.UpsertInput{FirstName: first, LastName: last, Email: email}); err != nil {
		t.Fatalf("upsert profile %s: %v", userID, err)
	}
}

func (h *harness) openGroup(t *testing.T, ownerID, name string) group.Created {
	t.Helper()
	out, err := h.groups.CreateGroup(h.ctx, ownerID, group.CreateInput{Name: name})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return out
}

func (h *harness) passwordGroup(t *testing.T, ownerID, name, password string) group.Created {
	t.Helper()
	out, err := h.groups.CreateGroup(h.ctx, ownerID, group.CreateInput{Name: name, AccessType: "password", Password: password})
	if err != nil {
		t.Fatalf("create password group: %v", err)
	}
	return out
}

func (h *harness) join(t *testing.T, userID, token string) string {
	t.Helper()
	out, err := h.members.JoinAuthenticated(h.ctx, userID, token, membership.JoinInput{NotificationsEnabled: true})
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return out.MembershipID
}

func (h *harness) joinAnon(t *testing.T, token, first, email string) string {
	t.Helper()
	out, err := h.members.JoinAnonymous(h.ctx, token, membership.JoinInput{FirstName: first, Email: email})
	if err != nil {
		t.Fatalf("anonymous join %s: %v", email, err)
	}
	return out.MembershipID
}

func (h *harness) events(t *testing.T, groupID string) []*notification.Event {
	t.Helper()
	evts, err := h.store.ListEvents(h.ctx, groupID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return evts
}

func (h *harness) eventTypes(t *testing.T, groupID string) []notification.Type {
	t.Helper()
	var out []notification.Type
	for _, evt := range h.events(t, groupID) {
		out = append(out, evt.Type)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
