package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrShareTokenTaken      = errors.New("share token already exists")
	ErrDuplicateActiveEmail = errors.New("active membership with this email already exists")
	ErrDuplicateActiveUser  = errors.New("active membership for this user already exists")
	ErrOwnerMembership      = errors.New("membership belongs to the group owner")
)

// Lock selects the row lock taken by a read inside a transaction. Stores that
// serialize transactions ignore it.
type Lock int

const (
	LockNone Lock = iota
	LockShare
	LockUpdate
)

// Queries are the primitives available both on the store and inside a transaction.
// Uniqueness rules are enforced by the store itself and surface as the sentinel
// errors above, never by a read-then-write check.
type Queries interface {
	InsertGroup(ctx context.Context, g *group.Group) error
	GetGroup(ctx context.Context, id string, lock Lock) (*group.Group, error)
	GetGroupByToken(ctx context.Context, token string, lock Lock) (*group.Group, error)
	UpdateGroup(ctx context.Context, g *group.Group) error
	DeleteGroup(ctx context.Context, id string) error
	ListGroupsByOwner(ctx context.Context, userID string) ([]*group.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]*group.Group, error)

	InsertMembership(ctx context.Context, m *membership.Membership) error
	GetMembership(ctx context.Context, id string) (*membership.Membership, error)
	ActiveMembershipByUser(ctx context.Context, groupID, userID string) (*membership.Membership, error)
	ListActiveMemberships(ctx context.Context, groupID string) ([]*membership.Membership, error)
	ListActiveMembershipsByUser(ctx context.Context, userID string) ([]*membership.Membership, error)
	CountActiveMemberships(ctx context.Context, groupID string) (int, error)
	MarkDeparted(ctx context.Context, membershipID string, at time.Time) error
	UpdateMembershipsForUser(ctx context.Context, userID string, patch profile.Patch) (int64, error)

	AppendEvent(ctx context.Context, evt *notification.Event) error
	ListEvents(ctx context.Context, groupID string) ([]*notification.Event, error)
	ListEventsAfter(ctx context.Context, seq int64, limit int) ([]*notification.Event, error)

	GetProfile(ctx context.Context, userID string) (*profile.Profile, error)
	UpsertProfile(ctx context.Context, p *profile.Profile) error
	UpdateProfile(ctx context.Context, p *profile.Profile) error
	DeleteProfile(ctx context.Context, userID string) error

	GetCursor(ctx context.Context, name string) (int64, error)
	SaveCursor(ctx context.Context, name string, seq int64) error
}

// Store persists groups, memberships, profiles and the notification event log.
type Store interface {
	Queries
	// WithTx runs fn in a single transaction. Returning an error rolls back every
	// write made through q.
	WithTx(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
