// Package policy holds the authorization predicates for groups and memberships.
//
// Every function is pure: callers load the rows first and pass them in, so no
// check ever queries the store on its own.
package policy

import (
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
)

// Actor is the caller of an operation. An empty UserID is an anonymous caller.
type Actor struct {
	UserID string
}

// Anonymous returns the actor used for share-link callers without an account.
func Anonymous() Actor { return Actor{} }

// User returns the actor for an authenticated account.
func User(id string) Actor { return Actor{UserID: id} }

// Authenticated reports whether the actor carries an account id.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// IsOwner reports whether the actor currently owns the group.
func IsOwner(actor Actor, g *group.Group) bool {
	return g != nil && actor.Authenticated() && actor.UserID == g.OwnerID
}

// CanReadGroup reports whether the actor may read the group and its members.
// actorMembership is the actor's own active membership in g, or nil.
func CanReadGroup(actor Actor, g *group.Group, actorMembership *membership.Membership) bool {
	if g == nil {
		return false
	}
	if IsOwner(actor, g) {
		return true
	}
	if !actor.Authenticated() || actorMembership == nil {
		return false
	}
	return actorMembership.Active() &&
		actorMembership.GroupID == g.ID &&
		actorMembership.UserID == actor.UserID
}

// CanResolvePublic reports whether the share-token read may proceed. It only
// ever grants metadata, never membership contents.
func CanResolvePublic(g *group.Group) bool {
	return g != nil && g.ShareToken != ""
}

// CanMutateGroup reports whether the actor may change settings, close the group
// or rotate its token.
func CanMutateGroup(actor Actor, g *group.Group) bool {
	return IsOwner(actor, g)
}

// IsOwnerMembership reports whether m is the owner's own membership of g.
func IsOwnerMembership(g *group.Group, m *membership.Membership) bool {
	return g != nil && m != nil && m.UserID != "" && m.GroupID == g.ID && m.UserID == g.OwnerID
}

// CanRemoveMembership reports whether the actor may remove m from g. The owner's
// membership can never be removed; ownership has to move first.
func CanRemoveMembership(actor Actor, g *group.Group, m *membership.Membership) bool {
	if g == nil || m == nil || m.GroupID != g.ID {
		return false
	}
	if IsOwnerMembership(g, m) {
		return false
	}
	if IsOwner(actor, g) {
		return true
	}
	return actor.Authenticated() && m.UserID == actor.UserID
}

// CanTransferOwnership reports whether the actor may hand g over to target.
func CanTransferOwnership(actor Actor, g *group.Group, target *membership.Membership) bool {
	if !IsOwner(actor, g) || target == nil {
		return false
	}
	return target.Active() && target.GroupID == g.ID && target.UserID != "" && target.UserID != g.OwnerID
}
