package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
)

// ReapReport summarizes what happened to a deleted account's groups.
type ReapReport struct {
	UserID      string   `json:"userId"`
	Transferred []string `json:"transferredGroups"`
	Deleted     []string `json:"deletedGroups"`
	Departed    []string `json:"departedMemberships"`
}

// OwnershipReaper reassigns or retires the groups of an account that is being
// deleted and removes the account's traces from the groups it belonged to.
type OwnershipReaper struct {
	store  repositories.Store
	events *NotificationEmitter
	log    waLog.Logger
	now    func() time.Time
}

func NewOwnershipReaper(store repositories.Store, events *NotificationEmitter, log waLog.Logger) *OwnershipReaper {
	if log == nil {
		log = waLog.Noop
	}
	return &OwnershipReaper{store: store, events: events, log: log, now: time.Now}
}

// ReapAccount runs one transaction per affected group. Calling it again for the
// same account is harmless: finished groups are simply not found anymore.
func (r *OwnershipReaper) ReapAccount(ctx context.Context, userID string) (ReapReport, error) {
	userID = strings.TrimSpace(userID)
	report := ReapReport{UserID: userID, Transferred: []string{}, Deleted: []string{}, Departed: []string{}}
	if userID == "" {
		return report, validationError("userId", "userId is required")
	}

	owned, err := r.store.ListGroupsByOwner(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("list owned groups: %w", err)
	}
	for _, og := range owned {
		outcome, err := r.retireGroup(ctx, og.ID, userID)
		if err != nil {
			return report, err
		}
		switch outcome {
		case outcomeTransferred:
			report.Transferred = append(report.Transferred, og.ID)
		case outcomeDeleted:
			report.Deleted = append(report.Deleted, og.ID)
		}
	}

	joined, err := r.store.ListActiveMembershipsByUser(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("list memberships: %w", err)
	}
	for _, jm := range joined {
		left, err := r.departMembership(ctx, jm.ID, userID)
		if err != nil {
			return report, err
		}
		if left {
			report.Departed = append(report.Departed, jm.ID)
		}
	}

	if err := r.store.DeleteProfile(ctx, userID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return report, fmt.Errorf("delete profile: %w", err)
	}
	r.log.Infof("account %s reaped: %d transferred, %d deleted, %d memberships departed",
		userID, len(report.Transferred), len(report.Deleted), len(report.Departed))
	return report, nil
}

type reapOutcome int

const (
	outcomeSkipped reapOutcome = iota
	outcomeTransferred
	outcomeDeleted
)

func (r *OwnershipReaper) retireGroup(ctx context.Context, groupID, userID string) (reapOutcome, error) {
	outcome := outcomeSkipped
	err := r.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := q.GetGroup(ctx, groupID, repositories.LockUpdate)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.OwnerID != userID {
			return nil
		}
		members, err := q.ListActiveMemberships(ctx, g.ID)
		if err != nil {
			return err
		}
		heir, old := pickHeir(members, userID)
		if heir == nil {
			if err := q.DeleteGroup(ctx, g.ID); err != nil {
				return err
			}
			outcome = outcomeDeleted
			return nil
		}

		now := r.now().UTC()
		g.OwnerID = heir.UserID
		g.UpdatedAt = now
		if err := q.UpdateGroup(ctx, g); err != nil {
			return err
		}
		if old != nil {
			if err := r.depart(ctx, q, g, old, now); err != nil {
				return err
			}
		}
		outcome = outcomeTransferred
		return nil
	})
	if err != nil {
		return outcomeSkipped, fmt.Errorf("retire group %s: %w", groupID, err)
	}
	switch outcome {
	case outcomeTransferred:
		r.log.Infof("group %s transferred away from deleted account %s", groupID, userID)
	case outcomeDeleted:
		r.log.Infof("group %s deleted with its owner %s", groupID, userID)
	}
	return outcome, nil
}

func (r *OwnershipReaper) departMembership(ctx context.Context, membershipID, userID string) (bool, error) {
	left := false
	err := r.store.WithTx(ctx, func(q repositories.Queries) error {
		m, err := q.GetMembership(ctx, membershipID)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !m.Active() || m.UserID != userID {
			return nil
		}
		g, err := q.GetGroup(ctx, m.GroupID, repositories.LockUpdate)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if g.OwnerID == userID {
			// became owner after the owned groups were listed
			r.log.Warnf("account %s still owns group %s, leaving membership in place", userID, g.ID)
			return nil
		}
		if err := r.depart(ctx, q, g, m, r.now().UTC()); err != nil {
			return err
		}
		left = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("depart membership %s: %w", membershipID, err)
	}
	return left, nil
}

func (r *OwnershipReaper) depart(ctx context.Context, q repositories.Queries, g *group.Group, m *membership.Membership, at time.Time) error {
	if err := r.events.MemberLeft(ctx, q, g, m, "", notification.ReasonAccountDeleted, at); err != nil {
		return err
	}
	return q.MarkDeparted(ctx, m.ID, at)
}

// pickHeir returns the earliest-joined active member with an account other than
// userID, and userID's own membership. members is ordered by joinedAt.
func pickHeir(members []*membership.Membership, userID string) (heir, own *membership.Membership) {
	for _, m := range members {
		switch {
		case m.UserID == userID:
			if own == nil {
				own = m
			}
		case m.UserID != "" && heir == nil:
			heir = m
		}
	}
	return heir, own
}
