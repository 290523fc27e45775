package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/policy"
	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
)

// MembershipService runs the join, leave and listing workflows.
type MembershipService interface {
	JoinAuthenticated(ctx context.Context, userID, shareToken string, in membership.JoinInput) (membership.Joined, error)
	JoinAnonymous(ctx context.Context, shareToken string, in membership.JoinInput) (membership.Joined, error)
	ValidatePassword(ctx context.Context, shareToken, raw string) (bool, error)
	RemoveMembership(ctx context.Context, membershipID, requesterID string) error
	ListActiveMembers(ctx context.Context, groupID, requesterID string) ([]membership.Member, error)
	ExportMembers(ctx context.Context, groupID, requesterID string) ([]membership.Member, error)
}

// MembershipOptions tunes join policy.
type MembershipOptions struct {
	// RequireAccountForPasswordGroups rejects anonymous joins to password groups.
	RequireAccountForPasswordGroups bool
}

type membershipService struct {
	store     repositories.Store
	passwords *PasswordGate
	events    *NotificationEmitter
	opts      MembershipOptions
	log       waLog.Logger
	now       func() time.Time
}

func NewMembershipService(store repositories.Store, passwords *PasswordGate, events *NotificationEmitter, opts MembershipOptions, log waLog.Logger) MembershipService {
	if log == nil {
		log = waLog.Noop
	}
	return &membershipService{
		store:     store,
		passwords: passwords,
		events:    events,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
}

// gate resolves the token and runs the checks shared by both join paths. The
// password is verified here, outside any transaction; the returned group is the
// snapshot it was verified against.
func (s *membershipService) gate(ctx context.Context, shareToken string, password *string, anonymous bool) (*group.Group, error) {
	shareToken = strings.TrimSpace(shareToken)
	if shareToken == "" {
		return nil, ErrGroupNotFound
	}
	g, err := s.store.GetGroupByToken(ctx, shareToken, repositories.LockNone)
	if err != nil {
		return nil, mapStoreError(err, ErrGroupNotFound)
	}
	if g.IsClosed {
		return nil, ErrGroupClosed
	}
	if anonymous && g.IsPasswordProtected() && s.opts.RequireAccountForPasswordGroups {
		return nil, ErrAccountRequired
	}
	if err := s.passwords.check(g, password); err != nil {
		return nil, err
	}
	return g, nil
}

// recheck re-reads the group inside the transaction under a share lock, so a
// concurrent close or token rotation is observed before the insert.
func (s *membershipService) recheck(ctx context.Context, q repositories.Queries, shareToken string, verified *group.Group, password *string) (*group.Group, error) {
	g, err := q.GetGroupByToken(ctx, strings.TrimSpace(shareToken), repositories.LockShare)
	if err != nil {
		return nil, err
	}
	if g.IsClosed {
		return nil, ErrGroupClosed
	}
	if g.IsPasswordProtected() && (g.PasswordHash != verified.PasswordHash || !verified.IsPasswordProtected()) {
		if err := s.passwords.check(g, password); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (s *membershipService) JoinAuthenticated(ctx context.Context, userID, shareToken string, in membership.JoinInput) (membership.Joined, error) {
	var empty membership.Joined
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return empty, ErrForbidden
	}
	verified, err := s.gate(ctx, shareToken, in.Password, false)
	if err != nil {
		return empty, err
	}

	var m *membership.Membership
	err = s.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := s.recheck(ctx, q, shareToken, verified, in.Password)
		if err != nil {
			return err
		}
		// reported before the profile check; the unique index still decides races
		existing, err := activeMembership(ctx, q, g.ID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyMember
		}
		p, err := loadCompleteProfile(ctx, q, userID)
		if err != nil {
			return err
		}
		m = &membership.Membership{
			ID:                   uuid.NewString(),
			GroupID:              g.ID,
			UserID:               userID,
			FirstName:            p.FirstName,
			LastName:             p.LastName,
			Email:                membership.NormalizeEmail(p.Email),
			Phone:                p.Phone,
			AvatarURL:            p.AvatarURL,
			NotificationsEnabled: in.NotificationsEnabled,
			JoinedAt:             s.now().UTC(),
		}
		if err := q.InsertMembership(ctx, m); err != nil {
			return err
		}
		return s.events.MemberJoined(ctx, q, m)
	})
	if err != nil {
		return empty, mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Infof("user %s joined group %s as membership %s", userID, m.GroupID, m.ID)
	return membership.Joined{MembershipID: m.ID}, nil
}

func (s *membershipService) JoinAnonymous(ctx context.Context, shareToken string, in membership.JoinInput) (membership.Joined, error) {
	var empty membership.Joined
	firstName := cleanText(in.FirstName)
	if firstName == "" {
		return empty, validationError("firstName", "firstName is required")
	}
	email := membership.NormalizeEmail(in.Email)
	if email == "" {
		return empty, validationError("email", "email is required")
	}
	if !validEmail(email) {
		return empty, validationError("email", "email is not a valid address")
	}
	verified, err := s.gate(ctx, shareToken, in.Password, true)
	if err != nil {
		return empty, err
	}

	var m *membership.Membership
	err = s.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := s.recheck(ctx, q, shareToken, verified, in.Password)
		if err != nil {
			return err
		}
		m = &membership.Membership{
			ID:                   uuid.NewString(),
			GroupID:              g.ID,
			FirstName:            firstName,
			LastName:             cleanText(in.LastName),
			Email:                email,
			Phone:                strings.TrimSpace(in.Phone),
			NotificationsEnabled: in.NotificationsEnabled,
			JoinedAt:             s.now().UTC(),
		}
		if err := q.InsertMembership(ctx, m); err != nil {
			return err
		}
		return s.events.MemberJoined(ctx, q, m)
	})
	if err != nil {
		return empty, mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Infof("anonymous participant joined group %s as membership %s", m.GroupID, m.ID)
	return membership.Joined{MembershipID: m.ID}, nil
}

func (s *membershipService) ValidatePassword(ctx context.Context, shareToken, raw string) (bool, error) {
	shareToken = strings.TrimSpace(shareToken)
	if shareToken == "" {
		return false, ErrGroupNotFound
	}
	g, err := s.store.GetGroupByToken(ctx, shareToken, repositories.LockNone)
	if err != nil {
		return false, mapStoreError(err, ErrGroupNotFound)
	}
	return s.passwords.Verify(g, raw)
}

func (s *membershipService) RemoveMembership(ctx context.Context, membershipID, requesterID string) error {
	actor := policy.User(strings.TrimSpace(requesterID))
	var removed *membership.Membership
	err := s.store.WithTx(ctx, func(q repositories.Queries) error {
		m, err := q.GetMembership(ctx, membershipID)
		if err != nil {
			return err
		}
		if !m.Active() {
			return ErrNotFound
		}
		g, err := q.GetGroup(ctx, m.GroupID, repositories.LockUpdate)
		if err != nil {
			return err
		}
		if policy.IsOwnerMembership(g, m) {
			if policy.IsOwner(actor, g) {
				return ErrOwnerCannotLeave
			}
			return ErrForbidden
		}
		if !policy.CanRemoveMembership(actor, g, m) {
			return ErrForbidden
		}
		reason := notification.ReasonRemoved
		if m.UserID == actor.UserID {
			reason = notification.ReasonLeft
		}
		now := s.now().UTC()
		if err := s.events.MemberLeft(ctx, q, g, m, actor.UserID, reason, now); err != nil {
			return err
		}
		if err := q.MarkDeparted(ctx, m.ID, now); err != nil {
			return err
		}
		removed = m
		return nil
	})
	if err != nil {
		return mapStoreError(err, ErrNotFound)
	}
	s.log.Infof("membership %s left group %s (requested by %s)", removed.ID, removed.GroupID, actor.UserID)
	return nil
}

func (s *membershipService) ListActiveMembers(ctx context.Context, groupID, requesterID string) ([]membership.Member, error) {
	g, err := s.store.GetGroup(ctx, groupID, repositories.LockNone)
	if err != nil {
		return nil, mapStoreError(err, ErrGroupNotFound)
	}
	own, err := activeMembership(ctx, s.store, g.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadGroup(policy.User(requesterID), g, own) {
		return nil, ErrForbidden
	}
	rows, err := s.store.ListActiveMemberships(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]membership.Member, 0, len(rows))
	for _, m := range rows {
		out = append(out, membership.Member{Membership: *m, IsOwner: policy.IsOwnerMembership(g, m)})
	}
	return out, nil
}

func (s *membershipService) ExportMembers(ctx context.Context, groupID, requesterID string) ([]membership.Member, error) {
	out, err := s.ListActiveMembers(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	s.log.Infof("group %s exported by %s (%d members)", groupID, requesterID, len(out))
	return out, nil
}

func validEmail(addr string) bool {
	if strings.ContainsAny(addr, " \t\r\n") {
		return false
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	at := strings.LastIndex(parsed.Address, "@")
	return parsed.Address == addr && at > 0 && at < len(addr)-1
}
