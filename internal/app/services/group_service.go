package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/policy"
	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
)

// tokenAttempts bounds how many fresh tokens are tried before a collision is reported.
const tokenAttempts = 2

// GroupService covers the lifecycle of a group: creation, settings, closing and
// share-link rotation.
type GroupService interface {
	CreateGroup(ctx context.Context, ownerID string, in group.CreateInput) (group.Created, error)
	UpdateSettings(ctx context.Context, groupID, requesterID string, patch group.SettingsPatch) (*group.Group, error)
	CloseGroup(ctx context.Context, groupID, requesterID string) error
	RegenerateToken(ctx context.Context, groupID, requesterID string) (string, error)
	TransferOwnership(ctx context.Context, groupID, requesterID, membershipID string) error
	GetGroup(ctx context.Context, groupID, requesterID string) (*group.Summary, error)
	ResolveShareToken(ctx context.Context, token string) (*group.PublicGroup, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]group.Summary, error)
}

type groupService struct {
	store     repositories.Store
	passwords *PasswordGate
	tokens    *TokenIssuer
	events    *NotificationEmitter
	log       waLog.Logger
	now       func() time.Time
}

// NewGroupService wires the lifecycle service.
func NewGroupService(store repositories.Store, passwords *PasswordGate, tokens *TokenIssuer, events *NotificationEmitter, log waLog.Logger) GroupService {
	if log == nil {
		log = waLog.Noop
	}
	return &groupService{
		store:     store,
		passwords: passwords,
		tokens:    tokens,
		events:    events,
		log:       log,
		now:       time.Now,
	}
}

func (s *groupService) CreateGroup(ctx context.Context, ownerID string, in group.CreateInput) (group.Created, error) {
	var empty group.Created
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return empty, ErrForbidden
	}
	name := cleanText(in.Name)
	if name == "" {
		return empty, validationError("name", "name is required")
	}
	access, ok := group.ParseAccessType(in.AccessType)
	if !ok {
		return empty, validationError("accessType", "accessType must be open or password")
	}
	var hash string
	switch access {
	case group.AccessPassword:
		h, err := s.passwords.SetPassword(in.Password)
		if err != nil {
			return empty, err
		}
		hash = h
	default:
		if in.Password != "" {
			return empty, validationError("password", "password is only accepted for password protected groups")
		}
	}

	now := s.now().UTC()
	g := &group.Group{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  cleanText(in.Description),
		OwnerID:      ownerID,
		AccessType:   access,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var err error
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		g.ShareToken = s.tokens.Issue()
		err = s.store.WithTx(ctx, func(q repositories.Queries) error {
			owner, err := loadCompleteProfile(ctx, q, ownerID)
			if err != nil {
				return err
			}
			if err := q.InsertGroup(ctx, g); err != nil {
				return err
			}
			return q.InsertMembership(ctx, &membership.Membership{
				ID:                   uuid.NewString(),
				GroupID:              g.ID,
				UserID:               ownerID,
				FirstName:            owner.FirstName,
				LastName:             owner.LastName,
				Email:                membership.NormalizeEmail(owner.Email),
				Phone:                owner.Phone,
				AvatarURL:            owner.AvatarURL,
				NotificationsEnabled: true,
				JoinedAt:             now,
			})
		})
		if !errors.Is(err, repositories.ErrShareTokenTaken) {
			break
		}
		s.log.Warnf("share token collision creating group %s (attempt %d)", g.ID, attempt+1)
	}
	if err != nil {
		return empty, mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Infof("group %s created by %s", g.ID, ownerID)
	return group.Created{GroupID: g.ID, ShareToken: g.ShareToken}, nil
}

func (s *groupService) UpdateSettings(ctx context.Context, groupID, requesterID string, patch group.SettingsPatch) (*group.Group, error) {
	// hashing is slow, keep it out of the transaction; only owners pay for it
	var newHash string
	if patch.Password != nil && *patch.Password != "" {
		g, err := s.store.GetGroup(ctx, groupID, repositories.LockNone)
		if err != nil {
			return nil, mapStoreError(err, ErrGroupNotFound)
		}
		if !policy.CanMutateGroup(policy.User(requesterID), g) {
			return nil, ErrForbidden
		}
		h, err := s.passwords.SetPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		newHash = h
	}

	var out *group.Group
	err := s.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := q.GetGroup(ctx, groupID, repositories.LockUpdate)
		if err != nil {
			return err
		}
		if !policy.CanMutateGroup(policy.User(requesterID), g) {
			return ErrForbidden
		}
		if patch.Empty() {
			out = g
			return nil
		}
		reopen := patch.IsClosed != nil && !*patch.IsClosed
		if g.IsClosed && !reopen {
			if patch.OnlyCloses() {
				out = g
				return nil
			}
			return ErrGroupClosed
		}

		if patch.Name != nil {
			name := cleanText(*patch.Name)
			if name == "" {
				return validationError("name", "name is required")
			}
			g.Name = name
		}
		if patch.Description != nil {
			g.Description = cleanText(*patch.Description)
		}
		if patch.AccessType != nil {
			access, ok := group.ParseAccessType(*patch.AccessType)
			if !ok {
				return validationError("accessType", "accessType must be open or password")
			}
			g.AccessType = access
		}
		switch g.AccessType {
		case group.AccessPassword:
			switch {
			case newHash != "":
				g.PasswordHash = newHash
			case patch.Password != nil, g.PasswordHash == "":
				return ErrPasswordRequired
			}
		default:
			if newHash != "" {
				return validationError("password", "password is only accepted for password protected groups")
			}
			g.PasswordHash = ""
		}

		now := s.now().UTC()
		closing := patch.IsClosed != nil && *patch.IsClosed && !g.IsClosed
		if patch.IsClosed != nil {
			g.IsClosed = *patch.IsClosed
		}
		g.UpdatedAt = now
		if err := q.UpdateGroup(ctx, g); err != nil {
			return err
		}
		if closing {
			if err := s.events.GroupClosed(ctx, q, g, requesterID, now); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Debugf("group %s settings updated by %s", groupID, requesterID)
	return out, nil
}

func (s *groupService) CloseGroup(ctx context.Context, groupID, requesterID string) error {
	closed := false
	err := s.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := q.GetGroup(ctx, groupID, repositories.LockUpdate)
		if err != nil {
			return err
		}
		if !policy.CanMutateGroup(policy.User(requesterID), g) {
			return ErrForbidden
		}
		if g.IsClosed {
			return nil
		}
		now := s.now().UTC()
		g.IsClosed = true
		g.UpdatedAt = now
		if err := q.UpdateGroup(ctx, g); err != nil {
			return err
		}
		closed = true
		return s.events.GroupClosed(ctx, q, g, requesterID, now)
	})
	if err != nil {
		return mapStoreError(err, ErrGroupNotFound)
	}
	if closed {
		s.log.Infof("group %s closed by %s", groupID, requesterID)
	}
	return nil
}

// RegenerateToken is allowed on closed groups: rotating only revokes access.
func (s *groupService) RegenerateToken(ctx context.Context, groupID, requesterID string) (string, error) {
	var (
		token string
		err   error
	)
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token = s.tokens.Issue()
		err = s.store.WithTx(ctx, func(q repositories.Queries) error {
			g, err := q.GetGroup(ctx, groupID, repositories.LockUpdate)
			if err != nil {
				return err
			}
			if !policy.CanMutateGroup(policy.User(requesterID), g) {
				return ErrForbidden
			}
			g.ShareToken = token
			g.UpdatedAt = s.now().UTC()
			return q.UpdateGroup(ctx, g)
		})
		if !errors.Is(err, repositories.ErrShareTokenTaken) {
			break
		}
		s.log.Warnf("share token collision rotating group %s (attempt %d)", groupID, attempt+1)
	}
	if err != nil {
		return "", mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Infof("share token of group %s rotated by %s", groupID, requesterID)
	return token, nil
}

func (s *groupService) TransferOwnership(ctx context.Context, groupID, requesterID, membershipID string) error {
	err := s.store.WithTx(ctx, func(q repositories.Queries) error {
		g, err := q.GetGroup(ctx, groupID, repositories.LockUpdate)
		if err != nil {
			return err
		}
		if !policy.IsOwner(policy.User(requesterID), g) {
			return ErrForbidden
		}
		target, err := q.GetMembership(ctx, membershipID)
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if target.GroupID != g.ID || !target.Active() {
			return ErrNotFound
		}
		if target.UserID == g.OwnerID {
			return nil
		}
		if !policy.CanTransferOwnership(policy.User(requesterID), g, target) {
			return validationError("membershipId", "anonymous members cannot own a group")
		}
		g.OwnerID = target.UserID
		g.UpdatedAt = s.now().UTC()
		return q.UpdateGroup(ctx, g)
	})
	if err != nil {
		return mapStoreError(err, ErrGroupNotFound)
	}
	s.log.Infof("group %s ownership moved by %s to membership %s", groupID, requesterID, membershipID)
	return nil
}

func (s *groupService) GetGroup(ctx context.Context, groupID, requesterID string) (*group.Summary, error) {
	g, err := s.store.GetGroup(ctx, groupID, repositories.LockNone)
	if err != nil {
		return nil, mapStoreError(err, ErrGroupNotFound)
	}
	actor := policy.User(requesterID)
	own, err := activeMembership(ctx, s.store, g.ID, requesterID)
	if err != nil {
		return nil, err
	}
	if !policy.CanReadGroup(actor, g, own) {
		return nil, ErrForbidden
	}
	count, err := s.store.CountActiveMemberships(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	return &group.Summary{Group: *g, IsOwner: policy.IsOwner(actor, g), MemberCount: count}, nil
}

func (s *groupService) ResolveShareToken(ctx context.Context, token string) (*group.PublicGroup, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrGroupNotFound
	}
	g, err := s.store.GetGroupByToken(ctx, token, repositories.LockNone)
	if err != nil {
		return nil, mapStoreError(err, ErrGroupNotFound)
	}
	if !policy.CanResolvePublic(g) {
		return nil, ErrGroupNotFound
	}
	count, err := s.store.CountActiveMemberships(ctx, g.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	return &group.PublicGroup{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		AccessType:  g.AccessType,
		IsClosed:    g.IsClosed,
		MemberCount: count,
	}, nil
}

func (s *groupService) ListGroupsForUser(ctx context.Context, userID string) ([]group.Summary, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrForbidden
	}
	items, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make([]group.Summary, 0, len(items))
	for _, g := range items {
		count, err := s.store.CountActiveMemberships(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("count members: %w", err)
		}
		out = append(out, group.Summary{Group: *g, IsOwner: g.OwnerID == userID, MemberCount: count})
	}
	return out, nil
}
