package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
)

// mapStoreError translates repository sentinels into business errors. notFound is
// the error reported when the primary row of the operation is missing.
func mapStoreError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != "":
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return notFound
	case errors.Is(err, repositories.ErrDuplicateActiveEmail):
		return ErrDuplicateEmail
	case errors.Is(err, repositories.ErrDuplicateActiveUser):
		return ErrAlreadyMember
	case errors.Is(err, repositories.ErrShareTokenTaken):
		return ErrTokenCollision
	case errors.Is(err, repositories.ErrOwnerMembership):
		return ErrOwnerCannotLeave
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("store: %w", err)
	}
}

// loadCompleteProfile returns the caller's profile or ErrProfileIncomplete when it
// is missing a required field or does not exist.
func loadCompleteProfile(ctx context.Context, q repositories.Queries, userID string) (*profile.Profile, error) {
	p, err := q.GetProfile(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrProfileIncomplete
	}
	if err != nil {
		return nil, err
	}
	if !p.Complete() {
		return nil, ErrProfileIncomplete
	}
	return p, nil
}

// activeMembership returns the user's active membership in the group, or nil.
func activeMembership(ctx context.Context, q repositories.Queries, groupID, userID string) (*membership.Membership, error) {
	if userID == "" {
		return nil, nil
	}
	m, err := q.ActiveMembershipByUser(ctx, groupID, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return m, nil
}
