package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/faeln1/go-contact-groups/internal/app/repositories"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/domain/notification"
)

// NotificationEmitter appends change events through the caller's open transaction,
// so an event exists if and only if the state change it describes committed.
type NotificationEmitter struct {
	now func() time.Time
}

func NewNotificationEmitter(now func() time.Time) *NotificationEmitter {
	if now == nil {
		now = time.Now
	}
	return &NotificationEmitter{now: now}
}

func (e *NotificationEmitter) emit(ctx context.Context, q repositories.Queries, groupID string, typ notification.Type, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", typ, err)
	}
	evt := &notification.Event{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		Type:      typ,
		Data:      raw,
		CreatedAt: e.now().UTC(),
	}
	if err := q.AppendEvent(ctx, evt); err != nil {
		return fmt.Errorf("append %s event: %w", typ, err)
	}
	return nil
}

// MemberJoined records a new active membership.
func (e *NotificationEmitter) MemberJoined(ctx context.Context, q repositories.Queries, m *membership.Membership) error {
	return e.emit(ctx, q, m.GroupID, notification.MemberJoined, notification.MemberJoinedData{
		MembershipID: m.ID,
		MemberName:   m.DisplayName(),
		MemberEmail:  m.Email,
		UserID:       m.UserID,
		Anonymous:    m.Anonymous(),
		JoinedAt:     m.JoinedAt,
	})
}

// MemberLeft records a departure. removedBy is empty when nobody acted on the
// membership (account deletion).
func (e *NotificationEmitter) MemberLeft(ctx context.Context, q repositories.Queries, g *group.Group, m *membership.Membership, removedBy, reason string, at time.Time) error {
	return e.emit(ctx, q, m.GroupID, notification.MemberLeft, notification.MemberLeftData{
		MembershipID:   m.ID,
		MemberName:     m.DisplayName(),
		MemberEmail:    m.Email,
		RemovedByOwner: removedBy != "" && removedBy == g.OwnerID,
		RemovedBy:      removedBy,
		Reason:         reason,
		DepartedAt:     at.UTC(),
	})
}

// GroupClosed records the closing of a group.
func (e *NotificationEmitter) GroupClosed(ctx context.Context, q repositories.Queries, g *group.Group, closedBy string, at time.Time) error {
	return e.emit(ctx, q, g.ID, notification.GroupClosed, notification.GroupClosedData{
		ClosedBy:  closedBy,
		GroupName: g.Name,
		ClosedAt:  at.UTC(),
	})
}
