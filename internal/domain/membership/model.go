package membership

import (
	"strings"
	"time"
)

// Membership is one participant's opt-in to a group. Rows are never hard-deleted;
// leaving sets DepartedAt.
type Membership struct {
	ID                   string     `json:"id"`
	GroupID              string     `json:"groupId"`
	UserID               string     `json:"userId,omitempty"`
	FirstName            string     `json:"firstName"`
	LastName             string     `json:"lastName"`
	Email                string     `json:"email"`
	Phone                string     `json:"phone,omitempty"`
	AvatarURL            string     `json:"avatarUrl,omitempty"`
	NotificationsEnabled bool       `json:"notificationsEnabled"`
	JoinedAt             time.Time  `json:"joinedAt"`
	DepartedAt           *time.Time `json:"departedAt,omitempty"`
}

// Active reports whether the membership has not departed.
func (m *Membership) Active() bool {
	return m != nil && m.DepartedAt == nil
}

// Anonymous reports whether the membership was created without an account.
func (m *Membership) Anonymous() bool {
	return m != nil && m.UserID == ""
}

// DisplayName joins first and last name, skipping a blank last name.
func (m *Membership) DisplayName() string {
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// Clone returns a deep copy.
func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	cp := *m
	if m.DepartedAt != nil {
		t := *m.DepartedAt
		cp.DepartedAt = &t
	}
	return &cp
}

// Member is an active membership annotated for listing.
type Member struct {
	Membership
	IsOwner bool `json:"isOwner"`
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// JoinInput is the body accepted by the join endpoint. Authenticated callers
// only need NotificationsEnabled and Password; the contact fields apply to
// anonymous joins.
type JoinInput struct {
	FirstName            string  `json:"firstName,omitempty"`
	LastName             string  `json:"lastName,omitempty"`
	Email                string  `json:"email,omitempty"`
	Phone                string  `json:"phone,omitempty"`
	NotificationsEnabled bool    `json:"notificationsEnabled"`
	Password             *string `json:"password,omitempty"`
}

// Joined is returned after a successful join.
type Joined struct {
	MembershipID string `json:"membershipId"`
}
