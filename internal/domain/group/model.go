package group

import (
	"strings"
	"time"
)

// AccessType is the policy that gates joining through the share link.
type AccessType string

const (
	AccessOpen     AccessType = "open"
	AccessPassword AccessType = "password"
)

// Valid reports whether the value is one of the known access types.
func (a AccessType) Valid() bool {
	return a == AccessOpen || a == AccessPassword
}

// ParseAccessType normalizes user input; an empty value defaults to open.
func ParseAccessType(raw string) (AccessType, bool) {
	v := AccessType(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return AccessOpen, true
	}
	return v, v.Valid()
}

// Group is a contact group created by an organizer for an event.
type Group struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description,omitempty"`
	OwnerID      string     `json:"ownerId"`
	IsClosed     bool       `json:"isClosed"`
	AccessType   AccessType `json:"accessType"`
	PasswordHash string     `json:"-"`
	ShareToken   string     `json:"shareToken"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsPasswordProtected reports whether joining requires the group password.
func (g *Group) IsPasswordProtected() bool {
	return g != nil && g.AccessType == AccessPassword
}

// Clone returns a copy that can be mutated without touching the original.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	cp := *g
	return &cp
}

// PublicGroup is the metadata exposed to anyone holding the share token.
// It never carries membership contents.
type PublicGroup struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	AccessType  AccessType `json:"accessType"`
	IsClosed    bool       `json:"isClosed"`
	MemberCount int        `json:"memberCount"`
}

// CreateInput carries the payload required to create a group.
type CreateInput struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AccessType  string `json:"accessType,omitempty"`
	Password    string `json:"password,omitempty"`
}

// Created is returned after a successful creation.
type Created struct {
	GroupID    string `json:"groupId"`
	ShareToken string `json:"shareToken"`
}

// SettingsPatch holds the optional fields of a settings update. Nil means unchanged.
type SettingsPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	AccessType  *string `json:"accessType,omitempty"`
	Password    *string `json:"password,omitempty"`
	IsClosed    *bool   `json:"isClosed,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.AccessType == nil && p.Password == nil && p.IsClosed == nil
}

// OnlyCloses reports whether the patch does nothing but set isClosed=true.
func (p SettingsPatch) OnlyCloses() bool {
	if p.IsClosed == nil || !*p.IsClosed {
		return false
	}
	p.IsClosed = nil
	return p.Empty()
}

// Summary is a group as listed for one of its members.
type Summary struct {
	Group
	IsOwner     bool `json:"isOwner"`
	MemberCount int  `json:"memberCount"`
}

// TransferInput names the membership that becomes the new owner.
type TransferInput struct {
	MembershipID string `json:"membershipId"`
}
