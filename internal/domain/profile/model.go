package profile

import (
	"strings"
	"time"
)

// Profile is the canonical contact record of an account.
type Profile struct {
	UserID    string    `json:"userId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Complete reports whether the profile has everything needed to own or join a group.
func (p *Profile) Complete() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.FirstName) != "" &&
		strings.TrimSpace(p.LastName) != "" &&
		strings.TrimSpace(p.Email) != ""
}

// Clone returns a copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// UpsertInput represents the body used to create or replace a profile.
type UpsertInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Patch holds the fields propagated to every active membership of the account.
type Patch struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Phone == nil && p.AvatarURL == nil
}

// Apply copies the set fields onto the profile.
func (p Patch) Apply(dst *Profile) {
	if p.FirstName != nil {
		dst.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		dst.LastName = *p.LastName
	}
	if p.Phone != nil {
		dst.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		dst.AvatarURL = *p.AvatarURL
	}
}

// Updated is returned after a propagated update.
type Updated struct {
	Profile            Profile `json:"profile"`
	MembershipsUpdated int64   `json:"membershipsUpdated"`
}
