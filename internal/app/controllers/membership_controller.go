package controllers

import (
	"net/http"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/domain/membership"
	"github.com/faeln1/go-contact-groups/internal/platform/middleware"
)

type MembershipController struct {
	groups  services.GroupService
	members services.MembershipService
	log     waLog.Logger
}

func NewMembershipController(groups services.GroupService, members services.MembershipService, log waLog.Logger) *MembershipController {
	return &MembershipController{groups: groups, members: members, log: orNoop(log)}
}

// Resolve returns the public metadata behind a share token.
func (c *MembershipController) Resolve(w http.ResponseWriter, r *http.Request, token string) {
	pub, err := c.groups.ResolveShareToken(r.Context(), token)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, pub)
}

// Join entra no grupo com a conta do token bearer quando presente,
// caso contrário como participante anônimo.
func (c *MembershipController) Join(w http.ResponseWriter, r *http.Request, token string) {
	var in membership.JoinInput
	if !decodeJSON(w, r, &in) {
		return
	}
	var (
		joined membership.Joined
		err    error
	)
	if userID := middleware.UserID(r.Context()); userID != "" {
		joined, err = c.members.JoinAuthenticated(r.Context(), userID, token, in)
	} else {
		joined, err = c.members.JoinAnonymous(r.Context(), token, in)
	}
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, joined)
}

func (c *MembershipController) ValidatePassword(w http.ResponseWriter, r *http.Request, token string) {
	var in struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	valid, err := c.members.ValidatePassword(r.Context(), token, in.Password)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (c *MembershipController) Remove(w http.ResponseWriter, r *http.Request, membershipID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := c.members.RemoveMembership(r.Context(), membershipID, userID); err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
