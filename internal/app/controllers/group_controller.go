package controllers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/domain/group"
	"github.com/faeln1/go-contact-groups/internal/platform/qr"
)

type GroupController struct {
	groups        services.GroupService
	members       services.MembershipService
	publicBaseURL string
	log           waLog.Logger
}

func NewGroupController(groups services.GroupService, members services.MembershipService, publicBaseURL string, log waLog.Logger) *GroupController {
	return &GroupController{
		groups:        groups,
		members:       members,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		log:           orNoop(log),
	}
}

// Create cria um grupo com o solicitante como dono.
func (c *GroupController) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in group.CreateInput
	if !decodeJSON(w, r, &in) {
		return
	}
	created, err := c.groups.CreateGroup(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (c *GroupController) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	items, err := c.groups.ListGroupsForUser(r.Context(), userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": items})
}

func (c *GroupController) Get(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := c.groups.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (c *GroupController) UpdateSettings(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var patch group.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := c.groups.UpdateSettings(r.Context(), groupID, userID, patch)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (c *GroupController) Close(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := c.groups.CloseGroup(r.Context(), groupID, userID); err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RegenerateToken invalida o link atual e devolve o novo token.
func (c *GroupController) RegenerateToken(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	token, err := c.groups.RegenerateToken(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shareToken": token})
}

func (c *GroupController) TransferOwnership(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in group.TransferInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.MembershipID) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: membershipId is required", ErrInvalidParam))
		return
	}
	if err := c.groups.TransferOwnership(r.Context(), groupID, userID, in.MembershipID); err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *GroupController) Members(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	members, err := c.members.ListActiveMembers(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

var exportHeader = []string{"first_name", "last_name", "email", "phone", "notifications_enabled", "is_owner", "joined_at"}

// ExportMembers devolve os membros ativos em CSV.
func (c *GroupController) ExportMembers(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	members, err := c.members.ExportMembers(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="group-%s-members.csv"`, groupID))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, m := range members {
		_ = cw.Write([]string{
			csvCell(m.FirstName),
			csvCell(m.LastName),
			csvCell(m.Email),
			csvCell(m.Phone),
			strconv.FormatBool(m.NotificationsEnabled),
			strconv.FormatBool(m.IsOwner),
			m.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		c.log.Warnf("csv export for group %s interrupted: %v", groupID, err)
	}
}

// csvCell keeps spreadsheets from evaluating member input as a formula.
func csvCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// ShareQR renders the join link of the group as a PNG, or as terminal
// art with ?format=text.
func (c *GroupController) ShareQR(w http.ResponseWriter, r *http.Request, groupID string) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	summary, err := c.groups.GetGroup(r.Context(), groupID, userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	if summary.ShareToken == "" {
		writeServiceError(w, c.log, services.ErrGroupNotFound)
		return
	}
	link := c.JoinURL(summary.ShareToken)
	w.Header().Set("Cache-Control", "no-store")

	if r.URL.Query().Get("format") == "text" {
		art, err := qr.ASCII(link)
		if err != nil {
			writeServiceError(w, c.log, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(art))
		return
	}

	png, err := qr.PNG(link)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// JoinURL builds the public invitation link for a share token.
func (c *GroupController) JoinURL(token string) string {
	return c.publicBaseURL + "/join/" + token
}
