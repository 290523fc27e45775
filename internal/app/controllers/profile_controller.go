package controllers

import (
	"net/http"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/domain/profile"
)

// maxUploadBytes bounds the multipart body, a bit above the avatar limit.
const maxUploadBytes = 6 << 20

type ProfileController struct {
	service services.ProfileService
	log     waLog.Logger
}

func NewProfileController(s services.ProfileService, log waLog.Logger) *ProfileController {
	return &ProfileController{service: s, log: orNoop(log)}
}

func (c *ProfileController) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := c.service.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Upsert cria ou substitui o perfil da conta autenticada.
func (c *ProfileController) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var in profile.UpsertInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := c.service.Upsert(r.Context(), userID, in)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Update propaga a alteração para todas as participações ativas.
func (c *ProfileController) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var patch profile.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := c.service.UpdateAcrossGroups(r.Context(), userID, patch)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// UploadAvatar expects a multipart form with the image in the "avatar" field.
func (c *ProfileController) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart body", Code: services.CodeValidation})
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "avatar file is required", Code: services.CodeValidation, Field: "avatar"})
		return
	}
	defer file.Close()

	updated, err := c.service.UploadAvatar(r.Context(), userID, services.AvatarUpload{
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
		Size:        header.Size,
	})
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
