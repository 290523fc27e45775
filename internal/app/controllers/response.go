package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/services"
	"github.com/faeln1/go-contact-groups/internal/platform/middleware"
)

// maxBodyBytes limits JSON request bodies.
const maxBodyBytes = 1 << 20

var ErrInvalidParam = errors.New("invalid param")

type errorResponse struct {
	Error string        `json:"error"`
	Code  services.Code `json:"code,omitempty"`
	Field string        `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error(), Code: services.CodeOf(err)}
	var se *services.Error
	if errors.As(err, &se) {
		resp.Field = se.Field
	}
	writeJSON(w, status, resp)
}

// writeServiceError picks the status from the error kind. Infrastructure
// errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, log waLog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindConflict:
		return http.StatusConflict
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	}
	if errors.Is(err, services.ErrStorageUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body", Code: services.CodeValidation})
		return false
	}
	return true
}

func orNoop(log waLog.Logger) waLog.Logger {
	if log == nil {
		return waLog.Noop
	}
	return log
}

// requireUser returns the authenticated account id or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required", Code: "Unauthorized"})
		return "", false
	}
	return userID, true
}
