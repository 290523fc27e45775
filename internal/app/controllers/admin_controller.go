package controllers

import (
	"context"
	"net/http"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/faeln1/go-contact-groups/internal/app/services"
)

// AccountReaper is the part of the ownership reaper used over HTTP.
type AccountReaper interface {
	ReapAccount(ctx context.Context, userID string) (services.ReapReport, error)
}

type AdminController struct {
	reaper AccountReaper
	log    waLog.Logger
}

func NewAdminController(reaper AccountReaper, log waLog.Logger) *AdminController {
	return &AdminController{reaper: reaper, log: orNoop(log)}
}

// AccountDeleted is called by the identity provider after an account is removed.
func (c *AdminController) AccountDeleted(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := c.reaper.ReapAccount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, c.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
