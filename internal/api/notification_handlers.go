package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/repository/postgres"
)

// ListNotifications returns the organization's notifications, newest first.
//
//	GET /api/v1/organizations/{orgID}/notifications?limit=N
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := h.notifications.ListForOrg(r.Context(), orgID, limit)
	if err != nil {
		log.Printf("[API] list notifications error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}

// MarkNotificationRead stamps a notification as read.
//
//	POST /api/v1/organizations/{orgID}/notifications/{id}/read
func (h *Handlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	err := h.notifications.MarkRead(r.Context(), orgID, id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		log.Printf("[API] mark read error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to mark notification read")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
