package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/repository/postgres"
)

// subscriptionRequest is the create-subscription body. Secret is optional;
// when omitted one is generated and returned once in the create response.
type subscriptionRequest struct {
	TargetURL string   `json:"target_url"`
	Secret    string   `json:"secret,omitempty"`
	Events    []string `json:"events,omitempty"`
}

// CreateSubscription registers a webhook destination for the organization.
//
//	POST /api/v1/organizations/{orgID}/subscriptions
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	u, err := url.Parse(req.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		respondError(w, http.StatusBadRequest, "target_url must be a valid http(s) URL")
		return
	}

	secret := req.Secret
	generated := false
	if secret == "" {
		secret = generateSecret()
		generated = true
	}

	sub := domain.WebhookSubscription{
		OrganizationID: orgID,
		TargetURL:      req.TargetURL,
		Secret:         secret,
		Events:         req.Events,
	}
	if err := h.subscriptions.Create(r.Context(), &sub); err != nil {
		log.Printf("[API] create subscription error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	resp := map[string]interface{}{"subscription": sub}
	if generated {
		// One-time disclosure. The secret is never returned on reads.
		resp["secret"] = secret
	}
	respondJSON(w, http.StatusCreated, resp)
}

// ListSubscriptions returns the organization's subscriptions.
//
//	GET /api/v1/organizations/{orgID}/subscriptions
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	subs, err := h.subscriptions.ListForOrg(r.Context(), orgID)
	if err != nil {
		log.Printf("[API] list subscriptions error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []domain.WebhookSubscription{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// GetSubscription returns one subscription with its delivery health.
//
//	GET /api/v1/organizations/{orgID}/subscriptions/{id}
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	sub, err := h.subscriptions.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		log.Printf("[API] get subscription error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}
	if sub.OrganizationID != orgID {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

// DeleteSubscription removes a subscription.
//
//	DELETE /api/v1/organizations/{orgID}/subscriptions/{id}
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	err := h.subscriptions.Delete(r.Context(), orgID, id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		log.Printf("[API] delete subscription error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListDeliveryAttempts returns the subscription's recent delivery attempts.
//
//	GET /api/v1/organizations/{orgID}/subscriptions/{id}/attempts?limit=N
func (h *Handlers) ListDeliveryAttempts(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sub, err := h.subscriptions.Get(r.Context(), id)
	if errors.Is(err, postgres.ErrNotFound) || (err == nil && sub.OrganizationID != orgID) {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		log.Printf("[API] get subscription error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load subscription")
		return
	}

	attempts, err := h.subscriptions.AttemptsForSubscription(r.Context(), id, limit)
	if err != nil {
		log.Printf("[API] list attempts error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list delivery attempts")
		return
	}
	if attempts == nil {
		attempts = []domain.DeliveryAttempt{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"attempts": attempts})
}

func generateSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
