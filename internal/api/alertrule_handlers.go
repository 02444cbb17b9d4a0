package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/repository/postgres"
)

type alertRuleRequest struct {
	Kind      domain.AlertRuleKind `json:"kind"`
	Threshold int                  `json:"threshold"`
	Tier      domain.Tier          `json:"tier,omitempty"`
}

func (req *alertRuleRequest) validate() error {
	switch req.Kind {
	case domain.AlertScoreAbove, domain.AlertScoreBelow:
		if req.Threshold < 0 || req.Threshold > 100 {
			return errors.New("threshold must be in [0, 100]")
		}
	case domain.AlertTierEntry:
		switch req.Tier {
		case domain.TierHot, domain.TierWarm, domain.TierCold, domain.TierInactive:
		default:
			return errors.New("tier_entry rules require a valid tier")
		}
	default:
		return errors.New("kind must be score_above, score_below, or tier_entry")
	}
	return nil
}

// CreateAlertRule adds an enabled alert rule for the organization.
//
//	POST /api/v1/organizations/{orgID}/alert-rules
func (h *Handlers) CreateAlertRule(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	var req alertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rule := domain.AlertRule{
		OrganizationID: orgID,
		Kind:           req.Kind,
		Threshold:      req.Threshold,
		Tier:           req.Tier,
		Enabled:        true,
	}
	if err := h.rules.Create(r.Context(), &rule); err != nil {
		log.Printf("[API] create alert rule error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create alert rule")
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// ListAlertRules returns the organization's enabled rules.
//
//	GET /api/v1/organizations/{orgID}/alert-rules
func (h *Handlers) ListAlertRules(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")

	rules, err := h.rules.RulesForOrg(r.Context(), orgID)
	if err != nil {
		log.Printf("[API] list alert rules error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list alert rules")
		return
	}
	if rules == nil {
		rules = []domain.AlertRule{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// UpdateAlertRule toggles a rule on or off.
//
//	PATCH /api/v1/organizations/{orgID}/alert-rules/{id}
func (h *Handlers) UpdateAlertRule(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	err := h.rules.SetEnabled(r.Context(), orgID, id, *body.Enabled)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	if err != nil {
		log.Printf("[API] update alert rule error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to update alert rule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteAlertRule removes a rule.
//
//	DELETE /api/v1/organizations/{orgID}/alert-rules/{id}
func (h *Handlers) DeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	id := chi.URLParam(r, "id")

	err := h.rules.Delete(r.Context(), orgID, id)
	if errors.Is(err, postgres.ErrNotFound) {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	if err != nil {
		log.Printf("[API] delete alert rule error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to delete alert rule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
