package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

// ListScores returns the organization's account scores, highest first.
//
//	GET /api/v1/organizations/{orgID}/scores?limit=N
func (h *Handlers) ListScores(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	scores, err := h.scores.ListForOrg(r.Context(), orgID, limit)
	if err != nil {
		log.Printf("[API] list scores error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list scores")
		return
	}
	if scores == nil {
		scores = []domain.AccountScore{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"scores": scores})
}

// GetScore returns one account's score.
//
//	GET /api/v1/organizations/{orgID}/scores/{accountID}
func (h *Handlers) GetScore(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	accountID := chi.URLParam(r, "accountID")

	score, err := h.scores.Get(r.Context(), orgID, accountID)
	if err != nil {
		log.Printf("[API] get score error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to load score")
		return
	}
	if score == nil {
		respondError(w, http.StatusNotFound, "account has no score")
		return
	}
	respondJSON(w, http.StatusOK, score)
}

// RecomputeScore schedules an immediate score recomputation for the account.
// The work runs on the score-computation lane like any other recomputation.
//
//	POST /api/v1/organizations/{orgID}/scores/{accountID}/recompute
func (h *Handlers) RecomputeScore(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	accountID := chi.URLParam(r, "accountID")

	payload := queue.TaskPayload{
		Kind:           queue.KindTenantTask,
		OrganizationID: orgID,
		AccountID:      accountID,
	}
	jobID := queue.ScoreJobID(orgID, accountID, h.now())
	if err := h.queue.Enqueue(r.Context(), domain.LaneScoreComputation, "score.compute", jobID, payload); err != nil {
		log.Printf("[API] recompute enqueue error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to schedule recomputation")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}
