package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/luminlabs/pulse/internal/domain"
	"github.com/luminlabs/pulse/internal/queue"
)

const maxBatchSize = 500

// IngestSignal accepts one signal, dedupes it on its idempotency key, and
// schedules a score recomputation for the affected account.
//
//	POST /api/v1/signals
func (h *Handlers) IngestSignal(w http.ResponseWriter, r *http.Request) {
	var s domain.Signal
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.signals.Insert(r.Context(), &s)
	if err != nil {
		log.Printf("[API] signal insert error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to store signal")
		return
	}

	if created {
		h.scheduleScore(r, &s)
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]interface{}{
		"id":      s.ID,
		"created": created,
	})
}

// IngestSignalBatch accepts up to maxBatchSize signals in one call. Each
// signal is validated and deduplicated independently; the response reports
// per-item outcomes in input order.
//
//	POST /api/v1/signals/batch
func (h *Handlers) IngestSignalBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Signals []domain.Signal `json:"signals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Signals) == 0 {
		respondError(w, http.StatusBadRequest, "signals is required")
		return
	}
	if len(body.Signals) > maxBatchSize {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("batch exceeds %d signals", maxBatchSize))
		return
	}

	type itemResult struct {
		ID      string `json:"id,omitempty"`
		Created bool   `json:"created"`
		Error   string `json:"error,omitempty"`
	}
	results := make([]itemResult, 0, len(body.Signals))
	accepted := 0

	for i := range body.Signals {
		s := &body.Signals[i]
		if err := s.Validate(); err != nil {
			results = append(results, itemResult{Error: err.Error()})
			continue
		}
		created, err := h.signals.Insert(r.Context(), s)
		if err != nil {
			log.Printf("[API] batch signal insert error: %v", err)
			results = append(results, itemResult{Error: "failed to store signal"})
			continue
		}
		if created {
			h.scheduleScore(r, s)
			accepted++
		}
		results = append(results, itemResult{ID: s.ID, Created: created})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"accepted": accepted,
		"results":  results,
	})
}

// scheduleScore enqueues a score recomputation for the signal's account.
// The minute-bucketed job ID coalesces an ingestion burst into one queued
// job per account. Enqueue failures are logged, not surfaced: the signal is
// stored and a later recomputation will pick it up.
func (h *Handlers) scheduleScore(r *http.Request, s *domain.Signal) {
	if s.AccountID == nil || *s.AccountID == "" {
		return
	}
	payload := queue.TaskPayload{
		Kind:           queue.KindTenantTask,
		OrganizationID: s.OrganizationID,
		AccountID:      *s.AccountID,
	}
	jobID := queue.ScoreJobID(s.OrganizationID, *s.AccountID, h.now())
	if err := h.queue.Enqueue(r.Context(), domain.LaneScoreComputation, "score.compute", jobID, payload); err != nil {
		log.Printf("[API] score job enqueue error for %s/%s: %v", s.OrganizationID, *s.AccountID, err)
	}
}
