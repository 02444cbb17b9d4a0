package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/luminlabs/pulse/internal/domain"
)

var knownLanes = map[domain.Lane]bool{
	domain.LaneSignalProcessing: true,
	domain.LaneScoreComputation: true,
	domain.LaneWebhookDelivery:  true,
	domain.LaneAnomalyDetection: true,
	domain.LaneAlertEvaluation:  true,
	domain.LaneAlertCheck:       true,
	domain.LaneRetention:        true,
}

// QueueDepth returns the number of queued and active jobs on a lane.
//
//	GET /api/v1/admin/queues/{lane}/depth
func (h *Handlers) QueueDepth(w http.ResponseWriter, r *http.Request) {
	lane := domain.Lane(chi.URLParam(r, "lane"))
	if !knownLanes[lane] {
		respondError(w, http.StatusNotFound, "unknown lane")
		return
	}

	depth, err := h.queue.Depth(r.Context(), lane)
	if err != nil {
		log.Printf("[API] queue depth error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lane":  lane,
		"depth": depth,
	})
}

// QueueDeadLetters returns a lane's most recent dead-lettered jobs.
//
//	GET /api/v1/admin/queues/{lane}/dead-letters?limit=N
func (h *Handlers) QueueDeadLetters(w http.ResponseWriter, r *http.Request) {
	lane := domain.Lane(chi.URLParam(r, "lane"))
	if !knownLanes[lane] {
		respondError(w, http.StatusNotFound, "unknown lane")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.queue.DeadLetters(r.Context(), lane, limit)
	if err != nil {
		log.Printf("[API] dead letters error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to read dead letters")
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lane": lane,
		"jobs": jobs,
	})
}
