package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/photonest/photonestbackend/jobs"
	"github.com/photonest/photonestbackend/services"
)

// BatchHandler exposes batch operations and generic job polling.
type BatchHandler struct {
	Batch   *services.BatchService
	Manager *jobs.Manager
}

// Delete handles POST /api/batch/delete, launching an asynchronous
// deletion job over the given photos.
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhotoIDs  []uint `json:"photo_ids"`
		Permanent bool   `json:"permanent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	job, err := h.Batch.StartDelete(req.PhotoIDs, req.Permanent)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID()})
}

// GetJob handles GET /api/jobs/{jobID}, returning a point-in-time
// snapshot of any tracked job.
func (h *BatchHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.Manager.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

// CancelJob handles POST /api/jobs/{jobID}/cancel. Cancellation is
// cooperative: in-flight items finish, no new items start.
func (h *BatchHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.Cancel(chi.URLParam(r, "jobID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}
