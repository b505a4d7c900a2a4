package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/photonest/photonestbackend/indexer"
	"github.com/photonest/photonestbackend/jobs"
)

// IndexHandler exposes the indexing pipeline over HTTP.
type IndexHandler struct {
	Orchestrator *indexer.Orchestrator
	Manager      *jobs.Manager
}

type indexProgress struct {
	TotalFiles     int    `json:"total_files"`
	ProcessedFiles int    `json:"processed_files"`
	CurrentPhase   string `json:"current_phase,omitempty"`
}

type indexStatusResponse struct {
	Status              string        `json:"status"`
	JobID               string        `json:"job_id,omitempty"`
	Progress            indexProgress `json:"progress"`
	Errors              []string      `json:"errors"`
	StartedAt           *int64        `json:"started_at,omitempty"`
	FinishedAt          *int64        `json:"finished_at,omitempty"`
	EstimatedCompletion *int64        `json:"estimated_completion,omitempty"`
}

// Status reports the indexing state: the active run if one exists,
// otherwise the most recently finished one, otherwise idle.
func (h *IndexHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.Manager.ActiveIndexJob()
	if job == nil {
		job = h.Manager.LastIndexJob()
	}
	if job == nil {
		writeJSON(w, http.StatusOK, indexStatusResponse{Status: "idle", Errors: []string{}})
		return
	}

	snap := job.Snapshot()

	status := "idle"
	switch snap.Status {
	case jobs.StatusPending, jobs.StatusRunning:
		status = "indexing"
	case jobs.StatusError:
		status = "error"
	}

	resp := indexStatusResponse{
		Status: status,
		JobID:  snap.ID,
		Progress: indexProgress{
			TotalFiles:     snap.TotalItems,
			ProcessedFiles: snap.ProcessedItems,
			CurrentPhase:   snap.CurrentPhase,
		},
		Errors:              snap.Errors,
		StartedAt:           unixPtr(&snap.StartedAt),
		FinishedAt:          unixPtr(snap.FinishedAt),
		EstimatedCompletion: unixPtr(snap.EstimatedCompletion),
	}
	writeJSON(w, http.StatusOK, resp)
}

// Start launches an indexing run. A second start while one is active is
// rejected with a conflict and does not disturb the running job.
func (h *IndexHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Full bool `json:"full"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
			return
		}
	}

	job, err := h.Orchestrator.Start(req.Full)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID()})
}

// Stop requests cooperative cancellation of the active indexing run.
func (h *IndexHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.Orchestrator.Stop() {
		WriteAPIError(w, http.StatusConflict, "not_running", "no indexing run in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	unix := t.Unix()
	return &unix
}
