package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
	"github.com/photonest/photonestbackend/services"
)

// FaceHandler exposes per-photo face detections and manual tagging.
type FaceHandler struct {
	Faces      repository.FaceRepositoryInterface
	Clustering *services.FaceClusteringService
}

type faceBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type faceResponse struct {
	ID         uint    `json:"id"`
	FileID     uint    `json:"file_id"`
	Box        faceBox `json:"box"`
	Confidence float32 `json:"confidence"`
	Verified   bool    `json:"verified"`
	PersonID   *uint   `json:"person_id,omitempty"`
	PersonName string  `json:"person_name,omitempty"`
}

func toFaceResponse(detection *models.FaceDetection) faceResponse {
	resp := faceResponse{
		ID:         detection.ID,
		FileID:     detection.FileID,
		Box:        faceBox{X1: detection.X1, Y1: detection.Y1, X2: detection.X2, Y2: detection.Y2},
		Confidence: detection.Confidence,
		Verified:   detection.Verified,
		PersonID:   detection.PersonID,
	}
	if detection.Person != nil {
		resp.PersonName = detection.Person.Name
	}
	return resp
}

// ListByPhoto handles GET /api/photos/{photoID}/faces.
func (h *FaceHandler) ListByPhoto(w http.ResponseWriter, r *http.Request) {
	photoID, err := parseUintParam(chi.URLParam(r, "photoID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid photo id")
		return
	}

	detections, err := h.Faces.ListByPhoto(photoID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]faceResponse, 0, len(detections))
	for i := range detections {
		resp = append(resp, toFaceResponse(&detections[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Tag handles POST /api/faces/{faceID}/tag, manually linking a
// detection to a person. Manual tags are verified and never reassigned
// by automatic clustering.
func (h *FaceHandler) Tag(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseUintParam(chi.URLParam(r, "faceID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid face id")
		return
	}

	var req struct {
		PersonID uint `json:"person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	if err := h.Clustering.TagFace(faceID, req.PersonID); err != nil {
		writeServiceError(w, err)
		return
	}

	detection, err := h.Faces.GetByID(faceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFaceResponse(detection))
}

// Untag handles POST /api/faces/{faceID}/untag, clearing a detection's
// person link.
func (h *FaceHandler) Untag(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseUintParam(chi.URLParam(r, "faceID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid face id")
		return
	}

	if err := h.Clustering.UntagFace(faceID); err != nil {
		writeServiceError(w, err)
		return
	}

	detection, err := h.Faces.GetByID(faceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFaceResponse(detection))
}
