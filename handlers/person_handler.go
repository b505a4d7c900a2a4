package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
	"github.com/photonest/photonestbackend/services"
)

// PersonHandler exposes person management on top of the clustering
// service.
type PersonHandler struct {
	People     repository.PersonRepositoryInterface
	Clustering *services.FaceClusteringService
}

type personResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	SampleCount int    `json:"sample_count"`
	Active      bool   `json:"active"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

func toPersonResponse(person *models.Person) personResponse {
	return personResponse{
		ID:          person.ID,
		Name:        person.Name,
		SampleCount: person.SampleCount,
		Active:      person.Active,
		CreatedAt:   person.CreatedAt,
		UpdatedAt:   person.UpdatedAt,
	}
}

// List handles GET /api/people. With ?active=true only the people
// visible to search are returned.
func (h *PersonHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		people []models.Person
		err    error
	)
	if r.URL.Query().Get("active") == "true" {
		people, err = h.People.ListActive()
	} else {
		people, err = h.People.ListAll()
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]personResponse, 0, len(people))
	for i := range people {
		resp = append(resp, toPersonResponse(&people[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /api/people, creating a person from manually
// picked sample faces.
func (h *PersonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		SampleFaceIDs []uint `json:"sample_face_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	person, err := h.Clustering.CreatePersonWithSamples(strings.TrimSpace(req.Name), req.SampleFaceIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonResponse(person))
}

// Get handles GET /api/people/{personID}.
func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	personID, err := parseUintParam(chi.URLParam(r, "personID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid person id")
		return
	}

	person, err := h.People.GetByID(personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

// Update handles PUT /api/people/{personID}, renaming the person.
func (h *PersonHandler) Update(w http.ResponseWriter, r *http.Request) {
	personID, err := parseUintParam(chi.URLParam(r, "personID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid person id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	if err := h.Clustering.Rename(personID, strings.TrimSpace(req.Name)); err != nil {
		writeServiceError(w, err)
		return
	}

	person, err := h.People.GetByID(personID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

// Delete handles DELETE /api/people/{personID}. The person's face
// detections survive with their person reference cleared.
func (h *PersonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	personID, err := parseUintParam(chi.URLParam(r, "personID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid person id")
		return
	}

	if err := h.Clustering.DeletePerson(personID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Merge handles POST /api/people/{personID}/merge, absorbing another
// person's detections into this one.
func (h *PersonHandler) Merge(w http.ResponseWriter, r *http.Request) {
	targetID, err := parseUintParam(chi.URLParam(r, "personID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid person id")
		return
	}

	var req struct {
		SourcePersonID uint `json:"source_person_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	if err := h.Clustering.MergePeople(targetID, req.SourcePersonID); err != nil {
		writeServiceError(w, err)
		return
	}

	person, err := h.People.GetByID(targetID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

// SetActive handles POST /api/people/{personID}/activate and
// /deactivate. A deactivated person keeps their detections but stops
// appearing in search results and badges.
func (h *PersonHandler) SetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		personID, err := parseUintParam(chi.URLParam(r, "personID"))
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid person id")
			return
		}

		if err := h.Clustering.SetActive(personID, active); err != nil {
			writeServiceError(w, err)
			return
		}

		person, err := h.People.GetByID(personID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPersonResponse(person))
	}
}
