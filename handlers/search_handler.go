package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/photonest/photonestbackend/repository"
	"github.com/photonest/photonestbackend/search"
)

const maxQueryImageBytes = 32 << 20

// SearchHandler exposes the search engine's four query modes.
type SearchHandler struct {
	Engine  *search.Engine
	TempDir string
}

// Keyword handles GET /api/search. The term matches filenames, folder
// paths and recognized text.
func (h *SearchHandler) Keyword(w http.ResponseWriter, r *http.Request) {
	query := search.Query{
		Mode: search.ModeKeyword,
		Term: r.URL.Query().Get("q"),
	}
	if err := parseCommonParams(r, &query); err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.Engine.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type vectorSearchRequest struct {
	Text     string `json:"text"`
	PersonID uint   `json:"person_id"`
	TopK     *int   `json:"top_k"`
	Offset   int    `json:"offset"`
	From     *int64 `json:"from"`
	To       *int64 `json:"to"`
	Folder   string `json:"folder"`
}

func (req *vectorSearchRequest) apply(query *search.Query) {
	query.Limit = req.TopK
	query.Offset = req.Offset
	query.Filters = repository.SearchFilters{
		From:         req.From,
		To:           req.To,
		FolderPrefix: req.Folder,
	}
}

// Semantic handles POST /api/search/semantic, ranking photos by how well
// their embeddings match the query text.
func (h *SearchHandler) Semantic(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	query := search.Query{Mode: search.ModeSemantic, Text: req.Text}
	req.apply(&query)

	result, err := h.Engine.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Image handles POST /api/search/image. The uploaded image is embedded
// and matched against the library, finding visually similar photos.
func (h *SearchHandler) Image(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxQueryImageBytes); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid multipart body: "+err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "missing_image", "missing image file field")
		return
	}
	defer file.Close()

	tempPath := filepath.Join(h.TempDir, uuid.NewString()+filepath.Ext(header.Filename))
	temp, err := os.Create(tempPath)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer os.Remove(tempPath)
	if _, err := io.Copy(temp, file); err != nil {
		temp.Close()
		writeServiceError(w, err)
		return
	}
	temp.Close()

	query := search.Query{Mode: search.ModeImage, ImagePath: tempPath, ImageName: header.Filename}
	if err := parseCommonParams(r, &query); err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.Engine.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Faces handles POST /api/search/faces, returning the photos a person
// appears in.
func (h *SearchHandler) Faces(w http.ResponseWriter, r *http.Request) {
	var req vectorSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}

	query := search.Query{Mode: search.ModeFace, PersonID: req.PersonID}
	req.apply(&query)

	result, err := h.Engine.Search(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseCommonParams reads the shared filter and pagination query
// parameters used by the GET and multipart search endpoints.
func parseCommonParams(r *http.Request, query *search.Query) error {
	values := r.URL.Query()

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return invalidParam("limit")
		}
		query.Limit = &limit
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return invalidParam("offset")
		}
		query.Offset = offset
	}
	if raw := values.Get("from"); raw != "" {
		from, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return invalidParam("from")
		}
		query.Filters.From = &from
	}
	if raw := values.Get("to"); raw != "" {
		to, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return invalidParam("to")
		}
		query.Filters.To = &to
	}
	query.Filters.FolderPrefix = values.Get("folder")
	return nil
}
