package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/search"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("handlers: failed to encode response: %v", err)
		}
	}
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errdefs.IsValidation(err):
		WriteAPIError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		WriteAPIError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, errdefs.ErrJobNotFound):
		WriteAPIError(w, http.StatusNotFound, "job_not_found", err.Error())
	case errors.Is(err, errdefs.ErrAlreadyRunning):
		WriteAPIError(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, search.ErrUnavailable):
		WriteAPIError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		log.Printf("handlers: internal error: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// invalidParam builds the validation error for a malformed numeric
// query parameter.
func invalidParam(field string) error {
	return errdefs.NewValidation(field, "must be a number")
}

// parseUintParam parses a positive integer path or query parameter.
func parseUintParam(value string) (uint, error) {
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}
