package handlers

import (
	"net/http"

	"gorm.io/gorm"
)

// SystemHandler exposes service health.
type SystemHandler struct {
	DB *gorm.DB
}

// Health handles GET /api/health. It reports degraded when the index
// store cannot be reached.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"store":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
