package handlers

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const assetCacheDuration = 24 * time.Hour

// AssetServer serves generated files, such as thumbnails, from a storage
// directory. Requests resolving outside the directory are rejected.
// Mounted as:
//
//	r.Get("/thumbnails/*", AssetServer(cfg.ThumbnailsPath, "thumbnails"))
func AssetServer(assetDir, routeName string) http.HandlerFunc {
	assetDir = filepath.Clean(assetDir)

	return func(w http.ResponseWriter, r *http.Request) {
		routePrefix := "/api/" + routeName + "/"
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)

		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		assetPath := filepath.Clean(filepath.Join(assetDir, relativePath))
		if !strings.HasPrefix(assetPath, assetDir) {
			log.Printf("SECURITY: asset request escapes storage directory: request=%s resolved=%s", r.URL.Path, assetPath)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if _, err := os.Stat(assetPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			log.Printf("Error stating asset file %s: %v", assetPath, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(assetCacheDuration.Seconds())))
		http.ServeFile(w, r, assetPath)
	}
}
