package handlers

import (
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facette/natsort"
	"github.com/go-chi/chi/v5"

	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
)

// LibraryHandler exposes folder browsing over the indexed photos.
type LibraryHandler struct {
	Photos repository.PhotoRepositoryInterface
}

type libraryPhoto struct {
	ID         uint    `json:"id"`
	Filename   string  `json:"filename"`
	Path       string  `json:"path"`
	Size       int64   `json:"size"`
	ModifiedTS int64   `json:"modified_ts"`
	ShotAt     *int64  `json:"shot_at,omitempty"`
	ThumbPath  *string `json:"thumb_path,omitempty"`
}

type libraryResponse struct {
	Folder  string         `json:"folder"`
	Folders []string       `json:"folders"`
	Photos  []libraryPhoto `json:"photos"`
}

// Browse handles GET /api/library?folder=. Without a folder it lists the
// top-level indexed folders. Entries are ordered naturally so IMG_9 sorts
// before IMG_10.
func (h *LibraryHandler) Browse(w http.ResponseWriter, r *http.Request) {
	folder := filepath.Clean(r.URL.Query().Get("folder"))
	if folder == "." {
		folder = ""
	}

	allFolders, err := h.Photos.ListFolders()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	subfolders := childFolders(allFolders, folder)
	natsort.Sort(subfolders)

	resp := libraryResponse{Folder: folder, Folders: subfolders, Photos: []libraryPhoto{}}

	if folder != "" {
		photos, err := h.Photos.ListByFolder(folder)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		resp.Photos, err = h.decoratePhotos(photos)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Detail handles GET /api/photos/{photoID}, returning the photo record
// with its extracted metadata and recognized text.
func (h *LibraryHandler) Detail(w http.ResponseWriter, r *http.Request) {
	photoID, err := parseUintParam(chi.URLParam(r, "photoID"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "invalid photo id")
		return
	}

	photo, err := h.Photos.GetByID(photoID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"photo": photo}
	if exif, err := h.Photos.GetExif(photoID); err == nil && exif != nil {
		resp["exif"] = exif
	}
	if ocr, err := h.Photos.GetOCR(photoID); err == nil && ocr != nil {
		resp["ocr"] = ocr
	}
	if thumb, err := h.Photos.GetThumbnail(photoID); err == nil && thumb != nil {
		resp["thumbnail"] = thumb
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LibraryHandler) decoratePhotos(photos []models.Photo) ([]libraryPhoto, error) {
	ids := make([]uint, 0, len(photos))
	for _, photo := range photos {
		ids = append(ids, photo.ID)
	}
	attrs, err := h.Photos.GetSearchAttrs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]repository.SearchAttrs, len(attrs))
	for _, attr := range attrs {
		byID[attr.FileID] = attr
	}

	entries := make([]libraryPhoto, 0, len(photos))
	for _, photo := range photos {
		entry := libraryPhoto{
			ID:         photo.ID,
			Filename:   photo.Filename,
			Path:       photo.Path,
			Size:       photo.Size,
			ModifiedTS: photo.ModifiedTS,
		}
		if attr, ok := byID[photo.ID]; ok {
			entry.ShotAt = attr.ShotAt
			entry.ThumbPath = attr.ThumbPath
		}
		entries = append(entries, entry)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Filename)
	}
	natsort.Sort(names)
	rank := make(map[string]int, len(names))
	for i, name := range names {
		if _, seen := rank[name]; !seen {
			rank[name] = i
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := rank[entries[i].Filename], rank[entries[j].Filename]
		if ri != rj {
			return ri < rj
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// childFolders returns the immediate children of parent among the known
// folder paths.
func childFolders(folders []string, parent string) []string {
	seen := make(map[string]bool)
	var children []string
	for _, folder := range folders {
		var rel string
		if parent == "" {
			rel = folder
		} else {
			prefix := parent + string(filepath.Separator)
			if folder != parent && strings.HasPrefix(folder, prefix) {
				rel = strings.TrimPrefix(folder, prefix)
			} else {
				continue
			}
		}
		if rel == "" {
			continue
		}
		child := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		full := child
		if parent != "" {
			full = filepath.Join(parent, child)
		}
		if !seen[full] {
			seen[full] = true
			children = append(children, full)
		}
	}
	if children == nil {
		children = []string{}
	}
	return children
}
