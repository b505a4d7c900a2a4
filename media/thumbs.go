package media

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// ThumbnailResult describes a generated thumbnail file.
type ThumbnailResult struct {
	Path   string
	Width  int
	Height int
	Format string
}

// GenerateThumbnail creates a JPEG thumbnail with a UUID filename whose
// longest side fits maxSize, and returns where it was saved.
func GenerateThumbnail(originalImagePath, thumbnailDir string, maxSize int) (*ThumbnailResult, error) {
	if err := os.MkdirAll(thumbnailDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory %s: %w", thumbnailDir, err)
	}

	img, err := imaging.Open(originalImagePath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", originalImagePath, err)
	}

	thumb := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)

	thumbUUID, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate UUID for thumbnail: %w", err)
	}
	thumbFilename := thumbUUID.String() + ".jpg"
	thumbnailSavePath := filepath.Join(thumbnailDir, thumbFilename)

	if err := imaging.Save(thumb, thumbnailSavePath, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("failed to save thumbnail to %s: %w", thumbnailSavePath, err)
	}

	bounds := thumb.Bounds()
	log.Printf("generated thumbnail (UUID: %s) for %s at %s", thumbUUID.String(), originalImagePath, thumbnailSavePath)
	return &ThumbnailResult{
		Path:   thumbnailSavePath,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: "jpeg",
	}, nil
}
