package media

import (
	"context"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"
)

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// Metadata is the EXIF signal produced by the metadata extractor. Fields
// the file does not carry stay nil.
type Metadata struct {
	ShotAt       *int64   `json:"shot_at,omitempty"` // Unix timestamp
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
	LensMake     *string  `json:"lens_make,omitempty"`
	LensModel    *string  `json:"lens_model,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	Aperture     *float64 `json:"aperture,omitempty"`
	ShutterSpeed *string  `json:"shutter_speed,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	GPSLatitude  *float64 `json:"gps_latitude,omitempty"`
	GPSLongitude *float64 `json:"gps_longitude,omitempty"`
	Orientation  *int     `json:"orientation,omitempty"`
}

// OCRText is the text signal produced by the OCR engine.
type OCRText struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"` // 0..1
}

// FaceResult is one detected face with its recognition vector.
type FaceResult struct {
	X1, Y1, X2, Y2 int
	Confidence     float32
	Vector         []float32
}

// The extractor engines below are opaque scoring functions behind stable
// contracts. Each is a pure per-file transform: it either produces a
// signal record, reports "nothing found" (nil record, nil error), or
// fails with a real error (I/O failure, corrupt input, timeout).

// MetadataExtractor reads EXIF metadata from an image file.
type MetadataExtractor interface {
	Extract(path string) (*Metadata, error)
}

// TextRecognizer extracts visible text from an image file.
type TextRecognizer interface {
	Recognize(ctx context.Context, path string) (*OCRText, error)
}

// Embedder maps images and text into the same semantic vector space.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	ModelID() string
}

// FaceEngine detects faces and computes their recognition vectors.
type FaceEngine interface {
	Detect(ctx context.Context, path string) ([]FaceResult, error)
}
