package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	DefaultThumbnailsSubDir = "thumbnails"
	DefaultTrashSubDir      = "trash"
)

const (
	defaultThumbnailMaxSize      = 300
	defaultIndexQueueSize        = 200
	defaultExtractionTimeoutSecs = 120
	defaultOCRConfidenceFloor    = 0.35
	defaultFaceMatchThreshold    = 0.60
	defaultFaceDetectionConf     = 0.70
)

type Config struct {
	// source directories (where original user photos are scanned)
	RootDirectories []string

	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // primary root for generated assets (thumbs, trash)
	ThumbnailsPath   string // full-calculated path for thumbnails
	TrashPath        string // full-calculated path for trashed originals

	// thumbnail generation settings
	ThumbnailMaxSize int

	// indexing worker settings
	NumIndexWorkers   int
	IndexQueueSize    int
	ExtractionTimeout int // seconds, per file and phase

	// OCR settings
	OCRLanguages       []string
	OCRConfidenceFloor float64

	// semantic embedding model (CLIP-style, ONNX)
	ClipImageModelPath string
	ClipTextModelPath  string
	ClipModelID        string

	// face pipeline settings
	FaceSearchEnabled       bool
	FaceDetectorModelPath   string
	FaceRecognizerModelPath string
	FaceRecognizerModelName string
	FaceMatchThreshold      float64
	FaceDetectionConfidence float64
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val < 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	rootList := getEnvOrDefault("ROOT_DIRECTORIES", ".")
	var roots []string
	for _, root := range strings.Split(rootList, ",") {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return Config{}, fmt.Errorf("failed to get absolute path for root directory '%s': %w", root, err)
		}
		roots = append(roots, absRoot)
	}
	if len(roots) == 0 {
		return Config{}, fmt.Errorf("ROOT_DIRECTORIES resolved to an empty list")
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "photonest.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	thumbSubDir := getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)
	absThumbnailsPath := filepath.Join(absMediaStorage, thumbSubDir)

	trashSubDir := getEnvOrDefault("TRASH_SUBDIR", DefaultTrashSubDir)
	absTrashPath := filepath.Join(absMediaStorage, trashSubDir)

	langList := getEnvOrDefault("OCR_LANGUAGES", "eng")
	var langs []string
	for _, lang := range strings.Split(langList, ",") {
		lang = strings.TrimSpace(lang)
		if lang != "" {
			langs = append(langs, lang)
		}
	}

	cfg := Config{
		RootDirectories:  roots,
		DatabasePath:     dbPath,
		MediaStoragePath: absMediaStorage,
		ThumbnailsPath:   absThumbnailsPath,
		TrashPath:        absTrashPath,

		ThumbnailMaxSize: getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),

		NumIndexWorkers:   getEnvIntOrDefault("NUM_INDEX_WORKERS", runtime.NumCPU()),
		IndexQueueSize:    getEnvIntOrDefault("INDEX_QUEUE_SIZE", defaultIndexQueueSize),
		ExtractionTimeout: getEnvIntOrDefault("EXTRACTION_TIMEOUT_SECONDS", defaultExtractionTimeoutSecs),

		OCRLanguages:       langs,
		OCRConfidenceFloor: getEnvFloatOrDefault("OCR_CONFIDENCE_FLOOR", defaultOCRConfidenceFloor),

		ClipImageModelPath: getEnvOrDefault("CLIP_IMAGE_MODEL_PATH", "./models/clip_image_vit_b32.onnx"),
		ClipTextModelPath:  getEnvOrDefault("CLIP_TEXT_MODEL_PATH", "./models/clip_text_vit_b32.onnx"),
		ClipModelID:        getEnvOrDefault("CLIP_MODEL_ID", "clip-vit-b32"),

		FaceSearchEnabled:       getEnvBoolOrDefault("FACE_SEARCH_ENABLED", true),
		FaceDetectorModelPath:   getEnvOrDefault("FACE_DETECTOR_MODEL_PATH", "./models/retinaface_640.onnx"),
		FaceRecognizerModelPath: getEnvOrDefault("FACE_RECOGNIZER_MODEL_PATH", "./models/arcface_r50.onnx"),
		FaceRecognizerModelName: getEnvOrDefault("FACE_RECOGNIZER_MODEL_NAME", "arcface"),
		FaceMatchThreshold:      getEnvFloatOrDefault("FACE_MATCH_THRESHOLD", defaultFaceMatchThreshold),
		FaceDetectionConfidence: getEnvFloatOrDefault("FACE_DETECTION_CONFIDENCE", defaultFaceDetectionConf),
	}

	return cfg, nil
}
