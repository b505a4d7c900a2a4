package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/photonest/photonestbackend/config"
	"github.com/photonest/photonestbackend/database"
	"github.com/photonest/photonestbackend/handlers"
	"github.com/photonest/photonestbackend/indexer"
	"github.com/photonest/photonestbackend/jobs"
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/repository"
	"github.com/photonest/photonestbackend/search"
	"github.com/photonest/photonestbackend/services"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.ThumbnailsPath, cfg.TrashPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database schema: %v", err)
	}

	photoRepo := repository.NewPhotoRepository(db)
	embeddingRepo := repository.NewEmbeddingRepository(db)
	faceRepo := repository.NewFaceRepository(db)
	personRepo := repository.NewPersonRepository(db)

	metadataExtractor := media.NewExifExtractor()

	var recognizer media.TextRecognizer
	if ocr, err := media.NewTesseractOCR(cfg.OCRLanguages); err != nil {
		log.Printf("Warning: OCR disabled: %v", err)
	} else {
		recognizer = ocr
	}

	var embedder media.Embedder
	if clip, err := media.NewClipEmbedder(cfg.ClipImageModelPath, cfg.ClipTextModelPath, cfg.ClipModelID); err != nil {
		log.Printf("Warning: semantic search disabled: %v", err)
	} else {
		embedder = clip
	}

	var faceEngine media.FaceEngine
	if cfg.FaceSearchEnabled {
		pipeline := media.NewFacePipeline(
			cfg.FaceDetectorModelPath,
			cfg.FaceRecognizerModelPath,
			cfg.FaceRecognizerModelName,
			float32(cfg.FaceDetectionConfidence),
		)
		if pipeline != nil {
			faceEngine = pipeline
		} else {
			log.Printf("Warning: face search disabled: detection model unavailable")
		}
	} else {
		log.Printf("Face search disabled by configuration")
	}

	manager := jobs.NewManager()
	clustering := services.NewFaceClusteringService(faceRepo, personRepo, cfg.FaceMatchThreshold)
	batch := services.NewBatchService(manager, photoRepo, cfg.TrashPath)
	scanner := indexer.NewScanner(cfg.RootDirectories, photoRepo)
	orchestrator := indexer.NewOrchestrator(cfg, manager, scanner, photoRepo, embeddingRepo, faceRepo, clustering, indexer.Engines{
		Metadata: metadataExtractor,
		OCR:      recognizer,
		Embedder: embedder,
		Faces:    faceEngine,
	})
	engine := search.NewEngine(photoRepo, embeddingRepo, faceRepo, personRepo, embedder, cfg.OCRConfidenceFloor)

	log.Printf("Indexing roots: %s", strings.Join(cfg.RootDirectories, ", "))
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing thumbnails in: %s", cfg.ThumbnailsPath)
	log.Printf("Index workers: %d, per-file extraction timeout: %ds", cfg.NumIndexWorkers, cfg.ExtractionTimeout)

	r := chi.NewRouter()

	allowedOrigins := strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ",")
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	systemHandler := &handlers.SystemHandler{DB: db}
	indexHandler := &handlers.IndexHandler{Orchestrator: orchestrator, Manager: manager}
	searchHandler := &handlers.SearchHandler{Engine: engine, TempDir: os.TempDir()}
	batchHandler := &handlers.BatchHandler{Batch: batch, Manager: manager}
	personHandler := &handlers.PersonHandler{People: personRepo, Clustering: clustering}
	faceHandler := &handlers.FaceHandler{Faces: faceRepo, Clustering: clustering}
	libraryHandler := &handlers.LibraryHandler{Photos: photoRepo}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", systemHandler.Health)

		r.Route("/index", func(r chi.Router) {
			r.Get("/status", indexHandler.Status)
			r.Post("/start", indexHandler.Start)
			r.Post("/stop", indexHandler.Stop)
		})

		r.Route("/search", func(r chi.Router) {
			r.Get("/", searchHandler.Keyword)
			r.Post("/semantic", searchHandler.Semantic)
			r.Post("/image", searchHandler.Image)
			r.Post("/faces", searchHandler.Faces)
		})

		r.Route("/batch", func(r chi.Router) {
			r.Post("/delete", batchHandler.Delete)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{jobID}", batchHandler.GetJob)
			r.Post("/{jobID}/cancel", batchHandler.CancelJob)
		})

		r.Route("/people", func(r chi.Router) {
			r.Get("/", personHandler.List)
			r.Post("/", personHandler.Create)
			r.Route("/{personID}", func(r chi.Router) {
				r.Get("/", personHandler.Get)
				r.Put("/", personHandler.Update)
				r.Delete("/", personHandler.Delete)
				r.Post("/merge", personHandler.Merge)
				r.Post("/activate", personHandler.SetActive(true))
				r.Post("/deactivate", personHandler.SetActive(false))
			})
		})

		r.Route("/photos/{photoID}", func(r chi.Router) {
			r.Get("/", libraryHandler.Detail)
			r.Get("/faces", faceHandler.ListByPhoto)
		})

		r.Route("/faces/{faceID}", func(r chi.Router) {
			r.Post("/tag", faceHandler.Tag)
			r.Post("/untag", faceHandler.Untag)
		})

		r.Get("/library", libraryHandler.Browse)

		thumbnailSubDir := filepath.Base(cfg.ThumbnailsPath)
		r.Get(fmt.Sprintf("/%s/*", thumbnailSubDir), handlers.AssetServer(cfg.ThumbnailsPath, thumbnailSubDir))
		log.Printf("Registered thumbnail server at /api/%s/*", thumbnailSubDir)
	})

	port := getEnv("PORT", "8080")
	serverAddr := ":" + port
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
