package indexer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/photonest/photonestbackend/config"
	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/jobs"
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
	"github.com/photonest/photonestbackend/services"
)

// Pipeline phase names, in execution order. A phase only begins once the
// previous one has processed every file known from discovery.
const (
	PhaseDiscovery  = "discovery"
	PhaseMetadata   = "metadata"
	PhaseOCR        = "ocr"
	PhaseEmbeddings = "embeddings"
	PhaseFaces      = "faces"
)

// Engines bundles the opaque extraction backends. A nil engine skips its
// phase instead of failing the run.
type Engines struct {
	Metadata media.MetadataExtractor
	OCR      media.TextRecognizer
	Embedder media.Embedder
	Faces    media.FaceEngine
}

// Orchestrator drives the phased indexing pipeline on top of the job
// manager's single index slot.
type Orchestrator struct {
	manager    *jobs.Manager
	scanner    *Scanner
	photos     repository.PhotoRepositoryInterface
	embeddings repository.EmbeddingRepositoryInterface
	faces      repository.FaceRepositoryInterface
	cluster    *services.FaceClusteringService
	engines    Engines

	thumbnailsDir    string
	thumbnailMaxSize int
	workers          int
	queueSize        int
	timeout          time.Duration
}

// NewOrchestrator wires the indexing pipeline.
func NewOrchestrator(
	cfg config.Config,
	manager *jobs.Manager,
	scanner *Scanner,
	photos repository.PhotoRepositoryInterface,
	embeddings repository.EmbeddingRepositoryInterface,
	faces repository.FaceRepositoryInterface,
	cluster *services.FaceClusteringService,
	engines Engines,
) *Orchestrator {
	workers := cfg.NumIndexWorkers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.IndexQueueSize
	if queueSize < 0 {
		queueSize = 0
	}
	timeout := time.Duration(cfg.ExtractionTimeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Orchestrator{
		manager:          manager,
		scanner:          scanner,
		photos:           photos,
		embeddings:       embeddings,
		faces:            faces,
		cluster:          cluster,
		engines:          engines,
		thumbnailsDir:    cfg.ThumbnailsPath,
		thumbnailMaxSize: cfg.ThumbnailMaxSize,
		workers:          workers,
		queueSize:        queueSize,
		timeout:          timeout,
	}
}

// Start launches an indexing run. It returns errdefs.ErrAlreadyRunning
// when one is active. With full=true every active photo is re-extracted,
// not only the new and changed ones.
func (o *Orchestrator) Start(full bool) (*jobs.Job, error) {
	return o.manager.StartIndex(func(ctx context.Context, job *jobs.Job) error {
		return o.run(ctx, job, full)
	})
}

// Stop cancels the running indexing job, if any.
func (o *Orchestrator) Stop() bool {
	job := o.manager.ActiveIndexJob()
	if job == nil {
		return false
	}
	_ = o.manager.Cancel(job.ID())
	return true
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", errdefs.ErrStoreUnavailable, err)
}

// failureSet collects the photos that hit an extraction error in any
// phase of the current run. They keep indexed_at unset so the next run
// picks them up again.
type failureSet struct {
	mu  sync.Mutex
	ids map[uint]bool
}

func newFailureSet() *failureSet {
	return &failureSet{ids: make(map[uint]bool)}
}

func (f *failureSet) add(id uint) {
	f.mu.Lock()
	f.ids[id] = true
	f.mu.Unlock()
}

func (f *failureSet) has(id uint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ids[id]
}

func (o *Orchestrator) run(ctx context.Context, job *jobs.Job, full bool) error {
	job.BeginPhase(PhaseDiscovery, 0)

	plan, err := o.scanner.BuildPlan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil // cancelled during the walk
		}
		return storeErr(err)
	}
	for _, msg := range plan.Unreadable {
		job.RecordError(msg)
	}

	work, err := o.applyPlan(plan, full)
	if err != nil {
		return err
	}

	if len(work) == 0 {
		log.Printf("indexer: library unchanged, nothing to do")
		return nil
	}
	log.Printf("indexer: processing %d file(s) with %d worker(s)", len(work), o.workers)

	phases := []struct {
		name string
		fn   func(context.Context, models.Photo) error
		skip bool
	}{
		{PhaseMetadata, o.processMetadata, o.engines.Metadata == nil},
		{PhaseOCR, o.processOCR, o.engines.OCR == nil},
		{PhaseEmbeddings, o.processEmbedding, o.engines.Embedder == nil},
		{PhaseFaces, o.processFaces, o.engines.Faces == nil},
	}

	failures := newFailureSet()
	for _, phase := range phases {
		if ctx.Err() != nil {
			return nil
		}
		if phase.skip {
			log.Printf("indexer: skipping %s phase (engine unavailable)", phase.name)
			continue
		}
		if err := o.runPhase(ctx, job, phase.name, work, phase.fn, failures); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	// advance the index version of every fully extracted file; files with
	// an extraction error keep indexed_at unset and are requeued next run
	for _, photo := range work {
		if failures.has(photo.ID) {
			continue
		}
		if err := o.photos.MarkIndexed(photo.ID); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

// applyPlan mutates the photo store according to the scan diff and returns
// the records requiring extraction work. Store failures here are fatal.
func (o *Orchestrator) applyPlan(plan *ScanPlan, full bool) ([]models.Photo, error) {
	for _, removed := range plan.Removed {
		if err := o.photos.MarkRemoved(removed.ID); err != nil {
			return nil, storeErr(err)
		}
	}
	for _, touched := range plan.Touched {
		if err := o.photos.TouchModified(touched.Record.ID, touched.ModifiedTS); err != nil {
			return nil, storeErr(err)
		}
	}

	var work []models.Photo

	for _, stat := range plan.New {
		photo := models.Photo{
			Path:        stat.Path,
			Folder:      stat.Folder,
			Filename:    stat.Filename,
			Extension:   stat.Extension,
			Size:        stat.Size,
			CreatedTS:   time.Now().Unix(),
			ModifiedTS:  stat.ModifiedTS,
			ContentHash: stat.ContentHash,
		}
		if phash, err := media.PerceptualHash(stat.Path); err == nil {
			photo.PerceptualHash = &phash
		}
		if err := o.photos.Create(&photo); err != nil {
			return nil, storeErr(err)
		}
		work = append(work, photo)
	}

	for _, changed := range plan.Changed {
		var phash *string
		if h, err := media.PerceptualHash(changed.Stat.Path); err == nil {
			phash = &h
		}
		if err := o.photos.UpdateStat(changed.Record.ID, changed.Stat.Size, changed.Stat.ModifiedTS, changed.Stat.ContentHash, phash); err != nil {
			return nil, storeErr(err)
		}
		// content changed: previous extraction results are superseded
		if err := o.photos.ClearSignals(changed.Record.ID); err != nil {
			return nil, storeErr(err)
		}
		record := changed.Record
		record.Size = changed.Stat.Size
		record.ModifiedTS = changed.Stat.ModifiedTS
		record.ContentHash = changed.Stat.ContentHash
		work = append(work, record)
	}

	inWork := make(map[uint]bool, len(work))
	for _, photo := range work {
		inWork[photo.ID] = true
	}

	// requeue photos whose previous run never completed (extraction error
	// or interrupted pass); a full run revisits everything instead
	var backlog []models.Photo
	var err error
	if full {
		backlog, err = o.photos.ListActive()
	} else {
		backlog, err = o.photos.ListUnindexed()
	}
	if err != nil {
		return nil, storeErr(err)
	}
	for _, photo := range backlog {
		if !inWork[photo.ID] {
			work = append(work, photo)
		}
	}

	return work, nil
}

// runPhase processes every work item through fn with a bounded worker
// pool. Per-file failures are absorbed into the job's error list; only
// store-level failures abort the phase. Cancellation stops dispatching new
// files while in-flight ones finish.
func (o *Orchestrator) runPhase(ctx context.Context, job *jobs.Job, name string, work []models.Photo, fn func(context.Context, models.Photo) error, failures *failureSet) error {
	job.BeginPhase(name, len(work))

	phaseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan models.Photo, o.queueSize)
	var wg sync.WaitGroup
	var fatalOnce sync.Once
	var fatalErr error

	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for photo := range queue {
				// items still queued after a cancel are skipped, not run
				if phaseCtx.Err() != nil {
					job.IncrProcessed()
					continue
				}

				fileCtx, cancelFile := context.WithTimeout(phaseCtx, o.timeout)
				err := fn(fileCtx, photo)
				cancelFile()

				if err != nil {
					if errdefs.IsFatal(err) {
						fatalOnce.Do(func() {
							fatalErr = err
							cancel()
						})
					} else {
						failures.add(photo.ID)
						extractionErr := errdefs.NewExtraction(name, photo.Path, err)
						log.Printf("indexer: worker %d: %v", id, extractionErr)
						job.RecordError(extractionErr.Error())
					}
				}
				job.IncrProcessed()
			}
		}(i)
	}

dispatch:
	for _, photo := range work {
		select {
		case queue <- photo:
		case <-phaseCtx.Done():
			break dispatch
		}
	}
	close(queue)
	wg.Wait()

	return fatalErr
}

func (o *Orchestrator) processMetadata(ctx context.Context, photo models.Photo) error {
	meta, err := o.engines.Metadata.Extract(photo.Path)
	if err != nil {
		return err
	}
	if meta != nil {
		record := &models.ExifMetadata{
			FileID:       photo.ID,
			ShotAt:       meta.ShotAt,
			CameraMake:   meta.CameraMake,
			CameraModel:  meta.CameraModel,
			LensMake:     meta.LensMake,
			LensModel:    meta.LensModel,
			ISO:          meta.ISO,
			Aperture:     meta.Aperture,
			ShutterSpeed: meta.ShutterSpeed,
			FocalLength:  meta.FocalLength,
			GPSLatitude:  meta.GPSLatitude,
			GPSLongitude: meta.GPSLongitude,
			Orientation:  meta.Orientation,
		}
		if err := o.photos.UpsertExif(record); err != nil {
			return storeErr(err)
		}
	}

	thumb, err := media.GenerateThumbnail(photo.Path, o.thumbnailsDir, o.thumbnailMaxSize)
	if err != nil {
		return err
	}
	record := &models.Thumbnail{
		FileID: photo.ID,
		Path:   thumb.Path,
		Width:  thumb.Width,
		Height: thumb.Height,
		Format: thumb.Format,
	}
	if err := o.photos.UpsertThumbnail(record); err != nil {
		return storeErr(err)
	}
	return nil
}

func (o *Orchestrator) processOCR(ctx context.Context, photo models.Photo) error {
	text, err := o.engines.OCR.Recognize(ctx, photo.Path)
	if err != nil {
		return err
	}
	if text == nil {
		return nil // nothing readable, not an error
	}
	record := &models.OCRResult{
		FileID:     photo.ID,
		Text:       text.Text,
		Language:   text.Language,
		Confidence: text.Confidence,
	}
	if err := o.photos.UpsertOCR(record); err != nil {
		return storeErr(err)
	}
	return nil
}

func (o *Orchestrator) processEmbedding(ctx context.Context, photo models.Photo) error {
	vector, err := o.engines.Embedder.EmbedImage(ctx, photo.Path)
	if err != nil {
		return err
	}
	if len(vector) == 0 {
		return nil
	}
	if err := o.embeddings.Upsert(photo.ID, o.engines.Embedder.ModelID(), vector); err != nil {
		return storeErr(err)
	}
	return nil
}

func (o *Orchestrator) processFaces(ctx context.Context, photo models.Photo) error {
	results, err := o.engines.Faces.Detect(ctx, photo.Path)
	if err != nil {
		return err
	}
	detections, err := o.faces.ReplaceForPhoto(photo.ID, results)
	if err != nil {
		return storeErr(err)
	}
	if o.cluster != nil && len(detections) > 0 {
		if err := o.cluster.AssignDetections(detections); err != nil {
			return storeErr(err)
		}
	}
	return nil
}
