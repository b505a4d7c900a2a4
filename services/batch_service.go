package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/jobs"
	"github.com/photonest/photonestbackend/repository"
)

// BatchService runs long multi-photo operations through the job manager.
// Batch jobs run concurrently with each other and with indexing.
type BatchService struct {
	manager *jobs.Manager
	photos  repository.PhotoRepositoryInterface
	trash   string
}

// NewBatchService creates the batch operation service. trash is the
// directory soft-deleted originals are moved into.
func NewBatchService(manager *jobs.Manager, photos repository.PhotoRepositoryInterface, trash string) *BatchService {
	return &BatchService{
		manager: manager,
		photos:  photos,
		trash:   trash,
	}
}

// StartDelete launches a deletion job over the given photos. With
// permanent=false the originals are moved to the trash directory, with
// permanent=true they are removed from disk. Each photo succeeds or
// fails on its own; the job only errors on infrastructure failures.
func (s *BatchService) StartDelete(photoIDs []uint, permanent bool) (*jobs.Job, error) {
	if len(photoIDs) == 0 {
		return nil, errdefs.NewValidation("photo_ids", "must not be empty")
	}

	job := s.manager.StartBatch(func(ctx context.Context, job *jobs.Job) error {
		return s.runDelete(ctx, job, photoIDs, permanent)
	})
	return job, nil
}

func (s *BatchService) runDelete(ctx context.Context, job *jobs.Job, photoIDs []uint, permanent bool) error {
	job.BeginPhase("delete", len(photoIDs))

	if !permanent {
		if err := os.MkdirAll(s.trash, 0o755); err != nil {
			return fmt.Errorf("failed to prepare trash directory: %w", err)
		}
	}

	for _, photoID := range photoIDs {
		if ctx.Err() != nil {
			return nil // cancelled, remaining photos stay untouched
		}
		if err := s.deleteOne(photoID, permanent); err != nil {
			itemErr := &errdefs.BatchItemError{PhotoID: photoID, Reason: err.Error()}
			log.Printf("batch: %v", itemErr)
			job.RecordError(itemErr.Error())
			job.RecordOutcome(jobs.ItemOutcome{ItemID: photoID, Success: false, Reason: err.Error()})
		} else {
			job.RecordOutcome(jobs.ItemOutcome{ItemID: photoID, Success: true})
		}
		job.IncrProcessed()
	}
	return nil
}

func (s *BatchService) deleteOne(photoID uint, permanent bool) error {
	photo, err := s.photos.GetByID(photoID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("photo not found")
		}
		return err
	}

	if permanent {
		if err := os.Remove(photo.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove original: %w", err)
		}
	} else {
		if err := s.moveToTrash(photo.Path); err != nil {
			return err
		}
	}

	// thumbnail files are disposable, ignore removal failures
	if thumb, err := s.photos.GetThumbnail(photoID); err == nil && thumb != nil {
		_ = os.Remove(thumb.Path)
	}

	if err := s.photos.DeleteCascade(photoID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// moveToTrash relocates a file into the trash directory under a unique
// name. Rename is tried first; a cross-device move falls back to
// copy-then-remove.
func (s *BatchService) moveToTrash(path string) error {
	dest := filepath.Join(s.trash, uuid.NewString()+"_"+filepath.Base(path))

	err := os.Rename(path, dest)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return nil // already gone from disk, nothing to preserve
	}

	src, openErr := os.Open(path)
	if openErr != nil {
		return fmt.Errorf("failed to move to trash: %w", err)
	}
	defer src.Close()

	dst, createErr := os.Create(dest)
	if createErr != nil {
		return fmt.Errorf("failed to create trash copy: %w", createErr)
	}
	if _, copyErr := io.Copy(dst, src); copyErr != nil {
		dst.Close()
		_ = os.Remove(dest)
		return fmt.Errorf("failed to copy to trash: %w", copyErr)
	}
	if closeErr := dst.Close(); closeErr != nil {
		return fmt.Errorf("failed to finish trash copy: %w", closeErr)
	}
	src.Close()
	if removeErr := os.Remove(path); removeErr != nil {
		return fmt.Errorf("failed to remove original after trash copy: %w", removeErr)
	}
	return nil
}
