package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
)

// FaceRepository handles database operations for FaceDetection entities
type FaceRepository struct {
	DB *gorm.DB
}

// Ensure FaceRepository implements FaceRepositoryInterface
var _ FaceRepositoryInterface = (*FaceRepository)(nil)

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// ReplaceForPhoto supersedes the photo's face detections with a freshly
// extracted set. The replacement is transactional so a cancelled or
// failing run never leaves the photo with a half-written mix of old and
// new detections.
func (r *FaceRepository) ReplaceForPhoto(fileID uint, faces []media.FaceResult) ([]models.FaceDetection, error) {
	now := time.Now().Unix()
	detections := make([]models.FaceDetection, 0, len(faces))
	for _, face := range faces {
		detection := models.FaceDetection{
			FileID:     fileID,
			X1:         face.X1,
			Y1:         face.Y1,
			X2:         face.X2,
			Y2:         face.Y2,
			Confidence: face.Confidence,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		detection.SetVector(face.Vector)
		detections = append(detections, detection)
	}

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&models.FaceDetection{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous detections for photo %d: %w", fileID, err)
		}
		if len(detections) == 0 {
			return nil
		}
		if err := tx.Create(&detections).Error; err != nil {
			return fmt.Errorf("failed to store detections for photo %d: %w", fileID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detections, nil
}

// GetByID retrieves a face detection by its ID
func (r *FaceRepository) GetByID(id uint) (*models.FaceDetection, error) {
	var detection models.FaceDetection
	err := r.DB.Preload("Person").First(&detection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get face detection by ID %d: %w", id, err)
	}
	return &detection, nil
}

// ListByPhoto retrieves all face detections of one photo
func (r *FaceRepository) ListByPhoto(fileID uint) ([]models.FaceDetection, error) {
	var detections []models.FaceDetection
	err := r.DB.Where("file_id = ?", fileID).Preload("Person").Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list face detections for photo %d: %w", fileID, err)
	}
	return detections, nil
}

// ListByPerson retrieves all face detections assigned to one person
func (r *FaceRepository) ListByPerson(personID uint) ([]models.FaceDetection, error) {
	var detections []models.FaceDetection
	err := r.DB.Where("person_id = ?", personID).Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list face detections for person %d: %w", personID, err)
	}
	return detections, nil
}

// ListByIDs retrieves the face detections matching the given ids
func (r *FaceRepository) ListByIDs(ids []uint) ([]models.FaceDetection, error) {
	if len(ids) == 0 {
		return []models.FaceDetection{}, nil
	}
	var detections []models.FaceDetection
	err := r.DB.Where("id IN ?", ids).Find(&detections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list face detections by ids: %w", err)
	}
	return detections, nil
}

// AssignPerson links a detection to a person. Manual tags set verified so
// re-clustering never overrides them.
func (r *FaceRepository) AssignPerson(faceID, personID uint, verified bool) error {
	result := r.DB.Model(&models.FaceDetection{}).Where("id = ?", faceID).Updates(map[string]interface{}{
		"person_id":  personID,
		"verified":   verified,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to assign face %d to person %d: %w", faceID, personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Unassign clears the person reference of a detection
func (r *FaceRepository) Unassign(faceID uint) error {
	result := r.DB.Model(&models.FaceDetection{}).Where("id = ?", faceID).Updates(map[string]interface{}{
		"person_id":  gorm.Expr("NULL"),
		"verified":   false,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to unassign face %d: %w", faceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DetachPersonRefs nulls the person reference of every detection pointing
// at the given person. The detections themselves are kept.
func (r *FaceRepository) DetachPersonRefs(personID uint) error {
	err := r.DB.Model(&models.FaceDetection{}).Where("person_id = ?", personID).Updates(map[string]interface{}{
		"person_id":  gorm.Expr("NULL"),
		"verified":   false,
		"updated_at": time.Now().Unix(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to detach detections from person %d: %w", personID, err)
	}
	return nil
}
