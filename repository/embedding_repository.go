package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/models"
)

// EmbeddingRepository handles database operations for semantic Embedding
// entities.
type EmbeddingRepository struct {
	DB *gorm.DB
}

// Ensure EmbeddingRepository implements EmbeddingRepositoryInterface
var _ EmbeddingRepositoryInterface = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new instance of EmbeddingRepository
func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{DB: db}
}

// Upsert stores the vector for (fileID, model), replacing a previous
// vector of the same model only. Other models' vectors are left alone.
func (r *EmbeddingRepository) Upsert(fileID uint, model string, vector []float32) error {
	embedding := models.Embedding{
		FileID:      fileID,
		Model:       model,
		ProcessedAt: time.Now().Unix(),
	}
	embedding.SetVector(vector)

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ? AND model = ?", fileID, model).Delete(&models.Embedding{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous embedding for photo %d: %w", fileID, err)
		}
		if err := tx.Create(&embedding).Error; err != nil {
			return fmt.Errorf("failed to store embedding for photo %d: %w", fileID, err)
		}
		return nil
	})
}

// ListByModel retrieves all embeddings produced by one model id.
func (r *EmbeddingRepository) ListByModel(model string) ([]models.Embedding, error) {
	var embeddings []models.Embedding
	err := r.DB.Where("model = ?", model).Find(&embeddings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list embeddings for model %s: %w", model, err)
	}
	return embeddings, nil
}

// DeleteByFileID removes all embeddings of a photo, across models.
func (r *EmbeddingRepository) DeleteByFileID(fileID uint) error {
	err := r.DB.Where("file_id = ?", fileID).Delete(&models.Embedding{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete embeddings for photo %d: %w", fileID, err)
	}
	return nil
}
