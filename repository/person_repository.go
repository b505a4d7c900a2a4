package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/models"
)

// PersonRepository handles database operations for Person entities
type PersonRepository struct {
	DB *gorm.DB
}

// Ensure PersonRepository implements PersonRepositoryInterface
var _ PersonRepositoryInterface = (*PersonRepository)(nil)

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// Create creates a new person record in the database
func (r *PersonRepository) Create(person *models.Person) error {
	now := time.Now().Unix()
	if person.CreatedAt == 0 {
		person.CreatedAt = now
	}
	if person.UpdatedAt == 0 {
		person.UpdatedAt = now
	}
	person.Active = true

	err := r.DB.Create(person).Error
	if err != nil {
		return fmt.Errorf("failed to create person %s: %w", person.Name, err)
	}
	return nil
}

// GetByID retrieves a person by their ID
func (r *PersonRepository) GetByID(id uint) (*models.Person, error) {
	var person models.Person
	err := r.DB.First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get person by ID %d: %w", id, err)
	}
	return &person, nil
}

// ListAll retrieves all people, ordered by name
func (r *PersonRepository) ListAll() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Order("name ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

// ListActive retrieves the people visible to search and badges
func (r *PersonRepository) ListActive() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Where("active = ?", true).Order("name ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active people: %w", err)
	}
	return people, nil
}

// UpdateName renames a person
func (r *PersonRepository) UpdateName(id uint, name string) error {
	result := r.DB.Model(&models.Person{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":       name,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to rename person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetActive toggles a person's search/badge visibility without touching
// their face detection history
func (r *PersonRepository) SetActive(id uint, active bool) error {
	result := r.DB.Model(&models.Person{}).Where("id = ?", id).Updates(map[string]interface{}{
		"active":     active,
		"updated_at": time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to set active=%t for person ID %d: %w", active, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateCentroid stores the recomputed mean face vector and membership
// size of a person
func (r *PersonRepository) UpdateCentroid(id uint, centroid []float32, sampleCount int) error {
	result := r.DB.Model(&models.Person{}).Where("id = ?", id).Updates(map[string]interface{}{
		"centroid_data": models.EncodeVector(centroid),
		"sample_count":  sampleCount,
		"updated_at":    time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update centroid for person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a person by their ID. Face detections are detached by
// the clustering service before this is called, never cascade-deleted.
func (r *PersonRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Person{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
