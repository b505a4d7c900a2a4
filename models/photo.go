package models

import "gorm.io/gorm"

// Photo represents one file of the scanned library using GORM.
// It corresponds to the 'photos' table.
type Photo struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Path      string `gorm:"uniqueIndex;not null" json:"path"` // absolute path on disk
	Folder    string `gorm:"index;not null" json:"folder"`
	Filename  string `gorm:"not null" json:"filename"`
	Extension string `gorm:"not null" json:"extension"`
	Size      int64  `gorm:"not null" json:"size"`

	CreatedTS  int64 `gorm:"not null" json:"created_ts"`  // Unix timestamp
	ModifiedTS int64 `gorm:"not null" json:"modified_ts"` // Unix timestamp

	ContentHash    string  `gorm:"index;not null" json:"content_hash"`
	PerceptualHash *string `gorm:"" json:"perceptual_hash,omitempty"` // Nullable

	IndexedAt    *int64 `gorm:"" json:"indexed_at,omitempty"` // Nullable, Unix timestamp
	IndexVersion int64  `gorm:"not null;default:0" json:"index_version"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"` // set when the file disappears from a root

	// Relationships
	Faces []FaceDetection `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Photo) TableName() string {
	return "photos"
}
