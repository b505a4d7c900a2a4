package models

// Thumbnail records the generated preview of a photo. It is regenerated
// whenever the source file's content hash changes.
// It corresponds to the 'thumbnails' table.
type Thumbnail struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID uint `gorm:"uniqueIndex;not null" json:"file_id"`

	Path   string `gorm:"not null" json:"path"`
	Width  int    `gorm:"not null" json:"width"`
	Height int    `gorm:"not null" json:"height"`
	Format string `gorm:"not null" json:"format"`

	GeneratedAt int64 `gorm:"not null" json:"generated_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Thumbnail) TableName() string {
	return "thumbnails"
}
