package models

// OCRResult holds the recognized text of a photo. Records below the
// configured confidence floor are kept for inspection but excluded from
// text search at query time.
// It corresponds to the 'ocr_results' table.
type OCRResult struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID uint `gorm:"uniqueIndex;not null" json:"file_id"`

	Text       string  `gorm:"not null" json:"text"`
	Language   string  `gorm:"not null" json:"language"`
	Confidence float64 `gorm:"not null" json:"confidence"` // 0..1

	ProcessedAt int64 `gorm:"not null" json:"processed_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (OCRResult) TableName() string {
	return "ocr_results"
}
