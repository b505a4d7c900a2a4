package models

// ExifMetadata holds the EXIF signal record of a photo. Absent fields stay
// NULL, they are never fabricated.
// It corresponds to the 'exif_metadata' table.
type ExifMetadata struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID uint `gorm:"uniqueIndex;not null" json:"file_id"`

	ShotAt       *int64   `gorm:"index" json:"shot_at,omitempty"` // Nullable, Unix timestamp
	CameraMake   *string  `gorm:"" json:"camera_make,omitempty"`
	CameraModel  *string  `gorm:"" json:"camera_model,omitempty"`
	LensMake     *string  `gorm:"" json:"lens_make,omitempty"`
	LensModel    *string  `gorm:"" json:"lens_model,omitempty"`
	ISO          *int     `gorm:"" json:"iso,omitempty"`
	Aperture     *float64 `gorm:"" json:"aperture,omitempty"`      // F-number
	ShutterSpeed *string  `gorm:"" json:"shutter_speed,omitempty"` // e.g. "1/125"
	FocalLength  *float64 `gorm:"" json:"focal_length,omitempty"`  // mm
	GPSLatitude  *float64 `gorm:"" json:"gps_latitude,omitempty"`
	GPSLongitude *float64 `gorm:"" json:"gps_longitude,omitempty"`
	Orientation  *int     `gorm:"" json:"orientation,omitempty"`

	ProcessedAt int64 `gorm:"not null" json:"processed_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (ExifMetadata) TableName() string {
	return "exif_metadata"
}
