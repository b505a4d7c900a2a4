package models

import "gorm.io/gorm"

// FaceDetection represents one detected face in a photo. PersonID is a weak
// reference assigned by clustering; deleting a person nulls it instead of
// cascading into the detection rows.
// It corresponds to the 'face_detections' table.
type FaceDetection struct {
	ID       uint  `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID   uint  `gorm:"index;not null" json:"file_id"`
	PersonID *uint `gorm:"index" json:"person_id,omitempty"` // Nullable

	X1 int `gorm:"not null" json:"x1"`
	Y1 int `gorm:"not null" json:"y1"`
	X2 int `gorm:"not null" json:"x2"`
	Y2 int `gorm:"not null" json:"y2"`

	VectorData []byte  `gorm:"column:vector_data" json:"-"` // face vector as BLOB
	Confidence float32 `gorm:"not null" json:"confidence"`  // 0..1
	Verified   bool    `gorm:"not null;default:false" json:"verified"`

	CreatedAt int64          `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64          `gorm:"not null" json:"updated_at"` // Unix timestamp
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Person *Person `gorm:"foreignKey:PersonID;constraint:OnDelete:SET NULL" json:"person,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (FaceDetection) TableName() string {
	return "face_detections"
}

// GetVector converts the BLOB data to []float32.
func (fd *FaceDetection) GetVector() []float32 {
	return DecodeVector(fd.VectorData)
}

// SetVector converts []float32 to BLOB data.
func (fd *FaceDetection) SetVector(vector []float32) {
	fd.VectorData = EncodeVector(vector)
}
