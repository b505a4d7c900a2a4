package models

// Person represents a clustered identity in the database using GORM.
// The centroid is the mean of the member face vectors and is recomputed
// whenever membership changes. Deactivating a person only hides it from
// search and badges; the face detections keep their history.
// It corresponds to the 'people' table.
type Person struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"not null" json:"name"`

	CentroidData []byte `gorm:"column:centroid_data" json:"-"` // mean face vector as BLOB
	SampleCount  int    `gorm:"not null;default:0" json:"sample_count"`
	Active       bool   `gorm:"not null;default:true" json:"active"`

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Unix timestamp

	// Relationships
	Faces []FaceDetection `gorm:"foreignKey:PersonID;constraint:OnDelete:SET NULL" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "people"
}

// GetCentroid converts the BLOB data to []float32.
func (p *Person) GetCentroid() []float32 {
	return DecodeVector(p.CentroidData)
}

// SetCentroid converts []float32 to BLOB data.
func (p *Person) SetCentroid(vector []float32) {
	p.CentroidData = EncodeVector(vector)
}
