package models

// Embedding stores a semantic image vector for one photo and one model.
// Re-extraction with a different model creates a new row instead of
// overwriting the existing one.
// It corresponds to the 'embeddings' table.
type Embedding struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID uint   `gorm:"uniqueIndex:uq_embedding_file_model;not null" json:"file_id"`
	Model  string `gorm:"uniqueIndex:uq_embedding_file_model;not null" json:"model"`

	VectorData []byte `gorm:"not null;column:vector_data" json:"-"` // float32 components as BLOB
	Dim        int    `gorm:"not null" json:"dim"`

	ProcessedAt int64 `gorm:"not null" json:"processed_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Embedding) TableName() string {
	return "embeddings"
}

// GetVector converts the BLOB data to []float32.
func (e *Embedding) GetVector() []float32 {
	return DecodeVector(e.VectorData)
}

// SetVector converts []float32 to BLOB data and records the dimensionality.
func (e *Embedding) SetVector(vector []float32) {
	e.VectorData = EncodeVector(vector)
	e.Dim = len(vector)
}
