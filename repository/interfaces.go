package repository

import (
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
)

// SearchFilters narrow the searched population before ranking, so result
// totals reflect the filtered set.
type SearchFilters struct {
	From         *int64 // inclusive shot_at lower bound, Unix timestamp
	To           *int64 // inclusive shot_at upper bound, Unix timestamp
	FolderPrefix string
}

// KeywordField identifies where a keyword hit matched.
type KeywordField string

const (
	KeywordFieldFilename KeywordField = "filename"
	KeywordFieldFolder   KeywordField = "folder"
	KeywordFieldOCR      KeywordField = "ocr"
)

// KeywordHit is one keyword match row, before merging and ranking.
type KeywordHit struct {
	FileID   uint
	Path     string
	Folder   string
	Filename string
	ShotAt   *int64
	Field    KeywordField
	OCRText  string // populated for OCR hits, used for snippets
}

// SearchAttrs carries the photo attributes needed to decorate and filter
// search results from the vector and face stores.
type SearchAttrs struct {
	FileID    uint
	Path      string
	Folder    string
	Filename  string
	ShotAt    *int64
	ThumbPath *string
}

// PhotoRepositoryInterface defines the methods for photo data operations,
// including the EXIF/OCR/thumbnail side tables owned by each photo.
type PhotoRepositoryInterface interface {
	Create(photo *models.Photo) error
	GetByID(id uint) (*models.Photo, error)
	GetByPath(path string) (*models.Photo, error)
	GetByIDs(ids []uint) ([]models.Photo, error)
	ListActive() ([]models.Photo, error)
	ListUnindexed() ([]models.Photo, error)
	ListByFolder(folder string) ([]models.Photo, error)
	ListFolders() ([]string, error)

	UpdateStat(id uint, size, modifiedTS int64, contentHash string, perceptualHash *string) error
	TouchModified(id uint, modifiedTS int64) error
	MarkIndexed(id uint) error
	MarkRemoved(id uint) error
	ClearSignals(id uint) error
	DeleteCascade(id uint) error

	UpsertExif(meta *models.ExifMetadata) error
	GetExif(fileID uint) (*models.ExifMetadata, error)
	UpsertOCR(result *models.OCRResult) error
	GetOCR(fileID uint) (*models.OCRResult, error)
	UpsertThumbnail(thumb *models.Thumbnail) error
	GetThumbnail(fileID uint) (*models.Thumbnail, error)

	SearchKeyword(term string, filters SearchFilters, ocrFloor float64) ([]KeywordHit, error)
	GetSearchAttrs(fileIDs []uint) ([]SearchAttrs, error)
}

// EmbeddingRepositoryInterface defines the methods for semantic vector
// storage. Vectors are keyed by (file, model); a new model id creates new
// rows instead of overwriting.
type EmbeddingRepositoryInterface interface {
	Upsert(fileID uint, model string, vector []float32) error
	ListByModel(model string) ([]models.Embedding, error)
	DeleteByFileID(fileID uint) error
}

// FaceRepositoryInterface defines the methods for face detection data
// operations.
type FaceRepositoryInterface interface {
	ReplaceForPhoto(fileID uint, faces []media.FaceResult) ([]models.FaceDetection, error)
	GetByID(id uint) (*models.FaceDetection, error)
	ListByPhoto(fileID uint) ([]models.FaceDetection, error)
	ListByPerson(personID uint) ([]models.FaceDetection, error)
	ListByIDs(ids []uint) ([]models.FaceDetection, error)
	AssignPerson(faceID, personID uint, verified bool) error
	Unassign(faceID uint) error
	DetachPersonRefs(personID uint) error
}

// PersonRepositoryInterface defines the methods for person data operations.
type PersonRepositoryInterface interface {
	Create(person *models.Person) error
	GetByID(id uint) (*models.Person, error)
	ListAll() ([]models.Person, error)
	ListActive() ([]models.Person, error)
	UpdateName(id uint, name string) error
	SetActive(id uint, active bool) error
	UpdateCentroid(id uint, centroid []float32, sampleCount int) error
	Delete(id uint) error
}
