package repository

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// PhotoRepository handles database operations for Photo entities and the
// EXIF/OCR/thumbnail side tables they own.
type PhotoRepository struct {
	DB *gorm.DB
}

// Ensure PhotoRepository implements PhotoRepositoryInterface
var _ PhotoRepositoryInterface = (*PhotoRepository)(nil)

// NewPhotoRepository creates a new instance of PhotoRepository
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{DB: db}
}

// Create creates a new photo record. A logically removed row with the
// same path is revived in place instead, keeping the unique path index
// satisfied when a removed file reappears; the revived photo is treated
// as freshly discovered (indexed_at cleared, index version preserved).
func (r *PhotoRepository) Create(photo *models.Photo) error {
	var existing models.Photo
	err := r.DB.Unscoped().Where("path = ?", photo.Path).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check existing record for %s: %w", photo.Path, err)
		}
		if err := r.DB.Create(photo).Error; err != nil {
			return fmt.Errorf("failed to create photo record for %s: %w", photo.Path, err)
		}
		return nil
	}

	photo.ID = existing.ID
	photo.IndexVersion = existing.IndexVersion
	updates := map[string]interface{}{
		"folder":          photo.Folder,
		"filename":        photo.Filename,
		"extension":       photo.Extension,
		"size":            photo.Size,
		"created_ts":      photo.CreatedTS,
		"modified_ts":     photo.ModifiedTS,
		"content_hash":    photo.ContentHash,
		"perceptual_hash": photo.PerceptualHash,
		"indexed_at":      nil,
		"deleted_at":      nil,
	}
	if err := r.DB.Unscoped().Model(&models.Photo{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to revive photo record for %s: %w", photo.Path, err)
	}
	return nil
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.First(&photo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by ID %d: %w", id, err)
	}
	return &photo, nil
}

// GetByPath retrieves a photo by its absolute path
func (r *PhotoRepository) GetByPath(path string) (*models.Photo, error) {
	var photo models.Photo
	err := r.DB.Where("path = ?", path).First(&photo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get photo by path %s: %w", path, err)
	}
	return &photo, nil
}

// GetByIDs retrieves all photos matching the given ids
func (r *PhotoRepository) GetByIDs(ids []uint) ([]models.Photo, error) {
	if len(ids) == 0 {
		return []models.Photo{}, nil
	}
	var photos []models.Photo
	err := r.DB.Where("id IN ?", ids).Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get photos by ids: %w", err)
	}
	return photos, nil
}

// ListActive retrieves all photos that have not been logically removed
func (r *PhotoRepository) ListActive() ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

// ListUnindexed retrieves active photos that never completed a full
// extraction pass (indexed_at is null), so a run can pick them up again.
func (r *PhotoRepository) ListUnindexed() ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Where("indexed_at IS NULL").Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unindexed photos: %w", err)
	}
	return photos, nil
}

// ListByFolder retrieves all active photos in the given folder
func (r *PhotoRepository) ListByFolder(folder string) ([]models.Photo, error) {
	var photos []models.Photo
	err := r.DB.Where("folder = ?", folder).Find(&photos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list photos for folder %s: %w", folder, err)
	}
	return photos, nil
}

// ListFolders retrieves the distinct folders of all active photos
func (r *PhotoRepository) ListFolders() ([]string, error) {
	var folders []string
	err := r.DB.Model(&models.Photo{}).Distinct().Order("folder ASC").Pluck("folder", &folders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return folders, nil
}

// UpdateStat refreshes the file identity fields after a content change.
// The photo drops back to unindexed until the new extraction pass
// completes for it.
func (r *PhotoRepository) UpdateStat(id uint, size, modifiedTS int64, contentHash string, perceptualHash *string) error {
	updates := map[string]interface{}{
		"size":            size,
		"modified_ts":     modifiedTS,
		"content_hash":    contentHash,
		"perceptual_hash": perceptualHash,
		"indexed_at":      nil,
	}
	result := r.DB.Model(&models.Photo{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update stat for photo %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchModified updates only the modification timestamp. Used when a file
// was touched but its content hash proved unchanged, so no re-extraction
// is needed.
func (r *PhotoRepository) TouchModified(id uint, modifiedTS int64) error {
	result := r.DB.Model(&models.Photo{}).Where("id = ?", id).Update("modified_ts", modifiedTS)
	if result.Error != nil {
		return fmt.Errorf("failed to touch photo %d: %w", id, result.Error)
	}
	return nil
}

// MarkIndexed advances the photo's index version and stamps indexed_at.
// The multi-field update runs in a transaction so concurrent phase writers
// cannot interleave with it.
func (r *PhotoRepository) MarkIndexed(id uint) error {
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Photo{}).Where("id = ?", id).Updates(map[string]interface{}{
			"indexed_at":    time.Now().Unix(),
			"index_version": gorm.Expr("index_version + 1"),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("failed to mark photo %d indexed: %w", id, err)
	}
	return nil
}

// MarkRemoved logically deletes the photo (the file disappeared from a
// root) and garbage-collects its signal records deterministically.
func (r *PhotoRepository) MarkRemoved(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := clearSignalRows(tx, id); err != nil {
			return err
		}
		result := tx.Delete(&models.Photo{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to mark photo %d removed: %w", id, result.Error)
		}
		return nil
	})
}

// ClearSignals deletes all extraction side-table rows for a photo, used
// when re-extraction supersedes them after a content change.
func (r *PhotoRepository) ClearSignals(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		return clearSignalRows(tx, id)
	})
}

// DeleteCascade permanently deletes the photo record and its signal rows.
func (r *PhotoRepository) DeleteCascade(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := clearSignalRows(tx, id); err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&models.Photo{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete photo %d: %w", id, result.Error)
		}
		return nil
	})
}

func clearSignalRows(tx *gorm.DB, fileID uint) error {
	for _, model := range []interface{}{
		&models.ExifMetadata{},
		&models.OCRResult{},
		&models.Embedding{},
		&models.Thumbnail{},
	} {
		if err := tx.Where("file_id = ?", fileID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear signal rows for photo %d: %w", fileID, err)
		}
	}
	// face detections soft-delete so person history stays inspectable
	if err := tx.Where("file_id = ?", fileID).Delete(&models.FaceDetection{}).Error; err != nil {
		return fmt.Errorf("failed to clear face detections for photo %d: %w", fileID, err)
	}
	return nil
}

// UpsertExif inserts or replaces the EXIF record of a photo
func (r *PhotoRepository) UpsertExif(meta *models.ExifMetadata) error {
	meta.ProcessedAt = time.Now().Unix()
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", meta.FileID).Delete(&models.ExifMetadata{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous EXIF for photo %d: %w", meta.FileID, err)
		}
		if err := tx.Create(meta).Error; err != nil {
			return fmt.Errorf("failed to store EXIF for photo %d: %w", meta.FileID, err)
		}
		return nil
	})
}

// GetExif retrieves the EXIF record of a photo
func (r *PhotoRepository) GetExif(fileID uint) (*models.ExifMetadata, error) {
	var meta models.ExifMetadata
	err := r.DB.Where("file_id = ?", fileID).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get EXIF for photo %d: %w", fileID, err)
	}
	return &meta, nil
}

// UpsertOCR inserts or replaces the OCR record of a photo
func (r *PhotoRepository) UpsertOCR(result *models.OCRResult) error {
	result.ProcessedAt = time.Now().Unix()
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", result.FileID).Delete(&models.OCRResult{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous OCR for photo %d: %w", result.FileID, err)
		}
		if err := tx.Create(result).Error; err != nil {
			return fmt.Errorf("failed to store OCR for photo %d: %w", result.FileID, err)
		}
		return nil
	})
}

// GetOCR retrieves the OCR record of a photo
func (r *PhotoRepository) GetOCR(fileID uint) (*models.OCRResult, error) {
	var result models.OCRResult
	err := r.DB.Where("file_id = ?", fileID).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get OCR for photo %d: %w", fileID, err)
	}
	return &result, nil
}

// UpsertThumbnail inserts or replaces the thumbnail record of a photo
func (r *PhotoRepository) UpsertThumbnail(thumb *models.Thumbnail) error {
	thumb.GeneratedAt = time.Now().Unix()
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", thumb.FileID).Delete(&models.Thumbnail{}).Error; err != nil {
			return fmt.Errorf("failed to clear previous thumbnail for photo %d: %w", thumb.FileID, err)
		}
		if err := tx.Create(thumb).Error; err != nil {
			return fmt.Errorf("failed to store thumbnail for photo %d: %w", thumb.FileID, err)
		}
		return nil
	})
}

// GetThumbnail retrieves the thumbnail record of a photo
func (r *PhotoRepository) GetThumbnail(fileID uint) (*models.Thumbnail, error) {
	var thumb models.Thumbnail
	err := r.DB.Where("file_id = ?", fileID).First(&thumb).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get thumbnail for photo %d: %w", fileID, err)
	}
	return &thumb, nil
}

// keywordBase builds the shared SELECT for keyword hits with the
// population filters applied up front.
func keywordBase(filters SearchFilters) sq.SelectBuilder {
	builder := psql.Select("p.id", "p.path", "p.folder", "p.filename", "e.shot_at").
		From("photos p").
		LeftJoin("exif_metadata e ON e.file_id = p.id").
		Where("p.deleted_at IS NULL")

	if filters.From != nil {
		builder = builder.Where(sq.GtOrEq{"e.shot_at": *filters.From})
	}
	if filters.To != nil {
		builder = builder.Where(sq.LtOrEq{"e.shot_at": *filters.To})
	}
	if filters.FolderPrefix != "" {
		builder = builder.Where(sq.Like{"p.folder": filters.FolderPrefix + "%"})
	}
	return builder
}

type keywordRow struct {
	ID       uint
	Path     string
	Folder   string
	Filename string
	ShotAt   *int64
	OCRText  string
}

func (r *PhotoRepository) runKeywordQuery(builder sq.SelectBuilder, field KeywordField) ([]KeywordHit, error) {
	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build keyword query (%s): %w", field, err)
	}

	var rows []keywordRow
	if err := r.DB.Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to run keyword query (%s): %w", field, err)
	}

	hits := make([]KeywordHit, 0, len(rows))
	for _, row := range rows {
		hits = append(hits, KeywordHit{
			FileID:   row.ID,
			Path:     row.Path,
			Folder:   row.Folder,
			Filename: row.Filename,
			ShotAt:   row.ShotAt,
			Field:    field,
			OCRText:  row.OCRText,
		})
	}
	return hits, nil
}

// SearchKeyword returns every filename, folder and OCR match for the term,
// one hit per match location. OCR rows below the confidence floor are
// excluded from search but stay in the store.
func (r *PhotoRepository) SearchKeyword(term string, filters SearchFilters, ocrFloor float64) ([]KeywordHit, error) {
	likeTerm := "%" + term + "%"
	var hits []KeywordHit

	filenameHits, err := r.runKeywordQuery(
		keywordBase(filters).Where(sq.Like{"p.filename": likeTerm}),
		KeywordFieldFilename,
	)
	if err != nil {
		return nil, err
	}
	hits = append(hits, filenameHits...)

	folderHits, err := r.runKeywordQuery(
		keywordBase(filters).Where(sq.Like{"p.folder": likeTerm}),
		KeywordFieldFolder,
	)
	if err != nil {
		return nil, err
	}
	hits = append(hits, folderHits...)

	ocrHits, err := r.runKeywordQuery(
		keywordBase(filters).
			Columns("o.text AS ocr_text").
			Join("ocr_results o ON o.file_id = p.id").
			Where(sq.Like{"o.text": likeTerm}).
			Where(sq.GtOrEq{"o.confidence": ocrFloor}),
		KeywordFieldOCR,
	)
	if err != nil {
		return nil, err
	}
	hits = append(hits, ocrHits...)

	return hits, nil
}

// GetSearchAttrs loads the display/filter attributes for the given file
// ids, joining EXIF shot time and thumbnail paths.
func (r *PhotoRepository) GetSearchAttrs(fileIDs []uint) ([]SearchAttrs, error) {
	if len(fileIDs) == 0 {
		return []SearchAttrs{}, nil
	}

	builder := psql.Select("p.id", "p.path", "p.folder", "p.filename", "e.shot_at", "t.path AS thumb_path").
		From("photos p").
		LeftJoin("exif_metadata e ON e.file_id = p.id").
		LeftJoin("thumbnails t ON t.file_id = p.id").
		Where("p.deleted_at IS NULL").
		Where(sq.Eq{"p.id": fileIDs})

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search attrs query: %w", err)
	}

	var rows []struct {
		ID        uint
		Path      string
		Folder    string
		Filename  string
		ShotAt    *int64
		ThumbPath *string
	}
	if err := r.DB.Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load search attrs: %w", err)
	}

	attrs := make([]SearchAttrs, 0, len(rows))
	for _, row := range rows {
		attrs = append(attrs, SearchAttrs{
			FileID:    row.ID,
			Path:      row.Path,
			Folder:    row.Folder,
			Filename:  row.Filename,
			ShotAt:    row.ShotAt,
			ThumbPath: row.ThumbPath,
		})
	}
	return attrs, nil
}
