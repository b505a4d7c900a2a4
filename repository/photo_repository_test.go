package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Photo{},
		&models.ExifMetadata{},
		&models.OCRResult{},
		&models.Embedding{},
		&models.FaceDetection{},
		&models.Person{},
		&models.Thumbnail{},
	))
	return db
}

func seedPhoto(t *testing.T, repo *PhotoRepository, path string) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		Path:        path,
		Folder:      filepath.Dir(path),
		Filename:    filepath.Base(path),
		Extension:   filepath.Ext(path),
		Size:        1024,
		ModifiedTS:  1700000000,
		ContentHash: "hash-" + filepath.Base(path),
	}
	require.NoError(t, repo.Create(photo))
	return photo
}

func TestSearchKeywordMatchesAllFields(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	byFilename := seedPhoto(t, repo, "/lib/2021/beach_sunset.jpg")
	byFolder := seedPhoto(t, repo, "/lib/beach/IMG_0002.jpg")
	byOCR := seedPhoto(t, repo, "/lib/city/IMG_0003.jpg")
	lowConf := seedPhoto(t, repo, "/lib/city/IMG_0004.jpg")
	seedPhoto(t, repo, "/lib/city/IMG_0005.jpg")

	require.NoError(t, repo.UpsertOCR(&models.OCRResult{FileID: byOCR.ID, Text: "welcome to the beach resort", Confidence: 0.9}))
	require.NoError(t, repo.UpsertOCR(&models.OCRResult{FileID: lowConf.ID, Text: "beach", Confidence: 0.1}))

	hits, err := repo.SearchKeyword("beach", SearchFilters{}, 0.35)
	require.NoError(t, err)

	fields := map[uint]KeywordField{}
	for _, hit := range hits {
		fields[hit.FileID] = hit.Field
	}
	assert.Equal(t, KeywordFieldFilename, fields[byFilename.ID])
	assert.Equal(t, KeywordFieldFolder, fields[byFolder.ID])
	assert.Equal(t, KeywordFieldOCR, fields[byOCR.ID])
	assert.NotContains(t, fields, lowConf.ID, "OCR rows below the confidence floor must not match")
	assert.Len(t, hits, 3)

	for _, hit := range hits {
		if hit.Field == KeywordFieldOCR {
			assert.Equal(t, "welcome to the beach resort", hit.OCRText)
		}
	}
}

func TestSearchKeywordAppliesFilters(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	dated := seedPhoto(t, repo, "/lib/2021/beach_one.jpg")
	undated := seedPhoto(t, repo, "/lib/2021/beach_two.jpg")
	elsewhere := seedPhoto(t, repo, "/other/beach_three.jpg")

	shotAt := int64(1600000000)
	require.NoError(t, repo.UpsertExif(&models.ExifMetadata{FileID: dated.ID, ShotAt: &shotAt}))

	from := int64(1500000000)
	hits, err := repo.SearchKeyword("beach", SearchFilters{From: &from, FolderPrefix: "/lib"}, 0.35)
	require.NoError(t, err)

	ids := map[uint]bool{}
	for _, hit := range hits {
		ids[hit.FileID] = true
	}
	assert.True(t, ids[dated.ID])
	assert.False(t, ids[undated.ID], "photos without a shot time fall outside date filters")
	assert.False(t, ids[elsewhere.ID])
}

func TestMarkIndexedAdvancesVersion(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	photo := seedPhoto(t, repo, "/lib/a.jpg")
	require.NoError(t, repo.MarkIndexed(photo.ID))
	require.NoError(t, repo.MarkIndexed(photo.ID))

	got, err := repo.GetByID(photo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.IndexVersion)
	require.NotNil(t, got.IndexedAt)

	assert.ErrorIs(t, repo.MarkIndexed(9999), gorm.ErrRecordNotFound)
}

func TestClearSignalsRemovesSideTables(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)
	faces := NewFaceRepository(db)

	photo := seedPhoto(t, repo, "/lib/a.jpg")
	require.NoError(t, repo.UpsertExif(&models.ExifMetadata{FileID: photo.ID}))
	require.NoError(t, repo.UpsertOCR(&models.OCRResult{FileID: photo.ID, Text: "text", Confidence: 0.8}))
	require.NoError(t, repo.UpsertThumbnail(&models.Thumbnail{FileID: photo.ID, Path: "/thumbs/a.jpg"}))
	_, err := faces.ReplaceForPhoto(photo.ID, []media.FaceResult{{X1: 1, Y1: 2, X2: 3, Y2: 4, Confidence: 0.9}})
	require.NoError(t, err)

	require.NoError(t, repo.ClearSignals(photo.ID))

	_, err = repo.GetExif(photo.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetOCR(photo.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.GetThumbnail(photo.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	detections, err := faces.ListByPhoto(photo.ID)
	require.NoError(t, err)
	assert.Empty(t, detections)

	got, err := repo.GetByID(photo.ID)
	require.NoError(t, err)
	assert.Equal(t, photo.Path, got.Path, "the photo record itself survives signal clearing")
}

func TestMarkRemovedHidesPhoto(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	photo := seedPhoto(t, repo, "/lib/a.jpg")
	seedPhoto(t, repo, "/lib/b.jpg")

	require.NoError(t, repo.MarkRemoved(photo.ID))

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "/lib/b.jpg", active[0].Path)

	hits, err := repo.SearchKeyword("a.jpg", SearchFilters{}, 0.35)
	require.NoError(t, err)
	assert.Empty(t, hits, "removed photos never appear in search")
}

func TestCreateRevivesRemovedPath(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	original := seedPhoto(t, repo, "/lib/a.jpg")
	require.NoError(t, repo.MarkIndexed(original.ID))
	require.NoError(t, repo.MarkRemoved(original.ID))

	active, err := repo.ListActive()
	require.NoError(t, err)
	require.Empty(t, active)

	// the file reappeared under the same path
	revived := &models.Photo{
		Path:        "/lib/a.jpg",
		Folder:      "/lib",
		Filename:    "a.jpg",
		Extension:   ".jpg",
		Size:        2048,
		ModifiedTS:  1700000500,
		ContentHash: "hash-new",
	}
	require.NoError(t, repo.Create(revived))
	assert.Equal(t, original.ID, revived.ID, "the old row is revived, not duplicated")

	active, err = repo.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "hash-new", active[0].ContentHash)
	assert.Nil(t, active[0].IndexedAt, "a revived photo counts as freshly discovered")
	assert.Equal(t, int64(1), active[0].IndexVersion, "the version history survives removal")

	unindexed, err := repo.ListUnindexed()
	require.NoError(t, err)
	require.Len(t, unindexed, 1)
	assert.Equal(t, original.ID, unindexed[0].ID)
}

func TestUpdateStatResetsIndexedState(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	photo := seedPhoto(t, repo, "/lib/a.jpg")
	indexed := seedPhoto(t, repo, "/lib/b.jpg")
	require.NoError(t, repo.MarkIndexed(photo.ID))
	require.NoError(t, repo.MarkIndexed(indexed.ID))

	require.NoError(t, repo.UpdateStat(photo.ID, 4096, 1700000500, "hash-changed", nil))

	got, err := repo.GetByID(photo.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-changed", got.ContentHash)
	assert.Nil(t, got.IndexedAt, "a changed file is unindexed until re-extraction finishes")

	unindexed, err := repo.ListUnindexed()
	require.NoError(t, err)
	require.Len(t, unindexed, 1)
	assert.Equal(t, photo.ID, unindexed[0].ID)
}

func TestGetSearchAttrsJoinsThumbAndShotTime(t *testing.T) {
	db := newTestDB(t)
	repo := NewPhotoRepository(db)

	photo := seedPhoto(t, repo, "/lib/a.jpg")
	bare := seedPhoto(t, repo, "/lib/b.jpg")

	shotAt := int64(1600000000)
	require.NoError(t, repo.UpsertExif(&models.ExifMetadata{FileID: photo.ID, ShotAt: &shotAt}))
	require.NoError(t, repo.UpsertThumbnail(&models.Thumbnail{FileID: photo.ID, Path: "/thumbs/a.jpg"}))

	attrs, err := repo.GetSearchAttrs([]uint{photo.ID, bare.ID, 9999})
	require.NoError(t, err)
	require.Len(t, attrs, 2)

	byID := map[uint]SearchAttrs{}
	for _, attr := range attrs {
		byID[attr.FileID] = attr
	}
	require.NotNil(t, byID[photo.ID].ShotAt)
	assert.Equal(t, shotAt, *byID[photo.ID].ShotAt)
	require.NotNil(t, byID[photo.ID].ThumbPath)
	assert.Equal(t, "/thumbs/a.jpg", *byID[photo.ID].ThumbPath)
	assert.Nil(t, byID[bare.ID].ShotAt)
	assert.Nil(t, byID[bare.ID].ThumbPath)
}
