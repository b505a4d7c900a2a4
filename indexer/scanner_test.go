package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
)

func newTestRepos(t *testing.T) (*repository.PhotoRepository, *repository.EmbeddingRepository, *repository.FaceRepository) {
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
	return repository.NewPhotoRepository(db), repository.NewEmbeddingRepository(db), repository.NewFaceRepository(db)
}

func registerStat(t *testing.T, photos *repository.PhotoRepository, stat FileStat) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		Path:        stat.Path,
		Folder:      stat.Folder,
		Filename:    stat.Filename,
		Extension:   stat.Extension,
		Size:        stat.Size,
		ModifiedTS:  stat.ModifiedTS,
		ContentHash: stat.ContentHash,
	}
	require.NoError(t, photos.Create(photo))
	return photo
}

func TestBuildPlanDiffLifecycle(t *testing.T) {
	photos, _, _ := newTestRepos(t)
	root := t.TempDir()

	aPath := filepath.Join(root, "a.jpg")
	bPath := filepath.Join(root, "nested", "b.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(bPath), 0o755))
	require.NoError(t, os.WriteFile(aPath, []byte("content a"), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte("content b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not an image"), 0o644))

	scanner := NewScanner([]string{root}, photos)
	ctx := context.Background()

	plan, err := scanner.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Len(t, plan.New, 2, "non-image files are ignored")
	assert.Empty(t, plan.Changed)
	assert.Empty(t, plan.Removed)
	assert.Equal(t, 2, plan.Total())

	for _, stat := range plan.New {
		registerStat(t, photos, stat)
	}

	// unchanged library produces an empty plan
	plan, err = scanner.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Total())
	assert.Empty(t, plan.Touched)
	assert.Empty(t, plan.Removed)

	// touching a file without changing content refreshes the timestamp only
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(aPath, future, future))

	plan, err = scanner.BuildPlan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Total(), "a touch must not trigger re-extraction")
	require.Len(t, plan.Touched, 1)
	assert.Equal(t, aPath, plan.Touched[0].Record.Path)
	assert.Equal(t, future.Unix(), plan.Touched[0].ModifiedTS)
	require.NoError(t, photos.TouchModified(plan.Touched[0].Record.ID, plan.Touched[0].ModifiedTS))

	// rewriting content is detected through the hash
	require.NoError(t, os.WriteFile(bPath, []byte("content b, edited"), 0o644))

	plan, err = scanner.BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.Changed, 1)
	assert.Equal(t, bPath, plan.Changed[0].Stat.Path)
	assert.NotEqual(t, plan.Changed[0].Record.ContentHash, plan.Changed[0].Stat.ContentHash)
	var phash *string
	require.NoError(t, photos.UpdateStat(plan.Changed[0].Record.ID, plan.Changed[0].Stat.Size, plan.Changed[0].Stat.ModifiedTS, plan.Changed[0].Stat.ContentHash, phash))

	// deleting a file surfaces it as removed
	require.NoError(t, os.Remove(aPath))

	plan, err = scanner.BuildPlan(ctx)
	require.NoError(t, err)
	require.Len(t, plan.Removed, 1)
	assert.Equal(t, aPath, plan.Removed[0].Path)
}

func TestBuildPlanUnreadableRootIsNotFatal(t *testing.T) {
	photos, _, _ := newTestRepos(t)
	scanner := NewScanner([]string{filepath.Join(t.TempDir(), "does-not-exist")}, photos)

	plan, err := scanner.BuildPlan(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Unreadable)
	assert.Equal(t, 0, plan.Total())
}

func TestBuildPlanHonoursCancellation(t *testing.T) {
	photos, _, _ := newTestRepos(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jpg"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := NewScanner([]string{root}, photos)
	_, err := scanner.BuildPlan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashFileTracksContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	first, err := HashFile(path)
	require.NoError(t, err)
	again, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte("two"), 0o644))
	changed, err := HashFile(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	_, err = HashFile(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}
