package search

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
)

type stubEmbedder struct {
	vector []float32
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}

func (s *stubEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	return s.vector, nil
}

func (s *stubEmbedder) ModelID() string { return "clip-test" }

type testEnv struct {
	photos     *repository.PhotoRepository
	embeddings *repository.EmbeddingRepository
	faces      *repository.FaceRepository
	people     *repository.PersonRepository
}

func newTestEnv(t *testing.T) *testEnv {
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
	return &testEnv{
		photos:     repository.NewPhotoRepository(db),
		embeddings: repository.NewEmbeddingRepository(db),
		faces:      repository.NewFaceRepository(db),
		people:     repository.NewPersonRepository(db),
	}
}

func (env *testEnv) engine(embedder media.Embedder) *Engine {
	return NewEngine(env.photos, env.embeddings, env.faces, env.people, embedder, 0.35)
}

func (env *testEnv) seedPhoto(t *testing.T, path string, shotAt *int64) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		Path:        path,
		Folder:      filepath.Dir(path),
		Filename:    filepath.Base(path),
		Extension:   filepath.Ext(path),
		Size:        1024,
		ModifiedTS:  1700000000,
		ContentHash: "hash-" + path,
	}
	require.NoError(t, env.photos.Create(photo))
	if shotAt != nil {
		require.NoError(t, env.photos.UpsertExif(&models.ExifMetadata{FileID: photo.ID, ShotAt: shotAt}))
	}
	return photo
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func TestKeywordSearchAccumulatesBadges(t *testing.T) {
	env := newTestEnv(t)

	photo := env.seedPhoto(t, "/lib/beach/beach_day.jpg", nil)
	require.NoError(t, env.photos.UpsertOCR(&models.OCRResult{
		FileID:     photo.ID,
		Text:       "a sunny day at the beach with friends",
		Confidence: 0.9,
	}))

	result, err := env.engine(nil).Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach"})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	item := result.Items[0]
	assert.Equal(t, photo.ID, item.FileID)
	assert.Equal(t, 1.0, item.Score, "the strongest field score wins")
	assert.ElementsMatch(t, []string{BadgeFilename, BadgeFolder, BadgeOCR}, item.Badges)
	assert.Contains(t, item.Snippet, "beach")
	assert.Equal(t, 1, result.TotalMatches)
	assert.GreaterOrEqual(t, result.TookMS, int64(0))
}

func TestKeywordSearchValidation(t *testing.T) {
	env := newTestEnv(t)
	engine := env.engine(nil)
	ctx := context.Background()

	_, err := engine.Search(ctx, Query{Mode: ModeKeyword, Term: "   "})
	assert.True(t, errdefs.IsValidation(err))

	_, err = engine.Search(ctx, Query{Mode: ModeKeyword, Term: "x", Limit: intPtr(-1)})
	assert.True(t, errdefs.IsValidation(err))

	_, err = engine.Search(ctx, Query{Mode: ModeKeyword, Term: "x", Offset: -3})
	assert.True(t, errdefs.IsValidation(err))

	_, err = engine.Search(ctx, Query{Mode: Mode("fuzzy"), Term: "x"})
	assert.True(t, errdefs.IsValidation(err))

	_, err = engine.Search(ctx, Query{
		Mode:    ModeKeyword,
		Term:    "x",
		Filters: repository.SearchFilters{From: int64Ptr(200), To: int64Ptr(100)},
	})
	assert.True(t, errdefs.IsValidation(err))
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	env := newTestEnv(t)

	aligned := env.seedPhoto(t, "/lib/a.jpg", nil)
	sideways := env.seedPhoto(t, "/lib/b.jpg", nil)
	opposite := env.seedPhoto(t, "/lib/c.jpg", nil)

	require.NoError(t, env.embeddings.Upsert(aligned.ID, "clip-test", []float32{1, 0}))
	require.NoError(t, env.embeddings.Upsert(sideways.ID, "clip-test", []float32{1, 1}))
	require.NoError(t, env.embeddings.Upsert(opposite.ID, "clip-test", []float32{-1, 0}))

	engine := env.engine(&stubEmbedder{vector: []float32{1, 0}})
	result, err := engine.Search(context.Background(), Query{Mode: ModeSemantic, Text: "a beach"})
	require.NoError(t, err)

	require.Len(t, result.Items, 2, "non-positive similarities are dropped")
	assert.Equal(t, aligned.ID, result.Items[0].FileID)
	assert.InDelta(t, 1.0, result.Items[0].Score, 1e-6)
	assert.Equal(t, sideways.ID, result.Items[1].FileID)
	assert.Equal(t, []string{BadgeSemantic}, result.Items[0].Badges)
	for _, item := range result.Items {
		assert.NotEqual(t, opposite.ID, item.FileID)
	}
}

func TestSemanticSearchWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine(nil).Search(context.Background(), Query{Mode: ModeSemantic, Text: "beach"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = env.engine(nil).Search(context.Background(), Query{Mode: ModeImage, ImagePath: "/tmp/q.jpg"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestImageSearchUsesPhotoMatchBadge(t *testing.T) {
	env := newTestEnv(t)

	photo := env.seedPhoto(t, "/lib/a.jpg", nil)
	require.NoError(t, env.embeddings.Upsert(photo.ID, "clip-test", []float32{0, 1}))

	engine := env.engine(&stubEmbedder{vector: []float32{0, 1}})
	result, err := engine.Search(context.Background(), Query{Mode: ModeImage, ImagePath: "/tmp/query.jpg"})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, []string{BadgePhotoMatch}, result.Items[0].Badges)
}

func TestFaceSearch(t *testing.T) {
	env := newTestEnv(t)

	first := env.seedPhoto(t, "/lib/a.jpg", nil)
	second := env.seedPhoto(t, "/lib/b.jpg", nil)

	person := &models.Person{Name: "Alice"}
	require.NoError(t, env.people.Create(person))

	d1, err := env.faces.ReplaceForPhoto(first.ID, []media.FaceResult{{X2: 10, Y2: 10, Confidence: 0.9}})
	require.NoError(t, err)
	d2, err := env.faces.ReplaceForPhoto(second.ID, []media.FaceResult{{X2: 10, Y2: 10, Confidence: 0.7}})
	require.NoError(t, err)
	require.NoError(t, env.faces.AssignPerson(d1[0].ID, person.ID, false))
	require.NoError(t, env.faces.AssignPerson(d2[0].ID, person.ID, false))

	engine := env.engine(nil)
	result, err := engine.Search(context.Background(), Query{Mode: ModeFace, PersonID: person.ID})
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	assert.Equal(t, first.ID, result.Items[0].FileID)
	assert.InDelta(t, 0.9, result.Items[0].Score, 1e-6)
	assert.Equal(t, []string{BadgeFace}, result.Items[0].Badges)

	// deactivated people are invisible to search
	require.NoError(t, env.people.SetActive(person.ID, false))
	result, err = engine.Search(context.Background(), Query{Mode: ModeFace, PersonID: person.ID})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.TotalMatches)

	_, err = engine.Search(context.Background(), Query{Mode: ModeFace, PersonID: 9999})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = engine.Search(context.Background(), Query{Mode: ModeFace})
	assert.True(t, errdefs.IsValidation(err))
}

func TestOrderingAndPagination(t *testing.T) {
	env := newTestEnv(t)

	newer := env.seedPhoto(t, "/lib/beach_newer.jpg", int64Ptr(200))
	older := env.seedPhoto(t, "/lib/beach_older.jpg", int64Ptr(100))
	undated := env.seedPhoto(t, "/lib/beach_undated.jpg", nil)

	engine := env.engine(nil)
	result, err := engine.Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach"})
	require.NoError(t, err)

	require.Len(t, result.Items, 3)
	assert.Equal(t, newer.ID, result.Items[0].FileID, "equal scores order by shot time, newest first")
	assert.Equal(t, older.ID, result.Items[1].FileID)
	assert.Equal(t, undated.ID, result.Items[2].FileID, "undated photos sort last")

	page, err := engine.Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach", Limit: intPtr(1), Offset: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, older.ID, page.Items[0].FileID)
	assert.Equal(t, 3, page.TotalMatches, "total counts the full filtered set, not the page")

	past, err := engine.Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past.Items)
	assert.Equal(t, 3, past.TotalMatches)

	// an explicit zero limit counts matches without returning a page
	counted, err := engine.Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach", Limit: intPtr(0)})
	require.NoError(t, err)
	assert.Empty(t, counted.Items)
	assert.Equal(t, 3, counted.TotalMatches)
}

func TestResultEchoesQuery(t *testing.T) {
	env := newTestEnv(t)
	env.seedPhoto(t, "/lib/beach.jpg", nil)

	result, err := env.engine(nil).Search(context.Background(), Query{Mode: ModeKeyword, Term: "beach"})
	require.NoError(t, err)
	assert.Equal(t, "beach", result.Query)

	engine := env.engine(&stubEmbedder{vector: []float32{1, 0}})
	result, err = engine.Search(context.Background(), Query{Mode: ModeSemantic, Text: "a quiet beach"})
	require.NoError(t, err)
	assert.Equal(t, "a quiet beach", result.Query)

	result, err = engine.Search(context.Background(), Query{
		Mode:      ModeImage,
		ImagePath: "/tmp/upload-1234.jpg",
		ImageName: "holiday.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "holiday.jpg", result.Query)

	person := &models.Person{Name: "Alice"}
	require.NoError(t, env.people.Create(person))
	result, err = engine.Search(context.Background(), Query{Mode: ModeFace, PersonID: person.ID})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("person:%d", person.ID), result.Query)
}

func TestFiltersApplyToVectorModes(t *testing.T) {
	env := newTestEnv(t)

	inRange := env.seedPhoto(t, "/lib/a.jpg", int64Ptr(150))
	outOfRange := env.seedPhoto(t, "/lib/b.jpg", int64Ptr(50))

	require.NoError(t, env.embeddings.Upsert(inRange.ID, "clip-test", []float32{1, 0}))
	require.NoError(t, env.embeddings.Upsert(outOfRange.ID, "clip-test", []float32{1, 0}))

	engine := env.engine(&stubEmbedder{vector: []float32{1, 0}})
	result, err := engine.Search(context.Background(), Query{
		Mode:    ModeSemantic,
		Text:    "beach",
		Filters: repository.SearchFilters{From: int64Ptr(100)},
	})
	require.NoError(t, err)

	require.Len(t, result.Items, 1)
	assert.Equal(t, inRange.ID, result.Items[0].FileID)
	assert.Equal(t, 1, result.TotalMatches, "filters narrow the population before ranking and totals")
}

func TestMakeSnippet(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" +
		" the beach was quiet that morning " +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	snippet := makeSnippet(long, "beach")
	assert.Contains(t, snippet, "beach")
	assert.Less(t, len(snippet), len(long))
	assert.Contains(t, snippet, "…")

	assert.Equal(t, "short text", makeSnippet("short text", "missing"))
	assert.Equal(t, "", makeSnippet("", "beach"))
}

func TestMakeSnippetKeepsRunesIntact(t *testing.T) {
	padding := strings.Repeat("ü", 80)
	text := padding + " beach " + padding

	snippet := makeSnippet(text, "beach")
	assert.True(t, utf8.ValidString(snippet), "snippet edges never split a rune")
	assert.Contains(t, snippet, "beach")

	unmatched := makeSnippet(strings.Repeat("é", 200), "beach")
	assert.True(t, utf8.ValidString(unmatched))
}
