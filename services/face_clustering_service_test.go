package services

import (
	"path/filepath"
	"testing"

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

type clusterEnv struct {
	photos  *repository.PhotoRepository
	faces   *repository.FaceRepository
	people  *repository.PersonRepository
	service *FaceClusteringService
}

func newClusterEnv(t *testing.T) *clusterEnv {
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

	faces := repository.NewFaceRepository(db)
	people := repository.NewPersonRepository(db)
	return &clusterEnv{
		photos:  repository.NewPhotoRepository(db),
		faces:   faces,
		people:  people,
		service: NewFaceClusteringService(faces, people, 0.60),
	}
}

func (env *clusterEnv) seedPhoto(t *testing.T, path string) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		Path:        path,
		Folder:      filepath.Dir(path),
		Filename:    filepath.Base(path),
		ContentHash: "hash-" + path,
	}
	require.NoError(t, env.photos.Create(photo))
	return photo
}

func (env *clusterEnv) seedPerson(t *testing.T, name string, centroid []float32) *models.Person {
	t.Helper()
	person := &models.Person{Name: name}
	require.NoError(t, env.people.Create(person))
	if centroid != nil {
		require.NoError(t, env.people.UpdateCentroid(person.ID, centroid, 1))
	}
	return person
}

func TestAssignDetectionsMatchesAboveThreshold(t *testing.T) {
	env := newClusterEnv(t)

	person := env.seedPerson(t, "Alice", []float32{1, 0})
	photo := env.seedPhoto(t, "/lib/a.jpg")

	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{1, 0.1}},
		{X1: 20, X2: 30, Y2: 10, Confidence: 0.8, Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	require.NoError(t, env.service.AssignDetections(detections))

	assigned, err := env.faces.ListByPerson(person.ID)
	require.NoError(t, err)
	require.Len(t, assigned, 1, "only the detection above the similarity threshold is assigned")
	assert.Equal(t, detections[0].ID, assigned[0].ID)
	assert.False(t, assigned[0].Verified, "automatic assignments are not verified")

	got, err := env.people.GetByID(person.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SampleCount)
	assert.Equal(t, []float32{1, 0.1}, got.GetCentroid(), "centroid follows the member vectors")
}

func TestAssignDetectionsSkipsVerifiedAndInactive(t *testing.T) {
	env := newClusterEnv(t)

	active := env.seedPerson(t, "Alice", []float32{1, 0})
	inactive := env.seedPerson(t, "Bob", []float32{0, 1})
	require.NoError(t, env.people.SetActive(inactive.ID, false))

	photo := env.seedPhoto(t, "/lib/a.jpg")
	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	// manually verified detection stays where the user put it
	verified := detections[0]
	require.NoError(t, env.faces.AssignPerson(verified.ID, active.ID, true))
	verified.Verified = true

	require.NoError(t, env.service.AssignDetections([]models.FaceDetection{verified}))

	got, err := env.faces.GetByID(verified.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PersonID)
	assert.Equal(t, active.ID, *got.PersonID, "verified detections are never reassigned")

	matches, err := env.faces.ListByPerson(inactive.ID)
	require.NoError(t, err)
	assert.Empty(t, matches, "deactivated people never attract detections")
}

func TestCreatePersonWithSamples(t *testing.T) {
	env := newClusterEnv(t)
	photo := env.seedPhoto(t, "/lib/a.jpg")

	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{1, 0}},
		{X1: 20, X2: 30, Y2: 10, Confidence: 0.8, Vector: []float32{0, 1}},
	})
	require.NoError(t, err)

	_, err = env.service.CreatePersonWithSamples("", []uint{detections[0].ID})
	assert.True(t, errdefs.IsValidation(err))

	_, err = env.service.CreatePersonWithSamples("Alice", nil)
	assert.True(t, errdefs.IsValidation(err))

	_, err = env.service.CreatePersonWithSamples("Alice", []uint{9999})
	assert.True(t, errdefs.IsValidation(err))

	person, err := env.service.CreatePersonWithSamples("Alice", []uint{detections[0].ID, detections[1].ID})
	require.NoError(t, err)
	assert.Equal(t, "Alice", person.Name)
	assert.Equal(t, 2, person.SampleCount)
	assert.Equal(t, []float32{0.5, 0.5}, person.GetCentroid())

	for _, detection := range detections {
		got, err := env.faces.GetByID(detection.ID)
		require.NoError(t, err)
		assert.True(t, got.Verified, "sample faces are verified tags")
	}
}

func TestMergePeople(t *testing.T) {
	env := newClusterEnv(t)

	target := env.seedPerson(t, "Alice", []float32{1, 0})
	source := env.seedPerson(t, "Alice (duplicate)", []float32{0.9, 0})

	photo := env.seedPhoto(t, "/lib/a.jpg")
	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{1, 0}},
		{X1: 20, X2: 30, Y2: 10, Confidence: 0.8, Vector: []float32{0, 2}},
	})
	require.NoError(t, err)
	require.NoError(t, env.faces.AssignPerson(detections[0].ID, source.ID, true))
	require.NoError(t, env.faces.AssignPerson(detections[1].ID, source.ID, false))

	assert.True(t, errdefs.IsValidation(env.service.MergePeople(target.ID, target.ID)))
	assert.ErrorIs(t, env.service.MergePeople(target.ID, 9999), gorm.ErrRecordNotFound)

	require.NoError(t, env.service.MergePeople(target.ID, source.ID))

	_, err = env.people.GetByID(source.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	moved, err := env.faces.ListByPerson(target.ID)
	require.NoError(t, err)
	require.Len(t, moved, 2)
	byID := map[uint]models.FaceDetection{}
	for _, detection := range moved {
		byID[detection.ID] = detection
	}
	assert.True(t, byID[detections[0].ID].Verified, "verification survives the merge")
	assert.False(t, byID[detections[1].ID].Verified)

	got, err := env.people.GetByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1}, got.GetCentroid())
}

func TestDeletePersonKeepsDetections(t *testing.T) {
	env := newClusterEnv(t)

	person := env.seedPerson(t, "Alice", []float32{1, 0})
	photo := env.seedPhoto(t, "/lib/a.jpg")
	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{1, 0}},
	})
	require.NoError(t, err)
	require.NoError(t, env.faces.AssignPerson(detections[0].ID, person.ID, false))

	require.NoError(t, env.service.DeletePerson(person.ID))

	_, err = env.people.GetByID(person.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	remaining, err := env.faces.ListByPhoto(photo.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Nil(t, remaining[0].PersonID, "detections survive with the person reference cleared")
}

func TestTagAndUntagFace(t *testing.T) {
	env := newClusterEnv(t)

	person := env.seedPerson(t, "Alice", nil)
	photo := env.seedPhoto(t, "/lib/a.jpg")
	detections, err := env.faces.ReplaceForPhoto(photo.ID, []media.FaceResult{
		{X2: 10, Y2: 10, Confidence: 0.9, Vector: []float32{2, 0}},
	})
	require.NoError(t, err)

	require.NoError(t, env.service.TagFace(detections[0].ID, person.ID))
	got, err := env.faces.GetByID(detections[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)

	updated, err := env.people.GetByID(person.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 0}, updated.GetCentroid())

	require.NoError(t, env.service.UntagFace(detections[0].ID))
	got, err = env.faces.GetByID(detections[0].ID)
	require.NoError(t, err)
	assert.Nil(t, got.PersonID)

	updated, err = env.people.GetByID(person.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.SampleCount)
}
