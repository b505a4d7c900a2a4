package services

import (
	"fmt"
	"log"

	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
)

// FaceClusteringService assigns face detections to people by comparing
// their vectors against each person's centroid, and maintains the
// centroids as memberships change.
type FaceClusteringService struct {
	faces     repository.FaceRepositoryInterface
	people    repository.PersonRepositoryInterface
	threshold float64
}

// NewFaceClusteringService creates the clustering service. threshold is
// the minimum cosine similarity for an automatic assignment.
func NewFaceClusteringService(faces repository.FaceRepositoryInterface, people repository.PersonRepositoryInterface, threshold float64) *FaceClusteringService {
	return &FaceClusteringService{
		faces:     faces,
		people:    people,
		threshold: threshold,
	}
}

// AssignDetections matches each unverified detection against the active
// people's centroids and links it to the best match above the threshold.
// Verified detections are never reassigned. Affected centroids are
// recomputed once at the end.
func (s *FaceClusteringService) AssignDetections(detections []models.FaceDetection) error {
	people, err := s.people.ListActive()
	if err != nil {
		return fmt.Errorf("clustering: failed to load people: %w", err)
	}
	if len(people) == 0 {
		return nil
	}

	type candidate struct {
		id       uint
		centroid []float32
	}
	candidates := make([]candidate, 0, len(people))
	for _, person := range people {
		centroid := person.GetCentroid()
		if len(centroid) > 0 {
			candidates = append(candidates, candidate{id: person.ID, centroid: centroid})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	touched := make(map[uint]bool)
	for _, detection := range detections {
		if detection.Verified {
			continue
		}
		vector := detection.GetVector()
		if len(vector) == 0 {
			continue
		}

		var bestID uint
		bestScore := s.threshold
		for _, c := range candidates {
			score := float64(media.CosineSimilarity(vector, c.centroid))
			if score >= bestScore {
				bestScore = score
				bestID = c.id
			}
		}
		if bestID == 0 {
			continue
		}

		if err := s.faces.AssignPerson(detection.ID, bestID, false); err != nil {
			return fmt.Errorf("clustering: failed to assign detection %d: %w", detection.ID, err)
		}
		touched[bestID] = true
	}

	for personID := range touched {
		if err := s.RecomputeCentroid(personID); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeCentroid rebuilds a person's centroid as the mean of their
// member face vectors.
func (s *FaceClusteringService) RecomputeCentroid(personID uint) error {
	detections, err := s.faces.ListByPerson(personID)
	if err != nil {
		return fmt.Errorf("clustering: failed to load detections for person %d: %w", personID, err)
	}

	vectors := make([][]float32, 0, len(detections))
	for _, detection := range detections {
		if v := detection.GetVector(); len(v) > 0 {
			vectors = append(vectors, v)
		}
	}

	centroid := media.MeanVector(vectors)
	if err := s.people.UpdateCentroid(personID, centroid, len(vectors)); err != nil {
		return fmt.Errorf("clustering: failed to store centroid for person %d: %w", personID, err)
	}
	return nil
}

// CreatePersonWithSamples creates a person seeded from manually picked
// face detections. The samples are tagged as verified so later automatic
// clustering never reassigns them.
func (s *FaceClusteringService) CreatePersonWithSamples(name string, faceIDs []uint) (*models.Person, error) {
	if name == "" {
		return nil, errdefs.NewValidation("name", "must not be empty")
	}
	if len(faceIDs) == 0 {
		return nil, errdefs.NewValidation("sample_face_ids", "at least one face detection is required")
	}

	detections, err := s.faces.ListByIDs(faceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load sample detections: %w", err)
	}
	if len(detections) != len(faceIDs) {
		return nil, errdefs.NewValidation("sample_face_ids", "contains unknown face detection ids")
	}
	hasVector := false
	for _, detection := range detections {
		if len(detection.VectorData) > 0 {
			hasVector = true
			break
		}
	}
	if !hasVector {
		return nil, errdefs.NewValidation("sample_face_ids", "none of the detections carries a face vector")
	}

	person := &models.Person{Name: name}
	if err := s.people.Create(person); err != nil {
		return nil, err
	}
	for _, detection := range detections {
		if err := s.faces.AssignPerson(detection.ID, person.ID, true); err != nil {
			return nil, fmt.Errorf("failed to tag sample face %d: %w", detection.ID, err)
		}
	}
	if err := s.RecomputeCentroid(person.ID); err != nil {
		return nil, err
	}

	log.Printf("clustering: created person %d (%s) from %d sample face(s)", person.ID, name, len(detections))
	return s.people.GetByID(person.ID)
}

// Rename changes a person's display name.
func (s *FaceClusteringService) Rename(personID uint, name string) error {
	if name == "" {
		return errdefs.NewValidation("name", "must not be empty")
	}
	return s.people.UpdateName(personID, name)
}

// SetActive toggles whether a person participates in face search and
// badge decoration. Their detections are untouched.
func (s *FaceClusteringService) SetActive(personID uint, active bool) error {
	return s.people.SetActive(personID, active)
}

// MergePeople moves every detection of source onto target, deletes
// source and recomputes target's centroid.
func (s *FaceClusteringService) MergePeople(targetID, sourceID uint) error {
	if targetID == sourceID {
		return errdefs.NewValidation("source_person_id", "cannot merge a person into themselves")
	}
	if _, err := s.people.GetByID(targetID); err != nil {
		return err
	}
	if _, err := s.people.GetByID(sourceID); err != nil {
		return err
	}

	detections, err := s.faces.ListByPerson(sourceID)
	if err != nil {
		return fmt.Errorf("merge: failed to load detections of person %d: %w", sourceID, err)
	}
	for _, detection := range detections {
		if err := s.faces.AssignPerson(detection.ID, targetID, detection.Verified); err != nil {
			return fmt.Errorf("merge: failed to move detection %d: %w", detection.ID, err)
		}
	}

	if err := s.people.Delete(sourceID); err != nil {
		return fmt.Errorf("merge: failed to delete person %d: %w", sourceID, err)
	}
	log.Printf("clustering: merged person %d into %d (%d detection(s) moved)", sourceID, targetID, len(detections))
	return s.RecomputeCentroid(targetID)
}

// DeletePerson removes a person. Their detections survive with the
// person reference cleared, so the faces can be re-clustered later.
func (s *FaceClusteringService) DeletePerson(personID uint) error {
	if _, err := s.people.GetByID(personID); err != nil {
		return err
	}
	if err := s.faces.DetachPersonRefs(personID); err != nil {
		return err
	}
	return s.people.Delete(personID)
}

// TagFace manually links a detection to a person and refreshes the
// person's centroid. Manual tags are verified.
func (s *FaceClusteringService) TagFace(faceID, personID uint) error {
	if _, err := s.people.GetByID(personID); err != nil {
		return err
	}
	if err := s.faces.AssignPerson(faceID, personID, true); err != nil {
		return err
	}
	return s.RecomputeCentroid(personID)
}

// UntagFace clears a detection's person link and refreshes the centroid
// of the person it used to belong to.
func (s *FaceClusteringService) UntagFace(faceID uint) error {
	detection, err := s.faces.GetByID(faceID)
	if err != nil {
		return err
	}
	if err := s.faces.Unassign(faceID); err != nil {
		return err
	}
	if detection.PersonID != nil {
		return s.RecomputeCentroid(*detection.PersonID)
	}
	return nil
}
