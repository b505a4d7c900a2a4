package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/photonest/photonestbackend/errdefs"
	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/repository"
)

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeImage    Mode = "image"
	ModeFace     Mode = "face"
)

// Badge labels explaining why a photo matched.
const (
	BadgeFilename   = "filename"
	BadgeFolder     = "folder"
	BadgeOCR        = "OCR"
	BadgeSemantic   = "semantic"
	BadgePhotoMatch = "Photo-Match"
	BadgeFace       = "Face"
)

// ErrUnavailable is returned when a query needs a model that is not
// loaded, such as semantic search without an embedding backend.
var ErrUnavailable = errors.New("search mode unavailable")

const defaultLimit = 50

// Query is one search request. Exactly one of Term, Text, ImagePath or
// PersonID is consulted, selected by Mode. A nil Limit means the default
// page size; an explicit zero returns no items while still counting the
// matches.
type Query struct {
	Mode      Mode
	Term      string
	Text      string
	ImagePath string
	ImageName string // display name of the query image, for the echo
	PersonID  uint
	Filters   repository.SearchFilters
	Limit     *int
	Offset    int
}

// echo is the query string reported back in the result.
func (q Query) echo() string {
	switch q.Mode {
	case ModeKeyword:
		return q.Term
	case ModeSemantic:
		return q.Text
	case ModeImage:
		if q.ImageName != "" {
			return q.ImageName
		}
		return filepath.Base(q.ImagePath)
	case ModeFace:
		return fmt.Sprintf("person:%d", q.PersonID)
	}
	return ""
}

// Item is one ranked search result.
type Item struct {
	FileID    uint     `json:"file_id"`
	Path      string   `json:"path"`
	Folder    string   `json:"folder"`
	Filename  string   `json:"filename"`
	ShotAt    *int64   `json:"shot_at,omitempty"`
	ThumbPath *string  `json:"thumb_path,omitempty"`
	Score     float64  `json:"score"`
	Badges    []string `json:"badges"`
	Snippet   string   `json:"snippet,omitempty"`
}

// Result is a ranked page of matches. TotalMatches counts the full
// filtered match set, not just the returned page.
type Result struct {
	Query        string `json:"query"`
	Items        []Item `json:"items"`
	TotalMatches int    `json:"total_matches"`
	TookMS       int64  `json:"took_ms"`
}

// Keyword match scores per field. When a photo matches through several
// fields the highest score wins and the badges accumulate.
const (
	scoreFilename = 1.0
	scoreFolder   = 0.8
	scoreOCR      = 0.6
)

// Engine answers search queries against the index store.
type Engine struct {
	photos     repository.PhotoRepositoryInterface
	embeddings repository.EmbeddingRepositoryInterface
	faces      repository.FaceRepositoryInterface
	people     repository.PersonRepositoryInterface
	embedder   media.Embedder
	ocrFloor   float64
}

// NewEngine creates the search engine. embedder may be nil; semantic and
// image queries then report ErrUnavailable.
func NewEngine(
	photos repository.PhotoRepositoryInterface,
	embeddings repository.EmbeddingRepositoryInterface,
	faces repository.FaceRepositoryInterface,
	people repository.PersonRepositoryInterface,
	embedder media.Embedder,
	ocrFloor float64,
) *Engine {
	return &Engine{
		photos:     photos,
		embeddings: embeddings,
		faces:      faces,
		people:     people,
		embedder:   embedder,
		ocrFloor:   ocrFloor,
	}
}

// hit accumulates scoring evidence for one photo across match sources.
type hit struct {
	score   float64
	badges  []string
	snippet string
}

func (h *hit) merge(score float64, badge, snippet string) {
	if score > h.score {
		h.score = score
	}
	for _, b := range h.badges {
		if b == badge {
			badge = ""
			break
		}
	}
	if badge != "" {
		h.badges = append(h.badges, badge)
	}
	if h.snippet == "" {
		h.snippet = snippet
	}
}

// Search runs a query and returns the ranked, filtered, paginated result.
func (e *Engine) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()

	limit := defaultLimit
	if q.Limit != nil {
		if *q.Limit < 0 {
			return nil, errdefs.NewValidation("limit", "must not be negative")
		}
		limit = *q.Limit
	}
	if q.Offset < 0 {
		return nil, errdefs.NewValidation("offset", "must not be negative")
	}
	if q.Filters.From != nil && q.Filters.To != nil && *q.Filters.From > *q.Filters.To {
		return nil, errdefs.NewValidation("from", "must not be after to")
	}

	hits := make(map[uint]*hit)

	var err error
	switch q.Mode {
	case ModeKeyword:
		err = e.keywordHits(q, hits)
	case ModeSemantic:
		err = e.semanticHits(ctx, q, hits)
	case ModeImage:
		err = e.imageHits(ctx, q, hits)
	case ModeFace:
		err = e.faceHits(q, hits)
	default:
		err = errdefs.NewValidation("mode", fmt.Sprintf("unknown search mode %q", q.Mode))
	}
	if err != nil {
		return nil, err
	}

	items, err := e.decorate(hits, q.Filters)
	if err != nil {
		return nil, err
	}
	sortItems(items)

	total := len(items)
	if q.Offset >= len(items) {
		items = []Item{}
	} else {
		end := q.Offset + limit
		if end > len(items) {
			end = len(items)
		}
		items = items[q.Offset:end]
	}

	return &Result{
		Query:        q.echo(),
		Items:        items,
		TotalMatches: total,
		TookMS:       time.Since(start).Milliseconds(),
	}, nil
}

func (e *Engine) keywordHits(q Query, hits map[uint]*hit) error {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return errdefs.NewValidation("q", "must not be empty")
	}

	rows, err := e.photos.SearchKeyword(term, q.Filters, e.ocrFloor)
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}

	for _, row := range rows {
		h := hits[row.FileID]
		if h == nil {
			h = &hit{}
			hits[row.FileID] = h
		}
		switch row.Field {
		case repository.KeywordFieldFilename:
			h.merge(scoreFilename, BadgeFilename, "")
		case repository.KeywordFieldFolder:
			h.merge(scoreFolder, BadgeFolder, "")
		case repository.KeywordFieldOCR:
			h.merge(scoreOCR, BadgeOCR, makeSnippet(row.OCRText, term))
		}
	}
	return nil
}

func (e *Engine) semanticHits(ctx context.Context, q Query, hits map[uint]*hit) error {
	if strings.TrimSpace(q.Text) == "" {
		return errdefs.NewValidation("text", "must not be empty")
	}
	if e.embedder == nil {
		return fmt.Errorf("%w: no embedding model loaded", ErrUnavailable)
	}

	vector, err := e.embedder.EmbedText(ctx, q.Text)
	if err != nil {
		return fmt.Errorf("failed to embed query text: %w", err)
	}
	return e.vectorHits(vector, BadgeSemantic, hits)
}

func (e *Engine) imageHits(ctx context.Context, q Query, hits map[uint]*hit) error {
	if q.ImagePath == "" {
		return errdefs.NewValidation("image", "must not be empty")
	}
	if e.embedder == nil {
		return fmt.Errorf("%w: no embedding model loaded", ErrUnavailable)
	}

	vector, err := e.embedder.EmbedImage(ctx, q.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to embed query image: %w", err)
	}
	return e.vectorHits(vector, BadgePhotoMatch, hits)
}

func (e *Engine) vectorHits(query []float32, badge string, hits map[uint]*hit) error {
	stored, err := e.embeddings.ListByModel(e.embedder.ModelID())
	if err != nil {
		return fmt.Errorf("failed to load embeddings: %w", err)
	}

	for _, embedding := range stored {
		score := clamp01(float64(media.CosineSimilarity(query, embedding.GetVector())))
		if score <= 0 {
			continue
		}
		h := hits[embedding.FileID]
		if h == nil {
			h = &hit{}
			hits[embedding.FileID] = h
		}
		h.merge(score, badge, "")
	}
	return nil
}

func (e *Engine) faceHits(q Query, hits map[uint]*hit) error {
	if q.PersonID == 0 {
		return errdefs.NewValidation("person_id", "must be set")
	}

	person, err := e.people.GetByID(q.PersonID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return fmt.Errorf("failed to load person: %w", err)
	}
	if !person.Active {
		return nil // deactivated people are invisible to search
	}

	detections, err := e.faces.ListByPerson(person.ID)
	if err != nil {
		return fmt.Errorf("failed to load face detections: %w", err)
	}
	for _, detection := range detections {
		h := hits[detection.FileID]
		if h == nil {
			h = &hit{}
			hits[detection.FileID] = h
		}
		h.merge(clamp01(float64(detection.Confidence)), BadgeFace, "")
	}
	return nil
}

// decorate resolves photo attributes for the hit set and applies the
// query filters. Photos no longer present in the store drop out here.
func (e *Engine) decorate(hits map[uint]*hit, filters repository.SearchFilters) ([]Item, error) {
	if len(hits) == 0 {
		return []Item{}, nil
	}

	ids := make([]uint, 0, len(hits))
	for fileID := range hits {
		ids = append(ids, fileID)
	}
	attrs, err := e.photos.GetSearchAttrs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load result attributes: %w", err)
	}

	items := make([]Item, 0, len(attrs))
	for _, attr := range attrs {
		if filters.From != nil && (attr.ShotAt == nil || *attr.ShotAt < *filters.From) {
			continue
		}
		if filters.To != nil && (attr.ShotAt == nil || *attr.ShotAt > *filters.To) {
			continue
		}
		if filters.FolderPrefix != "" && !strings.HasPrefix(attr.Folder, filters.FolderPrefix) {
			continue
		}

		h := hits[attr.FileID]
		items = append(items, Item{
			FileID:    attr.FileID,
			Path:      attr.Path,
			Folder:    attr.Folder,
			Filename:  attr.Filename,
			ShotAt:    attr.ShotAt,
			ThumbPath: attr.ThumbPath,
			Score:     h.score,
			Badges:    h.badges,
			Snippet:   h.snippet,
		})
	}
	return items, nil
}

// sortItems orders by score descending, then shot time descending with
// undated photos last, then file id ascending for stability.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		si, sj := items[i].ShotAt, items[j].ShotAt
		switch {
		case si != nil && sj != nil && *si != *sj:
			return *si > *sj
		case si != nil && sj == nil:
			return true
		case si == nil && sj != nil:
			return false
		}
		return items[i].FileID < items[j].FileID
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const snippetRadius = 60

// snapRuneStart moves a byte offset back to the nearest rune boundary so
// slicing never splits a multi-byte character.
func snapRuneStart(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// makeSnippet extracts a window of recognized text around the first
// occurrence of the term.
func makeSnippet(text, term string) string {
	if text == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(term))
	if idx < 0 {
		if len(text) > 2*snippetRadius {
			return text[:snapRuneStart(text, 2*snippetRadius)] + "…"
		}
		return text
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	start = snapRuneStart(text, start)
	end := idx + len(term) + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	end = snapRuneStart(text, end)

	snippet := text[start:end]
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(text) {
		snippet += "…"
	}
	return snippet
}
