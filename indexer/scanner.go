package indexer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/photonest/photonestbackend/media"
	"github.com/photonest/photonestbackend/models"
	"github.com/photonest/photonestbackend/repository"
)

// FileStat is the identity of a file found on disk during a scan.
type FileStat struct {
	Path        string
	Folder      string
	Filename    string
	Extension   string
	Size        int64
	ModifiedTS  int64
	ContentHash string
}

// ChangedFile pairs an on-disk file with its stale photo record.
type ChangedFile struct {
	Stat   FileStat
	Record models.Photo
}

// TouchedFile is a file whose timestamps moved but whose content hash is
// unchanged; it only needs its stored modification time refreshed.
type TouchedFile struct {
	Record     models.Photo
	ModifiedTS int64
}

// ScanPlan is the diff between the configured roots and the stored index.
// Building it has no side effects on the index.
type ScanPlan struct {
	New        []FileStat
	Changed    []ChangedFile
	Touched    []TouchedFile
	Removed    []models.Photo
	Unreadable []string // per-file scan errors, reported but not fatal
}

// Total returns the number of files requiring extraction work.
func (p *ScanPlan) Total() int {
	return len(p.New) + len(p.Changed)
}

// Scanner walks the configured root directories and diffs them against
// the photo store.
type Scanner struct {
	roots  []string
	photos repository.PhotoRepositoryInterface
}

// NewScanner creates a scanner over the given roots.
func NewScanner(roots []string, photos repository.PhotoRepositoryInterface) *Scanner {
	return &Scanner{roots: roots, photos: photos}
}

// HashFile computes the BLAKE2b-256 content hash of a file, hex encoded.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create hasher: %w", err)
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// BuildPlan produces the new/changed/touched/removed sets. Comparison uses
// modified_ts+size as a cheap pre-filter; the content hash is the
// authoritative check, so touch-only changes never trigger re-extraction.
func (s *Scanner) BuildPlan(ctx context.Context) (*ScanPlan, error) {
	existing, err := s.photos.ListActive()
	if err != nil {
		return nil, fmt.Errorf("scan: failed to load photo records: %w", err)
	}
	byPath := make(map[string]models.Photo, len(existing))
	for _, photo := range existing {
		byPath[photo.Path] = photo
	}

	plan := &ScanPlan{}
	seen := make(map[string]bool)

	for _, root := range s.roots {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				plan.Unreadable = append(plan.Unreadable, fmt.Sprintf("%s: %v", path, err))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() || !media.IsRasterImage(d.Name()) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				plan.Unreadable = append(plan.Unreadable, fmt.Sprintf("%s: %v", path, err))
				return nil
			}

			seen[path] = true
			record, known := byPath[path]

			// cheap pre-filter before paying for a content hash
			if known && record.Size == info.Size() && record.ModifiedTS == info.ModTime().Unix() {
				return nil
			}

			hash, err := HashFile(path)
			if err != nil {
				plan.Unreadable = append(plan.Unreadable, fmt.Sprintf("%s: %v", path, err))
				return nil
			}

			stat := FileStat{
				Path:        path,
				Folder:      filepath.Dir(path),
				Filename:    d.Name(),
				Extension:   strings.ToLower(filepath.Ext(d.Name())),
				Size:        info.Size(),
				ModifiedTS:  info.ModTime().Unix(),
				ContentHash: hash,
			}

			switch {
			case !known:
				plan.New = append(plan.New, stat)
			case record.ContentHash == hash:
				plan.Touched = append(plan.Touched, TouchedFile{Record: record, ModifiedTS: stat.ModifiedTS})
			default:
				plan.Changed = append(plan.Changed, ChangedFile{Stat: stat, Record: record})
			}
			return nil
		})
		if walkErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// an unwalkable root is a scan error, not a fatal condition
			plan.Unreadable = append(plan.Unreadable, fmt.Sprintf("%s: %v", root, walkErr))
		}
	}

	for _, photo := range existing {
		if !seen[photo.Path] {
			plan.Removed = append(plan.Removed, photo)
		}
	}

	log.Printf("scan: %d new, %d changed, %d touched, %d removed, %d unreadable",
		len(plan.New), len(plan.Changed), len(plan.Touched), len(plan.Removed), len(plan.Unreadable))
	return plan, nil
}
