package bildset

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// MetadataFile is the per-run metadata filename.
const MetadataFile = "metadata.json"

// Run is one upload-and-pair operation ready to persist.
type Run struct {
	Pairs   []TrainingPair
	Missing []string
	// Vocabulary and Descriptions are recorded in the run metadata as-is.
	Vocabulary   []string
	Descriptions map[string]string
}

// RunMeta is the metadata.json payload written alongside a run's files.
type RunMeta struct {
	RunID           string            `json:"run_id"`
	Basenames       []string          `json:"basenames"`
	MissingKeywords []string          `json:"missing_keywords"`
	Keywords        []string          `json:"keywords,omitempty"`
	Descriptions    map[string]string `json:"descriptions,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Store persists training runs, one directory per run. Run directories
// are append-only: a new run never overwrites an existing one.
type Store struct {
	// Root is the training_runs directory.
	Root string

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewStore creates a run store rooted at <dir>/training_runs.
func NewStore(dir string) (*Store, error) {
	root := filepath.Join(dir, "training_runs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &StorageError{Path: root, Err: err}
	}

	return &Store{
		Root:    root,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// newRunID returns a fresh run identifier: a ULID, so concurrent writers
// get distinct directories without locking (millisecond timestamp plus
// random suffix).
func (s *Store) newRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Write persists a run to a fresh directory and returns its metadata.
// Files are staged under a dot-prefixed directory and renamed into place
// after metadata.json is written, so a partial run is never visible under
// its final name. Any write failure surfaces as StorageError, leaving the
// staging files behind.
func (s *Store) Write(r *Run) (*RunMeta, error) {
	id := s.newRunID()
	dir := filepath.Join(s.Root, "."+id)

	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, &StorageError{Path: dir, Err: err}
	}

	for _, p := range r.Pairs {
		dst := filepath.Join(dir, p.ImageName)
		if p.ImagePath != "" {
			if err := copy.Copy(p.ImagePath, dst); err != nil {
				return nil, &StorageError{Path: dst, Err: err}
			}
		} else {
			if err := os.WriteFile(dst, p.Image, 0o644); err != nil {
				return nil, &StorageError{Path: dst, Err: err}
			}
		}

		if !p.HasKeywords {
			continue
		}

		kdst := filepath.Join(dir, p.Basename+".txt")
		if err := os.WriteFile(kdst, []byte(p.Keywords), 0o644); err != nil {
			return nil, &StorageError{Path: kdst, Err: err}
		}
	}

	missing := r.Missing
	if missing == nil {
		missing = []string{}
	}

	basenames := []string{}
	for _, p := range r.Pairs {
		basenames = append(basenames, p.Basename)
	}

	meta := &RunMeta{
		RunID:           id,
		Basenames:       basenames,
		MissingKeywords: missing,
		Keywords:        r.Vocabulary,
		Descriptions:    r.Descriptions,
		CreatedAt:       time.Now().UTC(),
	}

	bs, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	mpath := filepath.Join(dir, MetadataFile)
	if err := os.WriteFile(mpath, bs, 0o644); err != nil {
		return nil, &StorageError{Path: mpath, Err: err}
	}

	final := filepath.Join(s.Root, id)
	if err := os.Rename(dir, final); err != nil {
		return nil, &StorageError{Path: final, Err: err}
	}

	klog.Infof("stored run %s with %d pairs (%d missing keywords) in %s", id, len(r.Pairs), len(missing), final)
	return meta, nil
}

// RunDir returns the directory for a run identifier.
func (s *Store) RunDir(id string) string {
	return filepath.Join(s.Root, id)
}

// List returns metadata for every complete run, newest first. Directories
// without a metadata.json are partial runs and are skipped.
func (s *Store) List() ([]RunMeta, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Root, err)
	}

	runs := []RunMeta{}
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}

		bs, err := os.ReadFile(filepath.Join(s.Root, e.Name(), MetadataFile))
		if err != nil {
			klog.V(1).Infof("skipping %s: %v", e.Name(), err)
			continue
		}

		var m RunMeta
		if err := json.Unmarshal(bs, &m); err != nil {
			klog.Warningf("bad metadata in %s: %v", e.Name(), err)
			continue
		}

		runs = append(runs, m)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}
