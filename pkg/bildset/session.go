package bildset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"k8s.io/klog/v2"
)

// SessionImage is one image loaded into a labeling session.
type SessionImage struct {
	// Name is the image filename, Basename the same without extension.
	Name     string
	Basename string
	Path     string
}

// Session holds one labeling session's state: the loaded images, the
// keyword vocabulary, and the label assignments made so far. Core
// operations take the session explicitly so nothing depends on the web
// layer.
type Session struct {
	ID      string
	workDir string

	Images     []SessionImage
	Vocabulary []string
	// Labels maps image basename to assigned keywords.
	Labels map[string][]string
	// Cursor is the index of the next image to label manually.
	Cursor int
}

// NewSession returns an empty session with a fresh identifier.
func NewSession() *Session {
	return &Session{
		ID:     ulid.Make().String(),
		Labels: map[string][]string{},
	}
}

// LoadDataset replaces the session's images with the contents of an
// uploaded archive, resetting labels and the manual-labeling cursor.
// Returns the number of images loaded.
func (s *Session) LoadDataset(archive []byte) (int, error) {
	work, err := os.MkdirTemp("", "bildset-session-")
	if err != nil {
		return 0, fmt.Errorf("mkdtemp: %w", err)
	}

	if err := Unpack(archive, work); err != nil {
		os.RemoveAll(work)
		return 0, err
	}

	paths, err := findFiles(work, imageExts)
	if err != nil {
		os.RemoveAll(work)
		return 0, fmt.Errorf("walk images: %w", err)
	}
	if len(paths) == 0 {
		os.RemoveAll(work)
		return 0, &EmptyDatasetError{}
	}

	if s.workDir != "" {
		os.RemoveAll(s.workDir)
	}
	s.workDir = work

	s.Images = []SessionImage{}
	for _, p := range paths {
		name := filepath.Base(p)
		s.Images = append(s.Images, SessionImage{
			Name:     name,
			Basename: strings.TrimSuffix(name, filepath.Ext(name)),
			Path:     p,
		})
	}

	s.Labels = map[string][]string{}
	s.Cursor = 0

	klog.Infof("session %s loaded %d images", s.ID, len(s.Images))
	return len(s.Images), nil
}

// SetVocabulary parses a comma-separated keyword string into the
// session's vocabulary and returns the keyword count.
func (s *Session) SetVocabulary(raw string) int {
	s.Vocabulary = ParseVocabulary(raw)
	return len(s.Vocabulary)
}

// AutoLabelAll labels every loaded image against the session vocabulary
// and stores the result as the session's label assignments.
func (s *Session) AutoLabelAll() map[string][]string {
	labels := map[string][]string{}
	for _, img := range s.Images {
		labels[img.Basename] = AutoLabel(img.Basename, s.Vocabulary)
	}
	s.Labels = labels
	return labels
}

// Current returns the image the manual-labeling cursor points at.
func (s *Session) Current() (SessionImage, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Images) {
		return SessionImage{}, false
	}
	return s.Images[s.Cursor], true
}

// LabelCurrent assigns the selected keywords to the current image and
// advances the cursor. Returns true when every image has been labeled.
func (s *Session) LabelCurrent(selected []string) bool {
	img, ok := s.Current()
	if !ok {
		return true
	}

	s.Labels[img.Basename] = selected
	s.Cursor++
	return s.Cursor >= len(s.Images)
}

// Complete reports whether manual labeling has visited every image.
func (s *Session) Complete() bool {
	return len(s.Images) > 0 && s.Cursor >= len(s.Images)
}

// ExportPairs converts the session into training pairs: each image joined
// with its assigned keywords, comma-separated. Images without assignments
// get no keyword entry.
func (s *Session) ExportPairs() []TrainingPair {
	pairs := []TrainingPair{}
	for _, img := range s.Images {
		p := TrainingPair{
			Basename:  img.Basename,
			ImageName: img.Name,
			ImagePath: img.Path,
		}
		if kws := s.Labels[img.Basename]; len(kws) > 0 {
			p.Keywords = strings.Join(kws, ", ")
			p.HasKeywords = true
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// Close removes the session's extraction area.
func (s *Session) Close() error {
	if s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}
