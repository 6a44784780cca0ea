package bildset

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// imageExts are the file extensions treated as images when unpacking.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
}

// TrainingPair is one image plus its optional keyword text, joined by basename.
type TrainingPair struct {
	// Basename is the filename with its extension stripped.
	Basename string
	// ImageName is the full image filename (basename + extension).
	ImageName string
	// ImagePath is the on-disk source, set when the pair came from an upload.
	ImagePath string
	// Image is the in-memory payload, set when no file backs the pair.
	Image []byte

	Keywords    string
	HasKeywords bool
}

// ImageBytes returns the image payload, reading from disk if necessary.
func (p *TrainingPair) ImageBytes() ([]byte, error) {
	if p.Image != nil {
		return p.Image, nil
	}
	bs, err := os.ReadFile(p.ImagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return bs, nil
}

// Dataset is the result of unpacking and pairing an upload.
type Dataset struct {
	// Pairs holds every image found, sorted by basename.
	Pairs []TrainingPair
	// Missing lists basenames that had no matching keyword file.
	Missing []string
	// WorkDir is the extraction area backing the pair image paths.
	WorkDir string
}

// Basenames returns the basename of every pair, in order.
func (d *Dataset) Basenames() []string {
	bs := make([]string, 0, len(d.Pairs))
	for _, p := range d.Pairs {
		bs = append(bs, p.Basename)
	}
	return bs
}

// Pack builds the two download archives for a set of pairs: one zip of
// images named <basename>.<ext>, one zip of keyword texts named
// <basename>.txt. Pairs without keyword text are omitted from the keyword
// archive only.
func Pack(pairs []TrainingPair) (imagesZip []byte, keywordsZip []byte, err error) {
	var ibuf, kbuf bytes.Buffer
	iw := zip.NewWriter(&ibuf)
	kw := zip.NewWriter(&kbuf)

	for _, p := range pairs {
		bs, err := p.ImageBytes()
		if err != nil {
			return nil, nil, fmt.Errorf("pair %q: %w", p.Basename, err)
		}

		name := p.ImageName
		if name == "" {
			name = p.Basename + ".png"
		}

		f, err := iw.Create(name)
		if err != nil {
			return nil, nil, fmt.Errorf("create %q: %w", name, err)
		}
		if _, err := f.Write(bs); err != nil {
			return nil, nil, fmt.Errorf("write %q: %w", name, err)
		}

		if !p.HasKeywords {
			continue
		}

		kf, err := kw.Create(p.Basename + ".txt")
		if err != nil {
			return nil, nil, fmt.Errorf("create %q: %w", p.Basename+".txt", err)
		}
		if _, err := kf.Write([]byte(p.Keywords)); err != nil {
			return nil, nil, fmt.Errorf("write %q: %w", p.Basename+".txt", err)
		}
	}

	if err := iw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close images zip: %w", err)
	}
	if err := kw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close keywords zip: %w", err)
	}

	return ibuf.Bytes(), kbuf.Bytes(), nil
}

// Unpack extracts a zip byte stream into dir. A malformed archive or an
// entry escaping dir fails with ArchiveError.
func Unpack(data []byte, dir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &ArchiveError{Err: err}
	}

	cleanDir := filepath.Clean(dir)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		target := filepath.Join(cleanDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, cleanDir+string(os.PathSeparator)) {
			return &ArchiveError{Err: fmt.Errorf("entry %q escapes archive root", f.Name)}
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}

		rc, err := f.Open()
		if err != nil {
			return &ArchiveError{Err: fmt.Errorf("open %q: %w", f.Name, err)}
		}

		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return fmt.Errorf("create %q: %w", target, err)
		}

		if _, err := out.ReadFrom(rc); err != nil {
			out.Close()
			rc.Close()
			return &ArchiveError{Err: fmt.Errorf("extract %q: %w", f.Name, err)}
		}

		out.Close()
		rc.Close()
	}

	return nil
}

// findFiles walks root and returns files whose lowercased extension
// matches exts. Dotfiles and dot directories are skipped.
func findFiles(root string, exts map[string]bool) ([]string, error) {
	found := []string{}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && filepath.Base(path)[0] == '.' {
				return godirwalk.SkipThis
			}

			if de.IsDir() {
				return nil
			}

			if exts[strings.ToLower(filepath.Ext(path))] {
				klog.V(1).Infof("found %s", path)
				found = append(found, path)
			}

			return nil
		},
	})

	sort.Strings(found)
	return found, err
}

// UnpackDataset extracts an images archive and an optional keywords
// archive, then pairs their contents by basename. Images without a
// same-named .txt file are recorded in Missing. Duplicate basenames
// across extensions fail with ArchiveError; zero images fails with
// EmptyDatasetError.
func UnpackDataset(images []byte, keywords []byte) (*Dataset, error) {
	work, err := os.MkdirTemp("", "bildset-")
	if err != nil {
		return nil, fmt.Errorf("mkdtemp: %w", err)
	}

	imageDir := filepath.Join(work, "images")
	keywordDir := filepath.Join(work, "keywords")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := os.MkdirAll(keywordDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	if err := Unpack(images, imageDir); err != nil {
		return nil, err
	}
	if keywords != nil {
		if err := Unpack(keywords, keywordDir); err != nil {
			return nil, err
		}
	}

	imagePaths, err := findFiles(imageDir, imageExts)
	if err != nil {
		return nil, fmt.Errorf("walk images: %w", err)
	}
	if len(imagePaths) == 0 {
		return nil, &EmptyDatasetError{}
	}

	textPaths, err := findFiles(keywordDir, map[string]bool{".txt": true})
	if err != nil {
		return nil, fmt.Errorf("walk keywords: %w", err)
	}

	texts := map[string]string{}
	for _, p := range textPaths {
		base := filepath.Base(p)
		texts[strings.TrimSuffix(base, filepath.Ext(base))] = p
	}

	d := &Dataset{WorkDir: work}
	seen := map[string]bool{}
	for _, p := range imagePaths {
		name := filepath.Base(p)
		basename := strings.TrimSuffix(name, filepath.Ext(name))

		if seen[basename] {
			return nil, &ArchiveError{Err: fmt.Errorf("duplicate basename %q", basename)}
		}
		seen[basename] = true

		pair := TrainingPair{
			Basename:  basename,
			ImageName: name,
			ImagePath: p,
		}

		if tp, ok := texts[basename]; ok {
			bs, err := os.ReadFile(tp)
			if err != nil {
				return nil, fmt.Errorf("read keywords for %q: %w", basename, err)
			}
			pair.Keywords = string(bs)
			pair.HasKeywords = true
		} else {
			d.Missing = append(d.Missing, basename)
		}

		d.Pairs = append(d.Pairs, pair)
	}

	klog.Infof("unpacked %d images, %d missing keywords", len(d.Pairs), len(d.Missing))
	return d, nil
}

// Close removes the dataset's extraction area.
func (d *Dataset) Close() error {
	if d.WorkDir == "" {
		return nil
	}
	return os.RemoveAll(d.WorkDir)
}
