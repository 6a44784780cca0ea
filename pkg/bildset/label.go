package bildset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
)

// ParseVocabulary splits a comma-separated keyword string, trimming
// whitespace and dropping empty entries. Order is preserved.
func ParseVocabulary(s string) []string {
	vocab := []string{}
	for _, kw := range strings.Split(s, ",") {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			vocab = append(vocab, kw)
		}
	}
	return vocab
}

// AutoLabel returns the vocabulary keywords that occur as a
// case-insensitive substring of the basename, in vocabulary order.
func AutoLabel(basename string, vocab []string) []string {
	lower := strings.ToLower(basename)
	matched := []string{}
	for _, kw := range vocab {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// FillKeywords auto-labels every pair in the dataset that is missing
// keyword text, joining matched vocabulary words with ", ". Pairs whose
// basename matches nothing stay on the missing list.
func FillKeywords(d *Dataset, vocab []string) {
	still := []string{}
	for _, basename := range d.Missing {
		matched := AutoLabel(basename, vocab)
		if len(matched) == 0 {
			still = append(still, basename)
			continue
		}

		for i := range d.Pairs {
			if d.Pairs[i].Basename == basename {
				d.Pairs[i].Keywords = strings.Join(matched, ", ")
				d.Pairs[i].HasKeywords = true
				break
			}
		}
	}

	klog.V(1).Infof("auto-filled %d of %d missing keyword files", len(d.Missing)-len(still), len(d.Missing))
	d.Missing = still
}

// WriteLabels serializes a label assignment to <dir>/labels/<name>.json
// and returns the written path.
func WriteLabels(dir string, name string, labels map[string][]string) (string, error) {
	outDir := filepath.Join(dir, "labels")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &StorageError{Path: outDir, Err: err}
	}

	bs, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal labels: %w", err)
	}

	path := filepath.Join(outDir, name+".json")
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		return "", &StorageError{Path: path, Err: err}
	}

	klog.Infof("wrote %d label assignments to %s", len(labels), path)
	return path, nil
}
