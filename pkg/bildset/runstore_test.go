package bildset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreWrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	meta, err := s.Write(&Run{
		Pairs: []TrainingPair{
			{Basename: "img1", ImageName: "img1.png", Image: []byte("one"), Keywords: "cat", HasKeywords: true},
			{Basename: "img2", ImageName: "img2.png", Image: []byte("two")},
		},
		Missing:    []string{"img2"},
		Vocabulary: []string{"cat", "dog"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, meta.RunID)

	runDir := s.RunDir(meta.RunID)
	for _, name := range []string{"img1.png", "img1.txt", "img2.png", MetadataFile} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, "expected %s in run dir", name)
	}

	_, err = os.Stat(filepath.Join(runDir, "img2.txt"))
	assert.True(t, os.IsNotExist(err), "missing-keyword pair must not get a txt file")

	bs, err := os.ReadFile(filepath.Join(runDir, MetadataFile))
	require.NoError(t, err)

	var got RunMeta
	require.NoError(t, json.Unmarshal(bs, &got))
	assert.Equal(t, meta.RunID, got.RunID)
	assert.Equal(t, []string{"img1", "img2"}, got.Basenames)
	assert.Equal(t, []string{"img2"}, got.MissingKeywords)
	assert.Equal(t, []string{"cat", "dog"}, got.Keywords)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreWriteDistinctIDs(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		meta, err := s.Write(&Run{})
		require.NoError(t, err)
		assert.False(t, seen[meta.RunID], "run id %s collided", meta.RunID)
		seen[meta.RunID] = true
	}
}

func TestStoreWriteFailure(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Write(&Run{
		Pairs: []TrainingPair{
			{Basename: "a", ImageName: "a.png", ImagePath: filepath.Join(t.TempDir(), "nope.png")},
		},
	})
	require.Error(t, err)

	var se *StorageError
	assert.True(t, errors.As(err, &se))

	// The partial run must not be recorded as complete.
	runs, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreList(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first, err := s.Write(&Run{Pairs: []TrainingPair{{Basename: "a", ImageName: "a.png", Image: []byte("x")}}})
	require.NoError(t, err)
	second, err := s.Write(&Run{Pairs: []TrainingPair{{Basename: "b", ImageName: "b.png", Image: []byte("y")}}})
	require.NoError(t, err)

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, second.RunID, runs[0].RunID)
	assert.Equal(t, first.RunID, runs[1].RunID)
}

// TestUploadScenario walks the documented flow: images {img1.png,
// img2.png} with keywords {img1.txt} pair as {img1}, miss {img2}, and the
// stored metadata lists img2 as missing.
func TestUploadScenario(t *testing.T) {
	images := makeZip(t, map[string]string{"img1.png": "one", "img2.png": "two"})
	keywords := makeZip(t, map[string]string{"img1.txt": "cat"})

	ds, err := UnpackDataset(images, keywords)
	require.NoError(t, err)
	defer ds.Close()

	paired := []string{}
	for _, p := range ds.Pairs {
		if p.HasKeywords {
			paired = append(paired, p.Basename)
		}
	}
	assert.Equal(t, []string{"img1"}, paired)
	assert.Equal(t, []string{"img2"}, ds.Missing)

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	meta, err := s.Write(&Run{Pairs: ds.Pairs, Missing: ds.Missing})
	require.NoError(t, err)

	bs, err := os.ReadFile(filepath.Join(s.RunDir(meta.RunID), MetadataFile))
	require.NoError(t, err)

	var got RunMeta
	require.NoError(t, json.Unmarshal(bs, &got))
	assert.Equal(t, []string{"img2"}, got.MissingKeywords)
}
