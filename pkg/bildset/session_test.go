package bildset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLoadDataset(t *testing.T) {
	s := NewSession()
	defer s.Close()

	n, err := s.LoadDataset(makeZip(t, map[string]string{
		"red_car_001.png": "one",
		"blue_sky.jpg":    "two",
		"notes.txt":       "ignored",
	}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "blue_sky", s.Images[0].Basename)
	assert.Equal(t, "red_car_001", s.Images[1].Basename)

	// Reloading replaces the set and resets progress.
	s.Cursor = 1
	s.Labels["red_car_001"] = []string{"red"}

	n, err = s.LoadDataset(makeZip(t, map[string]string{"other.png": "x"}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, s.Cursor)
	assert.Empty(t, s.Labels)
}

func TestSessionLoadDatasetErrors(t *testing.T) {
	s := NewSession()
	defer s.Close()

	var ae *ArchiveError
	_, err := s.LoadDataset([]byte("garbage"))
	require.Error(t, err)
	assert.True(t, errors.As(err, &ae))

	var ee *EmptyDatasetError
	_, err = s.LoadDataset(makeZip(t, map[string]string{"readme.md": "hi"}))
	require.Error(t, err)
	assert.True(t, errors.As(err, &ee))
}

func TestSessionAutoLabelAll(t *testing.T) {
	s := NewSession()
	defer s.Close()

	_, err := s.LoadDataset(makeZip(t, map[string]string{
		"red_car_001.png": "one",
		"blue_sky.png":    "two",
	}))
	require.NoError(t, err)

	s.SetVocabulary("red, car, blue")
	labels := s.AutoLabelAll()

	assert.Equal(t, []string{"red", "car"}, labels["red_car_001"])
	assert.Equal(t, []string{"blue"}, labels["blue_sky"])
	assert.Equal(t, labels, s.Labels)
}

func TestSessionManualFlow(t *testing.T) {
	s := NewSession()
	defer s.Close()

	_, err := s.LoadDataset(makeZip(t, map[string]string{
		"a.png": "one",
		"b.png": "two",
	}))
	require.NoError(t, err)
	s.SetVocabulary("cat, dog")

	img, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "a", img.Basename)

	done := s.LabelCurrent([]string{"cat"})
	assert.False(t, done)
	assert.False(t, s.Complete())

	img, ok = s.Current()
	require.True(t, ok)
	assert.Equal(t, "b", img.Basename)

	done = s.LabelCurrent([]string{})
	assert.True(t, done)
	assert.True(t, s.Complete())

	_, ok = s.Current()
	assert.False(t, ok)

	assert.Equal(t, []string{"cat"}, s.Labels["a"])
}

func TestSessionExportPairs(t *testing.T) {
	s := NewSession()
	defer s.Close()

	_, err := s.LoadDataset(makeZip(t, map[string]string{
		"a.png": "one",
		"b.png": "two",
	}))
	require.NoError(t, err)

	s.Labels = map[string][]string{"a": {"red", "car"}}

	pairs := s.ExportPairs()
	require.Len(t, pairs, 2)

	assert.Equal(t, "red, car", pairs[0].Keywords)
	assert.True(t, pairs[0].HasKeywords)
	assert.False(t, pairs[1].HasKeywords)

	bs, err := pairs[0].ImageBytes()
	require.NoError(t, err)
	assert.Equal(t, "one", string(bs))

	imagesZip, keywordsZip, err := Pack(pairs)
	require.NoError(t, err)
	assert.Len(t, zipEntries(t, imagesZip), 2)
	assert.Len(t, zipEntries(t, keywordsZip), 1)
}

func TestSessionIDsDistinct(t *testing.T) {
	a, b := NewSession(), NewSession()
	assert.NotEqual(t, a.ID, b.ID)
}
