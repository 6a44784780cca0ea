package bildset

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeZip builds an in-memory zip from a name -> content map.
func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// zipEntries returns the entry names of a zip byte stream.
func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = buf.String()
	}
	return entries
}

func TestPack(t *testing.T) {
	pairs := []TrainingPair{
		{Basename: "a", ImageName: "a.png", Image: []byte("img-a"), Keywords: "red, car", HasKeywords: true},
		{Basename: "b", ImageName: "b.jpg", Image: []byte("img-b"), Keywords: "", HasKeywords: true},
		{Basename: "c", ImageName: "c.png", Image: []byte("img-c")},
	}

	images, keywords, err := Pack(pairs)
	require.NoError(t, err)

	ie := zipEntries(t, images)
	assert.Len(t, ie, 3)
	assert.Equal(t, "img-a", ie["a.png"])
	assert.Equal(t, "img-b", ie["b.jpg"])

	ke := zipEntries(t, keywords)
	assert.Len(t, ke, 2, "pairs without keyword text are omitted")
	assert.Equal(t, "red, car", ke["a.txt"])
	assert.Equal(t, "", ke["b.txt"])
	assert.NotContains(t, ke, "c.txt")
}

func TestPackAllKeywordsPresent(t *testing.T) {
	pairs := []TrainingPair{}
	for _, b := range []string{"x", "y", "z"} {
		pairs = append(pairs, TrainingPair{
			Basename: b, ImageName: b + ".png", Image: []byte(b), Keywords: b, HasKeywords: true,
		})
	}

	images, keywords, err := Pack(pairs)
	require.NoError(t, err)

	ie := zipEntries(t, images)
	ke := zipEntries(t, keywords)
	require.Len(t, ie, 3)
	require.Len(t, ke, 3)
	for name := range ie {
		base := name[:len(name)-len(".png")]
		assert.Contains(t, ke, base+".txt")
	}
}

func TestUnpackDataset(t *testing.T) {
	images := makeZip(t, map[string]string{
		"a.png": "img-a",
		"b.png": "img-b",
		"c.jpg": "img-c",
	})
	keywords := makeZip(t, map[string]string{
		"a.txt": "red",
		"c.txt": "blue, sky",
	})

	ds, err := UnpackDataset(images, keywords)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, []string{"a", "b", "c"}, ds.Basenames())
	assert.Equal(t, []string{"b"}, ds.Missing)

	byName := map[string]TrainingPair{}
	for _, p := range ds.Pairs {
		byName[p.Basename] = p
	}

	assert.True(t, byName["a"].HasKeywords)
	assert.Equal(t, "red", byName["a"].Keywords)
	assert.False(t, byName["b"].HasKeywords)
	assert.Equal(t, "blue, sky", byName["c"].Keywords)

	pairC := byName["c"]
	bs, err := pairC.ImageBytes()
	require.NoError(t, err)
	assert.Equal(t, "img-c", string(bs))
}

func TestUnpackDatasetNoKeywordsArchive(t *testing.T) {
	images := makeZip(t, map[string]string{"a.png": "x", "b.png": "y"})

	ds, err := UnpackDataset(images, nil)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, []string{"a", "b"}, ds.Missing)
}

func TestUnpackDatasetNestedDirs(t *testing.T) {
	images := makeZip(t, map[string]string{
		"photos/a.png":      "x",
		"photos/more/b.gif": "y",
		"readme.md":         "not an image",
	})

	ds, err := UnpackDataset(images, nil)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, []string{"a", "b"}, ds.Basenames())
}

func TestUnpackDatasetErrors(t *testing.T) {
	var ae *ArchiveError
	var ee *EmptyDatasetError

	t.Run("zero-byte archive", func(t *testing.T) {
		_, err := UnpackDataset([]byte{}, nil)
		require.Error(t, err)
		assert.True(t, errors.As(err, &ae))
	})

	t.Run("non-archive file", func(t *testing.T) {
		_, err := UnpackDataset([]byte("this is not a zip"), nil)
		require.Error(t, err)
		assert.True(t, errors.As(err, &ae))
	})

	t.Run("no images", func(t *testing.T) {
		_, err := UnpackDataset(makeZip(t, map[string]string{"notes.txt": "hi"}), nil)
		require.Error(t, err)
		assert.True(t, errors.As(err, &ee))
	})

	t.Run("duplicate basenames", func(t *testing.T) {
		_, err := UnpackDataset(makeZip(t, map[string]string{
			"a.png": "x",
			"a.jpg": "y",
		}), nil)
		require.Error(t, err)
		assert.True(t, errors.As(err, &ae))
	})

	t.Run("escaping entry", func(t *testing.T) {
		err := Unpack(makeZip(t, map[string]string{"../evil.png": "x"}), t.TempDir())
		require.Error(t, err)
		assert.True(t, errors.As(err, &ae))
	})
}

func TestPackUnpackRoundTrip(t *testing.T) {
	images := makeZip(t, map[string]string{"img1.png": "one", "img2.png": "two"})
	keywords := makeZip(t, map[string]string{"img1.txt": "cat"})

	ds, err := UnpackDataset(images, keywords)
	require.NoError(t, err)
	defer ds.Close()

	imagesZip, keywordsZip, err := Pack(ds.Pairs)
	require.NoError(t, err)

	assert.Len(t, zipEntries(t, imagesZip), 2)
	ke := zipEntries(t, keywordsZip)
	assert.Len(t, ke, 1)
	assert.Equal(t, "cat", ke["img1.txt"])
}
