package cbz

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCBZ(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.cbz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0}

func TestProcess_ExtractsMetadataFromComicInfo(t *testing.T) {
	path := buildCBZ(t, map[string][]byte{
		"001.jpg": jpegHeader,
		"002.jpg": jpegHeader,
		"ComicInfo.xml": []byte(`<?xml version="1.0"?>
<ComicInfo>
  <Title>Test Comic</Title>
  <Number>7</Number>
  <Writer>Alice, Bob</Writer>
  <Genre>Action, Drama</Genre>
  <Publisher>Acme</Publisher>
  <AgeRating>16+</AgeRating>
</ComicInfo>`),
	})

	proc := Processor{}
	result, err := proc.Process(path)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "Test Comic", result.Metadata.Title)
	require.NotNil(t, result.Metadata.Number)
	assert.Equal(t, 7.0, *result.Metadata.Number)
	assert.Equal(t, []string{"Alice", "Bob"}, result.Metadata.Writers)
	assert.Equal(t, []string{"Action", "Drama"}, result.Metadata.Genres)
	assert.Equal(t, "Acme", result.Metadata.Publisher)
	require.NotNil(t, result.Metadata.AgeRating)
	assert.Equal(t, 16, *result.Metadata.AgeRating)
}

func TestProcess_NoComicInfo(t *testing.T) {
	path := buildCBZ(t, map[string][]byte{
		"001.jpg": jpegHeader,
	})

	proc := Processor{}
	result, err := proc.Process(path)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, "", result.Metadata.Title)
}

func TestGetPage_PrefersNamedCoverFile(t *testing.T) {
	path := buildCBZ(t, map[string][]byte{
		"001.jpg":   jpegHeader,
		"002.jpg":   jpegHeader,
		"cover.jpg": jpegHeader,
	})

	proc := Processor{}
	contentType, data, err := proc.GetPage(path, 1)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.Equal(t, jpegHeader, data)
}

func TestGetPage_CoverSwapKeepsPagesBijective(t *testing.T) {
	pageA := append([]byte{}, jpegHeader...)
	pageA = append(pageA, 'A')
	pageB := append([]byte{}, jpegHeader...)
	pageB = append(pageB, 'B')
	coverData := append([]byte{}, jpegHeader...)
	coverData = append(coverData, 'C')

	// "cover.jpg" sorts after "001.jpg" and "002.jpg"; page 1 must serve
	// it, and pages 2 and 3 must still cover both remaining images exactly
	// once.
	path := buildCBZ(t, map[string][]byte{
		"001.jpg":   pageA,
		"002.jpg":   pageB,
		"cover.jpg": coverData,
	})

	proc := Processor{}
	_, got1, err := proc.GetPage(path, 1)
	require.NoError(t, err)
	_, got2, err := proc.GetPage(path, 2)
	require.NoError(t, err)
	_, got3, err := proc.GetPage(path, 3)
	require.NoError(t, err)

	assert.Equal(t, coverData, got1)
	assert.Equal(t, pageA, got2)
	assert.Equal(t, pageB, got3)

	_, _, err = proc.GetPage(path, 4)
	require.Error(t, err)
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestGetPageContentTypes_MatchesGetPage(t *testing.T) {
	// A PNG cover that sorts last: both methods must agree that page 1 is
	// the PNG and the JPEGs follow.
	path := buildCBZ(t, map[string][]byte{
		"001.jpg":   jpegHeader,
		"002.jpg":   jpegHeader,
		"cover.png": pngHeader,
	})

	proc := Processor{}
	types, err := proc.GetPageContentTypes(path)
	require.NoError(t, err)
	require.Len(t, types, 3)

	for i, want := range types {
		got, _, err := proc.GetPage(path, i+1)
		require.NoError(t, err)
		assert.Equal(t, want, got, "page %d", i+1)
	}
	assert.Equal(t, "image/png", types[0])
	assert.Equal(t, "image/jpeg", types[1])
}

func TestGetPage_SkipsMacOSXMetadata(t *testing.T) {
	path := buildCBZ(t, map[string][]byte{
		"__MACOSX/001.jpg": jpegHeader,
		"001.jpg":          jpegHeader,
		"002.jpg":          jpegHeader,
	})

	proc := Processor{}
	types, err := proc.GetPageContentTypes(path)
	require.NoError(t, err)
	assert.Len(t, types, 2)
}

func TestGetPage_OutOfBounds(t *testing.T) {
	path := buildCBZ(t, map[string][]byte{"001.jpg": jpegHeader})

	proc := Processor{}
	_, _, err := proc.GetPage(path, 5)
	require.Error(t, err)
}

func TestExtractSeriesNumberFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     *float64
	}{
		{"Dune v7.cbz", ptr(7)},
		{"Dune #7.5.cbz", ptr(7.5)},
		{"Dune (2020) 3.cbz", ptr(3)},
		{"Dune.cbz", nil},
	}
	for _, tt := range tests {
		got := ExtractSeriesNumberFromFilename(tt.filename)
		if tt.want == nil {
			assert.Nil(t, got, tt.filename)
		} else {
			require.NotNil(t, got, tt.filename)
			assert.Equal(t, *tt.want, *got, tt.filename)
		}
	}
}

func ptr(f float64) *float64 { return &f }
