package cbr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverIndex_PrefersNamedCoverFile(t *testing.T) {
	entries := []entry{
		{name: "001.jpg"},
		{name: "cover.jpg"},
		{name: "002.jpg"},
	}
	assert.Equal(t, 1, coverIndex(entries))
}

func TestCoverIndex_FallsBackToFirstEntry(t *testing.T) {
	entries := []entry{
		{name: "001.jpg"},
		{name: "002.jpg"},
	}
	assert.Equal(t, 0, coverIndex(entries))
}

func TestPageOrder_MovesCoverToFrontWithoutDroppingPages(t *testing.T) {
	entries := []entry{
		{name: "001.jpg", data: []byte("a")},
		{name: "cover.jpg", data: []byte("c")},
		{name: "002.jpg", data: []byte("b")},
	}

	pages := pageOrder(entries)
	require.Len(t, pages, 3)
	assert.Equal(t, "cover.jpg", pages[0].name)
	assert.Equal(t, "001.jpg", pages[1].name)
	assert.Equal(t, "002.jpg", pages[2].name)
}

func TestPageOrder_NoCoverKeepsLexicographicOrder(t *testing.T) {
	entries := []entry{
		{name: "001.jpg"},
		{name: "002.jpg"},
	}
	assert.Equal(t, entries, pageOrder(entries))
}

func TestHash_FileNotFound(t *testing.T) {
	_, err := Processor{}.Hash("/nonexistent/book.cbr")
	require.Error(t, err)
}

func TestProcess_FileNotFound(t *testing.T) {
	_, err := Processor{}.Process("/nonexistent/book.cbr")
	require.Error(t, err)
}
