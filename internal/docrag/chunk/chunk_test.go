package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%02d", i)
	}
	return strings.Join(parts, " ")
}

func TestNewSplitterValidation(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)
	_, err = NewSplitter(100, 100)
	assert.Error(t, err)
	_, err = NewSplitter(100, -1)
	assert.Error(t, err)

	s, err := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Equal(t, 1000, s.ChunkSize())
	assert.Equal(t, 200, s.ChunkOverlap())
}

func TestSplitShortText(t *testing.T) {
	s, _ := NewSplitter(100, 10)
	assert.Equal(t, []string{"hello world"}, s.Split("  hello world \n"))
	assert.Empty(t, s.Split(""))
}

func TestSplitWindowsOverlap(t *testing.T) {
	s, _ := NewSplitter(20, 8)
	chunks := s.Split(words(10))
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "w00 w01 w02 w03 w04", chunks[0])
	assert.Equal(t, "w03 w04 w05 w06 w07", chunks[1])
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s, _ := NewSplitter(50, 10)
	text := words(200) + "\n\n" + words(50) + ".\nTail line. End"
	for _, c := range s.Split(text) {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 50, c)
	}
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	s, _ := NewSplitter(10, 2)
	assert.Equal(t,
		[]string{"abcdefghij", "ijklmnopqr", "qrstuvwxy"},
		s.Split("abcdefghijklmnopqrstuvwxy"))
}

func TestSplitPrefersParagraphs(t *testing.T) {
	s, _ := NewSplitter(12, 0)
	assert.Equal(t, []string{"para one.", "para two."}, s.Split("para one.\n\npara two."))
}

func TestSplitCountsRunes(t *testing.T) {
	s, _ := NewSplitter(4, 0)
	assert.Equal(t, []string{"₹₹₹₹", "₹₹"}, s.Split("₹₹₹₹₹₹"))
}

func TestSplitKeepingSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", " b", " c"}, splitKeepingSeparator("a b c", " "))
	assert.Equal(t, []string{"a", "\n", "\n\nb"}, splitKeepingSeparator("a\n\n\nb", "\n\n"))
	assert.Equal(t, []string{"x", "y"}, splitKeepingSeparator("xy", ""))
}

func TestChunkAssignsGlobalIndices(t *testing.T) {
	s, _ := NewSplitter(20, 8)
	c := NewChunker(s)

	pages := []model.PageRecord{
		{Content: words(10), Page: 1, ContentType: model.ContentText, Source: "/tmp/a.pdf"},
		{Content: "   ", Page: 2, ContentType: model.ContentText},
		{Content: "scanned page", Page: 3, ContentType: model.ContentOCR, OCRConfidence: 87.5},
	}
	chunks, err := c.Chunk("doc-1", pages)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, model.ChunkID(i), ch.ID)
		assert.Equal(t, "doc-1", ch.Metadata.DocumentID)
		assert.NotEmpty(t, ch.Content)
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, "scanned page", last.Content)
	assert.Equal(t, 3, last.Metadata.Page)
	assert.Equal(t, model.ContentOCR, last.Metadata.ContentType)
	assert.Equal(t, 87.5, last.Metadata.OCRConfidence)
	assert.Equal(t, model.UnknownSource, last.Metadata.Source)
	assert.Equal(t, "/tmp/a.pdf", chunks[0].Metadata.Source)
	assert.Equal(t, fmt.Sprintf("doc-1-chunk_%d", len(chunks)-1), last.StoreID())
}

func TestChunkEmptyDocument(t *testing.T) {
	s, _ := NewSplitter(20, 8)
	_, err := NewChunker(s).Chunk("doc-1", []model.PageRecord{{Content: " \n "}})
	assert.True(t, errors.Is(err, errors.ErrNoContent))
}

func TestChunkIsRepeatable(t *testing.T) {
	s, _ := NewSplitter(40, 10)
	c := NewChunker(s)
	pages := []model.PageRecord{
		{Content: words(30) + "\n\nSecond paragraph. " + words(12), Page: 1, ContentType: model.ContentText, Source: "a.pdf"},
		{Content: "Scanned table: 12 | 34 | 56", Page: 2, ContentType: model.ContentOCR, OCRConfidence: 71, Source: "a.pdf"},
		{Content: words(25), Page: 3, ContentType: model.ContentMixed, Source: "a.pdf"},
	}

	first, err := c.Chunk("doc-1", pages)
	require.NoError(t, err)
	for round := 0; round < 3; round++ {
		again, err := c.Chunk("doc-1", pages)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	lastPage := 0
	for i, ch := range first {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.LessOrEqual(t, utf8.RuneCountInString(ch.Content), 40, ch.Content)
		assert.GreaterOrEqual(t, ch.Metadata.Page, lastPage, "chunks follow page order")
		lastPage = ch.Metadata.Page
	}
}
