package chunk

import (
	"strings"

	"github.com/kart-io/docrag/internal/docrag/model"
	"github.com/kart-io/docrag/pkg/utils/errors"
)

// Chunker turns the pages of one document into indexed chunks.
type Chunker struct {
	splitter *Splitter
}

// NewChunker creates a Chunker using splitter.
func NewChunker(splitter *Splitter) *Chunker {
	return &Chunker{splitter: splitter}
}

// Chunk splits every page in order. ChunkIndex runs 0..N-1 across the whole
// document in emission order; windows that are blank after trimming are
// dropped without consuming an index. Zero chunks is ErrNoContent.
func (c *Chunker) Chunk(documentID string, pages []model.PageRecord) ([]model.DocumentChunk, error) {
	var chunks []model.DocumentChunk
	for _, page := range pages {
		source := page.Source
		if source == "" {
			source = model.UnknownSource
		}

		for _, window := range c.splitter.Split(page.Content) {
			content := strings.TrimSpace(window)
			if content == "" {
				continue
			}
			idx := len(chunks)
			chunks = append(chunks, model.DocumentChunk{
				ID:      model.ChunkID(idx),
				Content: content,
				Metadata: model.ChunkMetadata{
					Source:        source,
					Page:          page.Page,
					ChunkIndex:    idx,
					ContentType:   page.ContentType,
					OCRConfidence: page.OCRConfidence,
					DocumentID:    documentID,
				},
			})
		}
	}

	if len(chunks) == 0 {
		return nil, errors.ErrNoContent.WithMessagef("no content extracted from document %s", documentID)
	}
	return chunks, nil
}
