// Package model defines the document chunk, retrieval and agent result types
// shared by the docrag pipeline.
package model

import "fmt"

// ContentType records where a chunk's text came from.
type ContentType string

const (
	// ContentText is text extracted from the PDF text layer.
	ContentText ContentType = "text"
	// ContentOCR is text recognised from the rendered page image only.
	ContentOCR ContentType = "ocr"
	// ContentMixed is native text with an appended OCR section.
	ContentMixed ContentType = "mixed"
)

// Valid reports whether t is one of the known content types.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentOCR, ContentMixed:
		return true
	}
	return false
}

// UnknownSource is recorded when a page carries no source path.
const UnknownSource = "unknown"

// PageRecord is one fused page emitted by extraction.
type PageRecord struct {
	Content       string      `json:"content"`
	Page          int         `json:"page"`
	ContentType   ContentType `json:"content_type"`
	OCRConfidence float64     `json:"ocr_confidence"`
	Source        string      `json:"source"`
}

// ChunkMetadata is stored next to every chunk vector.
type ChunkMetadata struct {
	Source        string      `json:"source"`
	Page          int         `json:"page"`
	ChunkIndex    int         `json:"chunk_index"`
	ContentType   ContentType `json:"content_type"`
	OCRConfidence float64     `json:"ocr_confidence"`
	DocumentID    string      `json:"document_id,omitempty"`
}

// DocumentChunk is one indexed piece of a document.
type DocumentChunk struct {
	// ID is chunk_<n>, unique within its document.
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkID returns the in-document id for chunk index n.
func ChunkID(n int) string {
	return fmt.Sprintf("chunk_%d", n)
}

// StoreID returns the collection-wide id <documentId>-chunk_<n>.
func (c DocumentChunk) StoreID() string {
	return StoreID(c.Metadata.DocumentID, c.Metadata.ChunkIndex)
}

// StoreID builds the collection-wide id for a document's chunk index.
func StoreID(documentID string, chunkIndex int) string {
	return documentID + "-" + ChunkID(chunkIndex)
}
