package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchRequest struct {
	DocumentID string `json:"documentId" validate:"required,docid"`
	Query      string `json:"query" validate:"required,trimmed"`
	TopK       int    `json:"topK" validate:"gte=1,lte=50"`
}

type ingestRequest struct {
	Path string `json:"path" validate:"required,pdfpath,nowhitespace"`
}

func TestStruct(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		input      interface{}
		wantFields []string
	}{
		{name: "valid", input: searchRequest{DocumentID: "invoice-2024.v1", Query: "total", TopK: 5}},
		{name: "missing fields", input: searchRequest{TopK: 5}, wantFields: []string{"documentId", "query"}},
		{name: "quoted doc id", input: searchRequest{DocumentID: `a" || id != "`, Query: "q", TopK: 5}, wantFields: []string{"documentId"}},
		{name: "untrimmed query", input: searchRequest{DocumentID: "d", Query: " q ", TopK: 5}, wantFields: []string{"query"}},
		{name: "topK out of range", input: searchRequest{DocumentID: "d", Query: "q", TopK: 51}, wantFields: []string{"topK"}},
		{name: "pdf path", input: ingestRequest{Path: "/tmp/report.PDF"}},
		{name: "not a pdf", input: ingestRequest{Path: "/tmp/report.txt"}, wantFields: []string{"path"}},
		{name: "path with space", input: ingestRequest{Path: "/tmp/my report.pdf"}, wantFields: []string{"path"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			verrs, ok := err.(*ValidationErrors)
			require.True(t, ok)
			assert.ElementsMatch(t, tt.wantFields, verrs.Fields())
		})
	}
}

func TestStructWithLang(t *testing.T) {
	v := New()

	errs := v.StructWithLang(ingestRequest{Path: "a.txt"}, LangZH)
	require.NotNil(t, errs)
	assert.Contains(t, errs.First(), ".pdf")

	errs = v.StructWithLang(ingestRequest{Path: "a.txt"}, "fr")
	require.NotNil(t, errs)
	assert.Equal(t, "path must be a path to a .pdf file", errs.First())
}

func TestIsDocID(t *testing.T) {
	assert.True(t, IsDocID("doc_1"))
	assert.False(t, IsDocID("-leading"))
	assert.False(t, IsDocID(""))
	assert.NoError(t, Global().Var("abc", "docid"))
}
