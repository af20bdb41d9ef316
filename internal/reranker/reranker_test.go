package reranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(docs []ScoredDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestLexicalRerank(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		docs       []Document
		minOverlap float64
		topK       int
		want       []string
	}{
		{
			name:  "no documents",
			query: "oven not heating",
			want:  []string{},
		},
		{
			name:  "orders by overlap",
			query: "oven not heating, fan noise",
			docs: []Document{
				{ID: "d1", Content: "door gasket torn"},
				{ID: "d2", Content: "fan noise from convection motor"},
				{ID: "d3", Content: "oven heating element broken, fan noise"},
			},
			want: []string{"d3", "d2"},
		},
		{
			name:  "threshold drops weak matches",
			query: "ice maker leaking water on floor",
			docs: []Document{
				{ID: "d1", Content: "water on floor below ice maker"},
				{ID: "d2", Content: "floor tiles cracked"},
			},
			minOverlap: 0.5,
			want:       []string{"d1"},
		},
		{
			name:  "prior breaks overlap ties",
			query: "compressor clicking",
			docs: []Document{
				{ID: "d1", Content: "compressor clicking", Prior: 0},
				{ID: "d2", Content: "compressor clicking", Prior: 1},
			},
			want: []string{"d2", "d1"},
		},
		{
			name:  "topK limits",
			query: "error code e34",
			docs: []Document{
				{ID: "d1", Content: "error e34"},
				{ID: "d2", Content: "error code e34"},
				{ID: "d3", Content: "code"},
			},
			topK: 1,
			want: []string{"d2"},
		},
		{
			name:  "stopword-only query",
			query: "it is not the",
			docs:  []Document{{ID: "d1", Content: "it is not the"}},
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLexical(tt.minOverlap).Rerank(context.Background(), tt.query, tt.docs, tt.topK)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestRerankNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := NewLexical(0).Rerank(nil, "q", nil, 0)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"oven", "heating", "e34", "über"}, Terms("The OVEN is heating; E34 über oven"))
	assert.Empty(t, Terms("a i"))
}
