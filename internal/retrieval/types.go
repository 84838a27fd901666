// Package retrieval grounds page generation: it embeds queries, searches the
// vector index, joins matches against source metadata and memoizes the result
// per normalized query. Retrieval failure never aborts a request; it only
// degrades grounding quality.
package retrieval

import "context"

// SourceImage is a photo associated with a knowledge-base source.
type SourceImage struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Alt     string `json:"alt,omitempty"`
	Type    string `json:"type,omitempty"`    // product, recipe, lifestyle
	Context string `json:"context,omitempty"` // surrounding text the image appeared with
}

// SourceRecord is the knowledge-base document a vector match points back to.
type SourceRecord struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	URL         string             `json:"url,omitempty"`
	ContentType string             `json:"content_type,omitempty"`
	Content     string             `json:"content,omitempty"`
	Numbers     map[string]float64 `json:"numbers,omitempty"` // price, rating, review counts
	Images      []SourceImage      `json:"images,omitempty"`
}

// SourceImageGroup collects a source's candidate product images keyed by its
// title, for reuse by the hybrid image resolver.
type SourceImageGroup struct {
	Title  string        `json:"title"`
	Images []SourceImage `json:"images"`
}

// ImageMatch is a scored image candidate from similarity search or direct
// metadata lookup. Only matches at or above the caller's threshold are valid.
type ImageMatch struct {
	ID      string  `json:"id"`
	URL     string  `json:"url"`
	Alt     string  `json:"alt,omitempty"`
	Type    string  `json:"type,omitempty"`
	Context string  `json:"context,omitempty"`
	Score   float64 `json:"score"`
}

// VectorRecord is an index entry: an embedding plus flat string metadata.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata map[string]string
}

// SearchHit is one vector-index result.
type SearchHit struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorIndex is the similarity-search collaborator.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]SearchHit, error)
	Upsert(ctx context.Context, records []VectorRecord) error
}

// SourceStore resolves source ids to their metadata records.
type SourceStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]SourceRecord, error)
	Put(ctx context.Context, records []SourceRecord) error
}

// ImageSearcher finds candidate images for a role-specific query string.
// Implemented by Retriever; consumed by the hybrid image resolver.
type ImageSearcher interface {
	SearchImages(ctx context.Context, query string, limit int, threshold float64) ([]ImageMatch, error)
}
