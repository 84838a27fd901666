package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"pageforge/internal/classify"
	"pageforge/internal/page"
)

// Result is what retrieval hands to generation: a formatted grounding-context
// block plus the raw source ids and candidate product images.
type Result struct {
	Context        string                  `json:"context"`
	SourceIDs      []string                `json:"source_ids"`
	SourceImages   []SourceImageGroup      `json:"source_images"`
	Classification classify.Classification `json:"classification"`
	Cached         bool                    `json:"cached"`
}

// Params tune search per content category.
type Params struct {
	TopK      int
	Threshold float64
}

// ParamsFor returns the category-tuned search parameters. Product queries dig
// deeper with a stricter cutoff; general queries cast a wider, looser net.
func ParamsFor(t classify.ContentType) Params {
	switch t {
	case classify.TypeProduct:
		return Params{TopK: 8, Threshold: 0.55}
	case classify.TypeRecipe:
		return Params{TopK: 5, Threshold: 0.50}
	case classify.TypeGuide:
		return Params{TopK: 6, Threshold: 0.50}
	default:
		return Params{TopK: 5, Threshold: 0.45}
	}
}

// Embedder mirrors llm.Embedder without importing it, keeping retrieval free
// of the llm package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds the query, searches the vector index, joins matches
// against source metadata and memoizes the result. All failures degrade to an
// empty context; Retrieve never returns an error.
type Retriever struct {
	Embedder   Embedder
	Index      VectorIndex
	Sources    SourceStore
	Cache      *Cache
	EmbedWait  time.Duration
	SearchWait time.Duration
}

func (r *Retriever) Retrieve(ctx context.Context, query string) Result {
	cls := classify.Classify(query)
	key := page.HashQuery(query)

	if entry, ok := r.Cache.Get(key); ok {
		return Result{
			Context:        entry.Context,
			SourceIDs:      entry.SourceIDs,
			SourceImages:   entry.SourceImages,
			Classification: cls,
			Cached:         true,
		}
	}

	entry, err := r.search(ctx, query, cls)
	if err != nil {
		// Degrade: grounding quality drops but the request continues.
		log.Printf("retrieval: degraded to empty context: %v", err)
		return Result{Classification: cls}
	}
	// Skip caching empty results so transient index outages do not poison the
	// cache for a full TTL.
	if entry.Context != "" {
		r.Cache.Set(key, entry)
	}
	return Result{
		Context:        entry.Context,
		SourceIDs:      entry.SourceIDs,
		SourceImages:   entry.SourceImages,
		Classification: cls,
	}
}

func (r *Retriever) search(ctx context.Context, query string, cls classify.Classification) (CacheEntry, error) {
	params := ParamsFor(cls.Type)

	embedCtx, cancel := withWait(ctx, r.EmbedWait)
	vector, err := r.Embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return CacheEntry{}, fmt.Errorf("embed query: %w", err)
	}

	searchCtx, cancel := withWait(ctx, r.SearchWait)
	hits, err := r.Index.Query(searchCtx, vector, params.TopK, map[string]string{"kind": "source"})
	cancel()
	if err != nil {
		return CacheEntry{}, fmt.Errorf("vector search: %w", err)
	}

	// Deduplicate by source id, keeping each source's best score.
	bestScore := map[string]float64{}
	var sourceIDs []string
	for _, h := range hits {
		if h.Score < params.Threshold {
			continue
		}
		id := h.Metadata["source_id"]
		if id == "" {
			id = h.ID
		}
		if prev, seen := bestScore[id]; !seen {
			bestScore[id] = h.Score
			sourceIDs = append(sourceIDs, id)
		} else if h.Score > prev {
			bestScore[id] = h.Score
		}
	}
	if len(sourceIDs) == 0 {
		return CacheEntry{}, nil
	}

	records, err := r.Sources.GetByIDs(ctx, sourceIDs)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("fetch sources: %w", err)
	}

	return CacheEntry{
		Context:      FormatContext(records, bestScore),
		SourceIDs:    sourceIDs,
		SourceImages: collectProductImages(records),
	}, nil
}

// FormatContext renders matched sources into the single grounding block the
// generator receives: title, relevance percentage, body text and numeric
// metadata per source.
func FormatContext(records []SourceRecord, scores map[string]float64) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s (relevance %.0f%%)\n", i+1, rec.Title, scores[rec.ID]*100)
		if rec.Content != "" {
			b.WriteString(rec.Content)
			b.WriteString("\n")
		}
		if rec.URL != "" {
			fmt.Fprintf(&b, "source: %s\n", rec.URL)
		}
		if len(rec.Numbers) > 0 {
			keys := make([]string, 0, len(rec.Numbers))
			for k := range rec.Numbers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s: %g", k, rec.Numbers[k]))
			}
			b.WriteString(strings.Join(parts, " | "))
		}
	}
	return strings.TrimSpace(b.String())
}

// collectProductImages gathers each source's product-typed images keyed by the
// source title, for reuse by the hybrid image resolver.
func collectProductImages(records []SourceRecord) []SourceImageGroup {
	var groups []SourceImageGroup
	for _, rec := range records {
		var imgs []SourceImage
		for _, img := range rec.Images {
			if img.Type == "product" && img.URL != "" {
				imgs = append(imgs, img)
			}
		}
		if len(imgs) > 0 {
			groups = append(groups, SourceImageGroup{Title: rec.Title, Images: imgs})
		}
	}
	return groups
}

// SearchImages finds candidate images for a role-specific query string. Used
// by the hybrid image resolver; per-item failures are the caller's concern.
func (r *Retriever) SearchImages(ctx context.Context, query string, limit int, threshold float64) ([]ImageMatch, error) {
	embedCtx, cancel := withWait(ctx, r.EmbedWait)
	vector, err := r.Embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed image query: %w", err)
	}

	searchCtx, cancel := withWait(ctx, r.SearchWait)
	hits, err := r.Index.Query(searchCtx, vector, limit, map[string]string{"kind": "image"})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}

	var matches []ImageMatch
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		matches = append(matches, ImageMatch{
			ID:      h.ID,
			URL:     h.Metadata["url"],
			Alt:     h.Metadata["alt"],
			Type:    h.Metadata["type"],
			Context: h.Metadata["context"],
			Score:   h.Score,
		})
	}
	return matches, nil
}

func withWait(ctx context.Context, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, wait)
}
