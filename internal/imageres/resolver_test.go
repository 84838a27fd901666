package imageres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/retrieval"
)

// stubSearcher answers from a fixed query -> matches table, optionally with a
// per-call delay so completion order differs from submission order.
type stubSearcher struct {
	mu      sync.Mutex
	byQuery map[string][]retrieval.ImageMatch
	delays  map[string]time.Duration
	err     error
	calls   []string
}

func (s *stubSearcher) SearchImages(ctx context.Context, query string, limit int, threshold float64) ([]retrieval.ImageMatch, error) {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	d := s.delays[query]
	s.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.byQuery[query], nil
}

func productCls() classify.Classification {
	return classify.Classification{Type: classify.TypeProduct, NeedsProductImages: true}
}

func TestStrategyRecipePrefersGeneration(t *testing.T) {
	atoms := []content.Atom{
		{Type: content.AtomHeading, Text: "Green Smoothie"},
		{Type: content.AtomRecipeDetail, Recipe: &content.Recipe{Title: "Green Smoothie"}},
	}
	s := DecideStrategy(classify.Classification{Type: classify.TypeRecipe}, atoms)
	if s[RoleHero] != Generate || s[RoleRecipe] != Generate {
		t.Fatalf("recipe strategy must generate, got %v", s)
	}
}

func TestStrategyProductPrefersRetrieval(t *testing.T) {
	atoms := []content.Atom{
		{Type: content.AtomHeading},
		{Type: content.AtomComparison, Products: []content.Product{{Name: "A3500"}}},
		{Type: content.AtomProductDetail, Product: &content.Product{Name: "A3500"}},
	}
	s := DecideStrategy(productCls(), atoms)
	if s[RoleComparison] != RAG || s[RoleProduct] != RAG {
		t.Fatalf("product imagery must come from retrieval, got %v", s)
	}
	if s[RoleHero] != RAGOrGenerate {
		t.Fatalf("product hero should try retrieval first, got %v", s[RoleHero])
	}
}

func TestResolvePreservesItemOrder(t *testing.T) {
	items := []content.Feature{
		{Title: "feat0"}, {Title: "feat1"}, {Title: "feat2"},
		{Title: "feat3"}, {Title: "feat4"}, {Title: "feat5"},
	}
	byQuery := map[string][]retrieval.ImageMatch{}
	delays := map[string]time.Duration{}
	for i, it := range items {
		// Even indices match; earlier slots finish last.
		if i%2 == 0 {
			byQuery[it.Title] = []retrieval.ImageMatch{{URL: "https://img/" + it.Title, Score: 0.9}}
		}
		delays[it.Title] = time.Duration(len(items)-i) * 5 * time.Millisecond
	}
	r := &Resolver{Search: &stubSearcher{byQuery: byQuery, delays: delays}}

	atoms := []content.Atom{{Type: content.AtomFeatureSet, Items: items}}
	out := r.Resolve(context.Background(), atoms, content.Metadata{}, productCls(), nil)

	for i := range items {
		got := out.Atoms[0].Items[i].ImageURL
		if i%2 == 0 {
			if got != "https://img/feat"+string(rune('0'+i)) {
				t.Fatalf("item %d: expected match, got %q", i, got)
			}
		} else if got != "" {
			t.Fatalf("item %d: expected no match, got %q", i, got)
		}
	}
	if out.ImagesReady {
		t.Fatal("unmatched items must leave images pending")
	}
	if len(out.Remaining) != 3 {
		t.Fatalf("expected 3 remaining prompts, got %d", len(out.Remaining))
	}
	for _, rp := range out.Remaining {
		if rp.ItemIndex%2 == 0 {
			t.Fatalf("matched item %d leaked into remaining prompts", rp.ItemIndex)
		}
	}
}

func TestResolveBoostsExactModelCode(t *testing.T) {
	s := &stubSearcher{byQuery: map[string][]retrieval.ImageMatch{
		"E310 Explorian E310 blender": {
			{URL: "https://img/a3500.png", Alt: "Ascent A3500", Score: 0.97},
			{URL: "https://img/e310.png", Alt: "Explorian E310", Score: 0.91},
		},
	}}
	r := &Resolver{Search: s}
	atoms := []content.Atom{{Type: content.AtomComparison, Products: []content.Product{
		{Name: "E310 blender", ModelCode: "E310", Series: "Explorian"},
	}}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{}, productCls(), nil)
	if got := out.Atoms[0].Products[0].ImageURL; got != "https://img/e310.png" {
		t.Fatalf("exact model-code match must win over score, got %q", got)
	}
}

func TestResolvePrefersSourceImageMetadata(t *testing.T) {
	s := &stubSearcher{byQuery: map[string][]retrieval.ImageMatch{
		"E310 Explorian E310 blender": {{URL: "https://img/wrong.png", Score: 0.95}},
	}}
	r := &Resolver{Search: s}
	atoms := []content.Atom{{Type: content.AtomComparison, Products: []content.Product{
		{Name: "E310 blender", ModelCode: "E310", Series: "Explorian"},
		{Name: "A3500 blender", ModelCode: "A3500", Series: "Ascent"},
	}}}
	sources := []retrieval.SourceImageGroup{{
		Title: "Vitamix Explorian E310 Review",
		Images: []retrieval.SourceImage{
			{ID: "img-e310", URL: "https://kb/e310.png", Alt: "front view", Type: "product"},
		},
	}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{}, productCls(), sources)
	if got := out.Atoms[0].Products[0].ImageURL; got != "https://kb/e310.png" {
		t.Fatalf("source metadata match must win over search, got %q", got)
	}
	for _, q := range s.calls {
		if q == "E310 Explorian E310 blender" {
			t.Fatal("slot filled from source metadata must not hit the index")
		}
	}
	// The A3500 slot had no source match and still goes through search.
	if len(s.calls) != 1 || s.calls[0] != "A3500 Ascent A3500 blender" {
		t.Fatalf("unexpected searches: %v", s.calls)
	}
}

func TestResolveRecipeSkipsSearch(t *testing.T) {
	s := &stubSearcher{byQuery: map[string][]retrieval.ImageMatch{
		"Green Smoothie": {{URL: "https://img/smoothie.png", Score: 0.99}},
	}}
	r := &Resolver{Search: s}
	atoms := []content.Atom{{Type: content.AtomRecipeDetail, Recipe: &content.Recipe{Title: "Green Smoothie"}}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{}, classify.Classification{Type: classify.TypeRecipe}, nil)
	if len(s.calls) != 0 {
		t.Fatalf("recipe slots must not hit the index, searched %v", s.calls)
	}
	if len(out.Remaining) != 1 || out.Remaining[0].Role != RoleRecipe {
		t.Fatalf("expected one recipe generation prompt, got %v", out.Remaining)
	}
	if out.Atoms[0].Recipe.ImageURL != "" {
		t.Fatal("recipe image must stay empty until generation completes")
	}
}

func TestResolveDegradesOnSearchError(t *testing.T) {
	r := &Resolver{Search: &stubSearcher{err: errors.New("index down")}}
	atoms := []content.Atom{{Type: content.AtomProductDetail, Product: &content.Product{Name: "A3500", ModelCode: "A3500"}}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{}, productCls(), nil)
	if len(out.Remaining) != 1 || out.Remaining[0].Role != RoleProduct {
		t.Fatalf("failed search must fall through to generation, got %v", out.Remaining)
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	s := &stubSearcher{byQuery: map[string][]retrieval.ImageMatch{
		"A3500 Ascent A3500": {{URL: "https://img/a3500.png", Score: 0.9}},
	}}
	r := &Resolver{Search: s}
	atoms := []content.Atom{{Type: content.AtomComparison, Products: []content.Product{
		{Name: "A3500", ModelCode: "A3500", Series: "Ascent"},
	}}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{}, productCls(), nil)
	if out.Atoms[0].Products[0].ImageURL == "" {
		t.Fatal("expected a match")
	}
	if atoms[0].Products[0].ImageURL != "" {
		t.Fatal("input atoms must not be mutated")
	}
}

func TestResolveAllMatchedMarksReady(t *testing.T) {
	s := &stubSearcher{byQuery: map[string][]retrieval.ImageMatch{
		"Blender Guide": {{URL: "https://img/hero.png", Score: 0.8}},
	}}
	r := &Resolver{Search: s}
	atoms := []content.Atom{{Type: content.AtomHeading, Text: "Blender Guide"}}

	out := r.Resolve(context.Background(), atoms, content.Metadata{Title: "Blender Guide"}, productCls(), nil)
	if !out.ImagesReady || len(out.Remaining) != 0 {
		t.Fatalf("all slots matched, expected ready, got %+v", out)
	}
	if out.Atoms[0].ImageURL != "https://img/hero.png" {
		t.Fatalf("hero url not applied: %q", out.Atoms[0].ImageURL)
	}
}

func TestApplyGenerated(t *testing.T) {
	atoms := []content.Atom{{Type: content.AtomFeatureSet, Items: []content.Feature{{Title: "a"}, {Title: "b"}}}}
	rp := RemainingPrompt{Role: RoleFeature, AtomIndex: 0, ItemIndex: 1, Prompt: "x"}
	if err := ApplyGenerated(atoms, rp, "https://img/gen.png"); err != nil {
		t.Fatal(err)
	}
	if atoms[0].Items[1].ImageURL != "https://img/gen.png" {
		t.Fatal("generated url not written")
	}
	if err := ApplyGenerated(atoms, RemainingPrompt{AtomIndex: 9}, "u"); err == nil {
		t.Fatal("out-of-range atom index must error")
	}
}
