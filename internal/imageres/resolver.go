package imageres

import (
	"context"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/retrieval"
)

const (
	defaultThreshold   = 0.55
	defaultSearchLimit = 5
	maxParallelSearch  = 4
)

// RemainingPrompt describes an image slot that retrieval could not fill and
// that the asynchronous synthesizer should generate. ItemIndex is -1 for
// single-image roles.
type RemainingPrompt struct {
	Role      Role   `json:"role"`
	AtomIndex int    `json:"atom_index"`
	ItemIndex int    `json:"item_index"`
	Prompt    string `json:"prompt"`
}

// Outcome is the result of a resolve pass: the atoms with retrieved image
// URLs filled in, the prompts still owed to generation, and whether the page
// can ship with images_ready already true.
type Outcome struct {
	Atoms       []content.Atom
	Remaining   []RemainingPrompt
	ImagesReady bool
}

// Resolver fills image slots from the retrieval index where the strategy
// allows it and queues everything else for generation. Search failures are
// degradable: a failed slot simply falls through to the generation queue.
type Resolver struct {
	Search    retrieval.ImageSearcher
	Threshold float64
	Limit     int
}

// slot is one image-bearing position in the atom tree.
type slot struct {
	role      Role
	atomIndex int
	itemIndex int
	query     string
	prompt    string
	modelCode string
}

// Resolve fills image slots, preferring a direct metadata match against the
// retrieved sources' own product photos over a vector search. sourceImages may
// be nil.
func (r *Resolver) Resolve(ctx context.Context, atoms []content.Atom, meta content.Metadata, cls classify.Classification, sourceImages []retrieval.SourceImageGroup) Outcome {
	strategy := DecideStrategy(cls, atoms)
	out := CloneAtoms(atoms)
	slots := collectSlots(out, meta)

	matches := r.searchAll(ctx, slots, strategy, sourceImages)

	var remaining []RemainingPrompt
	for i, sl := range slots {
		if m := matches[i]; m != nil {
			setImageURL(out, sl, m.URL)
			continue
		}
		remaining = append(remaining, RemainingPrompt{
			Role:      sl.role,
			AtomIndex: sl.atomIndex,
			ItemIndex: sl.itemIndex,
			Prompt:    sl.prompt,
		})
	}
	return Outcome{Atoms: out, Remaining: remaining, ImagesReady: len(remaining) == 0}
}

// searchAll fills one match per retrieval-eligible slot: first from the
// sources' own image metadata, then via bounded-parallelism vector search.
// Each result is written back at the slot's own index so the output order
// never depends on search completion order.
func (r *Resolver) searchAll(ctx context.Context, slots []slot, strategy Strategy, sourceImages []retrieval.SourceImageGroup) []*retrieval.ImageMatch {
	matches := make([]*retrieval.ImageMatch, len(slots))
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	limit := r.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSearch)
	for i, sl := range slots {
		if !strategy[sl.role].wantsSearch() || sl.query == "" {
			continue
		}
		if direct := matchFromSources(sl, sourceImages); direct != nil {
			matches[i] = direct
			continue
		}
		if r.Search == nil {
			continue
		}
		i, sl := i, sl
		g.Go(func() error {
			found, err := r.Search.SearchImages(gctx, sl.query, limit, threshold)
			if err != nil {
				log.Printf("imageres: search %s[%d]: %v", sl.role, sl.atomIndex, err)
				return nil
			}
			if best := pickBest(found, sl.modelCode); best != nil {
				matches[i] = best
			}
			return nil
		})
	}
	_ = g.Wait()
	return matches
}

// matchFromSources looks for the slot's product among the images the matched
// knowledge-base sources carry. A source that names the exact model code in
// its title (or on the image itself) is authoritative, no search needed.
func matchFromSources(sl slot, groups []retrieval.SourceImageGroup) *retrieval.ImageMatch {
	if sl.modelCode == "" {
		return nil
	}
	needle := strings.ToUpper(sl.modelCode)
	for _, g := range groups {
		titleHit := strings.Contains(strings.ToUpper(g.Title), needle)
		for _, img := range g.Images {
			if img.URL == "" {
				continue
			}
			if titleHit || strings.Contains(strings.ToUpper(img.Alt+" "+img.Context), needle) {
				return &retrieval.ImageMatch{
					ID:      img.ID,
					URL:     img.URL,
					Alt:     img.Alt,
					Type:    img.Type,
					Context: img.Context,
					Score:   1,
				}
			}
		}
	}
	return nil
}

// pickBest prefers an exact model-code mention over raw similarity: a photo
// of the right product beats a slightly closer photo of the wrong one.
func pickBest(found []retrieval.ImageMatch, modelCode string) *retrieval.ImageMatch {
	if len(found) == 0 {
		return nil
	}
	if modelCode != "" {
		needle := strings.ToUpper(modelCode)
		for i := range found {
			hay := strings.ToUpper(found[i].Alt + " " + found[i].Context)
			if strings.Contains(hay, needle) {
				return &found[i]
			}
		}
	}
	return &found[0]
}

// collectSlots walks the atoms and enumerates every image-bearing position
// with its search query and fallback generation prompt.
func collectSlots(atoms []content.Atom, meta content.Metadata) []slot {
	var slots []slot

	heroPrompt := meta.HeroPrompt
	if heroPrompt == "" {
		heroPrompt = "Hero image for a page about " + meta.Title
	}
	if i := content.FindFirst(atoms, content.AtomHeading); i >= 0 {
		slots = append(slots, slot{
			role: RoleHero, atomIndex: i, itemIndex: -1,
			query:  meta.Title,
			prompt: heroPrompt,
		})
	}

	for ai := range atoms {
		a := &atoms[ai]
		switch a.Type {
		case content.AtomFeatureSet:
			for ii, item := range a.Items {
				prompt := item.ImagePrompt
				if prompt == "" {
					prompt = "Illustration of " + item.Title
				}
				slots = append(slots, slot{
					role: RoleFeature, atomIndex: ai, itemIndex: ii,
					query:  item.Title,
					prompt: prompt,
				})
			}
		case content.AtomComparison:
			for ii, p := range a.Products {
				slots = append(slots, slot{
					role: RoleComparison, atomIndex: ai, itemIndex: ii,
					query:     productQuery(p),
					prompt:    "Product photo of " + p.Name,
					modelCode: p.ModelCode,
				})
			}
		case content.AtomInteractiveGuide:
			if a.Guide == nil {
				continue
			}
			for ii, pick := range a.Guide.Picks {
				slots = append(slots, slot{
					role: RoleGuidePick, atomIndex: ai, itemIndex: ii,
					query:     strings.TrimSpace(pick.ModelCode + " " + pick.Name),
					prompt:    "Product photo of " + pick.Name,
					modelCode: pick.ModelCode,
				})
			}
		case content.AtomRecipeDetail:
			if a.Recipe == nil {
				continue
			}
			slots = append(slots, slot{
				role: RoleRecipe, atomIndex: ai, itemIndex: -1,
				query:  a.Recipe.Title,
				prompt: "Finished dish photo: " + a.Recipe.Title,
			})
		case content.AtomProductDetail:
			if a.Product == nil {
				continue
			}
			slots = append(slots, slot{
				role: RoleProduct, atomIndex: ai, itemIndex: -1,
				query:     productQuery(*a.Product),
				prompt:    "Product photo of " + a.Product.Name,
				modelCode: a.Product.ModelCode,
			})
		}
	}
	return slots
}

func productQuery(p content.Product) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.ModelCode, p.Series, p.Name} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func setImageURL(atoms []content.Atom, sl slot, url string) {
	a := &atoms[sl.atomIndex]
	switch sl.role {
	case RoleHero:
		a.ImageURL = url
	case RoleFeature:
		if sl.itemIndex < len(a.Items) {
			a.Items[sl.itemIndex].ImageURL = url
		}
	case RoleComparison:
		if sl.itemIndex < len(a.Products) {
			a.Products[sl.itemIndex].ImageURL = url
		}
	case RoleGuidePick:
		if a.Guide != nil && sl.itemIndex < len(a.Guide.Picks) {
			a.Guide.Picks[sl.itemIndex].ImageURL = url
		}
	case RoleRecipe:
		if a.Recipe != nil {
			a.Recipe.ImageURL = url
		}
	case RoleProduct:
		if a.Product != nil {
			a.Product.ImageURL = url
		}
	}
}

// CloneAtoms deep-copies the parts of the atom tree that image application
// mutates, so the input's owner keeps an untouched view. Anyone writing image
// URLs into atoms it does not own must clone first.
func CloneAtoms(atoms []content.Atom) []content.Atom {
	out := make([]content.Atom, len(atoms))
	copy(out, atoms)
	for i := range out {
		a := &out[i]
		if len(a.Items) > 0 {
			a.Items = append([]content.Feature(nil), a.Items...)
		}
		if len(a.Products) > 0 {
			a.Products = append([]content.Product(nil), a.Products...)
		}
		if a.Guide != nil {
			g := *a.Guide
			g.Picks = append([]content.GuidePick(nil), g.Picks...)
			a.Guide = &g
		}
		if a.Recipe != nil {
			rc := *a.Recipe
			a.Recipe = &rc
		}
		if a.Product != nil {
			p := *a.Product
			a.Product = &p
		}
	}
	return out
}

// ApplyGenerated writes a synthesized image URL into the slot a
// RemainingPrompt names. Used by the synthesizer's backfill step.
func ApplyGenerated(atoms []content.Atom, rp RemainingPrompt, url string) error {
	if rp.AtomIndex < 0 || rp.AtomIndex >= len(atoms) {
		return fmt.Errorf("imageres: atom index %d out of range", rp.AtomIndex)
	}
	setImageURL(atoms, slot{role: rp.Role, atomIndex: rp.AtomIndex, itemIndex: rp.ItemIndex}, url)
	return nil
}
