package layout

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/llm"
)

func atomsFor(types ...content.AtomType) []content.Atom {
	out := make([]content.Atom, 0, len(types))
	for _, t := range types {
		out = append(out, content.Atom{Type: t})
	}
	return out
}

func TestFallbackStartsWithHero(t *testing.T) {
	atoms := atomsFor(content.AtomHeading, content.AtomParagraph, content.AtomFAQSet)
	blocks := FallbackSelect(atoms)
	if len(blocks) == 0 {
		t.Fatal("fallback must return a non-empty layout")
	}
	if blocks[0].BlockType != BlockHero {
		t.Fatalf("first block = %s, want hero", blocks[0].BlockType)
	}
}

func TestFallbackEndsWithCTAAndRelated(t *testing.T) {
	atoms := atomsFor(content.AtomHeading, content.AtomCTA, content.AtomParagraph, content.AtomRelated)
	blocks := FallbackSelect(atoms)
	n := len(blocks)
	if blocks[n-2].BlockType != BlockCTABanner || blocks[n-1].BlockType != BlockRelatedItems {
		t.Fatalf("layout must close with cta_banner, related_items; got %v", blocks)
	}
}

func TestFallbackNeverSelectsBlockWithoutAtom(t *testing.T) {
	combos := [][]content.AtomType{
		{content.AtomHeading},
		{content.AtomHeading, content.AtomComparison},
		{content.AtomParagraph, content.AtomSteps},
		{content.AtomHeading, content.AtomRecipeDetail, content.AtomList},
		{content.AtomHeading, content.AtomTable, content.AtomFAQSet, content.AtomCTA},
	}
	for _, types := range combos {
		atoms := atomsFor(types...)
		for _, b := range FallbackSelect(atoms) {
			e, ok := catalogEntry(b.BlockType)
			if !ok {
				t.Fatalf("unknown block %s", b.BlockType)
			}
			if b.BlockType == BlockHero {
				continue // hero is synthesized even without a heading atom
			}
			if !content.HasType(atoms, e.RequiresAtom) {
				t.Fatalf("block %s selected without its atom in %v", b.BlockType, types)
			}
		}
	}
}

func TestFallbackIsDeterministic(t *testing.T) {
	atoms := atomsFor(content.AtomHeading, content.AtomComparison, content.AtomTable, content.AtomCTA)
	a := FallbackSelect(atoms)
	b := FallbackSelect(atoms)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("fallback not deterministic: %v vs %v", a, b)
	}
}

func TestSelectFallsBackOnModelError(t *testing.T) {
	cli := llm.NewFakeTextClient()
	cli.Err = errors.New("model down")
	s := &Selector{LLM: cli}

	res := s.Select(context.Background(), atomsFor(content.AtomHeading, content.AtomParagraph), classify.TypeGeneral, content.Metadata{})
	if !res.Fallback {
		t.Fatal("expected fallback layout")
	}
	if res.Blocks[0].BlockType != BlockHero {
		t.Fatalf("fallback must start with hero, got %s", res.Blocks[0].BlockType)
	}
}

func TestSelectInsertsOmittedMandatoryBlocks(t *testing.T) {
	// Model omits the mandatory spec_table and interactive_guide blocks.
	cli := llm.NewFakeTextClient()
	cli.Responses["layout"] = json.RawMessage(`{
		"blocks": [
			{"block_type": "hero", "atom_mappings": {"primary": "0"}},
			{"block_type": "text_section", "atom_mappings": {"primary": "1"}}
		],
		"rationale": "minimal"
	}`)
	s := &Selector{LLM: cli}

	atoms := atomsFor(content.AtomHeading, content.AtomParagraph, content.AtomTable, content.AtomInteractiveGuide)
	res := s.Select(context.Background(), atoms, classify.TypeGuide, content.Metadata{})
	if res.Fallback {
		t.Fatal("model path should have been used")
	}
	var haveTable, haveGuide bool
	for _, b := range res.Blocks {
		if b.BlockType == BlockSpecTable {
			haveTable = true
		}
		if b.BlockType == BlockInteractive {
			haveGuide = true
		}
	}
	if !haveTable || !haveGuide {
		t.Fatalf("mandatory blocks missing: table=%v guide=%v blocks=%v", haveTable, haveGuide, res.Blocks)
	}
}

func TestSelectDropsBlocksWithAbsentAtoms(t *testing.T) {
	cli := llm.NewFakeTextClient()
	cli.Responses["layout"] = json.RawMessage(`{
		"blocks": [
			{"block_type": "hero", "atom_mappings": {"primary": "0"}},
			{"block_type": "recipe_card", "atom_mappings": {"primary": "9"}}
		]
	}`)
	s := &Selector{LLM: cli}

	res := s.Select(context.Background(), atomsFor(content.AtomHeading, content.AtomParagraph), classify.TypeBlog, content.Metadata{})
	for _, b := range res.Blocks {
		if b.BlockType == BlockRecipeCard {
			t.Fatal("recipe_card selected without a recipe_detail atom")
		}
	}
}
