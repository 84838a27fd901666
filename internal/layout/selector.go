package layout

import (
	"context"
	"log"
	"strconv"

	"pageforge/internal/classify"
	"pageforge/internal/content"
	"pageforge/internal/llm"
	"pageforge/internal/util/jsonutil"
)

const selectPrompt = `You are a page-layout planner. Choose an ordered list of
layout blocks from the catalog to present the given content atoms.

Catalog (block_type -> required atom type):
- hero -> heading
- interactive_guide -> interactive_guide
- recipe_card -> recipe_detail
- product_card -> product_detail
- comparison_table -> comparison
- spec_table -> table
- feature_grid -> feature_set
- text_section -> paragraph
- steps_list -> steps
- list_section -> list
- faq_accordion -> faq_set
- cta_banner -> cta
- related_items -> related

Hard rules:
- The first block MUST be "hero".
- If an interactive_guide atom exists, its block is mandatory.
- If a table atom exists, the spec_table block is mandatory.
- If a recipe_detail atom exists, the recipe_card block is mandatory.
- If a comparison atom exists, the comparison_table block is mandatory.
- If cta and/or related atoms exist, cta_banner then related_items MUST close the page.
- Never choose a block whose required atom type is absent.

Return STRICT JSON ONLY:
{
  "blocks": [{"block_type":"string","atom_mappings":{"primary":"<atom index as string>"}}],
  "rationale": "string"
}`

// Result carries the chosen blocks and the model's rationale (empty when the
// deterministic fallback produced the layout).
type Result struct {
	Blocks    []Block `json:"blocks"`
	Rationale string  `json:"rationale"`
	Fallback  bool    `json:"-"`
}

// Selector chooses the block sequence. Model failures of any kind degrade to
// the rule-based fallback; Select never returns an error.
type Selector struct {
	LLM llm.TextClient
}

func (s *Selector) Select(ctx context.Context, atoms []content.Atom, contentType classify.ContentType, meta content.Metadata) Result {
	if s == nil || s.LLM == nil {
		return Result{Blocks: FallbackSelect(atoms), Fallback: true}
	}
	ctx = llm.WithPhase(ctx, "layout")

	summaries := make([]map[string]any, 0, len(atoms))
	for i, a := range atoms {
		summaries = append(summaries, map[string]any{"index": i, "type": a.Type})
	}
	input := map[string]any{
		"content_type": contentType,
		"metadata":     meta,
		"atoms":        summaries,
	}

	raw, err := s.LLM.GenerateJSON(ctx, selectPrompt, input)
	if err != nil {
		log.Printf("layout: model selection failed, using fallback: %v", err)
		return Result{Blocks: FallbackSelect(atoms), Fallback: true}
	}
	var out Result
	if err := jsonutil.UnmarshalModel(raw, &out); err != nil || len(out.Blocks) == 0 {
		log.Printf("layout: model returned invalid layout, using fallback: %v", err)
		return Result{Blocks: FallbackSelect(atoms), Fallback: true}
	}
	out.Blocks = enforceRules(out.Blocks, atoms)
	return out
}

// enforceRules post-validates a model-proposed layout: blocks whose required
// atom is absent are dropped, mandatory blocks are inserted at their mandated
// position, hero is forced first, and cta/related are forced last.
func enforceRules(blocks []Block, atoms []content.Atom) []Block {
	kept := blocks[:0]
	for _, b := range blocks {
		e, ok := catalogEntry(b.BlockType)
		if !ok {
			continue
		}
		if content.FindFirst(atoms, e.RequiresAtom) < 0 {
			continue
		}
		kept = append(kept, b)
	}
	blocks = kept

	has := func(blockType string) bool {
		for _, b := range blocks {
			if b.BlockType == blockType {
				return true
			}
		}
		return false
	}
	mkBlock := func(e CatalogEntry) Block {
		idx := content.FindFirst(atoms, e.RequiresAtom)
		if idx < 0 {
			idx = 0
		}
		return Block{BlockType: e.BlockType, AtomMappings: map[string]string{"primary": strconv.Itoa(idx)}}
	}

	// Insert omitted mandatory blocks rather than rejecting the output.
	for _, e := range Catalog {
		if !e.Mandatory || has(e.BlockType) {
			continue
		}
		if content.FindFirst(atoms, e.RequiresAtom) < 0 && e.BlockType != BlockHero {
			continue
		}
		blocks = append(blocks, mkBlock(e))
	}

	// Hero first.
	for i, b := range blocks {
		if b.BlockType == BlockHero {
			if i != 0 {
				blocks = append(blocks[:i], blocks[i+1:]...)
				blocks = append([]Block{b}, blocks...)
			}
			break
		}
	}
	if len(blocks) == 0 || blocks[0].BlockType != BlockHero {
		blocks = append([]Block{{BlockType: BlockHero, AtomMappings: map[string]string{"primary": "0"}}}, blocks...)
	}

	// cta_banner then related_items close the page when present.
	blocks = moveToEnd(blocks, BlockCTABanner)
	blocks = moveToEnd(blocks, BlockRelatedItems)
	return blocks
}

func moveToEnd(blocks []Block, blockType string) []Block {
	for i, b := range blocks {
		if b.BlockType == blockType && i != len(blocks)-1 {
			blocks = append(blocks[:i], blocks[i+1:]...)
			return append(blocks, b)
		}
	}
	return blocks
}
