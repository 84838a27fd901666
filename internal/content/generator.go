package content

import (
	"context"
	"fmt"

	"pageforge/internal/classify"
	"pageforge/internal/llm"
	"pageforge/internal/util/jsonutil"
)

const generatePrompt = `You are a content engine for a kitchen-appliance brand site.
Given a user query, its classification and grounding context retrieved from the
knowledge base, produce the complete content for one page.

Return STRICT JSON ONLY matching this schema:
{
  "content_type": "product|recipe|guide|blog|general",
  "metadata": {
    "title": "string",
    "description": "string",
    "hero_prompt": "string",       // image-generation prompt for the hero
    "products": ["string"]         // model codes discussed, if any
  },
  "content_atoms": [
    // each atom has "type" plus type-specific fields:
    {"type":"heading","text":"string","level":1,"subtext":"string"},
    {"type":"paragraph","text":"string"},
    {"type":"feature_set","items":[{"title":"string","description":"string","image_prompt":"string"}]},
    {"type":"faq_set","questions":[{"question":"string","answer":"string"}]},
    {"type":"steps","steps":[{"title":"string","description":"string"}]},
    {"type":"table","headers":["string"],"rows":[["string"]]},
    {"type":"comparison","products":[{"name":"string","model_code":"string","series":"string","price":"string","highlight":"string","specs":["string"]}]},
    {"type":"cta","text":"string","button_text":"string","button_url":"string"},
    {"type":"related","products":[{"name":"string","model_code":"string"}]},
    {"type":"list","list_items":["string"],"ordered":false},
    {"type":"interactive_guide","guide":{"title":"string","intro":"string","questions":[{"prompt":"string","options":["string"]}],"picks":[{"label":"string","name":"string","model_code":"string","reason":"string"}]}},
    {"type":"recipe_detail","recipe":{"title":"string","description":"string","prep_time":"string","total_time":"string","yield":"string","difficulty":"string","ingredients":["string"],"steps":["string"]}},
    {"type":"product_detail","product":{"name":"string","model_code":"string","series":"string","price":"string","specs":["string"]}}
  ],
  "keywords": ["string"],
  "layout_hints": ["string"]
}

Rules:
- Ground every factual claim (prices, specs, model codes) in the provided context.
- Always include one heading atom first.
- For product comparisons include a comparison atom covering exactly the
  products the query asks about, plus a table atom of their specs.
- For recipes include a recipe_detail atom with full ingredients and steps.
- Never invent model codes absent from the query or the context.
- JSON only; no comments, no markdown fences, no trailing commas.`

// Result is the generator's parsed output.
type Result struct {
	ContentAtoms []Atom               `json:"content_atoms"`
	ContentType  classify.ContentType `json:"content_type"`
	Metadata     Metadata             `json:"metadata"`
	Keywords     []string             `json:"keywords"`
	LayoutHints  []string             `json:"layout_hints"`
}

// Generator asks the model for the full content-atom set in one call.
// A parse failure is fatal for the request: ungrounded fallback content is
// worse than an explicit failure.
type Generator struct {
	LLM llm.TextClient
}

func (g *Generator) Generate(ctx context.Context, query string, cls classify.Classification, groundingContext string) (Result, error) {
	ctx = llm.WithPhase(ctx, "generate")
	input := map[string]any{
		"query":          query,
		"classification": cls,
		"context":        groundingContext,
	}
	raw, err := g.LLM.GenerateJSON(ctx, generatePrompt, input)
	if err != nil {
		return Result{}, fmt.Errorf("content generation: %w", err)
	}
	var out Result
	if err := jsonutil.UnmarshalModel(raw, &out); err != nil {
		return Result{}, fmt.Errorf("content generation JSON invalid: %w", err)
	}
	if len(out.ContentAtoms) == 0 {
		return Result{}, fmt.Errorf("content generation: %w: no atoms", llm.ErrInvalidJSON)
	}
	// Drop atoms outside the schema's closed type set.
	kept := out.ContentAtoms[:0]
	for _, a := range out.ContentAtoms {
		if KnownAtomType(a.Type) {
			kept = append(kept, a)
		}
	}
	out.ContentAtoms = kept
	if len(out.ContentAtoms) == 0 {
		return Result{}, fmt.Errorf("content generation: %w: no recognizable atoms", llm.ErrInvalidJSON)
	}
	if out.ContentType == "" {
		out.ContentType = cls.Type
	}
	return out, nil
}
