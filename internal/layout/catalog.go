// Package layout maps a content-atom set to an ordered list of layout blocks.
// The primary path asks a model to choose from a fixed catalog; a fully
// deterministic rule-based fallback guarantees a structurally valid layout
// whenever the model path fails.
package layout

import "pageforge/internal/content"

// Block is a presentation template plus a mapping from its display slots to
// content atoms (referenced by index in the page's atom list).
type Block struct {
	BlockType    string            `json:"block_type"`
	AtomMappings map[string]string `json:"atom_mappings,omitempty"`
}

// CatalogEntry declares a selectable block: which atom type it requires and
// its position in the fallback priority order (lower renders earlier).
type CatalogEntry struct {
	BlockType    string
	RequiresAtom content.AtomType
	Priority     int
	Mandatory    bool // must appear whenever the required atom exists
}

const (
	BlockHero            = "hero"
	BlockTextSection     = "text_section"
	BlockFeatureGrid     = "feature_grid"
	BlockComparisonTable = "comparison_table"
	BlockSpecTable       = "spec_table"
	BlockInteractive     = "interactive_guide"
	BlockRecipeCard      = "recipe_card"
	BlockProductCard     = "product_card"
	BlockStepsList       = "steps_list"
	BlockListSection     = "list_section"
	BlockFAQAccordion    = "faq_accordion"
	BlockCTABanner       = "cta_banner"
	BlockRelatedItems    = "related_items"
)

// Catalog is the fixed set of selectable blocks in fallback priority order.
// Hero always opens the page; cta_banner and related_items always close it.
var Catalog = []CatalogEntry{
	{BlockType: BlockHero, RequiresAtom: content.AtomHeading, Priority: 0, Mandatory: true},
	{BlockType: BlockInteractive, RequiresAtom: content.AtomInteractiveGuide, Priority: 10, Mandatory: true},
	{BlockType: BlockRecipeCard, RequiresAtom: content.AtomRecipeDetail, Priority: 15, Mandatory: true},
	{BlockType: BlockProductCard, RequiresAtom: content.AtomProductDetail, Priority: 20},
	{BlockType: BlockComparisonTable, RequiresAtom: content.AtomComparison, Priority: 25, Mandatory: true},
	{BlockType: BlockSpecTable, RequiresAtom: content.AtomTable, Priority: 30, Mandatory: true},
	{BlockType: BlockFeatureGrid, RequiresAtom: content.AtomFeatureSet, Priority: 35},
	{BlockType: BlockTextSection, RequiresAtom: content.AtomParagraph, Priority: 40},
	{BlockType: BlockStepsList, RequiresAtom: content.AtomSteps, Priority: 45},
	{BlockType: BlockListSection, RequiresAtom: content.AtomList, Priority: 50},
	{BlockType: BlockFAQAccordion, RequiresAtom: content.AtomFAQSet, Priority: 55},
	{BlockType: BlockCTABanner, RequiresAtom: content.AtomCTA, Priority: 90},
	{BlockType: BlockRelatedItems, RequiresAtom: content.AtomRelated, Priority: 95},
}

func catalogEntry(blockType string) (CatalogEntry, bool) {
	for _, e := range Catalog {
		if e.BlockType == blockType {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
