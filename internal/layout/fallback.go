package layout

import (
	"strconv"

	"pageforge/internal/content"
)

// FallbackSelect builds a layout deterministically from the catalog priority
// order: a block is appended whenever its required atom type is present. The
// page always opens with the hero block and closes with cta/related when
// those atoms exist; intermediate order follows catalog priority.
func FallbackSelect(atoms []content.Atom) []Block {
	var blocks []Block
	for _, e := range Catalog {
		idx := content.FindFirst(atoms, e.RequiresAtom)
		if idx < 0 {
			continue
		}
		blocks = append(blocks, Block{
			BlockType:    e.BlockType,
			AtomMappings: map[string]string{"primary": strconv.Itoa(idx)},
		})
	}
	// A page without a heading atom still needs a hero; synthesize one mapped
	// to the first atom.
	if len(blocks) == 0 || blocks[0].BlockType != BlockHero {
		hero := Block{BlockType: BlockHero, AtomMappings: map[string]string{"primary": "0"}}
		blocks = append([]Block{hero}, blocks...)
	}
	return blocks
}
