// Package imageres decides, per image-bearing role, whether to reuse a
// retrieved photo or queue a prompt for generation, runs the retrieval
// searches concurrently and reassembles results in original item order.
package imageres

import (
	"pageforge/internal/classify"
	"pageforge/internal/content"
)

// Role names an image-bearing slot in the atom tree.
type Role string

const (
	RoleHero       Role = "hero"
	RoleFeature    Role = "feature"
	RoleComparison Role = "comparison"
	RoleGuidePick  Role = "guide_pick"
	RoleRecipe     Role = "recipe"
	RoleProduct    Role = "product"
)

// Decision is the per-role sourcing choice.
type Decision string

const (
	Generate      Decision = "generate"
	RAG           Decision = "rag"
	RAGOrGenerate Decision = "rag_or_generate"
)

// Strategy maps each role present in the atom set to its decision.
type Strategy map[Role]Decision

// DecideStrategy is a pure function of classification and atom set.
// Recipe imagery always prefers generation (quality); product and comparison
// imagery always prefers retrieval (accuracy); general and blog imagery
// prefers generation.
func DecideStrategy(cls classify.Classification, atoms []content.Atom) Strategy {
	s := Strategy{}

	switch cls.Type {
	case classify.TypeRecipe:
		s[RoleHero] = Generate
	case classify.TypeProduct:
		s[RoleHero] = RAGOrGenerate
	default:
		s[RoleHero] = Generate
	}

	if content.HasType(atoms, content.AtomRecipeDetail) {
		s[RoleRecipe] = Generate
	}
	if content.HasType(atoms, content.AtomComparison) {
		s[RoleComparison] = RAG
	}
	if content.HasType(atoms, content.AtomProductDetail) {
		s[RoleProduct] = RAG
	}
	if content.HasType(atoms, content.AtomInteractiveGuide) {
		s[RoleGuidePick] = RAG
	}
	if content.HasType(atoms, content.AtomFeatureSet) {
		if cls.Type == classify.TypeProduct {
			s[RoleFeature] = RAGOrGenerate
		} else {
			s[RoleFeature] = Generate
		}
	}
	return s
}

// wantsSearch reports whether the decision involves a retrieval attempt.
func (d Decision) wantsSearch() bool {
	return d == RAG || d == RAGOrGenerate
}
