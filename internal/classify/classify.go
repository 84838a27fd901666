// Package classify maps a free-text query to a content category using fixed
// weighted keyword rules. It performs no I/O and must never fail: the same
// query always yields the same Classification.
package classify

import (
	"regexp"
	"strings"
)

type ContentType string

const (
	TypeProduct ContentType = "product"
	TypeRecipe  ContentType = "recipe"
	TypeGuide   ContentType = "guide"
	TypeBlog    ContentType = "blog"
	TypeGeneral ContentType = "general"
)

type Classification struct {
	Type               ContentType `json:"type"`
	Confidence         float64     `json:"confidence"`
	Keywords           []string    `json:"keywords"`
	NeedsProductImages bool        `json:"needs_product_images"`
	NeedsRecipeImages  bool        `json:"needs_recipe_images"`
}

// scoreCeiling normalizes the winning score into [0,1].
const scoreCeiling = 10.0

// strongIndicatorBonus is added when a known product-model token appears.
const strongIndicatorBonus = 6.0

// modelCodeRE matches product model tokens like A3500, E310, 5200.
var modelCodeRE = regexp.MustCompile(`\b(?:[A-Za-z]\d{3,4}[A-Za-z]?|5200|7500|750)\b`)

type rule struct {
	term   string
	weight float64
}

var categoryRules = map[ContentType][]rule{
	TypeProduct: {
		{"blender", 2}, {"vitamix", 2}, {"buy", 2}, {"price", 2}, {"vs", 3},
		{"compare", 3}, {"comparison", 3}, {"model", 2}, {"series", 1},
		{"ascent", 2}, {"explorian", 2}, {"specs", 2}, {"warranty", 1},
		{"review", 2}, {"best", 1}, {"container", 1}, {"motor", 1},
	},
	TypeRecipe: {
		{"recipe", 4}, {"smoothie", 3}, {"soup", 3}, {"make", 1}, {"cook", 2},
		{"ingredients", 3}, {"nut", 1}, {"butter", 2}, {"juice", 2},
		{"frozen", 1}, {"dessert", 2}, {"sauce", 2}, {"dip", 2}, {"blend", 1},
	},
	TypeGuide: {
		{"how", 2}, {"guide", 3}, {"clean", 2}, {"use", 1}, {"maintain", 2},
		{"troubleshoot", 3}, {"fix", 2}, {"setup", 2}, {"tips", 2},
		{"choose", 2}, {"which", 2},
	},
	TypeBlog: {
		{"why", 2}, {"benefits", 3}, {"health", 2}, {"nutrition", 3},
		{"story", 2}, {"history", 2}, {"lifestyle", 2}, {"wellness", 2},
	},
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"are": {}, "was": {}, "can": {}, "what": {}, "your": {}, "you": {},
	"about": {}, "from": {}, "have": {}, "has": {}, "does": {}, "how": {},
	"should": {}, "would": {}, "could": {}, "into": {}, "its": {},
}

var punctReplacer = strings.NewReplacer(
	"?", " ", "!", " ", ".", " ", ",", " ", ";", " ", ":", " ",
	"(", " ", ")", " ", "\"", " ", "'", " ", "/", " ", "&", " ",
)

// Classify scores the query against every category's rules and picks the
// highest. A product-model token is a strong indicator and adds a fixed bonus
// to the product score. All-zero scores fall back to the general category.
func Classify(query string) Classification {
	lower := strings.ToLower(strings.TrimSpace(query))

	scores := map[ContentType]float64{}
	for ct, rules := range categoryRules {
		for _, r := range rules {
			if containsToken(lower, r.term) {
				scores[ct] += r.weight
			}
		}
	}

	hasModelCode := modelCodeRE.MatchString(query)
	if hasModelCode {
		scores[TypeProduct] += strongIndicatorBonus
	}

	best := TypeGeneral
	bestScore := 0.0
	// Fixed iteration order keeps ties deterministic.
	for _, ct := range []ContentType{TypeProduct, TypeRecipe, TypeGuide, TypeBlog} {
		if scores[ct] > bestScore {
			best = ct
			bestScore = scores[ct]
		}
	}

	confidence := bestScore / scoreCeiling
	if confidence > 1 {
		confidence = 1
	}

	return Classification{
		Type:               best,
		Confidence:         confidence,
		Keywords:           ExtractKeywords(query),
		NeedsProductImages: best == TypeProduct || hasModelCode,
		NeedsRecipeImages:  best == TypeRecipe,
	}
}

// ExtractKeywords lowercases, strips punctuation, splits on whitespace, drops
// stop-words and tokens of <=2 characters, and deduplicates preserving
// first-seen order.
func ExtractKeywords(query string) []string {
	cleaned := punctReplacer.Replace(strings.ToLower(query))
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// containsToken reports whether term appears as a whole word in the
// lowercased query.
func containsToken(lower, term string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		leftOK := start == 0 || !isWordChar(lower[start-1])
		rightOK := end == len(lower) || !isWordChar(lower[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
		if idx >= len(lower) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
