// Package content defines the content-atom model and the grounded content
// generation step. Atoms are the single source of truth for page content;
// downstream stages may only fill image URLs, never change structure.
package content

type AtomType string

const (
	AtomHeading          AtomType = "heading"
	AtomParagraph        AtomType = "paragraph"
	AtomFeatureSet       AtomType = "feature_set"
	AtomFAQSet           AtomType = "faq_set"
	AtomSteps            AtomType = "steps"
	AtomTable            AtomType = "table"
	AtomComparison       AtomType = "comparison"
	AtomCTA              AtomType = "cta"
	AtomRelated          AtomType = "related"
	AtomList             AtomType = "list"
	AtomInteractiveGuide AtomType = "interactive_guide"
	AtomRecipeDetail     AtomType = "recipe_detail"
	AtomProductDetail    AtomType = "product_detail"
)

// knownAtomTypes is the closed set the generator schema enumerates.
var knownAtomTypes = map[AtomType]struct{}{
	AtomHeading: {}, AtomParagraph: {}, AtomFeatureSet: {}, AtomFAQSet: {},
	AtomSteps: {}, AtomTable: {}, AtomComparison: {}, AtomCTA: {},
	AtomRelated: {}, AtomList: {}, AtomInteractiveGuide: {}, AtomRecipeDetail: {},
	AtomProductDetail: {},
}

func KnownAtomType(t AtomType) bool {
	_, ok := knownAtomTypes[t]
	return ok
}

// Atom is a tagged union discriminated by Type. Variant fields are populated
// according to Type; the zero value of unused fields is omitted on the wire.
type Atom struct {
	Type AtomType `json:"type"`

	// heading / paragraph / cta
	Text     string `json:"text,omitempty"`
	Level    int    `json:"level,omitempty"`
	Subtext  string `json:"subtext,omitempty"`
	ImageURL string `json:"image_url,omitempty"`

	// cta
	ButtonText string `json:"button_text,omitempty"`
	ButtonURL  string `json:"button_url,omitempty"`

	// feature_set
	Items []Feature `json:"items,omitempty"`

	// faq_set
	Questions []FAQ `json:"questions,omitempty"`

	// steps
	Steps []Step `json:"steps,omitempty"`

	// table
	Headers []string   `json:"headers,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`

	// comparison / related
	Products []Product `json:"products,omitempty"`

	// list
	ListItems []string `json:"list_items,omitempty"`
	Ordered   bool     `json:"ordered,omitempty"`

	// interactive_guide
	Guide *Guide `json:"guide,omitempty"`

	// recipe_detail
	Recipe *Recipe `json:"recipe,omitempty"`

	// product_detail
	Product *Product `json:"product,omitempty"`
}

type Feature struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Step struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type Product struct {
	Name      string   `json:"name"`
	ModelCode string   `json:"model_code,omitempty"`
	Series    string   `json:"series,omitempty"`
	Price     string   `json:"price,omitempty"`
	Rating    float64  `json:"rating,omitempty"`
	Highlight string   `json:"highlight,omitempty"`
	Specs     []string `json:"specs,omitempty"`
	ImageURL  string   `json:"image_url,omitempty"`
	URL       string   `json:"url,omitempty"`
}

type Guide struct {
	Title     string      `json:"title"`
	Intro     string      `json:"intro,omitempty"`
	Questions []GuideStep `json:"questions,omitempty"`
	Picks     []GuidePick `json:"picks,omitempty"`
}

type GuideStep struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

type GuidePick struct {
	Label     string `json:"label"`
	Name      string `json:"name"`
	ModelCode string `json:"model_code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

type Recipe struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	PrepTime    string   `json:"prep_time,omitempty"`
	TotalTime   string   `json:"total_time,omitempty"`
	Yield       string   `json:"yield,omitempty"`
	Difficulty  string   `json:"difficulty,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
	Steps       []string `json:"steps,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
}

// Metadata is page-level information produced alongside the atoms.
type Metadata struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	HeroPrompt  string   `json:"hero_prompt,omitempty"`
	Products    []string `json:"products,omitempty"`
}

// FindFirst returns the index of the first atom of the given type, or -1.
func FindFirst(atoms []Atom, t AtomType) int {
	for i := range atoms {
		if atoms[i].Type == t {
			return i
		}
	}
	return -1
}

// HasType reports whether any atom of the given type exists.
func HasType(atoms []Atom, t AtomType) bool {
	return FindFirst(atoms, t) >= 0
}
