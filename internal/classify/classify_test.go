package classify

import (
	"reflect"
	"testing"
)

func TestClassifyProductComparison(t *testing.T) {
	c := Classify("A3500 vs E310")
	if c.Type != TypeProduct {
		t.Fatalf("expected product, got %s", c.Type)
	}
	if c.Confidence <= 0.5 {
		t.Fatalf("expected confidence > 0.5, got %f", c.Confidence)
	}
	if !c.NeedsProductImages {
		t.Fatal("expected product images to be needed")
	}
}

func TestClassifyRecipe(t *testing.T) {
	c := Classify("green smoothie recipe")
	if c.Type != TypeRecipe {
		t.Fatalf("expected recipe, got %s", c.Type)
	}
	if !c.NeedsRecipeImages {
		t.Fatal("expected recipe images to be needed")
	}
	if c.NeedsProductImages {
		t.Fatal("recipe query should not need product images")
	}
}

func TestClassifyFallsBackToGeneral(t *testing.T) {
	c := Classify("zzz qqq")
	if c.Type != TypeGeneral {
		t.Fatalf("expected general, got %s", c.Type)
	}
	if c.Confidence != 0 {
		t.Fatalf("expected zero confidence, got %f", c.Confidence)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	queries := []string{
		"A3500 vs E310",
		"green smoothie recipe",
		"how to clean a blender",
		"health benefits of smoothies",
		"",
	}
	for _, q := range queries {
		a := Classify(q)
		b := Classify(q)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("classification for %q not stable: %+v vs %+v", q, a, b)
		}
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("The Best Blender, for smoothies? The blender!")
	want := []string{"best", "blender", "smoothies"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("keywords = %v, want %v", got, want)
	}
}

func TestConfidenceClamped(t *testing.T) {
	c := Classify("compare vitamix blender A3500 vs E310 price model review specs")
	if c.Confidence > 1.0 {
		t.Fatalf("confidence must be clamped to 1.0, got %f", c.Confidence)
	}
}
