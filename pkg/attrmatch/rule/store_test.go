package rule

import "testing"

func TestStoreAddAndDedup(t *testing.T) {
	s := NewStore()

	r := Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")}
	if !s.Add(r) {
		t.Fatal("First insert should succeed")
	}
	if s.Add(r) {
		t.Error("Duplicate attribute+value+pattern should be rejected")
	}
	if !s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256 gb")}) {
		t.Error("Same value with a different pattern is a distinct rule")
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 rules, got %d", s.Len())
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	s := NewStore()
	if s.Add(Rule{Attribute: "Storage", Value: "X", Pattern: LiteralPattern("x")}) {
		t.Error("Patterns under the length floor should be rejected")
	}
	if s.Add(Rule{Value: "256GB", Pattern: LiteralPattern("256gb")}) {
		t.Error("Rules without an attribute should be rejected")
	}
	if s.Len() != 0 {
		t.Errorf("Store should stay empty, has %d rules", s.Len())
	}
}

func TestApplyBasic(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")})
	s.Add(Rule{Attribute: "Colour", Value: "Black", Pattern: LiteralPattern("black")})

	got := s.Apply("iPhone 12 256GB Black", []string{"Storage", "Colour", "Network"})
	if got["Storage"] != "256GB" {
		t.Errorf("Storage = %q, want 256GB", got["Storage"])
	}
	if got["Colour"] != "Black" {
		t.Errorf("Colour = %q, want Black", got["Colour"])
	}
	if _, ok := got["Network"]; ok {
		t.Error("Attributes without matching rules must be absent, not guessed")
	}
}

func TestApplyIsReadOnly(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")})

	first := s.Apply("iPhone 256GB", []string{"Storage"})
	second := s.Apply("iPhone 256GB", []string{"Storage"})
	if first["Storage"] != second["Storage"] {
		t.Error("Applying rules twice should give identical results")
	}
	if s.Len() != 1 {
		t.Error("Apply must not mutate the store")
	}
}

func TestApplyMostSpecificWins(t *testing.T) {
	s := NewStore()
	// A broad literal and a precise word-set both match the title; the
	// word-set must win regardless of insertion order.
	s.Add(Rule{Attribute: "Model", Value: "PS5", Pattern: LiteralPattern("ps5")})
	s.Add(Rule{Attribute: "Model", Value: "PS5 Digital", Pattern: AllOfPattern([]string{"ps5", "digital"})})

	got := s.Apply("Sony PS5 Digital Edition", []string{"Model"})
	if got["Model"] != "PS5 Digital" {
		t.Errorf("Model = %q, want the more specific PS5 Digital", got["Model"])
	}
}

func TestApplyLongerLiteralWins(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "1TB", Pattern: LiteralPattern("1tb")})
	s.Add(Rule{Attribute: "Storage", Value: "Upgraded 1TB", Pattern: LiteralPattern("upgraded 1tb")})

	got := s.Apply("Xbox Upgraded 1TB Console", []string{"Storage"})
	if got["Storage"] != "Upgraded 1TB" {
		t.Errorf("Storage = %q, want the longer literal's value", got["Storage"])
	}
}

func TestApplyNilRequiredUsesAllAttributes(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")})
	s.Add(Rule{Attribute: "Colour", Value: "Black", Pattern: LiteralPattern("black")})

	got := s.Apply("iPhone 256GB Black", nil)
	if len(got) != 2 {
		t.Errorf("Expected matches for every stored attribute, got %v", got)
	}
}

func TestApplyGradeFallbackKnownLetters(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Grade", Value: "A", Pattern: BoundaryRegexPattern("A")})

	// The stored rule for A does not match, but the title carries a
	// standalone C; known single-letter values narrow the fallback alphabet,
	// so C is not among them.
	got := s.Apply("Phone, C", []string{"Grade"})
	if got["Grade"] != "" {
		t.Errorf("Grade = %q, want no match outside known letters", got["Grade"])
	}

	got = s.Apply("Phone, A", []string{"Grade"})
	if got["Grade"] != "A" {
		t.Errorf("Grade = %q, want A", got["Grade"])
	}
}

func TestApplyGradeFallbackDefaultAlphabet(t *testing.T) {
	s := NewStore()
	// No rules at all: the common grade letters are tried in order.
	got := s.Apply("Nintendo Switch Console, C, Boxed", []string{"Grade"})
	if got["Grade"] != "C" {
		t.Errorf("Grade = %q, want C from the default alphabet", got["Grade"])
	}
}

func TestApplyEmptyTitle(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")})
	if got := s.Apply("", []string{"Storage"}); len(got) != 0 {
		t.Errorf("Empty title should match nothing, got %v", got)
	}
}

func TestAttributesAndAll(t *testing.T) {
	s := NewStore()
	s.Add(Rule{Attribute: "Storage", Value: "256GB", Pattern: LiteralPattern("256gb")})
	s.Add(Rule{Attribute: "Colour", Value: "Black", Pattern: LiteralPattern("black")})
	s.Add(Rule{Attribute: "Colour", Value: "White", Pattern: LiteralPattern("white")})

	attrs := s.Attributes()
	if len(attrs) != 2 || attrs[0] != "Colour" || attrs[1] != "Storage" {
		t.Errorf("Attributes() = %v, want sorted [Colour Storage]", attrs)
	}
	if got := len(s.All()); got != 3 {
		t.Errorf("All() returned %d rules, want 3", got)
	}
	if !s.Has("Colour") || s.Has("Network") {
		t.Error("Has() disagrees with stored attributes")
	}
}
