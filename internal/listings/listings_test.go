package listings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFromJSON(t *testing.T) {
	path := writeFile(t, "listings.json", `{"listings": [
		{"id": "SKU1", "title": "Xbox Series X 1TB"},
		{"id": "SKU2"},
		{"title": "no id, dropped"},
		{"id": "SKU3", "title": "PS5 Digital Edition"}
	]}`)

	skus, err := LoadFromJSON(path)
	if err != nil {
		t.Fatalf("LoadFromJSON: %v", err)
	}
	if len(skus) != 3 {
		t.Fatalf("Expected 3 listings, got %d", len(skus))
	}
	if skus[0].ID != "SKU1" || skus[0].Title != "Xbox Series X 1TB" {
		t.Errorf("First listing = %+v", skus[0])
	}
	if skus[1].Title != "SKU2" {
		t.Errorf("Missing title should default to the id, got %q", skus[1].Title)
	}
}

func TestLoadFromJSONEmpty(t *testing.T) {
	path := writeFile(t, "empty.json", `{"listings": []}`)
	if _, err := LoadFromJSON(path); err == nil {
		t.Error("A file with no valid listings should error")
	}
}

func TestLoadFromJSONMalformed(t *testing.T) {
	path := writeFile(t, "bad.json", `{"listings": [`)
	if _, err := LoadFromJSON(path); err == nil {
		t.Error("Malformed JSON should error")
	}
}

func TestParseHTML(t *testing.T) {
	page := `<html><body>
		<div class="results">
			<a href="/product-detail?id=SKU1">Xbox Series X 1TB Console</a>
			<a href="/product-detail?id=SKU1">Xbox Series X 1TB Console</a>
			<a href="/products/product-detail/SKU2"><span>PS5 Digital</span> Edition</a>
			<a href="/about">About us</a>
			<a href="/product-detail?id=SKU3"></a>
		</div>
	</body></html>`

	skus, err := ParseHTML(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseHTML: %v", err)
	}
	if len(skus) != 3 {
		t.Fatalf("Expected 3 listings (duplicates collapsed), got %d: %+v", len(skus), skus)
	}
	if skus[0].ID != "SKU1" || skus[0].Title != "Xbox Series X 1TB Console" {
		t.Errorf("First listing = %+v", skus[0])
	}
	if skus[1].ID != "SKU2" || skus[1].Title != "PS5 Digital Edition" {
		t.Errorf("Path-segment listing = %+v", skus[1])
	}
	if skus[2].Title != "SKU3" {
		t.Errorf("Empty anchor text should fall back to the id, got %q", skus[2].Title)
	}
}

func TestParseHTMLNoProducts(t *testing.T) {
	if _, err := ParseHTML(strings.NewReader(`<html><body><a href="/home">Home</a></body></html>`)); err == nil {
		t.Error("A page without product links should error")
	}
}

func TestLoadFromHTML(t *testing.T) {
	path := writeFile(t, "page.html",
		`<html><body><a href="/product-detail?id=SKU9">Switch OLED White</a></body></html>`)

	skus, err := LoadFromHTML(path)
	if err != nil {
		t.Fatalf("LoadFromHTML: %v", err)
	}
	if len(skus) != 1 || skus[0].ID != "SKU9" {
		t.Errorf("Listings = %+v", skus)
	}
}
