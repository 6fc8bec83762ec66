// Package listings loads the SKU listings a run processes, either from an
// exported JSON file or from a saved listings HTML page.
package listings

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/shopmind/attrmatch/pkg/attrmatch"
)

type listingsFile struct {
	Listings []attrmatch.SKU `json:"listings"`
}

// LoadFromJSON loads listings from a file shaped {"listings": [{"id":...,
// "title":...}]}. Entries without an ID are skipped with a warning.
func LoadFromJSON(path string) ([]attrmatch.SKU, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var parsed listingsFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse listings %s: %w", path, err)
	}

	var out []attrmatch.SKU
	for i, l := range parsed.Listings {
		if l.ID == "" {
			log.Printf("Warning: skipping listing %d in %s: missing id", i, path)
			continue
		}
		if l.Title == "" {
			l.Title = l.ID
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no valid listings found in %s", path)
	}
	return out, nil
}

// ParseHTML extracts listings from a saved search-results page: every anchor
// whose href points at a product-detail path contributes its id query
// parameter (or final path segment) as the SKU and its text as the title.
func ParseHTML(r io.Reader) ([]attrmatch.SKU, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var out []attrmatch.SKU
	seen := make(map[string]struct{})

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if sku, ok := skuFromHref(attr(n, "href")); ok {
				if _, dup := seen[sku]; !dup {
					seen[sku] = struct{}{}
					title := strings.TrimSpace(text(n))
					if title == "" {
						title = sku
					}
					out = append(out, attrmatch.SKU{ID: sku, Title: title})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(out) == 0 {
		return nil, fmt.Errorf("no product links found in page")
	}
	return out, nil
}

// LoadFromHTML reads and parses a saved listings page.
func LoadFromHTML(path string) ([]attrmatch.SKU, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ParseHTML(f)
}

func skuFromHref(href string) (string, bool) {
	if href == "" || !strings.Contains(href, "product-detail") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" && parts[len(parts)-1] != "product-detail" {
		return parts[len(parts)-1], true
	}
	return "", false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(text(c))
	}
	return b.String()
}
