// Command export-attributes flattens a processing report into per-attribute
// rows suitable for bulk import into a product catalog.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"
)

type row struct {
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// reportFile mirrors the slice of the report this command reads; the rest of
// the artifact (rules, category state, diagnostics) is ignored.
type reportFile struct {
	RunID   string `json:"run_id"`
	Results []struct {
		SKU        string            `json:"sku"`
		Title      string            `json:"title"`
		Category   string            `json:"category"`
		Source     string            `json:"source"`
		Attributes map[string]string `json:"attributes"`
	} `json:"results"`
}

func main() {
	var (
		reportPath = flag.String("report", "", "Processing report JSON file (required)")
		outPath    = flag.String("out", "", "Output path (default stdout)")
		format     = flag.String("format", "csv", "Output format: csv or json")
	)
	flag.Parse()

	if *reportPath == "" {
		log.Fatal("--report required")
	}
	if *format != "csv" && *format != "json" {
		log.Fatal("--format must be csv or json")
	}

	data, err := os.ReadFile(*reportPath)
	if err != nil {
		log.Fatal("Failed to read report:", err)
	}
	var rep reportFile
	if err := json.Unmarshal(data, &rep); err != nil {
		log.Fatal("Failed to parse report:", err)
	}

	var rows []row
	for _, res := range rep.Results {
		attrs := make([]string, 0, len(res.Attributes))
		for name := range res.Attributes {
			attrs = append(attrs, name)
		}
		sort.Strings(attrs)
		for _, name := range attrs {
			rows = append(rows, row{
				SKU:       res.SKU,
				Title:     res.Title,
				Category:  res.Category,
				Source:    res.Source,
				Attribute: name,
				Value:     res.Attributes[name],
			})
		}
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal("Failed to create output file:", err)
		}
		defer f.Close()
		out = f
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			log.Fatal("Failed to write output:", err)
		}
	case "csv":
		w := csv.NewWriter(out)
		if err := w.Write([]string{"sku", "title", "category", "source", "attribute", "value"}); err != nil {
			log.Fatal("Failed to write output:", err)
		}
		for _, r := range rows {
			if err := w.Write([]string{r.SKU, r.Title, r.Category, r.Source, r.Attribute, r.Value}); err != nil {
				log.Fatal("Failed to write output:", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			log.Fatal("Failed to write output:", err)
		}
	}

	log.Printf("Exported %d attribute rows from %d results (run %s)", len(rows), len(rep.Results), rep.RunID)
}
