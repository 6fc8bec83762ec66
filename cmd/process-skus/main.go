package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shopmind/attrmatch/internal/boxapi"
	"github.com/shopmind/attrmatch/internal/listings"
	"github.com/shopmind/attrmatch/pkg/attrmatch"
	"github.com/shopmind/attrmatch/pkg/attrmatch/config"
	"github.com/shopmind/attrmatch/pkg/attrmatch/report"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store/memstore"
	"github.com/shopmind/attrmatch/pkg/attrmatch/store/sqlite"
)

func main() {
	var (
		dbPath       = flag.String("db", "", "SQLite database path (optional; in-memory state when omitted)")
		listingsPath = flag.String("listings", "", "Listings file, JSON or saved HTML page (required)")
		filtersDir   = flag.String("filters", "", "Filter definitions directory (optional)")
		configPath   = flag.String("config", "", "Settings YAML file (optional)")
		outputPath   = flag.String("output", "", "Report output path (default derived from category name)")
		categoryName = flag.String("category", "", "Category name override (default from the API)")
		baseURL      = flag.String("api", "", "Product-detail API base URL (overrides config)")
		verbose      = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if *listingsPath == "" {
		log.Fatal("--listings required")
	}

	loader := config.Loader{
		SettingsPath: *configPath,
		FiltersDir:   *filtersDir,
	}
	components, err := loader.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if *baseURL != "" {
		components.Settings.API.BaseURL = *baseURL
	}
	if components.Settings.API.BaseURL == "" {
		log.Fatal("API base URL required (set --api or api.base_url in config)")
	}

	zapCfg := zap.NewProductionConfig()
	if *verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatal("Failed to build logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	if *dbPath != "" {
		st, err = sqlite.Open(ctx, *dbPath)
		if err != nil {
			log.Fatal("Failed to open database:", err)
		}
	} else {
		st = memstore.New()
	}
	defer st.Close()

	fetcher := boxapi.New(boxapi.Options{
		BaseURL:       components.Settings.API.BaseURL,
		UserAgent:     components.Settings.API.UserAgent,
		RatePerSecond: components.Settings.API.RatePerSecond,
		Burst:         components.Settings.API.Burst,
		Timeout:       time.Duration(components.Settings.API.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})

	skus, err := loadListings(*listingsPath)
	if err != nil {
		log.Fatal("Failed to load listings:", err)
	}
	log.Printf("Loaded %d listings from %s", len(skus), *listingsPath)

	// The first SKU establishes the category context and the friendly-name
	// mappings the filter pre-seed needs; the processing loop fetches it
	// again as part of its normal path.
	first, err := fetcher.FetchAttributeData(ctx, skus[0].ID)
	if err != nil {
		log.Fatal("Failed to fetch category info from first SKU:", err)
	}
	catID, catName := first.CategoryID, first.CategoryName
	if *categoryName != "" {
		catName = *categoryName
	}
	log.Printf("Processing category: %s (ID %d)", catName, catID)

	output := *outputPath
	if output == "" {
		output = "process_data_" + strings.ReplaceAll(strings.ToLower(catName), " ", "_") + ".json"
	}
	if prev, err := report.Load(output); err != nil {
		log.Fatal("Failed to read previous report:", err)
	} else if prev != nil {
		log.Printf("Previous report found (run %s, %d SKUs recorded); resuming from persisted state",
			prev.RunID, len(prev.ProcessedSet()))
	}

	processor := attrmatch.New(attrmatch.Options{
		Fetcher:          fetcher,
		Store:            st,
		Report:           report.NewWriter(output),
		Logger:           logger,
		ExcludedKeywords: components.Settings.ExcludedKeywords,
		Filters:          components.Filters,
	})

	if err := processor.LoadState(ctx); err != nil {
		log.Fatal("Failed to load persisted state:", err)
	}

	processor.Categories().Register(catID, catName)
	processor.RegisterFriendlyNames(first.Attributes)
	if n, err := processor.PreloadFilters(ctx, catName); err != nil {
		log.Fatal("Failed to pre-seed filter rules:", err)
	} else if n > 0 {
		log.Printf("Pre-generated %d rules from filter definitions", n)
	}

	runErr := processor.Run(ctx, catID, catName, skus)

	rep := processor.BuildReport()
	if runErr != nil {
		if ctx.Err() != nil {
			log.Printf("Interrupted; %d SKUs processed so far", rep.Summary.TotalProcessed)
		} else {
			log.Fatal("Processing failed:", runErr)
		}
	}

	log.Printf("Done: %d SKUs processed, %d fetches, %d rule matches, %d rules, %d unlearnable",
		rep.Summary.TotalProcessed, rep.Summary.HTTPRequests, rep.Summary.RuleMatches,
		rep.Summary.RulesLearned, rep.Summary.UnlearnableCount)
	log.Printf("Report: %s", output)
}

func loadListings(path string) ([]attrmatch.SKU, error) {
	if strings.HasSuffix(strings.ToLower(path), ".html") || strings.HasSuffix(strings.ToLower(path), ".htm") {
		return listings.LoadFromHTML(path)
	}
	return listings.LoadFromJSON(path)
}
