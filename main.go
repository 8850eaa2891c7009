package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"iacollector/catalog"
	"iacollector/config"
	"iacollector/fetch"
	"iacollector/httputil"
	"iacollector/logging"
	"iacollector/models"
	"iacollector/scheduler"
	"iacollector/services"
	"iacollector/storage"
	"iacollector/workers"
)

var (
	mode       = flag.String("mode", "run", "Operation: resolve|fetch|load|hosts|run|daemon|status")
	cities     = flag.String("cities", "", "Comma-separated city names (defaults to the configured list)")
	paths      = flag.String("paths", "", "Path selector: all|data|visualisations")
	dest       = flag.String("dest", "", "Destination root for downloaded files")
	selected   = flag.Bool("selected", false, "Load the curated detail column subset")
	includeCal = flag.Bool("calendar", false, "Include calendar archives in the load")
	policy     = flag.String("policy", "", "Bad value policy: null|drop")
	force      = flag.Bool("force", false, "Re-download files that already exist")
	workerN    = flag.Int("workers", 0, "Concurrent city pipelines")
	settings   = flag.String("config", "", "Path to YAML settings file")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load(*settings)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg)

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting iacollector...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	journal, err := storage.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer journal.Close()
	log.Printf("Journal database: %s", cfg.JournalPath)

	// Postgres is only dialed for modes that load or aggregate; fetch,
	// resolve and status work without database credentials.
	var stores *storage.Stores
	switch *mode {
	case "load", "hosts", "run", "daemon":
		stores, err = storage.NewStores(ctx, cfg.DetailDBURL, cfg.SimpleDBURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer stores.Close()
		log.Printf("Detail store: %s", maskConnectionString(cfg.DetailDBURL))
		log.Printf("Simple store: %s", maskConnectionString(cfg.SimpleDBURL))
	}

	clients := httputil.NewClients()
	provider := catalog.NewScraper(cfg.Catalog, clients.Catalog)
	fetcher := fetch.NewFetcher(clients.Download, cfg.Catalog.BaseURL, cfg.Fetch.DelayMS)
	pipeline := services.NewPipeline(cfg, provider, fetcher, stores, journal)

	opts := pipeline.DefaultOptions()
	opts.Force = *force
	if !opts.Paths.Valid() {
		log.Fatalf("Invalid path selector %q (want all, data or visualisations)", opts.Paths)
	}

	switch *mode {
	case "resolve":
		result, err := pipeline.Resolve(ctx, cfg.Cities)
		if err != nil {
			log.Fatalf("Resolve failed: %v", err)
		}
		for _, c := range result.Cities {
			fmt.Printf("%-28s %-12s %s\n", c.Folder, c.LatestDate, c.DisplayName)
		}
		for _, rerr := range result.Errors {
			fmt.Printf("!! %v\n", rerr)
		}
		if !result.OK() {
			os.Exit(1)
		}

	case "fetch":
		reports, err := pipeline.Fetch(ctx, nil, opts)
		if err != nil {
			log.Fatalf("Fetch failed: %v", err)
		}
		printReports(reports)

	case "load":
		reports, err := pipeline.Load(ctx, nil, opts)
		if err != nil {
			log.Fatalf("Load failed: %v", err)
		}
		printReports(reports)

	case "hosts":
		reports, err := pipeline.BuildHosts(ctx, nil)
		if err != nil {
			log.Fatalf("Host rebuild failed: %v", err)
		}
		printReports(reports)

	case "run":
		reports, err := pipeline.Run(ctx, nil, opts)
		if err != nil {
			log.Fatalf("Run failed: %v", err)
		}
		printReports(reports)

	case "status":
		if err := printStatus(journal); err != nil {
			log.Fatalf("Status failed: %v", err)
		}

	case "daemon":
		runDaemon(ctx, cfg, pipeline, journal)

	default:
		log.Fatalf("Unknown mode %q", *mode)
	}
}

// applyFlags layers CLI flags over the loaded configuration so one-shot
// modes and the daemon see the same effective settings.
func applyFlags(cfg *config.Config) {
	if *cities != "" {
		cfg.Cities = splitCities(*cities)
	}
	if *paths != "" {
		cfg.Paths = *paths
	}
	if *dest != "" {
		cfg.DestRoot = *dest
	}
	if *workerN > 0 {
		cfg.Workers = *workerN
	}
	if *selected {
		cfg.Load.SelectedDetail = true
	}
	if *includeCal {
		cfg.Load.IncludeCalendar = true
	}
	if *policy != "" {
		if *policy != "null" && *policy != "drop" {
			log.Fatalf("Invalid parse policy %q (want null or drop)", *policy)
		}
		cfg.Load.Policy = *policy
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, pipeline *services.Pipeline, journal *storage.Journal) {
	sched := scheduler.New(cfg, pipeline, journal)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.Mirror.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			Endpoint:        cfg.Mirror.Endpoint,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
			KeyPrefix:       cfg.Mirror.KeyPrefix,
		})
		if err != nil {
			log.Printf("Warning: mirror disabled: %v", err)
		} else {
			mirrorWorker := workers.NewMirrorWorker(journal, uploader, cfg.DestRoot)
			mirrorWorker.SetLogger(func(level models.LogLevel, source, message string) {
				journal.Log(nil, level, source, message)
			})
			go mirrorWorker.Run(ctx, 20, 2*time.Minute)
			sched.SetMirrorWorker(mirrorWorker)
			log.Printf("Mirror worker started: s3://%s/%s", cfg.Mirror.Bucket, cfg.Mirror.KeyPrefix)
		}
	} else {
		log.Println("No mirror bucket configured, mirror worker disabled")
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")
	<-ctx.Done()
	sched.Stop()
	log.Println("Goodbye!")
}

func printReports(reports []models.CityReport) {
	for _, r := range reports {
		if r.Error != "" {
			fmt.Printf("%-28s FAILED: %s\n", r.City, r.Error)
			continue
		}
		fmt.Printf("%-28s fetched %d, skipped %d, failed %d, rows %d (dropped %d, nulled %d), hosts %d\n",
			r.City, r.FilesFetched, r.FilesSkipped, len(r.FilesFailed),
			r.RowsLoaded, r.RowsDropped, r.ValuesNulled, r.HostsBuilt)
	}
}

func printStatus(journal *storage.Journal) error {
	runs, err := journal.GetRecentRuns(10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, run := range runs {
		finished := "running"
		if run.FinishedAt != nil {
			finished = run.FinishedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("#%-4d %-6s %-9s started %s finished %s cities %d/%d files %d fetched/%d skipped/%d failed rows %d\n",
			run.ID, run.Mode, run.Status,
			run.StartedAt.Format("2006-01-02 15:04:05"), finished,
			run.CitiesCompleted, run.CitiesRequested,
			run.FilesFetched, run.FilesSkipped, run.FilesFailed, run.RowsLoaded)
		if run.Error != "" {
			fmt.Printf("      error: %s\n", run.Error)
		}
	}

	last, err := journal.GetLastRun()
	if err != nil || last == nil {
		return err
	}
	events, err := journal.GetFileEventsForRun(last.ID)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Printf("\nFiles from run #%d:\n", last.ID)
		for _, ev := range events {
			fmt.Printf("  %-9s %s/%s/%s/%s (%d bytes)\n",
				ev.Action, ev.City, ev.Date, ev.PathKind, ev.File, ev.Bytes)
		}
	}
	return nil
}

func splitCities(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// maskConnectionString hides the password portion of a URL-style
// connection string for logging.
func maskConnectionString(connStr string) string {
	schemeEnd := strings.Index(connStr, "://")
	if schemeEnd < 0 {
		return connStr
	}
	rest := connStr[schemeEnd+3:]
	at := strings.Index(rest, "@")
	if at < 0 {
		return connStr
	}
	userinfo := rest[:at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return connStr
	}
	return connStr[:schemeEnd+3] + userinfo[:colon] + ":****" + rest[at:]
}
