package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"iacollector/catalog"
	"iacollector/config"
	"iacollector/fetch"
	"iacollector/models"
	"iacollector/storage"
	"iacollector/transform"
)

// Pipeline drives the collection stages across cities: fetch+extract,
// schema provisioning, transform+load, host aggregation. Each city runs
// its stages in order; cities run concurrently under a bounded pool.
type Pipeline struct {
	cfg         *config.Config
	catalog     catalog.Provider
	fetcher     *fetch.Fetcher
	stores      *storage.Stores
	provisioner *storage.Provisioner
	journal     *storage.Journal
	paused      atomic.Bool
}

func NewPipeline(cfg *config.Config, provider catalog.Provider, fetcher *fetch.Fetcher, stores *storage.Stores, journal *storage.Journal) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		catalog:     provider,
		fetcher:     fetcher,
		stores:      stores,
		provisioner: storage.NewProvisioner(),
		journal:     journal,
	}
}

// stages selects which pipeline phases an operation runs. Schema
// provisioning is implied by load and hosts.
type stages struct {
	fetch bool
	load  bool
	hosts bool
}

// DefaultOptions builds run options from the loaded configuration.
// Callers override individual fields from CLI flags.
func (p *Pipeline) DefaultOptions() models.RunOptions {
	return models.RunOptions{
		DestRoot: p.cfg.DestRoot,
		Paths:    models.PathSelector(p.cfg.Paths),
		Workers:  p.cfg.Workers,
		Load: models.LoadOptions{
			SelectedDetail:  p.cfg.Load.SelectedDetail,
			IncludeCalendar: p.cfg.Load.IncludeCalendar,
			Policy:          models.ParsePolicy(p.cfg.Load.Policy),
		},
	}
}

// Resolve matches the queries against the live catalog without running
// any pipeline stage.
func (p *Pipeline) Resolve(ctx context.Context, queries []string) (*ResolveResult, error) {
	cat, err := p.catalog.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return ResolveAll(queries, cat.Entries), nil
}

// Run executes the full pipeline for the queried cities.
func (p *Pipeline) Run(ctx context.Context, queries []string, opts models.RunOptions) ([]models.CityReport, error) {
	return p.execute(ctx, "run", queries, opts, stages{fetch: true, load: true, hosts: true})
}

// Fetch downloads and extracts files without touching the databases.
func (p *Pipeline) Fetch(ctx context.Context, queries []string, opts models.RunOptions) ([]models.CityReport, error) {
	return p.execute(ctx, "fetch", queries, opts, stages{fetch: true})
}

// Load transforms and loads already-fetched files. When the catalog is
// unreachable it falls back to the cities present under the dest root,
// loading each one's newest local date.
func (p *Pipeline) Load(ctx context.Context, queries []string, opts models.RunOptions) ([]models.CityReport, error) {
	return p.execute(ctx, "load", queries, opts, stages{load: true})
}

// BuildHosts rebuilds the hosts tables from the loaded listings.
func (p *Pipeline) BuildHosts(ctx context.Context, queries []string) ([]models.CityReport, error) {
	return p.execute(ctx, "hosts", queries, p.DefaultOptions(), stages{hosts: true})
}

// RunAll runs the full pipeline for the configured city list. Used by
// the scheduler; a missing city list is a no-op, not an error.
func (p *Pipeline) RunAll(ctx context.Context) error {
	if len(p.cfg.Cities) == 0 {
		log.Println("Pipeline: no cities configured, skipping run")
		return nil
	}
	_, err := p.Run(ctx, p.cfg.Cities, p.DefaultOptions())
	return err
}

func (p *Pipeline) execute(ctx context.Context, mode string, queries []string, opts models.RunOptions, st stages) ([]models.CityReport, error) {
	if p.paused.Load() {
		log.Println("Pipeline: paused, skipping run")
		return nil, nil
	}
	if len(queries) == 0 {
		queries = p.cfg.Cities
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no cities requested")
	}
	if (st.load || st.hosts) && p.stores == nil {
		return nil, fmt.Errorf("no database configured for %s", mode)
	}

	// Every query must resolve before any work starts.
	offlineOK := !st.fetch
	cities, err := p.resolveCities(ctx, queries, opts.DestRoot, offlineOK)
	if err != nil {
		return nil, err
	}

	run := &models.CollectRun{
		RunUUID:         uuid.NewString(),
		Mode:            mode,
		StartedAt:       time.Now(),
		Status:          models.RunStatusRunning,
		CitiesRequested: len(cities),
	}
	runID, err := p.journal.CreateRun(run)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	run.ID = runID

	p.log(runID, models.LogLevelInfo, "pipeline", fmt.Sprintf("Starting %s for %d cities", mode, len(cities)))

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	reports := make([]models.CityReport, len(cities))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i, city := range cities {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, city models.CatalogCity) {
			defer wg.Done()
			defer func() { <-sem }()
			reports[i] = p.runCity(ctx, runID, city, opts, st)
		}(i, city)
	}
	wg.Wait()

	p.finalizeRun(run, reports)
	return reports, nil
}

// runCity executes the selected stages for one city. A schema failure
// aborts the city; file failures are counted and the city continues.
func (p *Pipeline) runCity(ctx context.Context, runID int64, city models.CatalogCity, opts models.RunOptions, st stages) models.CityReport {
	report := models.CityReport{City: city.Folder, Schema: city.Schema, Resolved: true}
	date := city.LatestDate

	if st.fetch {
		p.log(runID, models.LogLevelInfo, city.Folder, fmt.Sprintf("Fetching %s files for %s", opts.Paths, city.DisplayName))
		fr, err := p.fetcher.FetchCity(ctx, city, opts.Paths, opts.DestRoot, opts.Force)
		if err != nil {
			report.Error = err.Error()
			p.log(runID, models.LogLevelError, city.Folder, fmt.Sprintf("Fetch failed: %v", err))
			return report
		}
		report.AddFetch(fr)
		for _, res := range fr.Succeeded {
			p.recordFileEvent(runID, city, date, res, models.FileFetched)
		}
		for _, res := range fr.Skipped {
			p.recordFileEvent(runID, city, date, res, models.FileSkipped)
		}
		for _, res := range fr.Failed {
			p.recordFileEvent(runID, city, date, res, models.FileFailed)
			p.log(runID, models.LogLevelWarn, city.Folder, fmt.Sprintf("Fetch failed for %s: %s", res.File, res.Error))
		}

		for _, kind := range opts.Paths.Kinds() {
			if kind != models.PathData {
				continue
			}
			dir := filepath.Join(opts.DestRoot, city.Folder, date, string(kind))
			er := fetch.ExtractDir(ctx, dir)
			for _, res := range er.Extracted {
				p.recordFileEvent(runID, city, date, res, models.FileExtracted)
			}
			for _, res := range er.Failed {
				report.FilesFailed = append(report.FilesFailed, res.File)
				p.recordFileEvent(runID, city, date, res, models.FileFailed)
				p.log(runID, models.LogLevelWarn, city.Folder, fmt.Sprintf("Extract failed for %s: %s", res.File, res.Error))
			}
		}
	}

	if st.load && date == "" {
		d, err := fetch.LatestLocalDate(opts.DestRoot, city.Folder)
		if err != nil {
			report.Error = err.Error()
			p.log(runID, models.LogLevelError, city.Folder, fmt.Sprintf("No local snapshot: %v", err))
			return report
		}
		date = d
	}

	if st.load || st.hosts {
		if err := p.provisioner.EnsureCity(ctx, p.stores, city.Schema); err != nil {
			report.Error = err.Error()
			p.log(runID, models.LogLevelError, city.Folder, fmt.Sprintf("Schema provisioning failed: %v", err))
			return report
		}
		report.SchemaOK = true
	}

	if st.load {
		p.loadCity(ctx, runID, city, date, opts, &report)
	}

	if st.hosts {
		p.buildCityHosts(ctx, runID, city, &report)
	}

	return report
}

// loadCity loads every published file present on disk for the city's
// snapshot date. A missing file is normal (narrower fetch selectors,
// partial snapshots); a failing table load is counted and skipped.
func (p *Pipeline) loadCity(ctx context.Context, runID int64, city models.CatalogCity, date string, opts models.RunOptions, report *models.CityReport) {
	for _, kind := range opts.Paths.Kinds() {
		store := p.stores.ByPath(kind)
		for _, file := range models.FilesFor(kind) {
			spec, ok := transform.SpecFor(file, opts.Load)
			if !ok {
				continue
			}

			local := fetch.LocalPath(opts.DestRoot, city, date, kind, file)
			if file.Compressed() {
				local = fetch.ExtractedName(local)
			}
			if _, err := os.Stat(local); err != nil {
				continue
			}

			lr, err := store.LoadFile(ctx, local, city.Schema, spec, opts.Load.EffectivePolicy())
			if err != nil {
				report.FilesFailed = append(report.FilesFailed, string(file))
				p.log(runID, models.LogLevelError, city.Folder, fmt.Sprintf("Load failed for %s: %v", file, err))
				continue
			}
			report.AddLoad(*lr)
			p.log(runID, models.LogLevelInfo, city.Folder, fmt.Sprintf("Loaded %d rows from %s into %s.%s", lr.RowsLoaded, filepath.Base(local), city.Schema, lr.Table))
		}
	}
}

func (p *Pipeline) buildCityHosts(ctx context.Context, runID int64, city models.CatalogCity, report *models.CityReport) {
	builds := []struct {
		store    *storage.Store
		listings transform.TableSpec
	}{
		{p.stores.Detail, transform.DetailListings},
		{p.stores.Simple, transform.SimpleListings},
	}

	for _, b := range builds {
		n, err := b.store.BuildHosts(ctx, city.Schema, b.listings)
		if err != nil {
			if report.Error == "" {
				report.Error = err.Error()
			}
			p.log(runID, models.LogLevelError, city.Folder, fmt.Sprintf("Host rebuild failed: %v", err))
			continue
		}
		report.HostsBuilt += int(n)
	}

	if report.HostsBuilt > 0 {
		p.log(runID, models.LogLevelInfo, city.Folder, fmt.Sprintf("Rebuilt hosts: %d rows", report.HostsBuilt))
	}
}

// resolveCities turns queries into catalog entries, erroring out on the
// first ambiguous or unknown name. When the catalog is unreachable and
// the operation can work offline, the folders under destRoot stand in
// for the catalog.
func (p *Pipeline) resolveCities(ctx context.Context, queries []string, destRoot string, offlineOK bool) ([]models.CatalogCity, error) {
	cat, err := p.catalog.Catalog(ctx)
	if err != nil {
		if !offlineOK {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		log.Printf("Pipeline: catalog unavailable (%v), resolving against local folders", err)
		entries, lerr := localEntries(destRoot)
		if lerr != nil {
			return nil, lerr
		}
		return resolveStrict(queries, entries)
	}
	return resolveStrict(queries, cat.Entries)
}

func resolveStrict(queries []string, entries []models.CatalogCity) ([]models.CatalogCity, error) {
	result := ResolveAll(queries, entries)
	if !result.OK() {
		return nil, errors.Join(result.Errors...)
	}
	return result.Cities, nil
}

// localEntries builds stand-in catalog entries from the city folders
// already on disk. Dates stay empty; the loader discovers the newest
// local snapshot per city.
func localEntries(destRoot string) ([]models.CatalogCity, error) {
	dirs, err := os.ReadDir(destRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", destRoot, err)
	}
	var entries []models.CatalogCity
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		folder := d.Name()
		entries = append(entries, models.CatalogCity{
			DisplayName: folder,
			CitySlug:    folder,
			Folder:      folder,
			Schema:      folder,
		})
	}
	return entries, nil
}

func (p *Pipeline) finalizeRun(run *models.CollectRun, reports []models.CityReport) {
	now := time.Now()
	run.FinishedAt = &now

	for i := range reports {
		r := &reports[i]
		run.FilesFetched += r.FilesFetched
		run.FilesSkipped += r.FilesSkipped
		run.FilesFailed += len(r.FilesFailed)
		run.RowsLoaded += r.RowsLoaded
		run.RowsDropped += r.RowsDropped
		if r.Error != "" {
			run.CitiesFailed++
			if run.Error == "" {
				run.Error = r.City + ": " + r.Error
			}
		} else {
			run.CitiesCompleted++
		}
	}

	run.Status = models.RunStatusCompleted
	if len(reports) > 0 && run.CitiesFailed == len(reports) {
		run.Status = models.RunStatusFailed
	}

	if err := p.journal.UpdateRun(run); err != nil {
		log.Printf("Pipeline: failed to update run %d: %v", run.ID, err)
	}

	p.log(run.ID, models.LogLevelInfo, "pipeline", fmt.Sprintf(
		"Finished %s: %d/%d cities, %d fetched, %d skipped, %d failed, %d rows loaded",
		run.Mode, run.CitiesCompleted, run.CitiesRequested,
		run.FilesFetched, run.FilesSkipped, run.FilesFailed, run.RowsLoaded))
}

func (p *Pipeline) recordFileEvent(runID int64, city models.CatalogCity, date string, res models.FileResult, action models.FileAction) {
	ev := &models.FileEvent{
		RunID:    &runID,
		City:     city.Folder,
		Date:     date,
		PathKind: filepath.Base(filepath.Dir(res.Path)),
		File:     res.File,
		Action:   action,
		Bytes:    res.Bytes,
		SHA256:   res.SHA256,
		Error:    res.Error,
	}
	if err := p.journal.RecordFileEvent(ev); err != nil {
		log.Printf("Pipeline: failed to record file event for %s: %v", res.File, err)
	}
}

func (p *Pipeline) log(runID int64, level models.LogLevel, source, message string) {
	log.Printf("[%s] %s: %s", level, source, message)
	if err := p.journal.Log(&runID, level, source, message); err != nil {
		log.Printf("Pipeline: journal log failed: %v", err)
	}
}

// HandleCommand dispatches one queued operator command.
func (p *Pipeline) HandleCommand(cmd *models.Command) error {
	params, err := p.journal.ParseCommandParams(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	switch cmd.Command {
	case models.CmdCollectNow:
		return p.RunAll(ctx)
	case models.CmdFetchCity:
		opts := p.DefaultOptions()
		if params.Paths != "" {
			opts.Paths = models.PathSelector(params.Paths)
		}
		queries := p.cfg.Cities
		if params.City != "" {
			queries = []string{params.City}
		}
		_, err := p.Fetch(ctx, queries, opts)
		return err
	case models.CmdBuildHosts:
		queries := p.cfg.Cities
		if params.City != "" {
			queries = []string{params.City}
		}
		_, err := p.BuildHosts(ctx, queries)
		return err
	case models.CmdPause:
		p.paused.Store(true)
		log.Println("Pipeline paused")
	case models.CmdResume:
		p.paused.Store(false)
		log.Println("Pipeline resumed")
	}

	return nil
}

func (p *Pipeline) IsPaused() bool {
	return p.paused.Load()
}

func (p *Pipeline) MarshalStatus() ([]byte, error) {
	status := map[string]interface{}{
		"paused": p.paused.Load(),
		"cities": p.cfg.Cities,
		"paths":  p.cfg.Paths,
	}
	return json.Marshal(status)
}
