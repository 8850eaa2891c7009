package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"iacollector/catalog"
	"iacollector/config"
	"iacollector/errs"
	"iacollector/fetch"
	"iacollector/models"
	"iacollector/storage"
)

type staticCatalog struct {
	cat *catalog.Catalog
	err error
}

func (s *staticCatalog) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	return s.cat, s.err
}

func gzipBytes(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func testPipeline(t *testing.T, provider catalog.Provider, baseURL, destRoot string) (*Pipeline, *storage.Journal) {
	t.Helper()
	j, err := storage.NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	cfg := &config.Config{DestRoot: destRoot, Paths: "data", Workers: 2}
	fetcher := fetch.NewFetcher(http.DefaultClient, baseURL, 0)
	return NewPipeline(cfg, provider, fetcher, nil, j), j
}

func berlinCatalog() *staticCatalog {
	return &staticCatalog{cat: catalog.New([]models.CatalogCity{{
		DisplayName: "Berlin, Berlin, Germany",
		Country:     "germany",
		Region:      "berlin",
		CitySlug:    "berlin",
		Folder:      "berlin",
		Schema:      "berlin",
		LatestDate:  "2025-06-10",
	}})}
}

func TestPipelineFetch(t *testing.T) {
	listings := gzipBytes(t, "id,name\n1,Prenzlauer flat\n")
	reviews := gzipBytes(t, "listing_id,date\n1,2025-01-01\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/germany/berlin/berlin/2025-06-10/data/listings.csv.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(listings)
	})
	mux.HandleFunc("/germany/berlin/berlin/2025-06-10/data/reviews.csv.gz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(reviews)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	destRoot := t.TempDir()
	p, j := testPipeline(t, berlinCatalog(), srv.URL, destRoot)

	reports, err := p.Fetch(context.Background(), []string{"berlin"}, p.DefaultOptions())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}

	r := reports[0]
	if r.City != "berlin" || !r.Resolved {
		t.Errorf("report = %+v, want resolved berlin", r)
	}
	if r.FilesFetched != 2 {
		t.Errorf("FilesFetched = %d, want 2", r.FilesFetched)
	}
	if len(r.FilesFailed) != 1 || r.FilesFailed[0] != "calendar.csv.gz" {
		t.Errorf("FilesFailed = %v, want [calendar.csv.gz]", r.FilesFailed)
	}
	if r.Error != "" {
		t.Errorf("Error = %q, want empty", r.Error)
	}

	extracted := filepath.Join(destRoot, "berlin", "2025-06-10", "data", "listings_detail.csv")
	content, err := os.ReadFile(extracted)
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(content) != "id,name\n1,Prenzlauer flat\n" {
		t.Errorf("extracted content = %q", content)
	}

	runs, err := j.GetRecentRuns(5)
	if err != nil {
		t.Fatalf("GetRecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.Mode != "fetch" || run.Status != models.RunStatusCompleted {
		t.Errorf("run = %s/%s, want fetch/completed", run.Mode, run.Status)
	}
	if run.FilesFetched != 2 || run.FilesFailed != 1 || run.CitiesCompleted != 1 {
		t.Errorf("run counters = %+v", run)
	}

	events, err := j.GetFileEventsForRun(run.ID)
	if err != nil {
		t.Fatalf("GetFileEventsForRun: %v", err)
	}
	// 2 fetched + 1 failed download + 2 extracted
	if len(events) != 5 {
		t.Errorf("file events = %d, want 5", len(events))
	}

	pending, err := j.PendingMirrorEvents(10)
	if err != nil {
		t.Fatalf("PendingMirrorEvents: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending mirror events = %d, want 2", len(pending))
	}
}

func TestPipelineFetchSkipsExisting(t *testing.T) {
	listings := gzipBytes(t, "id,name\n1,Prenzlauer flat\n")
	reviews := gzipBytes(t, "listing_id,date\n1,2025-01-01\n")
	calendar := gzipBytes(t, "listing_id,date\n1,2025-06-11\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch filepath.Base(r.URL.Path) {
		case "listings.csv.gz":
			w.Write(listings)
		case "reviews.csv.gz":
			w.Write(reviews)
		case "calendar.csv.gz":
			w.Write(calendar)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	destRoot := t.TempDir()
	p, _ := testPipeline(t, berlinCatalog(), srv.URL, destRoot)

	if _, err := p.Fetch(context.Background(), []string{"berlin"}, p.DefaultOptions()); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	reports, err := p.Fetch(context.Background(), []string{"berlin"}, p.DefaultOptions())
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	r := reports[0]
	if r.FilesFetched != 0 || r.FilesSkipped != 3 {
		t.Errorf("second fetch: fetched %d skipped %d, want 0/3", r.FilesFetched, r.FilesSkipped)
	}
}

func TestPipelineResolutionFailsBeforeWork(t *testing.T) {
	destRoot := t.TempDir()
	p, j := testPipeline(t, berlinCatalog(), "http://unused.invalid", destRoot)

	_, err := p.Fetch(context.Background(), []string{"atlantis"}, p.DefaultOptions())
	if err == nil {
		t.Fatal("Fetch with unknown city = nil error")
	}
	if !errs.IsNotFound(err) {
		t.Errorf("error = %v, want not-found", err)
	}

	runs, err := j.GetRecentRuns(5)
	if err != nil {
		t.Fatalf("GetRecentRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0 when resolution fails", len(runs))
	}
}

func TestPipelinePauseResume(t *testing.T) {
	destRoot := t.TempDir()
	p, j := testPipeline(t, berlinCatalog(), "http://unused.invalid", destRoot)

	if err := p.HandleCommand(&models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !p.IsPaused() {
		t.Fatal("IsPaused = false after pause command")
	}

	reports, err := p.Fetch(context.Background(), []string{"berlin"}, p.DefaultOptions())
	if err != nil || reports != nil {
		t.Errorf("paused fetch = (%v, %v), want (nil, nil)", reports, err)
	}
	runs, _ := j.GetRecentRuns(5)
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0 while paused", len(runs))
	}

	if err := p.HandleCommand(&models.Command{Command: models.CmdResume}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if p.IsPaused() {
		t.Fatal("IsPaused = true after resume command")
	}
}

func TestLocalEntries(t *testing.T) {
	destRoot := t.TempDir()
	for _, dir := range []string{
		filepath.Join("amsterdam", "2025-05-01", "data"),
		filepath.Join("berlin", "2025-06-10", "data"),
	} {
		if err := os.MkdirAll(filepath.Join(destRoot, dir), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(destRoot, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := localEntries(destRoot)
	if err != nil {
		t.Fatalf("localEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Folder != "amsterdam" || entries[1].Folder != "berlin" {
		t.Errorf("folders = %s, %s", entries[0].Folder, entries[1].Folder)
	}
	if entries[1].Schema != "berlin" || entries[1].LatestDate != "" {
		t.Errorf("entry = %+v, want schema berlin and no date", entries[1])
	}
}

func TestPipelineStatus(t *testing.T) {
	destRoot := t.TempDir()
	p, _ := testPipeline(t, berlinCatalog(), "http://unused.invalid", destRoot)

	raw, err := p.MarshalStatus()
	if err != nil {
		t.Fatalf("MarshalStatus: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"paused":false`)) {
		t.Errorf("status = %s, want paused:false", raw)
	}
}
