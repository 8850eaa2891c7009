package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"iacollector/models"
)

var amsterdam = models.CatalogCity{
	DisplayName: "Amsterdam, North Holland, The Netherlands",
	Country:     "the-netherlands",
	Region:      "north-holland",
	CitySlug:    "amsterdam",
	Folder:      "amsterdam",
	Schema:      "amsterdam",
	LatestDate:  "2024-06-10",
}

func TestRemoteURL(t *testing.T) {
	got := RemoteURL("https://data.insideairbnb.com", amsterdam, "2024-06-10", models.PathData, models.FileListingsArchive)
	want := "https://data.insideairbnb.com/the-netherlands/north-holland/amsterdam/2024-06-10/data/listings.csv.gz"
	if got != want {
		t.Fatalf("RemoteURL = %s, want %s", got, want)
	}

	got = RemoteURL("https://data.insideairbnb.com/", amsterdam, "2024-06-10", models.PathVisualisations, models.FileNeighbourhoodsGeo)
	want = "https://data.insideairbnb.com/the-netherlands/north-holland/amsterdam/2024-06-10/visualisations/neighbourhoods.geojson"
	if got != want {
		t.Fatalf("RemoteURL = %s, want %s", got, want)
	}
}

func TestLocalPath(t *testing.T) {
	got := LocalPath("airbnb_data", amsterdam, "2024-06-10", models.PathData, models.FileCalendarArchive)
	want := filepath.Join("airbnb_data", "amsterdam", "2024-06-10", "data", "calendar.csv.gz")
	if got != want {
		t.Fatalf("LocalPath = %s, want %s", got, want)
	}
}

func TestTargets(t *testing.T) {
	targets, err := Targets("https://data.insideairbnb.com", "dest", amsterdam, models.SelectAll)
	if err != nil {
		t.Fatalf("Targets failed: %v", err)
	}
	if len(targets) != 7 {
		t.Fatalf("expected 7 targets for all, got %d", len(targets))
	}

	seen := make(map[string]bool)
	for _, target := range targets {
		key := target.Date + "/" + string(target.PathKind) + "/" + string(target.FileKind)
		if seen[key] {
			t.Fatalf("duplicate target %s", key)
		}
		seen[key] = true
	}

	targets, err = Targets("https://data.insideairbnb.com", "dest", amsterdam, models.SelectData)
	if err != nil {
		t.Fatalf("Targets failed: %v", err)
	}
	if len(targets) != 3 {
		t.Fatalf("expected 3 data targets, got %d", len(targets))
	}
	for _, target := range targets {
		if !target.FileKind.Compressed() {
			t.Fatalf("data path yielded uncompressed file %s", target.FileKind)
		}
	}
}

func TestTargets_NoDate(t *testing.T) {
	city := amsterdam
	city.LatestDate = ""
	if _, err := Targets("https://x", "dest", city, models.SelectData); err == nil {
		t.Fatalf("expected error for city without a date")
	}
}

func TestLatestLocalDate(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"2024-03-05", "2024-06-10", "not-a-date"} {
		if err := os.MkdirAll(filepath.Join(root, "amsterdam", d), 0755); err != nil {
			t.Fatal(err)
		}
	}

	got, err := LatestLocalDate(root, "amsterdam")
	if err != nil {
		t.Fatalf("LatestLocalDate failed: %v", err)
	}
	if got != "2024-06-10" {
		t.Fatalf("expected 2024-06-10, got %s", got)
	}

	if _, err := LatestLocalDate(root, "berlin"); err == nil {
		t.Fatalf("expected error for missing city dir")
	}
}
