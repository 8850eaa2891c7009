package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"iacollector/config"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func testScraper() *Scraper {
	return NewScraper(config.CatalogConfig{
		PageURL: "https://insideairbnb.com/get-the-data/",
		BaseURL: "https://data.insideairbnb.com",
	}, nil)
}

func TestParseCatalogPage(t *testing.T) {
	data := loadFixture(t, "get_the_data.html")

	cat, err := testScraper().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cat.Len() != 5 {
		t.Fatalf("expected 5 entries, got %d", cat.Len())
	}

	ams := cat.Entries[0]
	if ams.DisplayName != "Amsterdam, North Holland, The Netherlands" {
		t.Fatalf("unexpected display name %q", ams.DisplayName)
	}
	if ams.Country != "the-netherlands" || ams.Region != "north-holland" || ams.CitySlug != "amsterdam" {
		t.Fatalf("unexpected path tokens %s/%s/%s", ams.Country, ams.Region, ams.CitySlug)
	}
	if ams.Folder != "amsterdam" || ams.Schema != "amsterdam" {
		t.Fatalf("unexpected folder %q schema %q", ams.Folder, ams.Schema)
	}
	if ams.LatestDate != "2024-06-10" {
		t.Fatalf("expected latest date 2024-06-10, got %s", ams.LatestDate)
	}
}

func TestParseCatalogPage_TextDateWins(t *testing.T) {
	data := loadFixture(t, "get_the_data.html")

	cat, err := testScraper().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	// Athens links carry 2024-03-18 but the page text says 25 March, 2024.
	athens, ok := cat.ByFolder("athens")
	if !ok {
		t.Fatalf("athens not found")
	}
	if athens.LatestDate != "2024-03-25" {
		t.Fatalf("expected 2024-03-25, got %s", athens.LatestDate)
	}
}

func TestParseCatalogPage_SkipsNonCityHeadings(t *testing.T) {
	data := loadFixture(t, "get_the_data.html")

	cat, err := testScraper().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if _, ok := cat.ByFolder("dublin"); ok {
		t.Fatalf("archived section should not produce an entry")
	}
	for _, e := range cat.Entries {
		if e.Folder == "contact_us" || e.Folder == "archived_data" {
			t.Fatalf("non-city heading leaked into catalog: %q", e.DisplayName)
		}
	}
}

func TestParseCatalogPage_NamesakeCities(t *testing.T) {
	data := loadFixture(t, "get_the_data.html")

	cat, err := testScraper().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	oregon, ok := cat.ByFolder("portland")
	if !ok {
		t.Fatalf("first portland missing")
	}
	if oregon.Region != "or" {
		t.Fatalf("expected first portland to keep the bare folder, got region %s", oregon.Region)
	}

	maine, ok := cat.ByFolder("portland_me")
	if !ok {
		t.Fatalf("second portland should be disambiguated as portland_me")
	}
	if maine.Region != "me" || maine.Schema != "portland_me" {
		t.Fatalf("unexpected maine entry %+v", maine)
	}
}

func TestParseCatalogPage_MultiWordCity(t *testing.T) {
	data := loadFixture(t, "get_the_data.html")

	cat, err := testScraper().Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ba, ok := cat.ByFolder("buenos_aires")
	if !ok {
		t.Fatalf("buenos aires not found")
	}
	if ba.CitySlug != "buenos-aires" {
		t.Fatalf("unexpected slug %s", ba.CitySlug)
	}
	if ba.LatestDate != "2024-05-29" {
		t.Fatalf("unexpected date %s", ba.LatestDate)
	}
}

func TestFolderToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Amsterdam, North Holland, The Netherlands", "amsterdam"},
		{"Buenos Aires, Argentina", "buenos_aires"},
		{"Washington, D.C., United States", "washington"},
		{"Twin Cities MSA, Minnesota", "twin_cities_msa"},
		{"Trentino-Alto Adige, Italy", "trentino_alto_adige"},
		{"  San  Diego , California", "san_diego"},
	}
	for _, c := range cases {
		if got := FolderToken(c.in); got != c.want {
			t.Errorf("FolderToken(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
