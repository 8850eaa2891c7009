package fetch

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeArchive(t *testing.T, dir, name, content string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExtractedName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"listings.csv.gz", "listings_detail.csv"},
		{"reviews.csv.gz", "reviews_detail.csv"},
		{"calendar.gz", "calendar_detail.csv"},
	}
	for _, c := range cases {
		if got := ExtractedName(c.in); got != c.want {
			t.Errorf("ExtractedName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractDir(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "listings.csv.gz", "id,name\n1,Canal Flat\n")
	writeArchive(t, dir, "reviews.csv.gz", "listing_id,id\n1,99\n")

	report := ExtractDir(context.Background(), dir)
	if len(report.Extracted) != 2 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %d extracted %d failed", len(report.Extracted), len(report.Failed))
	}

	data, err := os.ReadFile(filepath.Join(dir, "listings_detail.csv"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "id,name\n1,Canal Flat\n" {
		t.Fatalf("unexpected extracted content %q", data)
	}

	// Second pass skips everything already extracted.
	report = ExtractDir(context.Background(), dir)
	if len(report.Skipped) != 2 || len(report.Extracted) != 0 {
		t.Fatalf("rerun should skip, got %d skipped %d extracted", len(report.Skipped), len(report.Extracted))
	}
}

func TestExtractDir_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	writeArchive(t, dir, "listings.csv.gz", "id\n1\n")
	if err := os.WriteFile(filepath.Join(dir, "calendar.csv.gz"), []byte("not gzip at all"), 0644); err != nil {
		t.Fatal(err)
	}

	report := ExtractDir(context.Background(), dir)
	if len(report.Extracted) != 1 {
		t.Fatalf("good archive should still extract, got %d", len(report.Extracted))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("corrupt archive should fail alone, got %d failures", len(report.Failed))
	}
	if report.Failed[0].Error == "" {
		t.Fatalf("failure must carry an error")
	}

	if _, err := os.Stat(filepath.Join(dir, "calendar_detail.csv")); !os.IsNotExist(err) {
		t.Fatalf("corrupt extraction must leave nothing at the final path")
	}
}
