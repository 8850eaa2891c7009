package storage

import (
	"testing"

	"iacollector/models"
	"iacollector/transform"
)

func TestCreateTableSQL(t *testing.T) {
	got := createTableSQL("amsterdam", transform.Neighbourhoods)
	want := `CREATE TABLE IF NOT EXISTS "amsterdam"."neighbourhoods" ("neighbourhood_group" text, "neighbourhood" text)`
	if got != want {
		t.Fatalf("createTableSQL =\n%s\nwant\n%s", got, want)
	}

	got = createTableSQL("amsterdam", transform.DetailReviews)
	want = `CREATE TABLE IF NOT EXISTS "amsterdam"."reviews" ("id" bigint, "listing_id" bigint, "date" date, "reviewer_id" bigint, "reviewer_name" text, "comments" text, PRIMARY KEY ("id"))`
	if got != want {
		t.Fatalf("createTableSQL =\n%s\nwant\n%s", got, want)
	}
}

func TestTableSets(t *testing.T) {
	names := func(specs []transform.TableSpec) []string {
		out := make([]string, len(specs))
		for i, s := range specs {
			out[i] = s.Name
		}
		return out
	}

	detail := names(DetailTables())
	wantDetail := []string{"listings", "reviews", "calendar", "neighbourhoods", "hosts"}
	if len(detail) != len(wantDetail) {
		t.Fatalf("detail tables = %v", detail)
	}
	for i := range wantDetail {
		if detail[i] != wantDetail[i] {
			t.Fatalf("detail tables = %v, want %v", detail, wantDetail)
		}
	}

	simple := names(SimpleTables())
	wantSimple := []string{"listings", "reviews", "neighbourhoods", "hosts"}
	if len(simple) != len(wantSimple) {
		t.Fatalf("simple tables = %v", simple)
	}
	for i := range wantSimple {
		if simple[i] != wantSimple[i] {
			t.Fatalf("simple tables = %v, want %v", simple, wantSimple)
		}
	}

	if len(TablesFor(models.PathData)) != 5 {
		t.Fatal("data path should map to the detail table set")
	}
	if len(TablesFor(models.PathVisualisations)) != 4 {
		t.Fatal("visualisations path should map to the simple table set")
	}
}

func TestProvisionerLocks(t *testing.T) {
	p := NewProvisioner()
	a1 := p.lockFor("amsterdam")
	a2 := p.lockFor("amsterdam")
	b := p.lockFor("berlin")

	if a1 != a2 {
		t.Fatal("same schema must share one lock")
	}
	if a1 == b {
		t.Fatal("different schemas must not share a lock")
	}
}
