package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"iacollector/errs"
	"iacollector/transform"
)

// BuildHosts rebuilds schema.hosts from schema.listings: one row per
// distinct host carrying the listings table's host attributes plus that
// host's listing count within the city. Runs inside a transaction so
// readers never observe a half-built table.
func (s *Store) BuildHosts(ctx context.Context, schema string, listings transform.TableSpec) (int64, error) {
	spec := transform.HostsSpec(listings)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &errs.LoadError{Table: spec.Name, Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{schema, spec.Name}.Sanitize()); err != nil {
		return 0, &errs.LoadError{Table: spec.Name, Err: err}
	}

	tag, err := tx.Exec(ctx, buildHostsSQL(schema, spec))
	if err != nil {
		return 0, &errs.LoadError{Table: spec.Name, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &errs.LoadError{Table: spec.Name, Err: err}
	}
	return tag.RowsAffected(), nil
}

// buildHostsSQL relies on city_listings_count being the spec's last column
// so the computed count lines up with the target list.
func buildHostsSQL(schema string, spec transform.TableSpec) string {
	var target, source []string
	for _, c := range spec.Columns {
		q := pgx.Identifier{c.Name}.Sanitize()
		target = append(target, q)
		if c.Name != "city_listings_count" {
			source = append(source, q)
		}
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT DISTINCT ON (host_id) %s, COUNT(*) OVER (PARTITION BY host_id) FROM %s WHERE host_id IS NOT NULL ORDER BY host_id",
		pgx.Identifier{schema, spec.Name}.Sanitize(),
		strings.Join(target, ", "),
		strings.Join(source, ", "),
		pgx.Identifier{schema, "listings"}.Sanitize(),
	)
}
