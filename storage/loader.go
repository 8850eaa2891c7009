package storage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"

	"iacollector/errs"
	"iacollector/models"
	"iacollector/transform"
)

// LoadFile transforms one CSV file and loads it into schema.<table> on this
// store. Tables with a primary key are upserted batch-wise; a matching row
// keeps its old value wherever the new row carries NULL. Tables without one
// are replaced wholesale inside a transaction.
func (s *Store) LoadFile(ctx context.Context, path, schema string, spec transform.TableSpec, policy models.ParsePolicy) (*models.LoadReport, error) {
	report := &models.LoadReport{Table: spec.Name}

	var res *transform.Result
	var err error
	if spec.HasPrimaryKey() {
		res, err = s.loadUpsert(ctx, path, schema, spec, policy, report)
	} else {
		res, err = s.loadReplace(ctx, path, schema, spec, policy, report)
	}
	if res != nil {
		report.RowsDropped = res.RowsDropped
		report.ValuesNulled = res.ValuesNulled
		if len(res.UnknownHeaders) > 0 {
			log.Printf("Loader: %s.%s: ignoring %d unknown columns: %s",
				schema, spec.Name, len(res.UnknownHeaders), strings.Join(res.UnknownHeaders, ", "))
		}
	}
	return report, err
}

func (s *Store) loadUpsert(ctx context.Context, path, schema string, spec transform.TableSpec, policy models.ParsePolicy, report *models.LoadReport) (*transform.Result, error) {
	sql := upsertSQL(schema, spec)
	return transform.File(ctx, path, spec, policy, func(rows [][]any) error {
		loaded, failed, err := s.execBatch(ctx, sql, rows)
		report.RowsLoaded += loaded
		report.RowsFailed += failed
		if err != nil {
			log.Printf("Loader: %s.%s: %d rows failed: %v", schema, spec.Name, failed, err)
		}
		return nil
	})
}

// execBatch sends one statement per row over a single round trip. The batch
// runs in an implicit transaction, so any row error voids all of it; the
// fallback replays the rows individually to isolate the bad ones.
func (s *Store) execBatch(ctx context.Context, sql string, rows [][]any) (int, int, error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(sql, row...)
	}
	br := s.pool.SendBatch(ctx, batch)
	var batchErr error
	for range rows {
		if _, err := br.Exec(); err != nil {
			batchErr = err
			break
		}
	}
	if err := br.Close(); err != nil && batchErr == nil {
		batchErr = err
	}
	if batchErr == nil {
		return len(rows), 0, nil
	}

	loaded, failed := 0, 0
	var lastErr error
	for _, row := range rows {
		if _, err := s.pool.Exec(ctx, sql, row...); err != nil {
			failed++
			lastErr = err
			continue
		}
		loaded++
	}
	return loaded, failed, lastErr
}

func (s *Store) loadReplace(ctx context.Context, path, schema string, spec transform.TableSpec, policy models.ParsePolicy, report *models.LoadReport) (*transform.Result, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &errs.LoadError{Table: spec.Name, Err: err}
	}
	defer tx.Rollback(ctx)

	table := pgx.Identifier{schema, spec.Name}
	if _, err := tx.Exec(ctx, "DELETE FROM "+table.Sanitize()); err != nil {
		return nil, &errs.LoadError{Table: spec.Name, Err: err}
	}

	columns := spec.ColumnNames()
	res, err := transform.File(ctx, path, spec, policy, func(rows [][]any) error {
		n, err := tx.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return &errs.LoadError{Table: spec.Name, Err: err}
		}
		report.RowsLoaded += int(n)
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := tx.Commit(ctx); err != nil {
		return res, &errs.LoadError{Table: spec.Name, Err: err}
	}
	return res, nil
}

func upsertSQL(schema string, spec transform.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	args := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize()
		args[i] = fmt.Sprintf("$%d", i+1)
	}

	pk := make(map[string]bool, len(spec.PrimaryKey))
	quotedPK := make([]string, len(spec.PrimaryKey))
	for i, name := range spec.PrimaryKey {
		pk[name] = true
		quotedPK[i] = pgx.Identifier{name}.Sanitize()
	}

	var sets []string
	for _, c := range spec.Columns {
		if pk[c.Name] {
			continue
		}
		q := pgx.Identifier{c.Name}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, t.%s)", q, q, q))
	}

	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return fmt.Sprintf("INSERT INTO %s AS t (%s) VALUES (%s) ON CONFLICT (%s) %s",
		pgx.Identifier{schema, spec.Name}.Sanitize(),
		strings.Join(cols, ", "),
		strings.Join(args, ", "),
		strings.Join(quotedPK, ", "),
		action,
	)
}
