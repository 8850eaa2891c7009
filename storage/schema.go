package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"iacollector/errs"
	"iacollector/models"
	"iacollector/transform"
)

// DetailTables is the fixed table set of a city schema in the detail store.
func DetailTables() []transform.TableSpec {
	return []transform.TableSpec{
		transform.DetailListings,
		transform.DetailReviews,
		transform.Calendar,
		transform.Neighbourhoods,
		transform.HostsSpec(transform.DetailListings),
	}
}

// SimpleTables is the fixed table set of a city schema in the simple store.
func SimpleTables() []transform.TableSpec {
	return []transform.TableSpec{
		transform.SimpleListings,
		transform.SimpleReviews,
		transform.Neighbourhoods,
		transform.HostsSpec(transform.SimpleListings),
	}
}

func TablesFor(kind models.PathKind) []transform.TableSpec {
	if kind == models.PathVisualisations {
		return SimpleTables()
	}
	return DetailTables()
}

// Provisioner serializes DDL per schema name so concurrent city pipelines
// cannot race CREATE statements for the same city.
type Provisioner struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProvisioner() *Provisioner {
	return &Provisioner{locks: make(map[string]*sync.Mutex)}
}

func (p *Provisioner) lockFor(schema string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[schema]
	if !ok {
		l = &sync.Mutex{}
		p.locks[schema] = l
	}
	return l
}

// EnsureSchema creates the city schema and its fixed table set on one store.
// Idempotent: IF NOT EXISTS throughout, existing tables are never altered.
func (p *Provisioner) EnsureSchema(ctx context.Context, store *Store, schema string, tables []transform.TableSpec) error {
	l := p.lockFor(schema)
	l.Lock()
	defer l.Unlock()

	if _, err := store.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return &errs.SchemaError{Schema: schema, Err: err}
	}
	for _, spec := range tables {
		if _, err := store.pool.Exec(ctx, createTableSQL(schema, spec)); err != nil {
			return &errs.SchemaError{Schema: schema, Err: fmt.Errorf("table %s: %w", spec.Name, err)}
		}
	}
	return nil
}

// EnsureCity provisions the city schema on both stores.
func (p *Provisioner) EnsureCity(ctx context.Context, stores *Stores, schema string) error {
	if err := p.EnsureSchema(ctx, stores.Detail, schema, DetailTables()); err != nil {
		return err
	}
	return p.EnsureSchema(ctx, stores.Simple, schema, SimpleTables())
}

func createTableSQL(schema string, spec transform.TableSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", pgx.Identifier{schema, spec.Name}.Sanitize())
	for i, col := range spec.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %s", pgx.Identifier{col.Name}.Sanitize(), col.Type)
	}
	if spec.HasPrimaryKey() {
		quoted := make([]string, len(spec.PrimaryKey))
		for i, pk := range spec.PrimaryKey {
			quoted[i] = pgx.Identifier{pk}.Sanitize()
		}
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(quoted, ", "))
	}
	b.WriteString(")")
	return b.String()
}
