package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Client reads the collector's SQLite journal and, when a connection
// string is configured, the detail store for per-city row counts.
// Commands go through the journal; the daemon polls them from there.
type Client struct {
	pg     *pgxpool.Pool // nil when no store URL is configured
	sqlite *sql.DB
	ctx    context.Context
}

type CollectRun struct {
	ID              int64
	Mode            string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Status          string
	CitiesRequested int
	CitiesCompleted int
	CitiesFailed    int
	FilesFetched    int
	FilesSkipped    int
	FilesFailed     int
	RowsLoaded      int
	RowsDropped     int
	Error           string
}

type FileEvent struct {
	ID        int64
	RunID     *int64
	City      string
	Date      string
	PathKind  string
	File      string
	Action    string
	Bytes     int64
	Mirrored  bool
	CreatedAt time.Time
}

type RunLog struct {
	ID        int64
	RunID     *int64
	Timestamp time.Time
	Level     string
	Source    string
	Message   string
}

// Totals aggregates the journal for the stat cards.
type Totals struct {
	Runs         int
	FilesFetched int
	FilesSkipped int
	FilesFailed  int
	RowsLoaded   int
	MirrorQueue  int
}

// CityStats is one provisioned city schema in the detail store.
type CityStats struct {
	Schema         string
	Listings       int
	Reviews        int
	Calendar       int
	Neighbourhoods int
	Hosts          int
}

func New(postgresURL, sqlitePath string) (*Client, error) {
	ctx := context.Background()

	var pgPool *pgxpool.Pool
	if postgresURL != "" {
		pool, err := pgxpool.New(ctx, postgresURL)
		if err != nil {
			return nil, err
		}
		pgPool = pool
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		if pgPool != nil {
			pgPool.Close()
		}
		return nil, err
	}

	return &Client{
		pg:     pgPool,
		sqlite: sqliteDB,
		ctx:    ctx,
	}, nil
}

func (c *Client) Close() error {
	if c.pg != nil {
		c.pg.Close()
	}
	return c.sqlite.Close()
}

// HasStore reports whether the detail store is connected; the Cities tab
// falls back to journal data when it is not.
func (c *Client) HasStore() bool {
	return c.pg != nil
}

func (c *Client) GetRecentRuns(limit int) ([]CollectRun, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, mode, started_at, finished_at, status,
			cities_requested, cities_completed, cities_failed,
			files_fetched, files_skipped, files_failed,
			rows_loaded, rows_dropped, COALESCE(error, '')
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CollectRun
	for rows.Next() {
		var r CollectRun
		var started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished, &r.Status,
			&r.CitiesRequested, &r.CitiesCompleted, &r.CitiesFailed,
			&r.FilesFetched, &r.FilesSkipped, &r.FilesFailed,
			&r.RowsLoaded, &r.RowsDropped, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, nil
}

func (c *Client) GetTotals() (Totals, error) {
	var t Totals
	err := c.sqlite.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(files_fetched), 0),
			COALESCE(SUM(files_skipped), 0),
			COALESCE(SUM(files_failed), 0),
			COALESCE(SUM(rows_loaded), 0)
		FROM runs
	`).Scan(&t.Runs, &t.FilesFetched, &t.FilesSkipped, &t.FilesFailed, &t.RowsLoaded)
	if err != nil {
		return t, err
	}

	err = c.sqlite.QueryRow(`
		SELECT COUNT(*) FROM file_events
		WHERE action = 'fetched' AND mirrored_at IS NULL AND mirror_attempts < 3
	`).Scan(&t.MirrorQueue)
	return t, err
}

func (c *Client) GetFileEventsForCity(city string, limit int) ([]FileEvent, error) {
	rows, err := c.sqlite.Query(`
		SELECT id, run_id, city, date, path_kind, file, action, bytes,
			mirrored_at IS NOT NULL, created_at
		FROM file_events
		WHERE city = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, city, limit)
	if err != nil {
		return nil, err
	}
	return scanFileEvents(rows)
}

// GetJournalCities lists every city the journal has seen, newest snapshot
// first. Used when the detail store is not connected.
func (c *Client) GetJournalCities() ([]string, error) {
	rows, err := c.sqlite.Query(`
		SELECT city FROM file_events
		GROUP BY city
		ORDER BY MAX(date) DESC, city
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		cities = append(cities, city)
	}
	return cities, nil
}

func scanFileEvents(rows *sql.Rows) ([]FileEvent, error) {
	defer rows.Close()

	var events []FileEvent
	for rows.Next() {
		var ev FileEvent
		var created string
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.City, &ev.Date, &ev.PathKind,
			&ev.File, &ev.Action, &ev.Bytes, &ev.Mirrored, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = parseTime(created)
		events = append(events, ev)
	}
	return events, nil
}

// GetCityStats counts the fixed table set in every city schema of the
// detail store. Row counts come from a per-schema COUNT; the schema list
// from the catalog, skipping the built-in namespaces.
func (c *Client) GetCityStats() ([]CityStats, error) {
	if c.pg == nil {
		return nil, nil
	}

	rows, err := c.pg.Query(c.ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema', 'public', 'pg_toast')
		ORDER BY schema_name
	`)
	if err != nil {
		return nil, err
	}
	schemas, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	var stats []CityStats
	for _, schema := range schemas {
		s := CityStats{Schema: schema}
		counts := []struct {
			table string
			dst   *int
		}{
			{"listings", &s.Listings},
			{"reviews", &s.Reviews},
			{"calendar", &s.Calendar},
			{"neighbourhoods", &s.Neighbourhoods},
			{"hosts", &s.Hosts},
		}
		for _, ct := range counts {
			query := fmt.Sprintf("SELECT COUNT(*) FROM %s",
				pgx.Identifier{schema, ct.table}.Sanitize())
			if err := c.pg.QueryRow(c.ctx, query).Scan(ct.dst); err != nil {
				// Schema without the fixed table set is not one of ours.
				s = CityStats{}
				break
			}
		}
		if s.Schema != "" {
			stats = append(stats, s)
		}
	}
	return stats, nil
}

func (c *Client) GetRecentLogs(limit int, level *string) ([]RunLog, error) {
	var rows *sql.Rows
	var err error

	if level != nil && *level != "ALL" {
		rows, err = c.sqlite.Query(`
			SELECT id, run_id, timestamp, level, source, message
			FROM run_logs
			WHERE UPPER(level) = UPPER(?)
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, *level, limit)
	} else {
		rows, err = c.sqlite.Query(`
			SELECT id, run_id, timestamp, level, source, message
			FROM run_logs
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		var ts string
		if err := rows.Scan(&l.ID, &l.RunID, &ts, &l.Level, &l.Source, &l.Message); err != nil {
			return nil, err
		}
		l.Timestamp = parseTime(ts)
		logs = append(logs, l)
	}
	return logs, nil
}

// SendCommand queues one operator command for the daemon.
func (c *Client) SendCommand(command string, params map[string]string) error {
	raw := []byte("{}")
	if len(params) > 0 {
		encoded, err := json.Marshal(params)
		if err != nil {
			return err
		}
		raw = encoded
	}
	_, err := c.sqlite.Exec(`
		INSERT INTO commands (command, params, created_at)
		VALUES (?, ?, datetime('now'))
	`, command, string(raw))
	return err
}

func (c *Client) CollectNow() error {
	return c.SendCommand("collect_now", nil)
}

func (c *Client) FetchCity(city string) error {
	return c.SendCommand("fetch_city", map[string]string{"city": city})
}

func (c *Client) BuildHosts(city string) error {
	if city == "" {
		return c.SendCommand("build_hosts", nil)
	}
	return c.SendCommand("build_hosts", map[string]string{"city": city})
}

func (c *Client) MirrorNow() error {
	return c.SendCommand("mirror_now", nil)
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
