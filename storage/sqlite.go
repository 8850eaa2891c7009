package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"iacollector/models"
)

// Journal is the local SQLite operational log: runs, per-file events, log
// lines and the dashboard command queue. It never holds dataset rows.
type Journal struct {
	db *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		return nil, err
	}

	return j, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY,
		run_uuid TEXT,
		mode TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		cities_requested INTEGER DEFAULT 0,
		cities_completed INTEGER DEFAULT 0,
		cities_failed INTEGER DEFAULT 0,
		files_fetched INTEGER DEFAULT 0,
		files_skipped INTEGER DEFAULT 0,
		files_failed INTEGER DEFAULT 0,
		rows_loaded INTEGER DEFAULT 0,
		rows_dropped INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS file_events (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		city TEXT NOT NULL,
		date TEXT,
		path_kind TEXT,
		file TEXT,
		action TEXT,
		bytes INTEGER DEFAULT 0,
		sha256 TEXT,
		mirror_attempts INTEGER DEFAULT 0,
		mirrored_at DATETIME,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		source TEXT,
		message TEXT
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status, started_at);
	CREATE INDEX IF NOT EXISTS idx_file_events_run ON file_events(run_id);
	CREATE INDEX IF NOT EXISTS idx_file_events_city ON file_events(city, date);
	CREATE INDEX IF NOT EXISTS idx_file_events_unmirrored ON file_events(mirrored_at) WHERE mirrored_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON run_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	`
	_, err := j.db.Exec(schema)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (j *Journal) CreateRun(run *models.CollectRun) (int64, error) {
	result, err := j.db.Exec(`
		INSERT INTO runs (run_uuid, mode, started_at, status, cities_requested)
		VALUES (?, ?, ?, ?, ?)`,
		run.RunUUID, run.Mode, run.StartedAt, run.Status, run.CitiesRequested)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (j *Journal) UpdateRun(run *models.CollectRun) error {
	_, err := j.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, cities_requested = ?, cities_completed = ?,
			cities_failed = ?, files_fetched = ?, files_skipped = ?, files_failed = ?,
			rows_loaded = ?, rows_dropped = ?, error = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.CitiesRequested, run.CitiesCompleted,
		run.CitiesFailed, run.FilesFetched, run.FilesSkipped, run.FilesFailed,
		run.RowsLoaded, run.RowsDropped, run.Error, run.ID)
	return err
}

func (j *Journal) GetRecentRuns(limit int) ([]models.CollectRun, error) {
	rows, err := j.db.Query(`
		SELECT id, run_uuid, mode, started_at, finished_at, status, cities_requested,
			cities_completed, cities_failed, files_fetched, files_skipped, files_failed,
			rows_loaded, rows_dropped, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.CollectRun
	for rows.Next() {
		var run models.CollectRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.RunUUID, &run.Mode, &run.StartedAt, &finished,
			&run.Status, &run.CitiesRequested, &run.CitiesCompleted, &run.CitiesFailed,
			&run.FilesFetched, &run.FilesSkipped, &run.FilesFailed,
			&run.RowsLoaded, &run.RowsDropped, &run.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (j *Journal) GetLastRun() (*models.CollectRun, error) {
	runs, err := j.GetRecentRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// =============================================================================
// File events
// =============================================================================

// RecordFileEvent appends one event. City carries the folder token so the
// mirror worker can rebuild the local path later.
func (j *Journal) RecordFileEvent(ev *models.FileEvent) error {
	_, err := j.db.Exec(`
		INSERT INTO file_events (run_id, city, date, path_kind, file, action, bytes, sha256, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.City, ev.Date, ev.PathKind, ev.File, ev.Action, ev.Bytes, ev.SHA256, ev.Error)
	return err
}

// PendingMirrorEvents returns fetched files not yet mirrored, oldest first,
// skipping files that already exhausted their attempts.
func (j *Journal) PendingMirrorEvents(limit int) ([]models.FileEvent, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, city, date, path_kind, file, action, bytes, sha256,
			mirror_attempts, mirrored_at, COALESCE(error, ''), created_at
		FROM file_events
		WHERE action = ? AND mirrored_at IS NULL AND mirror_attempts < 3
		ORDER BY created_at
		LIMIT ?`, models.FileFetched, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.FileEvent
	for rows.Next() {
		var ev models.FileEvent
		var runID sql.NullInt64
		var mirrored sql.NullTime
		if err := rows.Scan(&ev.ID, &runID, &ev.City, &ev.Date, &ev.PathKind, &ev.File,
			&ev.Action, &ev.Bytes, &ev.SHA256, &ev.MirrorAttempts, &mirrored, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			ev.RunID = &runID.Int64
		}
		if mirrored.Valid {
			ev.MirroredAt = &mirrored.Time
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (j *Journal) MarkMirrored(id int64) error {
	_, err := j.db.Exec(`UPDATE file_events SET mirrored_at = ?, error = '' WHERE id = ?`, time.Now(), id)
	return err
}

func (j *Journal) BumpMirrorAttempts(id int64, errMsg string) error {
	_, err := j.db.Exec(`
		UPDATE file_events SET mirror_attempts = mirror_attempts + 1, error = ? WHERE id = ?`,
		errMsg, id)
	return err
}

func (j *Journal) GetFileEventsForRun(runID int64) ([]models.FileEvent, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, city, date, path_kind, file, action, bytes, sha256,
			mirror_attempts, mirrored_at, COALESCE(error, ''), created_at
		FROM file_events WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.FileEvent
	for rows.Next() {
		var ev models.FileEvent
		var runID sql.NullInt64
		var mirrored sql.NullTime
		if err := rows.Scan(&ev.ID, &runID, &ev.City, &ev.Date, &ev.PathKind, &ev.File,
			&ev.Action, &ev.Bytes, &ev.SHA256, &ev.MirrorAttempts, &mirrored, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if runID.Valid {
			ev.RunID = &runID.Int64
		}
		if mirrored.Valid {
			ev.MirroredAt = &mirrored.Time
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// =============================================================================
// Logs
// =============================================================================

func (j *Journal) Log(runID *int64, level models.LogLevel, source, message string) error {
	_, err := j.db.Exec(`
		INSERT INTO run_logs (run_id, timestamp, level, source, message)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, source, message)
	return err
}

func (j *Journal) GetRecentLogs(limit int) ([]models.RunLog, error) {
	rows, err := j.db.Query(`
		SELECT id, run_id, timestamp, level, source, message
		FROM run_logs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.RunLog
	for rows.Next() {
		var entry models.RunLog
		var runID sql.NullInt64
		if err := rows.Scan(&entry.ID, &runID, &entry.Timestamp, &entry.Level, &entry.Source, &entry.Message); err != nil {
			return nil, err
		}
		if runID.Valid {
			entry.RunID = &runID.Int64
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// =============================================================================
// Commands
// =============================================================================

func (j *Journal) EnqueueCommand(cmd models.CommandType, params *models.CommandParams) error {
	var raw []byte
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}
	_, err := j.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmd, raw)
	return err
}

func (j *Journal) GetPendingCommands() ([]models.Command, error) {
	rows, err := j.db.Query(`
		SELECT id, command, params, created_at, processed_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params sql.NullString
		var processed sql.NullTime
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt, &processed); err != nil {
			return nil, err
		}
		if params.Valid {
			cmd.Params = json.RawMessage(params.String)
		}
		if processed.Valid {
			cmd.ProcessedAt = &processed.Time
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (j *Journal) MarkCommandProcessed(id int64) error {
	_, err := j.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (j *Journal) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	if cmd.Params == nil || string(cmd.Params) == "null" {
		return &models.CommandParams{}, nil
	}
	var params models.CommandParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// Reset clears all journal tables.
func (j *Journal) Reset() error {
	tables := []string{
		"run_logs",
		"file_events",
		"runs",
		"commands",
	}

	for _, table := range tables {
		if _, err := j.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	return nil
}
