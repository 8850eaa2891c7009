package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CollectRun is one journal row per operation invocation.
type CollectRun struct {
	ID              int64      `json:"id" db:"id"`
	RunUUID         string     `json:"run_uuid" db:"run_uuid"`
	Mode            string     `json:"mode" db:"mode"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	CitiesRequested int        `json:"cities_requested" db:"cities_requested"`
	CitiesCompleted int        `json:"cities_completed" db:"cities_completed"`
	CitiesFailed    int        `json:"cities_failed" db:"cities_failed"`
	FilesFetched    int        `json:"files_fetched" db:"files_fetched"`
	FilesSkipped    int        `json:"files_skipped" db:"files_skipped"`
	FilesFailed     int        `json:"files_failed" db:"files_failed"`
	RowsLoaded      int        `json:"rows_loaded" db:"rows_loaded"`
	RowsDropped     int        `json:"rows_dropped" db:"rows_dropped"`
	Error           string     `json:"error" db:"error"`
}

type FileAction string

const (
	FileFetched   FileAction = "fetched"
	FileSkipped   FileAction = "skipped"
	FileFailed    FileAction = "failed"
	FileExtracted FileAction = "extracted"
)

// FileEvent is one journal row per file touched by a run.
type FileEvent struct {
	ID             int64      `json:"id" db:"id"`
	RunID          *int64     `json:"run_id" db:"run_id"`
	City           string     `json:"city" db:"city"`
	Date           string     `json:"date" db:"date"`
	PathKind       string     `json:"path_kind" db:"path_kind"`
	File           string     `json:"file" db:"file"`
	Action         FileAction `json:"action" db:"action"`
	Bytes          int64      `json:"bytes" db:"bytes"`
	SHA256         string     `json:"sha256" db:"sha256"`
	MirrorAttempts int        `json:"mirror_attempts" db:"mirror_attempts"`
	MirroredAt     *time.Time `json:"mirrored_at" db:"mirrored_at"`
	Error          string     `json:"error" db:"error"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
