package models

// DownloadTarget binds one remote file to its deterministic local path.
// Both paths are pure functions of (city, date, pathKind, fileKind).
type DownloadTarget struct {
	City      CatalogCity `json:"city"`
	Date      string      `json:"date"`
	PathKind  PathKind    `json:"path_kind"`
	FileKind  FileKind    `json:"file_kind"`
	RemoteURL string      `json:"remote_url"`
	LocalPath string      `json:"local_path"`
}
