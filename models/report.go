package models

// FileResult records the outcome for a single target file.
type FileResult struct {
	File   string `json:"file"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FetchReport enumerates per-file outcomes for one city fetch.
type FetchReport struct {
	City      string       `json:"city"`
	Date      string       `json:"date"`
	Succeeded []FileResult `json:"succeeded"`
	Skipped   []FileResult `json:"skipped"`
	Failed    []FileResult `json:"failed"`
}

// Complete reports whether the city has every requested file on disk.
func (r *FetchReport) Complete() bool {
	return len(r.Failed) == 0
}

type ExtractReport struct {
	Extracted []FileResult `json:"extracted"`
	Skipped   []FileResult `json:"skipped"`
	Failed    []FileResult `json:"failed"`
}

// LoadReport counts row outcomes for one table load.
type LoadReport struct {
	Table        string `json:"table"`
	RowsLoaded   int    `json:"rows_loaded"`
	RowsFailed   int    `json:"rows_failed"`
	RowsDropped  int    `json:"rows_dropped"`
	ValuesNulled int    `json:"values_nulled"`
}

// CityReport is the per-city rollup returned by every pipeline operation.
// Failures never cross city boundaries; everything counted ends up here.
type CityReport struct {
	City         string   `json:"city"`
	Schema       string   `json:"schema"`
	Resolved     bool     `json:"resolved"`
	SchemaOK     bool     `json:"schema_ok"`
	FilesFailed  []string `json:"files_failed"`
	FilesFetched int      `json:"files_fetched"`
	FilesSkipped int      `json:"files_skipped"`
	RowsLoaded   int      `json:"rows_loaded"`
	RowsFailed   int      `json:"rows_failed"`
	RowsDropped  int      `json:"rows_dropped"`
	ValuesNulled int      `json:"values_nulled"`
	HostsBuilt   int      `json:"hosts_built"`
	Error        string   `json:"error,omitempty"`
}

func (r *CityReport) AddLoad(lr LoadReport) {
	r.RowsLoaded += lr.RowsLoaded
	r.RowsFailed += lr.RowsFailed
	r.RowsDropped += lr.RowsDropped
	r.ValuesNulled += lr.ValuesNulled
}

func (r *CityReport) AddFetch(fr *FetchReport) {
	r.FilesFetched += len(fr.Succeeded)
	r.FilesSkipped += len(fr.Skipped)
	for _, f := range fr.Failed {
		r.FilesFailed = append(r.FilesFailed, f.File)
	}
}
