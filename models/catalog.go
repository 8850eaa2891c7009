package models

// CatalogCity is one entry of the published dataset catalog.
// Produced by the catalog package; read-only everywhere else.
type CatalogCity struct {
	DisplayName string `json:"display_name"`
	Country     string `json:"country"`
	Region      string `json:"region"`
	CitySlug    string `json:"city_slug"`
	Folder      string `json:"folder"`
	Schema      string `json:"schema"`
	LatestDate  string `json:"latest_date"` // YYYY-MM-DD
}

type PathKind string

const (
	PathData           PathKind = "data"
	PathVisualisations PathKind = "visualisations"
)

// FileKind enumerates the published file names per path kind.
type FileKind string

const (
	FileListingsArchive FileKind = "listings.csv.gz"
	FileReviewsArchive  FileKind = "reviews.csv.gz"
	FileCalendarArchive FileKind = "calendar.csv.gz"

	FileListings           FileKind = "listings.csv"
	FileReviews            FileKind = "reviews.csv"
	FileNeighbourhoods     FileKind = "neighbourhoods.csv"
	FileNeighbourhoodsGeo  FileKind = "neighbourhoods.geojson"
)

var (
	DataFiles = []FileKind{FileListingsArchive, FileReviewsArchive, FileCalendarArchive}

	VisualisationFiles = []FileKind{FileListings, FileReviews, FileNeighbourhoods, FileNeighbourhoodsGeo}
)

// FilesFor returns the published file set for a path kind.
func FilesFor(kind PathKind) []FileKind {
	switch kind {
	case PathData:
		return DataFiles
	case PathVisualisations:
		return VisualisationFiles
	}
	return nil
}

// Compressed reports whether the file is a gzip archive.
func (f FileKind) Compressed() bool {
	switch f {
	case FileListingsArchive, FileReviewsArchive, FileCalendarArchive:
		return true
	}
	return false
}

// Table returns the target table name for the file, or "" when the
// file is fetched but never loaded (the geojson boundary file).
func (f FileKind) Table() string {
	switch f {
	case FileListingsArchive, FileListings:
		return "listings"
	case FileReviewsArchive, FileReviews:
		return "reviews"
	case FileCalendarArchive:
		return "calendar"
	case FileNeighbourhoods:
		return "neighbourhoods"
	}
	return ""
}

func (f FileKind) Valid() bool {
	switch f {
	case FileListingsArchive, FileReviewsArchive, FileCalendarArchive,
		FileListings, FileReviews, FileNeighbourhoods, FileNeighbourhoodsGeo:
		return true
	}
	return false
}
