package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"iacollector/models"
)

// RemoteURL builds the deterministic download URL for one target:
// <base>/<country>/<region>/<city>/<date>/<pathKind>/<fileName>.
func RemoteURL(baseURL string, city models.CatalogCity, date string, kind models.PathKind, file models.FileKind) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s/%s",
		strings.TrimRight(baseURL, "/"),
		city.Country, city.Region, city.CitySlug,
		date, kind, file)
}

// LocalPath builds the deterministic on-disk location for one target:
// <destRoot>/<cityFolder>/<date>/<pathKind>/<fileName>.
func LocalPath(destRoot string, city models.CatalogCity, date string, kind models.PathKind, file models.FileKind) string {
	return filepath.Join(destRoot, city.Folder, date, string(kind), string(file))
}

// Targets expands a selector into the full download set for a city. The
// set is unique by (city, date, pathKind, fileKind) by construction.
func Targets(baseURL, destRoot string, city models.CatalogCity, selector models.PathSelector) ([]models.DownloadTarget, error) {
	if !selector.Valid() {
		return nil, fmt.Errorf("invalid path selector %q", selector)
	}
	if city.LatestDate == "" {
		return nil, fmt.Errorf("city %s has no published date", city.DisplayName)
	}

	var targets []models.DownloadTarget
	for _, kind := range selector.Kinds() {
		for _, file := range models.FilesFor(kind) {
			if !file.Valid() {
				return nil, fmt.Errorf("invalid file kind %q", file)
			}
			targets = append(targets, models.DownloadTarget{
				City:      city,
				Date:      city.LatestDate,
				PathKind:  kind,
				FileKind:  file,
				RemoteURL: RemoteURL(baseURL, city, city.LatestDate, kind, file),
				LocalPath: LocalPath(destRoot, city, city.LatestDate, kind, file),
			})
		}
	}
	return targets, nil
}

var dateDirRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// LatestLocalDate finds the newest date directory already fetched for a
// city folder. Used by offline loads when the catalog is not consulted.
func LatestLocalDate(destRoot, folder string) (string, error) {
	entries, err := os.ReadDir(filepath.Join(destRoot, folder))
	if err != nil {
		return "", fmt.Errorf("read city dir: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() && dateDirRegex.MatchString(e.Name()) {
			dates = append(dates, e.Name())
		}
	}
	if len(dates) == 0 {
		return "", fmt.Errorf("no dated data under %s", filepath.Join(destRoot, folder))
	}

	sort.Strings(dates)
	return dates[len(dates)-1], nil
}
