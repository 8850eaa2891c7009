package catalog

import (
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(`\s+`)

// FolderToken derives the on-disk folder token for a catalog display
// name: the part before the first comma, lowercased, spaces and hyphens
// replaced with underscores. "Washington, D.C." -> "washington".
func FolderToken(displayName string) string {
	city := displayName
	if i := strings.Index(city, ","); i >= 0 {
		city = city[:i]
	}
	city = strings.TrimSpace(city)
	city = multiSpaceRegex.ReplaceAllString(city, " ")
	city = strings.ToLower(city)
	city = strings.ReplaceAll(city, " ", "_")
	city = strings.ReplaceAll(city, "-", "_")
	return city
}

// RegionToken normalizes a region the same way a city folder is
// normalized. Used to disambiguate namesake cities.
func RegionToken(region string) string {
	region = strings.TrimSpace(region)
	region = multiSpaceRegex.ReplaceAllString(region, " ")
	region = strings.ToLower(region)
	region = strings.ReplaceAll(region, " ", "_")
	region = strings.ReplaceAll(region, "-", "_")
	return region
}
