package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"iacollector/config"
	"iacollector/httputil"
	"iacollector/models"
)

// Provider supplies the published city catalog. The pipeline only sees
// typed entries; markup parsing stays behind this interface.
type Provider interface {
	Catalog(ctx context.Context) (*Catalog, error)
}

// Catalog is the parsed city list in page order.
type Catalog struct {
	Entries  []models.CatalogCity
	byFolder map[string]int
}

func New(entries []models.CatalogCity) *Catalog {
	c := &Catalog{
		Entries:  entries,
		byFolder: make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		c.byFolder[e.Folder] = i
	}
	return c
}

func (c *Catalog) Len() int {
	return len(c.Entries)
}

// ByFolder looks an entry up by its folder token.
func (c *Catalog) ByFolder(folder string) (models.CatalogCity, bool) {
	i, ok := c.byFolder[folder]
	if !ok {
		return models.CatalogCity{}, false
	}
	return c.Entries[i], true
}

var (
	isoDateRegex  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	textDateRegex = regexp.MustCompile(`(\d{1,2})\s+([A-Za-z]+),?\s+(\d{4})`)
)

var monthNumbers = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var skipHeadings = []string{"get the data", "archived", "contact"}

// Scraper builds the catalog from the public listing page.
type Scraper struct {
	pageURL  string
	dataHost string
	client   *http.Client
}

func NewScraper(cfg config.CatalogConfig, client *http.Client) *Scraper {
	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return &Scraper{
		pageURL:  cfg.PageURL,
		dataHost: host,
		client:   client,
	}
}

func (s *Scraper) Catalog(ctx context.Context) (*Catalog, error) {
	resp, err := httputil.Get(ctx, s.client, s.pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog page: HTTP %d", resp.StatusCode)
	}

	return s.Parse(resp.Body)
}

// Parse extracts city entries from the catalog page markup. Each h3 is a
// city display name; the content up to the next h3 carries the dataset
// links and the published dates.
func (s *Scraper) Parse(r io.Reader) (*Catalog, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse catalog page: %w", err)
	}

	var entries []models.CatalogCity
	doc.Find("h3").Each(func(_ int, h *goquery.Selection) {
		display := strings.TrimSpace(h.Text())
		if display == "" || skipHeading(display) {
			return
		}

		section := h.NextUntil("h3")
		country, region, slug, ok := s.cityPath(section)
		if !ok {
			return
		}
		date := latestDate(section)
		if date == "" {
			return
		}

		folder := FolderToken(display)
		entries = append(entries, models.CatalogCity{
			DisplayName: display,
			Country:     country,
			Region:      region,
			CitySlug:    slug,
			Folder:      folder,
			Schema:      folder,
			LatestDate:  date,
		})
	})

	disambiguate(entries)

	return New(entries), nil
}

func skipHeading(display string) bool {
	lower := strings.ToLower(display)
	for _, word := range skipHeadings {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// cityPath pulls (country, region, citySlug) out of the first dataset
// link in the section.
func (s *Scraper) cityPath(section *goquery.Selection) (country, region, slug string, ok bool) {
	section.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := url.Parse(href)
		if err != nil || u.Host != s.dataHost {
			return true
		}

		parts := splitPath(u.Path)
		if len(parts) < 3 {
			return true
		}

		country, region, slug = parts[0], parts[1], parts[2]
		ok = true
		return false
	})
	return country, region, slug, ok
}

func splitPath(p string) []string {
	var parts []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// latestDate collects every date in the section, in both the ISO form
// used by dataset URLs and the "12 June, 2024" form used in page text,
// and keeps the maximum.
func latestDate(section *goquery.Selection) string {
	text := section.Text()
	section.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, exists := a.Attr("href"); exists {
			text += "\n" + href
		}
	})

	var max string
	for _, d := range isoDateRegex.FindAllString(text, -1) {
		if d > max {
			max = d
		}
	}
	for _, m := range textDateRegex.FindAllStringSubmatch(text, -1) {
		month, knownMonth := monthNumbers[strings.ToLower(m[2])]
		if !knownMonth {
			continue
		}
		day, err := strconv.Atoi(m[1])
		if err != nil || day < 1 || day > 31 {
			continue
		}
		d := fmt.Sprintf("%s-%02d-%02d", m[3], month, day)
		if d > max {
			max = d
		}
	}
	return max
}

// disambiguate appends the region token to the folder of any later
// entry whose folder collides with an earlier, different city.
func disambiguate(entries []models.CatalogCity) {
	seen := make(map[string]int, len(entries))
	for i := range entries {
		e := &entries[i]
		if _, taken := seen[e.Folder]; taken {
			e.Folder = e.Folder + "_" + RegionToken(e.Region)
			e.Schema = e.Folder
		}
		seen[e.Folder] = i
	}
}
