package httputil

import (
	"context"
	"net/http"
	"time"
)

const userAgent = "iacollector/1.0"

// Clients separates the quick catalog-page client from the download
// client, which streams multi-hundred-MB archives and needs a long
// timeout.
type Clients struct {
	Catalog  *http.Client
	Download *http.Client
}

func NewClients() *Clients {
	return &Clients{
		Catalog: &http.Client{Timeout: 30 * time.Second},
		Download: &http.Client{
			Timeout: 30 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Get issues a GET with the collector's User-Agent set.
func Get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return client.Do(req)
}
