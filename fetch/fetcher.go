package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"iacollector/errs"
	"iacollector/httputil"
	"iacollector/models"
)

// Fetcher downloads dataset files to their deterministic local paths.
// Files already present with nonzero size are skipped, so a rerun only
// touches what is missing or previously failed.
type Fetcher struct {
	client  *http.Client
	baseURL string
	delay   time.Duration
}

func NewFetcher(client *http.Client, baseURL string, delayMS int) *Fetcher {
	return &Fetcher{
		client:  client,
		baseURL: baseURL,
		delay:   time.Duration(delayMS) * time.Millisecond,
	}
}

// FetchCity downloads the selected file set for one city. Per-file
// failures are recorded and do not abort sibling files. Cancellation
// stops scheduling further files; the file in flight either completes
// its write-and-rename or leaves nothing at the final path.
func (f *Fetcher) FetchCity(ctx context.Context, city models.CatalogCity, selector models.PathSelector, destRoot string, force bool) (*models.FetchReport, error) {
	targets, err := Targets(f.baseURL, destRoot, city, selector)
	if err != nil {
		return nil, err
	}

	report := &models.FetchReport{
		City: city.Folder,
		Date: city.LatestDate,
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		if !force {
			if info, err := os.Stat(target.LocalPath); err == nil && info.Size() > 0 {
				report.Skipped = append(report.Skipped, models.FileResult{
					File:  string(target.FileKind),
					Path:  target.LocalPath,
					URL:   target.RemoteURL,
					Bytes: info.Size(),
				})
				continue
			}
		}

		result, err := f.download(ctx, target)
		if err != nil {
			log.Printf("Fetcher: %s %s failed: %v", city.Folder, target.FileKind, err)
			result.Error = err.Error()
			report.Failed = append(report.Failed, result)
		} else {
			report.Succeeded = append(report.Succeeded, result)
		}

		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
			}
		}
	}

	return report, nil
}

// download streams one file to <path>.part and renames into place once
// the body is fully written. The sha256 is computed on the same pass.
func (f *Fetcher) download(ctx context.Context, target models.DownloadTarget) (models.FileResult, error) {
	result := models.FileResult{
		File: string(target.FileKind),
		Path: target.LocalPath,
		URL:  target.RemoteURL,
	}

	if err := os.MkdirAll(filepath.Dir(target.LocalPath), 0755); err != nil {
		return result, fmt.Errorf("create dir: %w", err)
	}

	resp, err := httputil.Get(ctx, f.client, target.RemoteURL)
	if err != nil {
		return result, &errs.NetworkError{URL: target.RemoteURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return result, &errs.NetworkError{URL: target.RemoteURL, Status: resp.StatusCode}
	}

	partPath := target.LocalPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return result, fmt.Errorf("create %s: %w", partPath, err)
	}

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	if err != nil {
		out.Close()
		os.Remove(partPath)
		return result, &errs.NetworkError{URL: target.RemoteURL, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return result, fmt.Errorf("close %s: %w", partPath, err)
	}

	if err := os.Rename(partPath, target.LocalPath); err != nil {
		os.Remove(partPath)
		return result, fmt.Errorf("finalize %s: %w", target.LocalPath, err)
	}

	result.Bytes = written
	result.SHA256 = hex.EncodeToString(hasher.Sum(nil))
	return result, nil
}
