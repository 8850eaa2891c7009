package fetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"iacollector/errs"
	"iacollector/models"
)

// ExtractedName maps an archive name to its decompressed CSV name:
// listings.csv.gz -> listings_detail.csv.
func ExtractedName(archive string) string {
	base := strings.TrimSuffix(archive, ".csv.gz")
	base = strings.TrimSuffix(base, ".gz")
	return base + "_detail.csv"
}

// ExtractDir decompresses every .gz archive in one directory, writing
// <base>_detail.csv alongside. Already-extracted files are skipped; a
// corrupt archive fails that file only.
func ExtractDir(ctx context.Context, dir string) *models.ExtractReport {
	report := &models.ExtractReport{}

	archives, err := filepath.Glob(filepath.Join(dir, "*.gz"))
	if err != nil {
		return report
	}

	for _, archive := range archives {
		if ctx.Err() != nil {
			break
		}

		outPath := filepath.Join(dir, ExtractedName(filepath.Base(archive)))
		result := models.FileResult{
			File: filepath.Base(outPath),
			Path: outPath,
		}

		if info, err := os.Stat(outPath); err == nil && info.Size() > 0 {
			result.Bytes = info.Size()
			report.Skipped = append(report.Skipped, result)
			continue
		}

		written, err := extractOne(archive, outPath)
		if err != nil {
			result.Error = err.Error()
			report.Failed = append(report.Failed, result)
			continue
		}
		result.Bytes = written
		report.Extracted = append(report.Extracted, result)
	}

	return report
}

func extractOne(archive, outPath string) (int64, error) {
	in, err := os.Open(archive)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", archive, err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return 0, &errs.ExtractionError{Path: archive, Err: err}
	}
	defer gz.Close()

	partPath := outPath + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partPath, err)
	}

	written, err := io.Copy(out, gz)
	if err != nil {
		out.Close()
		os.Remove(partPath)
		return 0, &errs.ExtractionError{Path: archive, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("close %s: %w", partPath, err)
	}

	if err := os.Rename(partPath, outPath); err != nil {
		os.Remove(partPath)
		return 0, fmt.Errorf("finalize %s: %w", outPath, err)
	}

	return written, nil
}
