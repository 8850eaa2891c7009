// Package transform turns published CSV files into typed rows matching the
// fixed per-city table layout.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"iacollector/errs"
	"iacollector/models"
)

const batchSize = 500

// SinkFunc receives batches of transformed rows. Row cells are positional
// against the spec's column list; nil marks SQL NULL.
type SinkFunc func(rows [][]any) error

// Result tallies one file's transformation.
type Result struct {
	RowsOut        int
	RowsDropped    int
	ValuesNulled   int
	UnknownHeaders []string
}

// SpecFor maps a published file to the table it loads into. The second
// return is false for files that are fetched but never loaded (geojson,
// calendar when disabled).
func SpecFor(kind models.FileKind, opts models.LoadOptions) (TableSpec, bool) {
	switch kind {
	case models.FileListingsArchive:
		if opts.SelectedDetail {
			return SelectedDetailSpec(), true
		}
		return DetailListings, true
	case models.FileReviewsArchive:
		return DetailReviews, true
	case models.FileCalendarArchive:
		if !opts.IncludeCalendar {
			return TableSpec{}, false
		}
		return Calendar, true
	case models.FileListings:
		return SimpleListings, true
	case models.FileReviews:
		return SimpleReviews, true
	case models.FileNeighbourhoods:
		return Neighbourhoods, true
	default:
		return TableSpec{}, false
	}
}

// SelectedDetailSpec reduces the detail listings layout to the curated
// column subset, renames applied, keeping the primary key.
func SelectedDetailSpec() TableSpec {
	spec := TableSpec{
		Name:       DetailListings.Name,
		PrimaryKey: DetailListings.PrimaryKey,
		Renames:    DetailListings.Renames,
	}
	for _, src := range SelectedDetailColumns {
		name := src
		if renamed, ok := spec.Renames[src]; ok {
			name = renamed
		}
		if col, ok := DetailListings.Column(name); ok {
			spec.Columns = append(spec.Columns, col)
		}
	}
	return spec
}

// File transforms one CSV file and streams row batches to sink.
func File(ctx context.Context, path string, spec TableSpec, policy models.ParsePolicy, sink SinkFunc) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.TransformError{File: filepath.Base(path), Err: err}
	}
	defer f.Close()
	return Stream(ctx, filepath.Base(path), f, spec, policy, sink)
}

// Stream reads CSV from r, maps its header onto spec's declared columns,
// coerces every cell to its column type and hands batches to sink. Unknown
// headers are dropped (reported once); declared columns absent from the
// header stay NULL. Cells that fail coercion follow policy: PolicyNull
// stores NULL and counts the value, PolicyDrop discards the row. A row with
// a NULL primary key is always dropped.
func Stream(ctx context.Context, name string, r io.Reader, spec TableSpec, policy models.ParsePolicy, sink SinkFunc) (*Result, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	res := &Result{}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return res, nil
	}
	if err != nil {
		return nil, &errs.TransformError{File: name, Line: 1, Err: err}
	}

	position := make(map[string]int, len(spec.Columns))
	for i, c := range spec.Columns {
		position[c.Name] = i
	}

	target := make([]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if renamed, ok := spec.Renames[h]; ok {
			h = renamed
		}
		if pos, ok := position[h]; ok {
			target[i] = pos
		} else {
			target[i] = -1
			res.UnknownHeaders = append(res.UnknownHeaders, h)
		}
	}

	var pkPos []int
	for _, pk := range spec.PrimaryKey {
		if pos, ok := position[pk]; ok {
			pkPos = append(pkPos, pos)
		}
	}

	batch := make([][]any, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink(batch); err != nil {
			return err
		}
		res.RowsOut += len(batch)
		batch = make([][]any, 0, batchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.RowsDropped++
			continue
		}

		row := make([]any, len(spec.Columns))
		nulled := 0
		dropped := false
		for i, cell := range record {
			if i >= len(target) {
				break
			}
			pos := target[i]
			if pos < 0 {
				continue
			}
			val, ok := coerce(cell, spec.Columns[pos])
			if !ok && policy == models.PolicyDrop {
				dropped = true
				break
			}
			if !ok {
				nulled++
			}
			row[pos] = val
		}
		if !dropped {
			for _, pos := range pkPos {
				if row[pos] == nil {
					dropped = true
					break
				}
			}
		}
		if dropped {
			res.RowsDropped++
			continue
		}
		res.ValuesNulled += nulled
		batch = append(batch, row)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

var naValues = map[string]bool{
	"":     true,
	"N/A":  true,
	"NA":   true,
	"n/a":  true,
	"NaN":  true,
	"nan":  true,
	"NULL": true,
	"null": true,
	"None": true,
}

var currencyRegex = regexp.MustCompile(`[$,€£¥₹]`)

// coerce converts one raw cell to the column's Go value. The bool is false
// only when the cell holds junk the type cannot represent; recognised empty
// markers coerce cleanly to NULL.
func coerce(cell string, col Column) (any, bool) {
	s := strings.TrimSpace(cell)
	if naValues[s] {
		return nil, true
	}
	switch col.Type {
	case TypeText:
		return s, true
	case TypeBigInt:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		// Columns exported through a float intermediary arrive as "2.0".
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
		return nil, false
	case TypeDouble:
		if priceColumns[col.Name] {
			s = strings.TrimSpace(currencyRegex.ReplaceAllString(s, ""))
			if s == "" {
				return nil, true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
		return nil, false
	case TypeBool:
		switch strings.ToLower(s) {
		case "t", "true":
			return true, true
		case "f", "false":
			return false, true
		}
		return nil, false
	case TypeDate:
		if d, ok := parseDate(s); ok {
			return d, true
		}
		return nil, false
	}
	return s, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2 January 2006",
	"2 January, 2006",
	"January 2, 2006",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
