package errs

import (
	"errors"
	"fmt"
	"strings"
)

type ResolutionKind string

const (
	NotFound  ResolutionKind = "not_found"
	Ambiguous ResolutionKind = "ambiguous"
)

// ResolutionError reports a query that matched no catalog entry, or more
// than one. The resolver never guesses; callers disambiguate or accept all.
type ResolutionError struct {
	Query      string
	Kind       ResolutionKind
	Candidates []string
}

func (e *ResolutionError) Error() string {
	if e.Kind == Ambiguous {
		return fmt.Sprintf("city %q is ambiguous: %s", e.Query, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("city %q not found in catalog", e.Query)
}

// NetworkError is a per-file download failure. Recoverable: the file is
// re-attempted on the next run via the resume check.
type NetworkError struct {
	URL    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ExtractionError is a per-file decompression failure.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SchemaError aborts the pipeline for its city; other cities continue.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransformError is a per-row coercion failure, resolved by the configured
// null/drop policy and counted.
type TransformError struct {
	File   string
	Line   int
	Column string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s line %d column %s: %v", e.File, e.Line, e.Column, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// LoadError is a per-row write failure beyond the expected upsert conflict.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == NotFound
}

func IsAmbiguous(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re) && re.Kind == Ambiguous
}
