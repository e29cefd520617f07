package crawl

import (
	"errors"
	"fmt"
)

var (
	// ErrSeedFailed is returned by Run when page 1 cannot be fetched or
	// parsed. Without it there is no page count and no schema.
	ErrSeedFailed = errors.New("seed page failed")

	// ErrAlreadyRun is returned when Run is called twice on one Aggregator.
	ErrAlreadyRun = errors.New("aggregator already run")
)

// Stage names the pipeline step a page failed in.
type Stage string

const (
	// StageFetch is a network failure: transport error, timeout or non-2xx.
	StageFetch Stage = "fetch"

	// StageParse is a structural mismatch between expected and actual markup.
	StageParse Stage = "parse"
)

// ParseDefect describes markup that does not have the expected shape.
// Row is -1 for page-level defects.
type ParseDefect struct {
	Page   PageIndex
	Row    int
	Field  string
	Reason string
}

// Error implements the error interface.
func (d *ParseDefect) Error() string {
	switch {
	case d.Row < 0 && d.Field == "":
		return fmt.Sprintf("parse defect on page %d: %s", d.Page, d.Reason)
	case d.Row < 0:
		return fmt.Sprintf("parse defect on page %d, field %q: %s", d.Page, d.Field, d.Reason)
	case d.Field == "":
		return fmt.Sprintf("parse defect on page %d, row %d: %s", d.Page, d.Row, d.Reason)
	default:
		return fmt.Sprintf("parse defect on page %d, row %d, field %q: %s", d.Page, d.Row, d.Field, d.Reason)
	}
}

// PageDefect builds a page-level defect.
func PageDefect(page PageIndex, field, reason string) *ParseDefect {
	return &ParseDefect{Page: page, Row: -1, Field: field, Reason: reason}
}

// RowDefect builds a row-level defect.
func RowDefect(page PageIndex, row int, field, reason string) *ParseDefect {
	return &ParseDefect{Page: page, Row: row, Field: field, Reason: reason}
}

// PageFailure records a page that contributed no rows.
type PageFailure struct {
	Page  PageIndex
	URL   string
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (f PageFailure) Error() string {
	return fmt.Sprintf("page %d %s failed: %v", f.Page, f.Stage, f.Err)
}

// Unwrap exposes the underlying cause.
func (f PageFailure) Unwrap() error {
	return f.Err
}
