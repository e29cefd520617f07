package crawl

import (
	"fmt"
	"sort"
)

// PageIndex is a 1-based page ordinal of a paginated listing.
type PageIndex int

// RawPage is the markup of one fetched page. It is consumed by the parser
// and discarded.
type RawPage struct {
	Index PageIndex
	URL   string
	Body  []byte
}

// FetchOutcome is the tagged result of fetching one page: either a RawPage
// (Err == nil) or a failure reason. A failed fetch is never an empty page.
type FetchOutcome struct {
	Page RawPage
	Err  error
}

// Success wraps a fetched page.
func Success(page RawPage) FetchOutcome {
	return FetchOutcome{Page: page}
}

// Failure records a failed fetch of the given page.
func Failure(index PageIndex, url string, err error) FetchOutcome {
	if err == nil {
		err = fmt.Errorf("fetch of page %d failed without a reason", index)
	}
	return FetchOutcome{Page: RawPage{Index: index, URL: url}, Err: err}
}

// OK reports whether the outcome carries a page.
func (o FetchOutcome) OK() bool {
	return o.Err == nil
}

// ColumnSchema is the ordered list of column names every row is aligned to.
// It is fixed after the seed page has been parsed.
type ColumnSchema struct {
	columns []string
	index   map[string]int
}

// NewSchema builds a schema from column names. Duplicate names keep the
// position of their first occurrence for Index lookups.
func NewSchema(columns ...string) ColumnSchema {
	cols := make([]string, len(columns))
	copy(cols, columns)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, ok := index[c]; !ok {
			index[c] = i
		}
	}
	return ColumnSchema{columns: cols, index: index}
}

// Len returns the number of columns.
func (s ColumnSchema) Len() int {
	return len(s.columns)
}

// Columns returns a copy of the column names.
func (s ColumnSchema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Index returns the position of a column, or -1.
func (s ColumnSchema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether every named column is present.
func (s ColumnSchema) Has(names ...string) bool {
	for _, n := range names {
		if s.Index(n) < 0 {
			return false
		}
	}
	return true
}

// Conforms reports whether a row has exactly one value per column.
func (s ColumnSchema) Conforms(fields []string) bool {
	return len(fields) == len(s.columns)
}

// Equal reports whether two schemas list the same columns in the same order.
func (s ColumnSchema) Equal(other ColumnSchema) bool {
	if len(s.columns) != len(other.columns) {
		return false
	}
	for i := range s.columns {
		if s.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

// RowRecord is one listing, positionally aligned to the crawl's ColumnSchema.
// Page and Position form a stable sort key independent of completion order.
type RowRecord struct {
	Page     PageIndex
	Position int
	Fields   []string
}

// Get returns the value of the named column, or "" when absent.
func (r RowRecord) Get(schema ColumnSchema, name string) string {
	i := schema.Index(name)
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// RecordCollection accumulates rows of every successfully parsed page. It is
// append-only and owned by a single Aggregator; it is not safe for
// concurrent use.
type RecordCollection struct {
	rows []RowRecord
}

// Append adds the rows of one page in their on-page order.
func (c *RecordCollection) Append(page PageIndex, rows [][]string) {
	for i, fields := range rows {
		c.rows = append(c.rows, RowRecord{Page: page, Position: i, Fields: fields})
	}
}

// Len returns the number of collected rows.
func (c *RecordCollection) Len() int {
	return len(c.rows)
}

// Rows returns the collected rows. The slice must not be modified.
func (c *RecordCollection) Rows() []RowRecord {
	return c.rows
}

// SortByPage orders rows by page, then by their position on the page.
func (c *RecordCollection) SortByPage() {
	sort.SliceStable(c.rows, func(i, j int) bool {
		if c.rows[i].Page != c.rows[j].Page {
			return c.rows[i].Page < c.rows[j].Page
		}
		return c.rows[i].Position < c.rows[j].Position
	})
}

// PageParse is what a parser extracted from one page.
type PageParse struct {
	// Rows are field values aligned to the schema.
	Rows [][]string

	// Defects are rows the parser could not extract.
	Defects []*ParseDefect
}

// SeedPage is the parse of page 1: the crawl bounds plus page 1's rows.
type SeedPage struct {
	TotalPages int
	Schema     ColumnSchema
	Page       PageParse
}
