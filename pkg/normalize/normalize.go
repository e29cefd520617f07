// Package normalize converts the raw text fields of crawled rows into typed
// values. Everything here is pure and synchronous.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Table is a normalized record set ready for export.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates an empty table with the given columns.
func NewTable(columns ...string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols}
}

// Append adds a row. It fails when the value count does not match the
// columns.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of a column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Report counts what normalization kept and dropped.
type Report struct {
	Input   int
	Kept    int
	Dropped map[string]int
}

// NewReport starts a report over input rows.
func NewReport(input int) *Report {
	return &Report{Input: input, Dropped: make(map[string]int)}
}

// Drop records a dropped row under reason.
func (r *Report) Drop(reason string) {
	r.Dropped[reason]++
}

// TotalDropped returns the number of dropped rows.
func (r *Report) TotalDropped() int {
	n := 0
	for _, c := range r.Dropped {
		n += c
	}
	return n
}

// Reasons returns the drop reasons in sorted order.
func (r *Report) Reasons() []string {
	out := make([]string, 0, len(r.Dropped))
	for k := range r.Dropped {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var firstIntPattern = regexp.MustCompile(`\d+`)

// Strip trims whitespace and removes every given suffix or prefix token.
func Strip(s string, tokens ...string) string {
	s = strings.TrimSpace(s)
	for _, tok := range tokens {
		s = strings.TrimSpace(strings.TrimSuffix(s, tok))
		s = strings.TrimSpace(strings.TrimPrefix(s, tok))
	}
	return s
}

// ParseFloatUnit parses a decimal number with an optional unit suffix such
// as "万元" or "平米". Thousands separators are ignored.
func ParseFloatUnit(s, unit string) (float64, error) {
	v := Strip(s, unit)
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0, fmt.Errorf("empty number in %q", s)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return f, nil
}

// FirstInt returns the first run of digits in s.
func FirstInt(s string) (int, bool) {
	m := firstIntPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SplitComposite splits a composite field on sep, trims the parts, drops
// empty ones and requires exactly want parts.
func SplitComposite(s, sep string, want int) ([]string, error) {
	var parts []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != want {
		return nil, fmt.Errorf("%q splits into %d parts on %q, want %d", s, len(parts), sep, want)
	}
	return parts, nil
}

// ExtractGroups returns the submatches of the first match of re in s.
func ExtractGroups(re *regexp.Regexp, s string) ([]string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// Filter drops rows matching a named predicate.
type Filter[T any] struct {
	Name string
	Drop func(T) bool
}

// ApplyFilters keeps the rows no filter drops. Each dropped row is counted
// once, under the first filter that matched.
func ApplyFilters[T any](rows []T, report *Report, filters ...Filter[T]) []T {
	kept := rows[:0:0]
	for _, row := range rows {
		dropped := false
		for _, f := range filters {
			if f.Drop(row) {
				report.Drop(f.Name)
				dropped = true
				break
			}
		}
		if !dropped {
			kept = append(kept, row)
		}
	}
	return kept
}
