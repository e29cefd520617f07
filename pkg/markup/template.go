package markup

import (
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
)

// Field extracts one or more adjacent columns from a listing row.
type Field struct {
	// Columns are the schema columns this field fills, in order.
	Columns []string

	// Extract returns exactly len(Columns) values.
	Extract func(row *goquery.Selection) ([]string, error)
}

// FieldError describes why a row could not be extracted.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Missing reports a required element absent from the row.
func Missing(field, what string) *FieldError {
	return &FieldError{Field: field, Reason: what + " missing"}
}

// Template lists the field extractors of one listing layout.
type Template struct {
	fields  []Field
	columns []string
}

// NewTemplate builds a template from fields in schema order.
func NewTemplate(fields ...Field) *Template {
	t := &Template{fields: fields}
	for _, f := range fields {
		t.columns = append(t.columns, f.Columns...)
	}
	return t
}

// Columns returns the columns the template produces.
func (t *Template) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Schema returns the column schema the template produces.
func (t *Template) Schema() crawl.ColumnSchema {
	return crawl.NewSchema(t.columns...)
}

// Validate checks that the template produces exactly the given schema.
func (t *Template) Validate(schema crawl.ColumnSchema) error {
	if !t.Schema().Equal(schema) {
		return fmt.Errorf("template columns %v do not match schema %v", t.columns, schema.Columns())
	}
	return nil
}

// Row extracts one row. Every field must yield as many values as it has
// columns; otherwise the row is reported as a FieldError.
func (t *Template) Row(row *goquery.Selection) ([]string, error) {
	out := make([]string, 0, len(t.columns))
	for _, f := range t.fields {
		name := ""
		if len(f.Columns) > 0 {
			name = f.Columns[0]
		}

		values, err := f.Extract(row)
		if err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				return nil, fe
			}
			return nil, &FieldError{Field: name, Reason: err.Error()}
		}
		if len(values) != len(f.Columns) {
			return nil, &FieldError{
				Field:  name,
				Reason: fmt.Sprintf("extracted %d values for %d columns", len(values), len(f.Columns)),
			}
		}
		out = append(out, values...)
	}
	return out, nil
}

// Rows extracts every row of a selection, turning failures into row-level
// defects of the given page.
func (t *Template) Rows(page crawl.PageIndex, rows *goquery.Selection) *crawl.PageParse {
	parse := &crawl.PageParse{}
	rows.Each(func(i int, row *goquery.Selection) {
		fields, err := t.Row(row)
		if err != nil {
			var fe *FieldError
			if !errors.As(err, &fe) {
				fe = &FieldError{Reason: err.Error()}
			}
			parse.Defects = append(parse.Defects, crawl.RowDefect(page, i, fe.Field, fe.Reason))
			return
		}
		parse.Rows = append(parse.Rows, fields)
	})
	return parse
}
