// Package audithouse reads the Beijing second-hand housing audit list.
//
// The list is a single HTML table whose header row defines the columns. The
// page count is printed in a pager text such as "页次：1/123页".
package audithouse

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/markup"
)

const (
	// Name identifies the source in logs and metrics.
	Name = "audithouse"

	// Label prefixes the output file name.
	Label = "存量房交易服务平台"

	// DefaultBaseURL is the list page of the portal.
	DefaultBaseURL = "http://210.75.213.188/shh/portal/bjjs/audit_house_list.aspx"

	// DefaultPageSize is the number of rows requested per page.
	DefaultPageSize = 20

	// DefaultConcurrency is the fetch cap used for this portal.
	DefaultConcurrency = 5
)

// Column names the normalizer depends on.
const (
	ColumnArea   = "面积"
	ColumnPrice  = "拟售价格"
	ColumnDate   = "时间"
	ColumnDetail = "详细"
	ColumnAgency = "发布机构"
)

// RequiredColumns must all appear in the table header.
var RequiredColumns = []string{ColumnArea, ColumnPrice, ColumnDate, ColumnDetail, ColumnAgency}

var (
	tableSel  = markup.Compile("table.houseList")
	headerSel = markup.Compile("thead th")
	rowSel    = markup.Compile("tbody tr")
	cellSel   = markup.Compile("td")
	linkSel   = markup.Compile("a[href]")
)

// Config holds source configuration.
type Config struct {
	BaseURL  string
	PageSize int
}

// DefaultConfig returns the portal defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		PageSize: DefaultPageSize,
	}
}

// Source implements crawl.Source for the audit house list.
type Source struct {
	config    Config
	detailURL string
}

// New creates a source.
func New(cfg Config) (*Source, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	return &Source{
		config:    cfg,
		detailURL: strings.Replace(cfg.BaseURL, "_list", "_detail", 1),
	}, nil
}

// Name implements crawl.Source.
func (s *Source) Name() string { return Name }

// Label returns the output file label.
func (s *Source) Label() string { return Label }

// PageURL implements crawl.Source.
func (s *Source) PageURL(page crawl.PageIndex) string {
	return fmt.Sprintf("%s?pagenumber=%d&pagesize=%d", s.config.BaseURL, page, s.config.PageSize)
}

// DetailURL turns the query string of a detail link into the canonical
// detail page URL.
func (s *Source) DetailURL(query string) string {
	return s.detailURL + "?" + query
}

// ParseSeed implements crawl.Source.
func (s *Source) ParseSeed(page crawl.RawPage) (*crawl.SeedPage, error) {
	doc, err := markup.Parse(page.Body)
	if err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}
	table := doc.FindMatcher(tableSel)
	if table.Length() == 0 {
		return nil, crawl.PageDefect(page.Index, "", "listing table missing")
	}

	var columns []string
	table.First().FindMatcher(headerSel).Each(func(_ int, th *goquery.Selection) {
		if name := markup.Text(th); name != "" {
			columns = append(columns, name)
		}
	})
	schema := crawl.NewSchema(columns...)
	for _, c := range RequiredColumns {
		if !schema.Has(c) {
			return nil, crawl.PageDefect(page.Index, c, "required column missing from table header")
		}
	}

	total, err := pageCount(doc)
	if err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}

	return &crawl.SeedPage{
		TotalPages: total,
		Schema:     schema,
		Page:       *rowsOf(page.Index, table.First(), schema),
	}, nil
}

// ParsePage implements crawl.Source.
func (s *Source) ParsePage(page crawl.RawPage, schema crawl.ColumnSchema) (*crawl.PageParse, error) {
	doc, err := markup.Parse(page.Body)
	if err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}
	table := doc.FindMatcher(tableSel)
	if table.Length() == 0 {
		return nil, crawl.PageDefect(page.Index, "", "listing table missing")
	}
	return rowsOf(page.Index, table.First(), schema), nil
}

func rowsOf(page crawl.PageIndex, table *goquery.Selection, schema crawl.ColumnSchema) *crawl.PageParse {
	return template(schema).Rows(page, table.FindMatcher(rowSel))
}

// template builds one field per header column. The detail column yields
// the query string of its link; every other column yields the cell text.
func template(schema crawl.ColumnSchema) *markup.Template {
	columns := schema.Columns()
	fields := make([]markup.Field, len(columns))
	for i, name := range columns {
		i, name := i, name
		fields[i] = markup.Field{
			Columns: []string{name},
			Extract: func(row *goquery.Selection) ([]string, error) {
				cells := row.FindMatcher(cellSel)
				if cells.Length() != len(columns) {
					return nil, &markup.FieldError{
						Field:  name,
						Reason: fmt.Sprintf("row has %d cells, header has %d columns", cells.Length(), len(columns)),
					}
				}
				cell := cells.Eq(i)
				if name != ColumnDetail {
					return []string{markup.Text(cell)}, nil
				}
				href, ok := cell.FindMatcher(linkSel).Attr("href")
				if !ok {
					return nil, markup.Missing(name, "detail link")
				}
				query, ok := markup.QueryOf(href)
				if !ok {
					return nil, &markup.FieldError{Field: name, Reason: "detail link has no query"}
				}
				return []string{query}, nil
			},
		}
	}
	return markup.NewTemplate(fields...)
}

func pageCount(doc *goquery.Document) (int, error) {
	text, ok := markup.FindText(doc.Selection, "页次")
	if !ok {
		return 0, errors.New("page count text missing")
	}
	i := strings.LastIndex(text, "/")
	if i < 0 {
		return 0, fmt.Errorf("page count text %q has no '/'", text)
	}
	raw := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text[i+1:]), "页"))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("page count %q: %w", raw, err)
	}
	return n, nil
}
