package lianjia

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/normalize"
)

// Columns derived by Normalize.
const (
	ColumnStatus    = "状态"
	ColumnBuildType = "类型"
)

// OutputColumns is the column order of the normalized table.
var OutputColumns = []string{
	ColumnRegion, ColumnURL, ColumnCommunity, ColumnLayout, ColumnArea,
	ColumnPrice, ColumnUnitPrice, ColumnStatus, ColumnOrientation, ColumnDecoration,
	ColumnFloor, ColumnElevator, ColumnAge, ColumnBuildType, ColumnFollowers,
	ColumnVisits, ColumnPosted, ColumnTitle, ColumnTags,
}

// Filter names reported by Normalize.
const (
	FilterBasement   = "basement floor"
	FilterRestricted = "purchase restricted"
	FilterStale      = "stale without visits"
	FilterBuildYear  = "built before minimum year"
)

var (
	statusPattern     = regexp.MustCompile(`满[\p{L}\p{N}_]+`)
	buildPattern      = regexp.MustCompile(`(\d{4})年建([\p{L}\p{N}_]+)`)
	restrictedPattern = regexp.MustCompile(`^.+限购`)
	monthsPattern     = regexp.MustCompile(`^.+月`)
)

// Listing is one normalized Lianjia listing.
type Listing struct {
	Region      string
	URL         string
	Community   string
	Layout      string
	Area        float64
	Price       int // 万元
	UnitPrice   int // 元/平米
	Status      string
	Orientation string
	Decoration  string
	Floor       string
	Elevator    string
	BuildYear   int // 0 when unknown
	BuildType   string
	Followers   int
	Visits      int
	Posted      string
	Title       string
	Tags        string
}

// Values returns the listing in OutputColumns order.
func (l Listing) Values() []any {
	return []any{
		l.Region, l.URL, l.Community, l.Layout, l.Area,
		l.Price, l.UnitPrice, l.Status, l.Orientation, l.Decoration,
		l.Floor, l.Elevator, l.BuildYear, l.BuildType, l.Followers,
		l.Visits, l.Posted, l.Title, l.Tags,
	}
}

// conversionError names the column whose value could not be converted.
type conversionError struct {
	column string
	value  string
}

func (e *conversionError) Error() string {
	return fmt.Sprintf("unparsable %s %q", e.column, e.value)
}

// ParseListing converts one raw row.
func ParseListing(rec crawl.RowRecord, schema crawl.ColumnSchema) (Listing, error) {
	get := func(name string) string { return rec.Get(schema, name) }

	l := Listing{
		Region:      get(ColumnRegion),
		URL:         get(ColumnURL),
		Community:   get(ColumnCommunity),
		Layout:      get(ColumnLayout),
		Orientation: get(ColumnOrientation),
		Decoration:  get(ColumnDecoration),
		Floor:       get(ColumnFloor),
		Elevator:    get(ColumnElevator),
		Posted:      strings.Trim(get(ColumnPosted), "以发布"),
		Title:       get(ColumnTitle),
		Tags:        get(ColumnTags),
	}

	ints := []struct {
		column string
		dst    *int
	}{
		{ColumnPrice, &l.Price},
		{ColumnUnitPrice, &l.UnitPrice},
		{ColumnVisits, &l.Visits},
		{ColumnFollowers, &l.Followers},
	}
	for _, f := range ints {
		n, ok := normalize.FirstInt(get(f.column))
		if !ok {
			return Listing{}, &conversionError{column: f.column, value: get(f.column)}
		}
		*f.dst = n
	}

	area, err := normalize.ParseFloatUnit(get(ColumnArea), "平米")
	if err != nil {
		return Listing{}, &conversionError{column: ColumnArea, value: get(ColumnArea)}
	}
	l.Area = area

	l.Status = statusPattern.FindString(l.Tags)

	if groups, ok := normalize.ExtractGroups(buildPattern, get(ColumnAge)); ok {
		l.BuildYear, _ = strconv.Atoi(groups[0])
		l.BuildType = groups[1]
	}
	return l, nil
}

// Filters returns the listing filters, including the minimum build year
// when configured.
func (s *Source) Filters() []normalize.Filter[Listing] {
	filters := []normalize.Filter[Listing]{
		{Name: FilterBasement, Drop: func(l Listing) bool {
			return strings.HasPrefix(l.Floor, "地下室")
		}},
		{Name: FilterRestricted, Drop: func(l Listing) bool {
			return restrictedPattern.MatchString(l.Title)
		}},
		{Name: FilterStale, Drop: func(l Listing) bool {
			return monthsPattern.MatchString(l.Posted) && l.Visits == 0
		}},
	}
	if minYear := s.config.MinBuildYear; minYear > 0 {
		filters = append(filters, normalize.Filter[Listing]{
			Name: FilterBuildYear,
			Drop: func(l Listing) bool { return l.BuildYear != 0 && l.BuildYear < minYear },
		})
	}
	return filters
}

// Listings converts and filters the raw rows.
func (s *Source) Listings(records []crawl.RowRecord, schema crawl.ColumnSchema) ([]Listing, *normalize.Report, error) {
	if err := s.template.Validate(schema); err != nil {
		return nil, nil, err
	}

	report := normalize.NewReport(len(records))
	listings := make([]Listing, 0, len(records))
	for _, rec := range records {
		if !schema.Conforms(rec.Fields) {
			report.Drop("misaligned row")
			continue
		}
		l, err := ParseListing(rec, schema)
		if err != nil {
			var ce *conversionError
			if errors.As(err, &ce) {
				report.Drop("unparsable " + ce.column)
				continue
			}
			return nil, nil, err
		}
		listings = append(listings, l)
	}

	listings = normalize.ApplyFilters(listings, report, s.Filters()...)
	report.Kept = len(listings)
	return listings, report, nil
}

// Normalize converts, filters and tabulates the raw rows in OutputColumns
// order.
func (s *Source) Normalize(records []crawl.RowRecord, schema crawl.ColumnSchema) (*normalize.Table, *normalize.Report, error) {
	listings, report, err := s.Listings(records, schema)
	if err != nil {
		return nil, nil, err
	}
	table := normalize.NewTable(OutputColumns...)
	for _, l := range listings {
		if err := table.Append(l.Values()...); err != nil {
			return nil, nil, err
		}
	}
	return table, report, nil
}
