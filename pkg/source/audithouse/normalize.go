package audithouse

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/normalize"
)

// Columns appended by Normalize.
const (
	ColumnYear  = "年份"
	ColumnMonth = "月份"
)

var datePattern = regexp.MustCompile(`^(\d{4})-(\d{2})`)

// Drop reasons reported by Normalize.
const (
	DropArea  = "unparsable 面积"
	DropPrice = "unparsable 拟售价格"
	DropDate  = "unparsable 时间"
)

// Normalize converts the raw rows into typed values. Columns keep the
// header order with 年份 and 月份 appended. 面积 and 拟售价格 become
// float64, 年份 and 月份 int, 详细 the absolute detail URL. Rows whose
// conversions fail are dropped and counted in the report.
func (s *Source) Normalize(records []crawl.RowRecord, schema crawl.ColumnSchema) (*normalize.Table, *normalize.Report, error) {
	for _, c := range RequiredColumns {
		if !schema.Has(c) {
			return nil, nil, fmt.Errorf("schema lacks column %q", c)
		}
	}

	columns := append(schema.Columns(), ColumnYear, ColumnMonth)
	table := normalize.NewTable(columns...)
	report := normalize.NewReport(len(records))

	var (
		area   = schema.Index(ColumnArea)
		price  = schema.Index(ColumnPrice)
		date   = schema.Index(ColumnDate)
		detail = schema.Index(ColumnDetail)
		agency = schema.Index(ColumnAgency)
	)

rows:
	for _, rec := range records {
		if !schema.Conforms(rec.Fields) {
			report.Drop("misaligned row")
			continue
		}

		values := make([]any, 0, len(columns))
		for _, f := range rec.Fields {
			values = append(values, f)
		}

		a, err := normalize.ParseFloatUnit(rec.Fields[area], "平米")
		if err != nil {
			report.Drop(DropArea)
			continue
		}
		p, err := normalize.ParseFloatUnit(rec.Fields[price], "万元")
		if err != nil {
			report.Drop(DropPrice)
			continue
		}
		groups, ok := normalize.ExtractGroups(datePattern, normalize.Strip(rec.Fields[date]))
		if !ok {
			report.Drop(DropDate)
			continue
		}
		ym := make([]int, len(groups))
		for i, g := range groups {
			n, err := strconv.Atoi(g)
			if err != nil {
				report.Drop(DropDate)
				continue rows
			}
			ym[i] = n
		}

		values[area] = a
		values[price] = p
		values[agency] = normalize.Strip(rec.Fields[agency])
		values[detail] = s.DetailURL(rec.Fields[detail])
		values = append(values, ym[0], ym[1])

		if err := table.Append(values...); err != nil {
			return nil, nil, err
		}
	}

	report.Kept = table.Len()
	return table, report, nil
}
