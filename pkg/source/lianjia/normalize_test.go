package lianjia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
)

// rawRow builds a row in schema order from column overrides.
func rawRow(t *testing.T, schema crawl.ColumnSchema, overrides map[string]string) crawl.RowRecord {
	t.Helper()
	base := map[string]string{
		ColumnURL:         "https://bj.lianjia.com/ershoufang/101.html",
		ColumnTitle:       "南北通透 满五唯一",
		ColumnCommunity:   "清华园",
		ColumnLayout:      "2室1厅",
		ColumnArea:        "89.5平米",
		ColumnOrientation: "南 北",
		ColumnDecoration:  "精装",
		ColumnElevator:    "有电梯",
		ColumnFloor:       "中楼层(共6层)",
		ColumnAge:         "1998年建板楼",
		ColumnRegion:      "五道口",
		ColumnFollowers:   "23人关注",
		ColumnVisits:      "5次带看",
		ColumnPosted:      "1个月以前发布",
		ColumnTags:        "距离13号线五道口站500米, 满五年",
		ColumnPrice:       "565",
		ColumnUnit:        "万",
		ColumnUnitPrice:   "单价63128元/平米",
	}
	for k, v := range overrides {
		base[k] = v
	}
	fields := make([]string, schema.Len())
	for i, c := range schema.Columns() {
		fields[i] = base[c]
	}
	return crawl.RowRecord{Fields: fields}
}

func TestParseListing(t *testing.T) {
	src := newSource(t, "haidian")
	schema := src.Schema()

	l, err := ParseListing(rawRow(t, schema, nil), schema)
	require.NoError(t, err)

	assert.Equal(t, Listing{
		Region:      "五道口",
		URL:         "https://bj.lianjia.com/ershoufang/101.html",
		Community:   "清华园",
		Layout:      "2室1厅",
		Area:        89.5,
		Price:       565,
		UnitPrice:   63128,
		Status:      "满五年",
		Orientation: "南 北",
		Decoration:  "精装",
		Floor:       "中楼层(共6层)",
		Elevator:    "有电梯",
		BuildYear:   1998,
		BuildType:   "板楼",
		Followers:   23,
		Visits:      5,
		Posted:      "1个月以前",
		Title:       "南北通透 满五唯一",
		Tags:        "距离13号线五道口站500米, 满五年",
	}, l)
}

func TestParseListing_UnknownBuildYear(t *testing.T) {
	src := newSource(t, "haidian")
	schema := src.Schema()

	l, err := ParseListing(rawRow(t, schema, map[string]string{ColumnAge: "", ColumnTags: "近地铁"}), schema)
	require.NoError(t, err)
	assert.Equal(t, 0, l.BuildYear)
	assert.Equal(t, "", l.BuildType)
	assert.Equal(t, "", l.Status)
}

func TestNormalize_FiltersAndDrops(t *testing.T) {
	src := newSource(t, "haidian")
	schema := src.Schema()

	records := []crawl.RowRecord{
		rawRow(t, schema, nil),
		rawRow(t, schema, map[string]string{ColumnFloor: "地下室(共6层)"}),
		rawRow(t, schema, map[string]string{ColumnTitle: "西二旗 不限购 两居"}),
		rawRow(t, schema, map[string]string{ColumnPosted: "3个月以前发布", ColumnVisits: "0次带看"}),
		rawRow(t, schema, map[string]string{ColumnPosted: "3天以前发布", ColumnVisits: "0次带看"}),
		rawRow(t, schema, map[string]string{ColumnPrice: "暂无"}),
		rawRow(t, schema, map[string]string{ColumnArea: "--"}),
		{Fields: []string{"too", "short"}},
	}

	table, report, err := src.Normalize(records, schema)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Len())
	assert.Equal(t, 8, report.Input)
	assert.Equal(t, 2, report.Kept)
	assert.Equal(t, 1, report.Dropped[FilterBasement])
	assert.Equal(t, 1, report.Dropped[FilterRestricted])
	assert.Equal(t, 1, report.Dropped[FilterStale])
	assert.Equal(t, 1, report.Dropped["unparsable "+ColumnPrice])
	assert.Equal(t, 1, report.Dropped["unparsable "+ColumnArea])
	assert.Equal(t, 1, report.Dropped["misaligned row"])

	row := table.Rows[0]
	assert.Equal(t, "五道口", row[0])
	assert.Equal(t, 565, row[table.Column(ColumnPrice)])
	assert.Equal(t, "满五年", row[table.Column(ColumnStatus)])
}

func TestNormalize_MinBuildYear(t *testing.T) {
	cfg := DefaultConfig("haidian")
	cfg.MinBuildYear = 2000
	src, err := New(cfg)
	require.NoError(t, err)
	schema := src.Schema()

	records := []crawl.RowRecord{
		rawRow(t, schema, map[string]string{ColumnAge: "1998年建板楼"}),
		rawRow(t, schema, map[string]string{ColumnAge: "2005年建塔楼"}),
		rawRow(t, schema, map[string]string{ColumnAge: ""}),
	}

	listings, report, err := src.Listings(records, schema)
	require.NoError(t, err)

	require.Len(t, listings, 2)
	assert.Equal(t, 2005, listings[0].BuildYear)
	assert.Equal(t, 0, listings[1].BuildYear)
	assert.Equal(t, 1, report.Dropped[FilterBuildYear])
}

func TestNormalize_SchemaMismatch(t *testing.T) {
	src := newSource(t, "haidian")
	_, _, err := src.Normalize(nil, crawl.NewSchema("url"))
	assert.Error(t, err)
}
