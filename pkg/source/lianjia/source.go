// Package lianjia reads the second-hand listings of bj.lianjia.com, one
// district at a time.
package lianjia

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sternrassler/listing-crawler/pkg/crawl"
	"github.com/Sternrassler/listing-crawler/pkg/markup"
)

const (
	// Name identifies the source in logs and metrics.
	Name = "lianjia"

	// DefaultBaseURL is the listing root; the district is appended.
	DefaultBaseURL = "http://bj.lianjia.com/ershoufang"

	// DefaultSuffix is the filter segment appended to every page path.
	DefaultSuffix = "sf1co21tf1lc1lc2l2p4p5"

	// DefaultDetailBase is the root of canonical listing URLs.
	DefaultDetailBase = "https://bj.lianjia.com/ershoufang"

	// DefaultConcurrency is the fetch cap used for this portal.
	DefaultConcurrency = 10
)

// Raw columns, in schema order.
const (
	ColumnURL         = "url"
	ColumnTitle       = "名称"
	ColumnCommunity   = "小区"
	ColumnLayout      = "房型"
	ColumnArea        = "面积"
	ColumnOrientation = "朝向"
	ColumnDecoration  = "装修"
	ColumnElevator    = "有无电梯"
	ColumnFloor       = "楼层"
	ColumnAge         = "楼龄"
	ColumnRegion      = "区域"
	ColumnFollowers   = "关注"
	ColumnVisits      = "带看"
	ColumnPosted      = "首发"
	ColumnTags        = "评价"
	ColumnPrice       = "价格"
	ColumnUnit        = "单位"
	ColumnUnitPrice   = "均价"
)

// skipTokens are badges mixed into listing text that carry no column value.
var skipTokens = []string{"新上", "房主自荐"}

var (
	listSel     = markup.Compile("ul.sellListContent")
	itemSel     = markup.Compile("li.clear")
	directLink  = markup.Compile("a[href]")
	titleSel    = markup.Compile("div.title > a")
	houseSel    = markup.Compile("div.houseInfo")
	positionSel = markup.Compile("div.positionInfo")
	linkSel     = markup.Compile("a")
	followSel   = markup.Compile("div.followInfo")
	tagSel      = markup.Compile("div.tag > span")
	totalSel    = markup.Compile("div.totalPrice")
	totalNumSel = markup.Compile("div.totalPrice > span")
	unitSel     = markup.Compile("div.unitPrice")
	pageBoxSel  = markup.Compile("div.page-box.house-lst-page-box[page-data]")

	listingID = regexp.MustCompile(`/(\d+)\.html`)
)

// Config holds source configuration.
type Config struct {
	// District is the URL segment, e.g. "haidian". Unknown districts are
	// crawled with an empty label.
	District string

	BaseURL    string
	Suffix     string
	DetailBase string

	// MinBuildYear drops listings built before this year (0 disables).
	MinBuildYear int
}

// DefaultConfig returns the portal defaults for a district.
func DefaultConfig(district string) Config {
	return Config{
		District:   district,
		BaseURL:    DefaultBaseURL,
		Suffix:     DefaultSuffix,
		DetailBase: DefaultDetailBase,
	}
}

// Source implements crawl.Source for one Lianjia district.
type Source struct {
	config   Config
	template *markup.Template
}

// New creates a source.
func New(cfg Config) (*Source, error) {
	if cfg.District == "" {
		return nil, errors.New("district is required")
	}
	if strings.ContainsAny(cfg.District, "/?#") {
		return nil, fmt.Errorf("invalid district %q", cfg.District)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DetailBase == "" {
		cfg.DetailBase = DefaultDetailBase
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.DetailBase = strings.TrimSuffix(cfg.DetailBase, "/")

	s := &Source{config: cfg}
	s.template = s.newTemplate()
	return s, nil
}

// Name implements crawl.Source.
func (s *Source) Name() string { return Name }

// District returns the configured district segment.
func (s *Source) District() string { return s.config.District }

// Label returns the output file label, e.g. "链家海淀二手房信息".
func (s *Source) Label() string {
	return "链家" + DistrictLabel(s.config.District) + "二手房信息"
}

// PageURL implements crawl.Source.
func (s *Source) PageURL(page crawl.PageIndex) string {
	return fmt.Sprintf("%s/%s/pg%d%s", s.config.BaseURL, s.config.District, page, s.config.Suffix)
}

// DetailURL turns a listing id into its canonical URL.
func (s *Source) DetailURL(id string) string {
	return s.config.DetailBase + "/" + id + ".html"
}

// Schema returns the fixed column schema of the listing pages.
func (s *Source) Schema() crawl.ColumnSchema {
	return s.template.Schema()
}

type pageData struct {
	TotalPage int `json:"totalPage"`
	CurPage   int `json:"curPage"`
}

// ParseSeed implements crawl.Source.
func (s *Source) ParseSeed(page crawl.RawPage) (*crawl.SeedPage, error) {
	doc, err := markup.Parse(page.Body)
	if err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}

	raw, ok := doc.FindMatcher(pageBoxSel).Attr("page-data")
	if !ok {
		return nil, crawl.PageDefect(page.Index, "", "page-data missing")
	}
	var data pageData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, crawl.PageDefect(page.Index, "", fmt.Sprintf("page-data %q: %v", raw, err))
	}

	parse, err := s.rows(page.Index, doc)
	if err != nil {
		return nil, err
	}
	return &crawl.SeedPage{
		TotalPages: data.TotalPage,
		Schema:     s.Schema(),
		Page:       *parse,
	}, nil
}

// ParsePage implements crawl.Source.
func (s *Source) ParsePage(page crawl.RawPage, schema crawl.ColumnSchema) (*crawl.PageParse, error) {
	if err := s.template.Validate(schema); err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}
	doc, err := markup.Parse(page.Body)
	if err != nil {
		return nil, crawl.PageDefect(page.Index, "", err.Error())
	}
	return s.rows(page.Index, doc)
}

func (s *Source) rows(page crawl.PageIndex, doc *goquery.Document) (*crawl.PageParse, error) {
	list := doc.FindMatcher(listSel)
	if list.Length() == 0 {
		return nil, crawl.PageDefect(page, "", "listing container missing")
	}
	return s.template.Rows(page, list.FindMatcher(itemSel)), nil
}

func (s *Source) newTemplate() *markup.Template {
	return markup.NewTemplate(
		markup.Field{
			Columns: []string{ColumnURL},
			Extract: func(item *goquery.Selection) ([]string, error) {
				href, ok := item.ChildrenMatcher(directLink).Attr("href")
				if !ok {
					href, ok = item.FindMatcher(titleSel).Attr("href")
				}
				if !ok {
					return nil, markup.Missing(ColumnURL, "listing link")
				}
				m := listingID.FindStringSubmatch(href)
				if m == nil {
					return nil, &markup.FieldError{Field: ColumnURL, Reason: fmt.Sprintf("no listing id in %q", href)}
				}
				return []string{s.DetailURL(m[1])}, nil
			},
		},
		markup.Field{
			Columns: []string{ColumnTitle},
			Extract: func(item *goquery.Selection) ([]string, error) {
				title := item.FindMatcher(titleSel)
				if title.Length() == 0 {
					return nil, markup.Missing(ColumnTitle, "title link")
				}
				return []string{markup.Text(title)}, nil
			},
		},
		markup.Field{
			Columns: []string{ColumnCommunity, ColumnLayout, ColumnArea, ColumnOrientation, ColumnDecoration, ColumnElevator},
			Extract: func(item *goquery.Selection) ([]string, error) {
				info := item.FindMatcher(houseSel)
				if info.Length() == 0 {
					return nil, markup.Missing(ColumnCommunity, "house info")
				}
				community := markup.Text(info.FindMatcher(linkSel))
				if community == "" {
					return nil, markup.Missing(ColumnCommunity, "community link")
				}
				return append([]string{community}, split(markup.OwnText(info), "|")...), nil
			},
		},
		markup.Field{
			Columns: []string{ColumnFloor, ColumnAge, ColumnRegion},
			Extract: func(item *goquery.Selection) ([]string, error) {
				pos := item.FindMatcher(positionSel)
				if pos.Length() == 0 {
					return nil, markup.Missing(ColumnFloor, "position info")
				}
				parts := split(markup.OwnText(pos), "  ")
				switch len(parts) {
				case 1:
					// no build year published
					parts = append(parts, "")
				case 2:
				default:
					return nil, &markup.FieldError{
						Field:  ColumnFloor,
						Reason: fmt.Sprintf("position %q has %d parts", markup.OwnText(pos), len(parts)),
					}
				}
				return append(parts, markup.Text(pos.FindMatcher(linkSel))), nil
			},
		},
		markup.Field{
			Columns: []string{ColumnFollowers, ColumnVisits, ColumnPosted},
			Extract: func(item *goquery.Selection) ([]string, error) {
				follow := item.FindMatcher(followSel)
				if follow.Length() == 0 {
					return nil, markup.Missing(ColumnFollowers, "follow info")
				}
				return split(markup.Text(follow), "/"), nil
			},
		},
		markup.Field{
			Columns: []string{ColumnTags},
			Extract: func(item *goquery.Selection) ([]string, error) {
				var tags []string
				item.FindMatcher(tagSel).Each(func(_ int, span *goquery.Selection) {
					if t := markup.Text(span); t != "" && !skipped(t) {
						tags = append(tags, t)
					}
				})
				return []string{strings.Join(tags, ", ")}, nil
			},
		},
		markup.Field{
			Columns: []string{ColumnPrice, ColumnUnit, ColumnUnitPrice},
			Extract: func(item *goquery.Selection) ([]string, error) {
				total := item.FindMatcher(totalSel)
				if total.Length() == 0 {
					return nil, markup.Missing(ColumnPrice, "total price")
				}
				unit := item.FindMatcher(unitSel)
				if unit.Length() == 0 {
					return nil, markup.Missing(ColumnUnitPrice, "unit price")
				}
				return []string{
					markup.Text(item.FindMatcher(totalNumSel)),
					markup.OwnText(total),
					markup.Text(unit),
				}, nil
			},
		},
	)
}

// split breaks a composite text on sep, dropping empty parts, the "-"
// separator and badge tokens.
func split(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p == "" || p == "-" || skipped(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func skipped(s string) bool {
	for _, tok := range skipTokens {
		if s == tok {
			return true
		}
	}
	return false
}
