package testutil

import (
	"fmt"
	"html"
	"strings"
)

// AuditHouseColumns is the header row of the audit house fixture table.
var AuditHouseColumns = []string{"核验编号", "区县", "小区", "户型", "面积", "拟售价格", "发布机构", "时间", "详细"}

// AuditHouseRow is one row of the audit house fixture table.
type AuditHouseRow struct {
	ID        string
	District  string
	Community string
	Layout    string
	Area      string
	Price     string
	Agency    string
	Date      string
	// DetailQuery is the query string of the detail link. Empty omits the link.
	DetailQuery string
}

// SampleAuditHouseRows returns n deterministic rows for page.
func SampleAuditHouseRows(page, n int) []AuditHouseRow {
	rows := make([]AuditHouseRow, n)
	for i := range rows {
		id := page*100 + i
		rows[i] = AuditHouseRow{
			ID:          fmt.Sprintf("HY%06d", id),
			District:    "海淀区",
			Community:   fmt.Sprintf("小区%d", id),
			Layout:      "2室1厅",
			Area:        fmt.Sprintf("%d.5", 60+i),
			Price:       fmt.Sprintf("%d万元", 300+i),
			Agency:      fmt.Sprintf("  机构%d ", i%3),
			Date:        fmt.Sprintf("2016-%02d-%02d", 1+i%12, 1+i%28),
			DetailQuery: fmt.Sprintf("hid=%d", id),
		}
	}
	return rows
}

// AuditHousePage renders an audit house list page.
func AuditHousePage(page, totalPages int, rows []AuditHouseRow) []byte {
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"></head><body>\n")
	b.WriteString("<table class=\"houseList\">\n<thead><tr>")
	for _, c := range AuditHouseColumns {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(c))
	}
	b.WriteString("</tr></thead>\n<tbody>\n")
	for _, r := range rows {
		b.WriteString("<tr>")
		for _, v := range []string{r.ID, r.District, r.Community, r.Layout, r.Area, r.Price, r.Agency, r.Date} {
			fmt.Fprintf(&b, "<td>%s</td>", html.EscapeString(v))
		}
		if r.DetailQuery != "" {
			fmt.Fprintf(&b, "<td><a href=\"audit_house_detail.aspx?%s\">查看</a></td>", html.EscapeString(r.DetailQuery))
		} else {
			b.WriteString("<td>查看</td>")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table>\n")
	fmt.Fprintf(&b, "<div class=\"pager\">共%d条 <span>页次：%d/%d页</span></div>\n", len(rows), page, totalPages)
	b.WriteString("</body></html>")
	return []byte(b.String())
}

// LianjiaListing is one li.clear entry of the Lianjia fixture page.
type LianjiaListing struct {
	ID        string
	Title     string
	New       bool
	Community string
	// HouseInfo follows the community link, e.g. " | 2室1厅 | 89.5平米 | 南 北 | 精装 | 有电梯".
	HouseInfo string
	// Position is the text before the region link, e.g. "中楼层(共6层)  1998年建板楼  -  ".
	Position   string
	Region     string
	Follow     string
	Tags       []string
	TotalPrice string
	UnitPrice  string
}

// SampleLianjiaListings returns n deterministic listings for page.
func SampleLianjiaListings(page, n int) []LianjiaListing {
	out := make([]LianjiaListing, n)
	for i := range out {
		id := 101100000000 + page*100 + i
		out[i] = LianjiaListing{
			ID:         fmt.Sprintf("%d", id),
			Title:      fmt.Sprintf("南北通透 两居室 %d", id),
			New:        i%4 == 0,
			Community:  fmt.Sprintf("清华园%d", i),
			HouseInfo:  fmt.Sprintf(" | 2室1厅 | %d.5平米 | 南 北 | 精装 | 有电梯", 70+i),
			Position:   fmt.Sprintf("中楼层(共6层)  %d年建板楼  -  ", 1990+i%20),
			Region:     "五道口",
			Follow:     fmt.Sprintf("%d人关注 / %d次带看 / %d天以前发布", 10+i, 1+i%5, 1+i%9),
			Tags:       []string{"距离13号线五道口站500米", "满五年"},
			TotalPrice: fmt.Sprintf("%d", 500+i),
			UnitPrice:  fmt.Sprintf("单价%d元/平米", 60000+i),
		}
	}
	return out
}

// LianjiaPage renders a Lianjia second-hand listing page.
func LianjiaPage(page, totalPages int, listings []LianjiaListing) []byte {
	var b strings.Builder
	b.WriteString("<html><head><meta charset=\"utf-8\"></head><body>\n<ul class=\"sellListContent\">\n")
	for _, l := range listings {
		href := fmt.Sprintf("https://bj.lianjia.com/ershoufang/%s.html", l.ID)
		b.WriteString("<li class=\"clear\">\n")
		fmt.Fprintf(&b, "<a class=\"img\" href=\"%s\"><img src=\"x.jpg\"></a>\n", href)
		b.WriteString("<div class=\"info clear\">\n")

		fmt.Fprintf(&b, "<div class=\"title\"><a href=\"%s\">%s</a>", href, html.EscapeString(l.Title))
		if l.New {
			b.WriteString("<span class=\"new tagBlock\">新上</span>")
		}
		b.WriteString("</div>\n")

		fmt.Fprintf(&b, "<div class=\"address\"><div class=\"houseInfo\"><span class=\"houseIcon\"></span><a href=\"/xiaoqu/1/\">%s</a>%s</div></div>\n",
			html.EscapeString(l.Community), html.EscapeString(l.HouseInfo))
		fmt.Fprintf(&b, "<div class=\"flood\"><div class=\"positionInfo\"><span class=\"positionIcon\"></span>%s<a href=\"/ershoufang/wudaokou/\">%s</a></div></div>\n",
			html.EscapeString(l.Position), html.EscapeString(l.Region))
		fmt.Fprintf(&b, "<div class=\"followInfo\"><span class=\"starIcon\"></span>%s</div>\n", html.EscapeString(l.Follow))

		b.WriteString("<div class=\"tag\">")
		for _, t := range l.Tags {
			fmt.Fprintf(&b, "<span>%s</span>", html.EscapeString(t))
		}
		b.WriteString("</div>\n")

		fmt.Fprintf(&b, "<div class=\"priceInfo\"><div class=\"totalPrice\"><span>%s</span>万</div><div class=\"unitPrice\"><span>%s</span></div></div>\n",
			html.EscapeString(l.TotalPrice), html.EscapeString(l.UnitPrice))
		b.WriteString("</div>\n</li>\n")
	}
	b.WriteString("</ul>\n")
	fmt.Fprintf(&b, "<div class=\"page-box house-lst-page-box\" page-data='{\"totalPage\":%d,\"curPage\":%d}'></div>\n", totalPages, page)
	b.WriteString("</body></html>")
	return []byte(b.String())
}
