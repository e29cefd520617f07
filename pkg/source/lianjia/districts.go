package lianjia

import "sort"

// Districts maps the URL segment of a Beijing district to its label.
var Districts = map[string]string{
	"dongcheng":       "东城",
	"xicheng":         "西城",
	"chaoyang":        "朝阳",
	"haidian":         "海淀",
	"fengtai":         "丰台",
	"shijingshan":     "石景山",
	"tongzhou":        "通州",
	"changping":       "昌平",
	"daxing":          "大兴",
	"yizhuangkaifaqu": "亦庄开发区",
	"shunyi":          "顺义",
	"fangshan":        "房山",
	"mentougou":       "门头沟",
	"pinggu":          "平谷",
	"huairou":         "怀柔",
	"miyun":           "密云",
	"yanqing":         "延庆",
	"yanjiao":         "燕郊",
}

// DistrictLabel returns the label of a district, "" when unknown.
func DistrictLabel(district string) string {
	return Districts[district]
}

// DistrictNames returns the known district segments, sorted.
func DistrictNames() []string {
	names := make([]string, 0, len(Districts))
	for k := range Districts {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
