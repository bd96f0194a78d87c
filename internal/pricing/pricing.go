// 包 pricing：房价观测、预测换算与价格色带
//
// 背景：价格表以整数 region_name 记录邮编（前导零丢失），几何要素的邮编是 5 位字符串，
// 两边统一经 boundary.PadZIP 规整后再关联。
package pricing

import (
	"math"
	"slices"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"metro-price-map/internal/boundary"
)

// Missing：缺失数值的显示占位
const Missing = "—"

// Observation：一条价格观测（Locations_Prices 行）
type Observation struct {
	Region int64
	Date   time.Time
	Value  float64
}

// ZIP：规整后的 5 位邮编
func (o Observation) ZIP() string { return ZIPOf(o.Region) }

// ZIPOf：整数区域名转 5 位邮编
func ZIPOf(region int64) string { return boundary.PadZIP(strconv.FormatInt(region, 10)) }

// RegionOf：5 位邮编转整数区域名；非数字邮编返回 false
func RegionOf(zip string) (int64, bool) {
	n, err := strconv.ParseInt(zip, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// PriceMap：邮编 → 最新价格
type PriceMap map[string]float64

// NewPriceMap：由最新价格行构建；同一邮编出现多次时取日期最新者
func NewPriceMap(latest []Observation) PriceMap {
	pm := make(PriceMap, len(latest))
	seen := make(map[string]time.Time, len(latest))
	for _, o := range latest {
		z := o.ZIP()
		if d, ok := seen[z]; ok && !o.Date.After(d) {
			continue
		}
		seen[z] = o.Date
		pm[z] = o.Value
	}
	return pm
}

// Lookup：返回价格指针，缺失为 nil
func (pm PriceMap) Lookup(zip string) *float64 {
	v, ok := pm[boundary.PadZIP(zip)]
	if !ok {
		return nil
	}
	return &v
}

// HistoryPoint：价格走势图的一个点（月粒度）
type HistoryPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// History：按日期升序输出 YYYY-MM 点
func History(obs []Observation) []HistoryPoint {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b Observation) int { return a.Date.Compare(b.Date) })
	out := make([]HistoryPoint, 0, len(sorted))
	for _, o := range sorted {
		out = append(out, HistoryPoint{Date: o.Date.Format("2006-01"), Value: o.Value})
	}
	return out
}

// Prediction：某邮编最近一次的涨幅预测（百分比）；nil 表示缺失
type Prediction struct {
	Region       int64
	BaseDate     time.Time
	MonthAhead   *float64
	QuarterAhead *float64
	YearAhead    *float64
}

// Projection：按涨幅换算后的预测价格
type Projection struct {
	Month   *float64 `json:"month_ahead"`
	Quarter *float64 `json:"quarter_ahead"`
	Year    *float64 `json:"year_ahead"`
}

// ProjectValue：current × (1 + pct/100)；任一侧缺失返回 nil
func ProjectValue(current, pct *float64) *float64 {
	if current == nil || pct == nil {
		return nil
	}
	v := *current * (1 + *pct/100)
	return &v
}

// Project：对三个预测期分别换算；p 为 nil 时全部缺失
func Project(current *float64, p *Prediction) Projection {
	if p == nil {
		return Projection{}
	}
	return Projection{
		Month:   ProjectValue(current, p.MonthAhead),
		Quarter: ProjectValue(current, p.QuarterAhead),
		Year:    ProjectValue(current, p.YearAhead),
	}
}

var printer = message.NewPrinter(language.English)

// FormatUSD：四舍五入到整数并加千分位，如 $1,234,567；nil 返回占位符
func FormatUSD(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return Missing
	}
	return printer.Sprintf("$%d", int64(math.Round(*v)))
}

// FormatK：以千为单位的简写，如 $400k
func FormatK(v float64) string {
	return printer.Sprintf("$%dk", int64(math.Round(v/1000)))
}
