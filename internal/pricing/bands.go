package pricing

import "fmt"

// Scale：分段色带
// 约束：len(Colors) == len(Thresholds)+1，Thresholds 严格递增；价格 < Thresholds[i] 取 Colors[i]，
// 不小于最后一个阈值取最后一种颜色；价格缺失取 MissingColor。
type Scale struct {
	Thresholds   []float64 `yaml:"thresholds" json:"thresholds"`
	Colors       []string  `yaml:"colors" json:"colors"`
	MissingColor string    `yaml:"missing_color" json:"missing_color"`
}

// LegendEntry：图例一行
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// DefaultScale：40 万 / 50 万 / 60 万三档阈值的蓝绿色带
func DefaultScale() Scale {
	return Scale{
		Thresholds:   []float64{400000, 500000, 600000},
		Colors:       []string{"#7bccc4", "#2b8cbe", "#0868ac", "#084081"},
		MissingColor: "#cccccc",
	}
}

// Validate：检查阈值与颜色数量匹配且阈值递增
func (s Scale) Validate() error {
	if len(s.Thresholds) == 0 {
		return fmt.Errorf("price scale: no thresholds")
	}
	if len(s.Colors) != len(s.Thresholds)+1 {
		return fmt.Errorf("price scale: %d thresholds need %d colors, got %d", len(s.Thresholds), len(s.Thresholds)+1, len(s.Colors))
	}
	for i := 1; i < len(s.Thresholds); i++ {
		if s.Thresholds[i] <= s.Thresholds[i-1] {
			return fmt.Errorf("price scale: thresholds not increasing at %d", i)
		}
	}
	return nil
}

// Color：价格对应的填充色
func (s Scale) Color(price *float64) string {
	if price == nil {
		return s.MissingColor
	}
	for i, t := range s.Thresholds {
		if *price < t {
			return s.Colors[i]
		}
	}
	return s.Colors[len(s.Colors)-1]
}

// Legend：生成图例，如 "< $400k"、"$400k – $500k"、"> $600k"
func (s Scale) Legend() []LegendEntry {
	n := len(s.Thresholds)
	if n == 0 || len(s.Colors) != n+1 {
		return nil
	}
	out := make([]LegendEntry, 0, n+1)
	out = append(out, LegendEntry{Label: "< " + FormatK(s.Thresholds[0]), Color: s.Colors[0]})
	for i := 1; i < n; i++ {
		out = append(out, LegendEntry{Label: FormatK(s.Thresholds[i-1]) + " – " + FormatK(s.Thresholds[i]), Color: s.Colors[i]})
	}
	out = append(out, LegendEntry{Label: "> " + FormatK(s.Thresholds[n-1]), Color: s.Colors[n]})
	return out
}
