package station

// LineMeta：线路显示元数据
type LineMeta struct {
	Color string `yaml:"color" json:"color"`
	Label string `yaml:"label" json:"label"`
}

// UnknownLineColor：未登记线路的颜色
const UnknownLineColor = "#999"

// DefaultLines：华盛顿地铁六条线路
func DefaultLines() map[string]LineMeta {
	return map[string]LineMeta{
		"BL": {Color: "#009CDE", Label: "BLUE LINE"},
		"GR": {Color: "#00B140", Label: "GREEN LINE"},
		"OR": {Color: "#ED8B00", Label: "ORANGE LINE"},
		"RD": {Color: "#BF0D3E", Label: "RED LINE"},
		"SV": {Color: "#919D9D", Label: "SILVER LINE"},
		"YL": {Color: "#FFD100", Label: "YELLOW LINE"},
	}
}

// Describe：查找线路元数据，未知代码回退为灰色 + 代码本身
func Describe(lines map[string]LineMeta, code string) LineMeta {
	if m, ok := lines[code]; ok {
		return m
	}
	return LineMeta{Color: UnknownLineColor, Label: code}
}
