// 包 boundary：邮编边界（ZCTA）数据集的解析、校验与拉取
package boundary

import (
	"strings"

	"metro-price-map/internal/geometry"
)

// DefaultZIPProperty：美国人口普查 ZCTA 数据集中的邮编属性名
const DefaultZIPProperty = "ZCTA5CE10"

// Region：单个邮编边界记录，拉取后只读
// 约束：Kind 为原始声明的几何类型；解析失败或缺失时 Shape 为零值。
type Region struct {
	ZIP        string
	Kind       string
	Shape      geometry.Shape
	Properties map[string]any
}

// Valid：几何存在、类型可识别且坐标非空
func (r Region) Valid() bool {
	switch geometry.Kind(r.Kind) {
	case geometry.KindPolygon, geometry.KindMultiPolygon:
	default:
		return false
	}
	return r.Shape.Kind() == geometry.Kind(r.Kind) && !r.Shape.Empty()
}

// Collection：一个司法辖区（数据源）对应的区域集合
type Collection struct {
	Source  string
	Regions []Region
}

// Source：边界数据源（名称 + GeoJSON 地址）
type Source struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// PadZIP：邮编左侧补零到 5 位；价格表键与要素属性查找都必须经过同一规则
func PadZIP(raw string) string {
	z := strings.TrimSpace(raw)
	if z == "" {
		return ""
	}
	if len(z) < 5 {
		z = strings.Repeat("0", 5-len(z)) + z
	}
	return z
}

// ValidOnly：过滤掉几何缺失或畸形的记录；空集合原样返回
func ValidOnly(c Collection) Collection {
	out := Collection{Source: c.Source}
	for _, r := range c.Regions {
		if r.Valid() {
			out.Regions = append(out.Regions, r)
		}
	}
	return out
}

// Flatten：合并多个集合的区域，保持顺序
func Flatten(cols []Collection) []Region {
	n := 0
	for _, c := range cols {
		n += len(c.Regions)
	}
	out := make([]Region, 0, n)
	for _, c := range cols {
		out = append(out, c.Regions...)
	}
	return out
}
