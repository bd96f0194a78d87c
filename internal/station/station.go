// 包 station：地铁站记录的类型化解析与线路元数据
package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"metro-price-map/internal/geometry"
)

// MaxLines：单站最多 4 条线路
const MaxLines = 4

// ErrInvalidCoordinate：坐标缺失、非数值、为 0 或越界
var ErrInvalidCoordinate = errors.New("station: invalid coordinate")

// Row：数据库/文件中的原始站点行，坐标保留文本形式，由 Parse 统一校验
type Row struct {
	ID    int64
	Name  string
	Lines [MaxLines]string
	Lat   string
	Lon   string
}

// Station：校验后的站点；Valid=false 的站点不参与任何几何运算
type Station struct {
	ID    int64    `json:"id"`
	Name  string   `json:"station_name"`
	Lines []string `json:"lines"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Valid bool     `json:"-"`
}

// Point：经度在前的几何点
func (s Station) Point() geometry.Point { return geometry.P(s.Lon, s.Lat) }

// Parse：校验坐标并去除空线路代码
// 约束：坐标无效时仍返回站点（Valid=false）与 ErrInvalidCoordinate，调用方决定是否记录。
func Parse(r Row) (Station, error) {
	st := Station{ID: r.ID, Name: strings.TrimSpace(r.Name)}
	for _, lc := range r.Lines {
		if lc = strings.ToUpper(strings.TrimSpace(lc)); lc != "" {
			st.Lines = append(st.Lines, lc)
		}
	}
	lat, err := parseCoord(r.Lat, 90)
	if err != nil {
		return st, fmt.Errorf("station %d lat %q: %w", r.ID, r.Lat, err)
	}
	lon, err := parseCoord(r.Lon, 180)
	if err != nil {
		return st, fmt.Errorf("station %d lon %q: %w", r.ID, r.Lon, err)
	}
	st.Lat, st.Lon, st.Valid = lat, lon, true
	return st, nil
}

func parseCoord(s string, limit float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidCoordinate
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v == 0 || math.Abs(v) > limit {
		return 0, ErrInvalidCoordinate
	}
	return v, nil
}

// ParseAll：批量解析，返回全部站点与无效坐标的错误列表
func ParseAll(rows []Row) ([]Station, []error) {
	out := make([]Station, 0, len(rows))
	var errs []error
	for _, r := range rows {
		st, err := Parse(r)
		if err != nil {
			errs = append(errs, err)
		}
		out = append(out, st)
	}
	return out, errs
}

// ValidOnly：仅保留坐标有效的站点
func ValidOnly(all []Station) []Station {
	var out []Station
	for _, s := range all {
		if s.Valid {
			out = append(out, s)
		}
	}
	return out
}

type fileRow struct {
	ID    int64           `json:"id"`
	Name  string          `json:"station_name"`
	Line1 string          `json:"line_code1"`
	Line2 string          `json:"line_code2"`
	Line3 string          `json:"line_code3"`
	Line4 string          `json:"line_code4"`
	Lat   json.RawMessage `json:"lat"`
	Lon   json.RawMessage `json:"lon"`
}

// LoadJSON：从导出的 JSON 数组读取站点行（坐标可为数字或字符串）
func LoadJSON(path string) ([]Row, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations: %w", err)
	}
	var raw []fileRow
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	rows := make([]Row, 0, len(raw))
	for i, fr := range raw {
		id := fr.ID
		if id == 0 {
			id = int64(i + 1)
		}
		rows = append(rows, Row{
			ID:    id,
			Name:  fr.Name,
			Lines: [MaxLines]string{fr.Line1, fr.Line2, fr.Line3, fr.Line4},
			Lat:   rawText(fr.Lat),
			Lon:   rawText(fr.Lon),
		})
	}
	return rows, nil
}

func rawText(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
