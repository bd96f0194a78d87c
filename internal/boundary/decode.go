package boundary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"metro-price-map/internal/geometry"
	"metro-price-map/internal/logger"
)

// ErrNoFeatures：文档不是 FeatureCollection 或缺少 features 数组
var ErrNoFeatures = errors.New("boundary: not a feature collection")

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	Properties map[string]any `json:"properties"`
	Geometry   *rawGeometry   `json:"geometry"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Decode：解析 GeoJSON FeatureCollection
// 约束：单个要素解析失败只丢弃该要素的几何（保留记录，由 ValidOnly 过滤），不使整个文档失败。
func Decode(source string, data []byte, zipKey string) (Collection, error) {
	if zipKey == "" {
		zipKey = DefaultZIPProperty
	}
	var rc rawCollection
	if err := json.Unmarshal(data, &rc); err != nil {
		return Collection{}, fmt.Errorf("decode %s: %w", source, err)
	}
	if !strings.EqualFold(rc.Type, "FeatureCollection") || rc.Features == nil {
		return Collection{}, fmt.Errorf("decode %s: %w", source, ErrNoFeatures)
	}
	out := Collection{Source: source, Regions: make([]Region, 0, len(rc.Features))}
	for i, raw := range rc.Features {
		var f rawFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.L().Debug("boundary_feature_skip", "source", source, "idx", i, "err", err)
			continue
		}
		out.Regions = append(out.Regions, toRegion(f, zipKey))
	}
	return out, nil
}

func toRegion(f rawFeature, zipKey string) Region {
	r := Region{Properties: f.Properties, ZIP: PadZIP(propString(f.Properties, zipKey))}
	if f.Geometry == nil {
		return r
	}
	r.Kind = f.Geometry.Type
	if len(f.Geometry.Coordinates) == 0 || string(f.Geometry.Coordinates) == "null" {
		return r
	}
	b, err := json.Marshal(f.Geometry)
	if err != nil {
		return r
	}
	var g geojson.Geometry
	if err := json.Unmarshal(b, &g); err != nil {
		return r
	}
	if s, ok := geometry.FromOrb(g.Coordinates); ok {
		r.Shape = s
	}
	return r
}

func propString(p map[string]any, k string) string {
	switch v := p[k].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// LoadDir：读取目录下所有 *.geojson / *.json 边界文件（离线工具使用）
// 约束：单个文件解析失败记录日志并跳过；结果按文件名排序。
func LoadDir(dir, zipKey string) ([]Collection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read boundary dir: %w", err)
	}
	var out []Collection
	for _, ent := range entries {
		name := ent.Name()
		lower := strings.ToLower(name)
		if ent.IsDir() || !(strings.HasSuffix(lower, ".geojson") || strings.HasSuffix(lower, ".json")) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.L().Error("boundary_file_error", "file", name, "err", err)
			continue
		}
		c, err := Decode(strings.TrimSuffix(name, filepath.Ext(name)), b, zipKey)
		if err != nil {
			logger.L().Error("boundary_file_error", "file", name, "err", err)
			continue
		}
		out = append(out, ValidOnly(c))
	}
	return out, nil
}
