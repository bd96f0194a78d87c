// 包 config：服务运行参数（config.yaml + 环境变量覆盖）
//
// 文档注释：加载顺序为 内置默认值 → config.yaml（缺失时跳过）→ 环境变量。
// 约束：yaml 中出现的列表整体替换默认值，不做逐项合并。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
)

// DefaultFile：默认配置文件路径
const DefaultFile = "data/config.yaml"

const openDataBase = "https://raw.githubusercontent.com/OpenDataDE/State-zip-code-GeoJSON/refs/heads/master/"

// Boundary：边界数据源配置
type Boundary struct {
	Sources        []boundary.Source `yaml:"sources" json:"sources"`
	ZIPProperty    string            `yaml:"zip_property" json:"zip_property"`
	TimeoutSeconds int               `yaml:"timeout_seconds" json:"timeout_seconds"`
	// LocalDir：非空时从本地 *.geojson 读取，不再走网络
	LocalDir string `yaml:"local_dir" json:"local_dir,omitempty"`
}

// Match：匹配参数
type Match struct {
	RadiusMiles float64 `yaml:"radius_miles" json:"radius_miles"`
	NearbyCount int     `yaml:"nearby_count" json:"nearby_count"`
}

// MapView：前端默认视图
type MapView struct {
	Center [2]float64 `yaml:"center" json:"center"` // [lat, lon]
	Zoom   int        `yaml:"zoom" json:"zoom"`
}

// Refresh：数据集刷新与缓存
type Refresh struct {
	IntervalMinutes int `yaml:"interval_minutes" json:"interval_minutes"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	CacheSize       int `yaml:"cache_size" json:"cache_size"`
}

// Config：完整配置
type Config struct {
	Boundary Boundary                    `yaml:"boundary" json:"boundary"`
	Match    Match                       `yaml:"match" json:"match"`
	Prices   pricing.Scale               `yaml:"prices" json:"prices"`
	Lines    map[string]station.LineMeta `yaml:"lines" json:"lines"`
	Map      MapView                     `yaml:"map" json:"map"`
	Refresh  Refresh                     `yaml:"refresh" json:"refresh"`
}

// Defaults：与线上部署一致的内置配置
func Defaults() Config {
	return Config{
		Boundary: Boundary{
			Sources: []boundary.Source{
				{Name: "dc", URL: openDataBase + "dc_district_of_columbia_zip_codes_geo.min.json"},
				{Name: "virginia", URL: openDataBase + "va_virginia_zip_codes_geo.min.json"},
				{Name: "maryland", URL: openDataBase + "md_maryland_zip_codes_geo.min.json"},
			},
			ZIPProperty:    boundary.DefaultZIPProperty,
			TimeoutSeconds: 30,
		},
		Match:   Match{RadiusMiles: 3, NearbyCount: 3},
		Prices:  pricing.DefaultScale(),
		Lines:   station.DefaultLines(),
		Map:     MapView{Center: [2]float64{38.95, -77.15}, Zoom: 11},
		Refresh: Refresh{IntervalMinutes: 0, CacheTTLSeconds: 3600, CacheSize: 1024},
	}
}

// Load：读取 path 并叠加到默认值上；文件不存在时返回默认值
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = DefaultFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Defaults(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv：环境变量覆盖；解析失败的值忽略
func (c *Config) ApplyEnv() {
	if v, ok := envInt("BOUNDARY_TIMEOUT_S"); ok {
		c.Boundary.TimeoutSeconds = v
	}
	if v := strings.TrimSpace(os.Getenv("BOUNDARY_DIR")); v != "" {
		c.Boundary.LocalDir = v
	}
	if v, ok := envInt("REFRESH_INTERVAL_MIN"); ok {
		c.Refresh.IntervalMinutes = v
	}
	if v, ok := envInt("CACHE_TTL_S"); ok {
		c.Refresh.CacheTTLSeconds = v
	}
	if v := strings.TrimSpace(os.Getenv("MATCH_RADIUS_MI")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Match.RadiusMiles = f
		}
	}
}

// Validate：检查会导致运行期错误的配置
func (c Config) Validate() error {
	if c.Boundary.LocalDir == "" && len(c.Boundary.Sources) == 0 {
		return errors.New("config: no boundary sources")
	}
	for _, s := range c.Boundary.Sources {
		if s.URL == "" {
			return fmt.Errorf("config: boundary source %q has no url", s.Name)
		}
	}
	if c.Boundary.ZIPProperty == "" {
		return errors.New("config: empty zip_property")
	}
	if c.Match.RadiusMiles <= 0 {
		return fmt.Errorf("config: radius_miles must be positive, got %v", c.Match.RadiusMiles)
	}
	if c.Match.NearbyCount <= 0 {
		return fmt.Errorf("config: nearby_count must be positive, got %d", c.Match.NearbyCount)
	}
	return c.Prices.Validate()
}

func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Getenv：读取环境变量，空值回退 def
func Getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetenvBool：true/1/yes 视为开启
func GetenvBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// GetenvInt：读取非负整数，失败回退 def
func GetenvInt(key string, def int) int {
	if n, ok := envInt(key); ok {
		return n
	}
	return def
}
