// 包 visitor：访问者 IP 解析与 GeoIP 城市定位（地图初始中心提示）
package visitor

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"metro-price-map/internal/logger"
)

// ErrNoLocation：库中无该 IP 的坐标
var ErrNoLocation = errors.New("visitor: no location for ip")

// Hint：地图中心提示
type Hint struct {
	IP     string  `json:"ip"`
	City   string  `json:"city,omitempty"`
	Region string  `json:"region,omitempty"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// Locator：GeoLite2/GeoIP2 City 库读取器
type Locator struct {
	db *geoip2.Reader
}

// Open：打开 mmdb 文件；path 为空返回 nil, nil（功能关闭）
func Open(path string) (*Locator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	logger.L().Info("geoip_open_ok", "path", path, "type", db.Metadata().DatabaseType)
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Locate：查询城市级坐标；私网/回环地址与无坐标记录返回 ErrNoLocation
func (l *Locator) Locate(ipText string) (Hint, error) {
	ip := net.ParseIP(strings.TrimSpace(ipText))
	if ip == nil {
		return Hint{}, fmt.Errorf("visitor: bad ip %q", ipText)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return Hint{}, ErrNoLocation
	}
	rec, err := l.db.City(ip)
	if err != nil {
		return Hint{}, fmt.Errorf("geoip lookup: %w", err)
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return Hint{}, ErrNoLocation
	}
	h := Hint{IP: ip.String(), City: rec.City.Names["en"], Lat: rec.Location.Latitude, Lon: rec.Location.Longitude}
	if len(rec.Subdivisions) > 0 {
		h.Region = rec.Subdivisions[0].IsoCode
	}
	return h, nil
}

// ClientIP：访问者 IP，依次取常见反向代理头，最后回退远端地址
// 约束：头部可被伪造，仅用于非敏感的地图提示与限流键
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\"[]")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
