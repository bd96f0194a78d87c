// 包 geometry：几何能力抽象（点入多边形、质心、球面距离），匹配算法只依赖 Engine 接口
package geometry

import (
	"errors"

	"github.com/paulmach/orb"
)

// 点坐标（WGS84），经度在前，与 GeoJSON 约定一致
type Point struct {
	Lon float64
	Lat float64
}

// P：按经度、纬度顺序构造点
func P(lon, lat float64) Point { return Point{Lon: lon, Lat: lat} }

func (p Point) orb() orb.Point { return orb.Point{p.Lon, p.Lat} }

// Kind：几何类型，仅支持 GeoJSON 的 Polygon/MultiPolygon
type Kind string

const (
	KindPolygon      Kind = "Polygon"
	KindMultiPolygon Kind = "MultiPolygon"
)

// ErrMalformedRing：环少于 4 个点或首尾不闭合
var ErrMalformedRing = errors.New("geometry: malformed ring")

// Shape：区域几何的只读包装；第一环为外环，其余为洞
type Shape struct {
	kind  Kind
	geom  orb.Geometry
	bound orb.Bound
}

// NewPolygon：由若干环构造单面几何
func NewPolygon(rings ...[]Point) Shape {
	poly := toPolygon(rings)
	return Shape{kind: KindPolygon, geom: poly, bound: poly.Bound()}
}

// NewMultiPolygon：由若干面构造多面几何
func NewMultiPolygon(polys ...[][]Point) Shape {
	mp := make(orb.MultiPolygon, 0, len(polys))
	for _, rings := range polys {
		mp = append(mp, toPolygon(rings))
	}
	return Shape{kind: KindMultiPolygon, geom: mp, bound: mp.Bound()}
}

// FromOrb：从 orb 几何转换；非 Polygon/MultiPolygon 返回 false
func FromOrb(g orb.Geometry) (Shape, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		return Shape{kind: KindPolygon, geom: v, bound: v.Bound()}, true
	case orb.MultiPolygon:
		return Shape{kind: KindMultiPolygon, geom: v, bound: v.Bound()}, true
	}
	return Shape{}, false
}

func (s Shape) Kind() Kind { return s.kind }

// Orb：返回底层 orb 几何，用于 GeoJSON 序列化
func (s Shape) Orb() orb.Geometry { return s.geom }

// Empty：无几何或无任何坐标
func (s Shape) Empty() bool {
	switch v := s.geom.(type) {
	case orb.Polygon:
		for _, r := range v {
			if len(r) > 0 {
				return false
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			for _, r := range p {
				if len(r) > 0 {
					return false
				}
			}
		}
	}
	return true
}

func toPolygon(rings [][]Point) orb.Polygon {
	poly := make(orb.Polygon, 0, len(rings))
	for _, r := range rings {
		ring := make(orb.Ring, 0, len(r))
		for _, p := range r {
			ring = append(ring, p.orb())
		}
		poly = append(poly, ring)
	}
	return poly
}
