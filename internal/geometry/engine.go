package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// MetersPerMile：国际英里
const MetersPerMile = 1609.344

// Engine：匹配算法所需的几何能力
// 约束：Contains 对畸形环返回错误而非 panic；调用方将错误视为“不包含”。
type Engine interface {
	Contains(s Shape, p Point) (bool, error)
	Centroid(s Shape) (Point, bool)
	DistanceMiles(a, b Point) float64
}

// Orb：基于 paulmach/orb 的实现
type Orb struct{}

// Default：进程内共享的默认实现
var Default Engine = Orb{}

// Contains：先做包围盒快速过滤，再按单面/多面分别调用 planar 判定
func (Orb) Contains(s Shape, p Point) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("%w: %v", ErrMalformedRing, r)
		}
	}()
	if err := validate(s); err != nil {
		return false, err
	}
	pt := p.orb()
	if !s.bound.Contains(pt) {
		return false, nil
	}
	switch v := s.geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(v, pt), nil
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(v, pt), nil
	}
	return false, fmt.Errorf("geometry: unsupported kind %q", s.kind)
}

// Centroid：所有顶点的算术平均（每个环的闭合点不重复计入）
// 约束：与前端地图库的质心定义一致，不是面积加权质心；无坐标时返回 false。
func (Orb) Centroid(s Shape) (Point, bool) {
	var sumLon, sumLat float64
	n := 0
	add := func(r orb.Ring) {
		pts := r
		if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
			pts = pts[:len(pts)-1]
		}
		for _, p := range pts {
			sumLon += p[0]
			sumLat += p[1]
			n++
		}
	}
	switch v := s.geom.(type) {
	case orb.Polygon:
		for _, r := range v {
			add(r)
		}
	case orb.MultiPolygon:
		for _, poly := range v {
			for _, r := range poly {
				add(r)
			}
		}
	}
	if n == 0 {
		return Point{}, false
	}
	return Point{Lon: sumLon / float64(n), Lat: sumLat / float64(n)}, true
}

// DistanceMiles：Haversine 球面距离，单位英里
func (Orb) DistanceMiles(a, b Point) float64 {
	return geo.DistanceHaversine(a.orb(), b.orb()) / MetersPerMile
}

func validate(s Shape) error {
	check := func(p orb.Polygon) error {
		if len(p) == 0 {
			return ErrMalformedRing
		}
		for _, r := range p {
			if len(r) < 4 || r[0] != r[len(r)-1] {
				return ErrMalformedRing
			}
		}
		return nil
	}
	switch v := s.geom.(type) {
	case orb.Polygon:
		return check(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return ErrMalformedRing
		}
		for _, p := range v {
			if err := check(p); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("geometry: missing geometry")
	}
	return fmt.Errorf("geometry: unsupported kind %q", s.kind)
}
