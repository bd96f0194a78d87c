// 包 match：站点与邮编区域之间的几何匹配
//
// 所有函数都是输入的纯函数，数据刷新或新的点击时重新计算。
// 复杂度为 O(区域数 × 站点数)：当前数据规模为数百个区域与数百个站点，线性扫描足够；
// 若规模增长到数万级，应改为网格/分桶或 R-Tree 索引后再扩展，而不是继续放大线性扫描。
package match

import (
	"slices"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
	"metro-price-map/internal/station"
)

const (
	// DefaultRadiusMiles：邻近过滤默认半径（英里）
	DefaultRadiusMiles = 0.5
	// FallbackCount：未命中包含关系时，最近区域之外额外给出的候选数
	FallbackCount = 3
	// DefaultNearby：点击区域时返回的最近站点数
	DefaultNearby = 3
)

// Centroid：区域质心（预计算一次，供最近邻兜底复用）
type Centroid struct {
	ZIP   string
	Point geometry.Point
}

// Result：一个站点的匹配结果
// 约束：Fallbacks 非 nil（序列化为 []），Contained=true 时为空；ZIP 为空表示“位置上下文不可用”，不是错误。
type Result struct {
	StationID int64    `json:"station_id"`
	ZIP       string   `json:"zip,omitempty"`
	Contained bool     `json:"contained"`
	Fallbacks []string `json:"fallbacks"`
}

// Empty：无主匹配
func (r Result) Empty() bool { return r.ZIP == "" }

// Nearby：带距离标注的站点
type Nearby struct {
	station.Station
	DistanceMiles float64 `json:"distance"`
}

// Centroids：按区域顺序计算质心；无邮编或无法计算质心的区域被跳过
func Centroids(eng geometry.Engine, regions []boundary.Region) []Centroid {
	out := make([]Centroid, 0, len(regions))
	for _, r := range regions {
		if r.ZIP == "" {
			continue
		}
		if c, ok := eng.Centroid(r.Shape); ok {
			out = append(out, Centroid{ZIP: r.ZIP, Point: c})
		}
	}
	return out
}

// FilterNearStations：只保留质心距任一有效站点不超过 radiusMiles 的区域
// 约束：存在性判定，命中第一个站点即接受；坐标无效的站点直接跳过。radiusMiles<=0 时使用默认半径。
func FilterNearStations(eng geometry.Engine, cols []boundary.Collection, stations []station.Station, radiusMiles float64) []boundary.Collection {
	if radiusMiles <= 0 {
		radiusMiles = DefaultRadiusMiles
	}
	valid := station.ValidOnly(stations)
	out := make([]boundary.Collection, 0, len(cols))
	for _, c := range cols {
		kept := boundary.Collection{Source: c.Source}
		for _, r := range c.Regions {
			if !r.Valid() {
				continue
			}
			cen, ok := eng.Centroid(r.Shape)
			if !ok {
				continue
			}
			for _, st := range valid {
				if eng.DistanceMiles(cen, st.Point()) <= radiusMiles {
					kept.Regions = append(kept.Regions, r)
					break
				}
			}
		}
		out = append(out, kept)
	}
	return out
}

// MatchStation：确定站点所在区域
// 步骤：逐一做点入多边形判定，取第一个命中的区域；全部未命中时按质心距离升序，
// 最近者为主匹配，其后 FallbackCount 个为候选。判定出错（畸形环）视为不包含；无邮编的区域不参与匹配。
func MatchStation(eng geometry.Engine, st station.Station, regions []boundary.Region, cents []Centroid) Result {
	res := Result{StationID: st.ID, Fallbacks: []string{}}
	if !st.Valid || len(regions) == 0 {
		return res
	}
	pt := st.Point()
	for _, r := range regions {
		if r.ZIP == "" {
			continue
		}
		ok, err := eng.Contains(r.Shape, pt)
		if err != nil {
			metrics.MalformedRingTotal.Inc()
			logger.L().Debug("match_contains_error", "zip", r.ZIP, "err", err)
			continue
		}
		if ok {
			res.ZIP = r.ZIP
			res.Contained = true
			return res
		}
	}
	ranked := rankCentroids(eng, pt, cents)
	if len(ranked) == 0 {
		return res
	}
	metrics.MatchFallbackTotal.Inc()
	res.ZIP = ranked[0].ZIP
	for _, c := range ranked[1:min(len(ranked), FallbackCount+1)] {
		res.Fallbacks = append(res.Fallbacks, c.ZIP)
	}
	return res
}

// MatchAll：为每个站点计算匹配结果；质心只计算一次
func MatchAll(eng geometry.Engine, stations []station.Station, regions []boundary.Region) []Result {
	cents := Centroids(eng, regions)
	out := make([]Result, 0, len(stations))
	for _, st := range stations {
		out = append(out, MatchStation(eng, st, regions, cents))
	}
	return out
}

type rankedCentroid struct {
	Centroid
	dist float64
}

func rankCentroids(eng geometry.Engine, pt geometry.Point, cents []Centroid) []rankedCentroid {
	ranked := make([]rankedCentroid, 0, len(cents))
	for _, c := range cents {
		ranked = append(ranked, rankedCentroid{Centroid: c, dist: eng.DistanceMiles(pt, c.Point)})
	}
	slices.SortStableFunc(ranked, func(a, b rankedCentroid) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	return ranked
}

// NearestStations：按到 from 的距离升序返回前 k 个有效站点（k<=0 时使用 DefaultNearby）
// 约束：坐标无效的站点在排序前剔除；距离相同时保持原始顺序。
func NearestStations(eng geometry.Engine, from geometry.Point, stations []station.Station, k int) []Nearby {
	if k <= 0 {
		k = DefaultNearby
	}
	out := make([]Nearby, 0, len(stations))
	for _, st := range stations {
		if !st.Valid {
			continue
		}
		out = append(out, Nearby{Station: st, DistanceMiles: eng.DistanceMiles(from, st.Point())})
	}
	slices.SortStableFunc(out, func(a, b Nearby) int {
		switch {
		case a.DistanceMiles < b.DistanceMiles:
			return -1
		case a.DistanceMiles > b.DistanceMiles:
			return 1
		}
		return 0
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
