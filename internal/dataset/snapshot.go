// 包 dataset：站点、边界、价格三路数据的装配与定时刷新
//
// 文档注释：一次刷新产出一个不可变 Snapshot，读方只拿指针，不做原地修改。
package dataset

import (
	"time"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/match"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
)

// Snapshot：某次刷新的完整结果
type Snapshot struct {
	LoadedAt    time.Time
	Stations    []station.Station
	Collections []boundary.Collection
	Regions     []boundary.Region
	Centroids   []match.Centroid
	Matches     []match.Result
	Prices      pricing.PriceMap

	regionIdx  map[string]int
	stationIdx map[int64]int
}

func newSnapshot(stations []station.Station, cols []boundary.Collection, cents []match.Centroid, matches []match.Result, prices pricing.PriceMap) *Snapshot {
	s := &Snapshot{
		LoadedAt:    time.Now(),
		Stations:    stations,
		Collections: cols,
		Regions:     boundary.Flatten(cols),
		Centroids:   cents,
		Matches:     matches,
		Prices:      prices,
	}
	if s.Prices == nil {
		s.Prices = pricing.PriceMap{}
	}
	s.regionIdx = make(map[string]int, len(s.Regions))
	for i, r := range s.Regions {
		// 同一邮编跨辖区重复时保留第一个
		if _, ok := s.regionIdx[r.ZIP]; !ok {
			s.regionIdx[r.ZIP] = i
		}
	}
	s.stationIdx = make(map[int64]int, len(stations))
	for i, st := range stations {
		s.stationIdx[st.ID] = i
	}
	return s
}

// Region：按邮编查找保留下来的区域
func (s *Snapshot) Region(zip string) (boundary.Region, bool) {
	if s == nil {
		return boundary.Region{}, false
	}
	i, ok := s.regionIdx[boundary.PadZIP(zip)]
	if !ok {
		return boundary.Region{}, false
	}
	return s.Regions[i], true
}

// Station：按 ID 查找站点及其匹配结果
func (s *Snapshot) Station(id int64) (station.Station, match.Result, bool) {
	if s == nil {
		return station.Station{}, match.Result{}, false
	}
	i, ok := s.stationIdx[id]
	if !ok {
		return station.Station{}, match.Result{}, false
	}
	return s.Stations[i], s.Matches[i], true
}

// Nearby：点击区域时的最近站点（区域质心 → 前 k 个有效站点）
func (s *Snapshot) Nearby(eng geometry.Engine, zip string, k int) ([]match.Nearby, bool) {
	r, ok := s.Region(zip)
	if !ok {
		return nil, false
	}
	c, ok := eng.Centroid(r.Shape)
	if !ok {
		return nil, false
	}
	return match.NearestStations(eng, c, s.Stations, k), true
}

// ZIPs：全部保留区域的邮编（去重，保持顺序）
func (s *Snapshot) ZIPs() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.regionIdx))
	seen := make(map[string]bool, len(s.regionIdx))
	for _, r := range s.Regions {
		if !seen[r.ZIP] {
			seen[r.ZIP] = true
			out = append(out, r.ZIP)
		}
	}
	return out
}
