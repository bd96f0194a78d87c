package api

import (
	"fmt"

	"metro-price-map/internal/match"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
	"metro-price-map/internal/viewstate"
)

// LineBadge：线路圆点
type LineBadge struct {
	Code  string `json:"code"`
	Color string `json:"color"`
	Label string `json:"label"`
}

// PredictionRow：预测表一行
type PredictionRow struct {
	Label string   `json:"label"`
	Value *float64 `json:"value"`
	Text  string   `json:"text"`
}

// ZIPDetail：只依赖邮编的弹窗内容，按 popup:<zip> 缓存
type ZIPDetail struct {
	ZIP         string                 `json:"zip"`
	Price       *float64               `json:"price"`
	PriceText   string                 `json:"price_text"`
	Fill        string                 `json:"fill"`
	Predictions []PredictionRow        `json:"predictions"`
	History     []pricing.HistoryPoint `json:"history"`
}

// NearbyStation：弹窗中的附近站点
type NearbyStation struct {
	ID            int64       `json:"id"`
	Name          string      `json:"station_name"`
	Lines         []LineBadge `json:"lines"`
	DistanceMiles float64     `json:"distance"`
	DistanceText  string      `json:"distance_text"`
}

// RegionPopup：GET /regions/{zip}/popup
type RegionPopup struct {
	ZIPDetail
	Nearby []NearbyStation `json:"nearby"`
}

// StationView：GET /stations 列表项
type StationView struct {
	ID    int64        `json:"id"`
	Name  string       `json:"station_name"`
	Lines []LineBadge  `json:"lines"`
	Lat   float64      `json:"lat"`
	Lon   float64      `json:"lon"`
	Match match.Result `json:"match"`
}

// StationPopup：GET /stations/{id}/popup
type StationPopup struct {
	Station StationView `json:"station"`
	ZIPDetail
}

func badges(lines map[string]station.LineMeta, codes []string) []LineBadge {
	out := make([]LineBadge, 0, len(codes))
	for _, c := range codes {
		m := station.Describe(lines, c)
		out = append(out, LineBadge{Code: c, Color: m.Color, Label: m.Label})
	}
	return out
}

func stationView(lines map[string]station.LineMeta, st station.Station, res match.Result) StationView {
	return StationView{ID: st.ID, Name: st.Name, Lines: badges(lines, st.Lines), Lat: st.Lat, Lon: st.Lon, Match: res}
}

func nearbyViews(lines map[string]station.LineMeta, near []match.Nearby) []NearbyStation {
	out := make([]NearbyStation, 0, len(near))
	for _, n := range near {
		out = append(out, NearbyStation{
			ID:            n.ID,
			Name:          n.Name,
			Lines:         badges(lines, n.Lines),
			DistanceMiles: n.DistanceMiles,
			DistanceText:  fmt.Sprintf("%.2f mi", n.DistanceMiles),
		})
	}
	return out
}

// buildZIPDetail：由已完成的弹窗状态生成输出
func buildZIPDetail(scale pricing.Scale, p *viewstate.Popup) ZIPDetail {
	proj := p.Projection()
	hist := p.History
	if hist == nil {
		hist = []pricing.HistoryPoint{}
	}
	return ZIPDetail{
		ZIP:       p.ZIP,
		Price:     p.Price,
		PriceText: pricing.FormatUSD(p.Price),
		Fill:      scale.Color(p.Price),
		Predictions: []PredictionRow{
			{Label: "1-Month", Value: proj.Month, Text: pricing.FormatUSD(proj.Month)},
			{Label: "1-Quarter", Value: proj.Quarter, Text: pricing.FormatUSD(proj.Quarter)},
			{Label: "1-Year", Value: proj.Year, Text: pricing.FormatUSD(proj.Year)},
		},
		History: hist,
	}
}
