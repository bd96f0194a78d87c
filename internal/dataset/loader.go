package dataset

import (
	"context"
	"fmt"
	"time"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/match"
	"metro-price-map/internal/metrics"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
)

// StationSource：站点行来源（数据库或导出文件）
type StationSource interface {
	ListStations(ctx context.Context) ([]station.Row, error)
}

// PriceSource：最新价格来源
type PriceSource interface {
	LatestPrices(ctx context.Context, regions []int64) ([]pricing.Observation, error)
}

// BoundarySource：边界集合来源；部分失败由实现自行吞掉，返回成功的子集
type BoundarySource interface {
	Collections(ctx context.Context) []boundary.Collection
}

// StaticStations：内存中的站点行（离线工具、测试）
type StaticStations []station.Row

func (s StaticStations) ListStations(context.Context) ([]station.Row, error) { return s, nil }

// RemoteBoundaries：通过 HTTP 并发拉取
type RemoteBoundaries struct {
	Fetcher *boundary.Fetcher
	Sources []boundary.Source
}

func (r RemoteBoundaries) Collections(ctx context.Context) []boundary.Collection {
	return r.Fetcher.FetchAll(ctx, r.Sources)
}

// LocalBoundaries：读取本地目录
type LocalBoundaries struct {
	Dir    string
	ZIPKey string
}

func (l LocalBoundaries) Collections(context.Context) []boundary.Collection {
	cols, err := boundary.LoadDir(l.Dir, l.ZIPKey)
	if err != nil {
		logger.L().Error("boundary_dir_error", "dir", l.Dir, "err", err)
		return nil
	}
	return cols
}

// Loader：一次完整装配
type Loader struct {
	Stations    StationSource
	Boundaries  BoundarySource
	Prices      PriceSource // 可为 nil：不着色
	Engine      geometry.Engine
	RadiusMiles float64
}

// Load：站点 → 边界 → 邻近过滤 → 价格 → 匹配 → 快照
// 约束：站点读取失败时整次刷新失败（调用方保留旧快照）；价格失败只记录日志，快照不带价格
func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	t0 := time.Now()
	eng := l.Engine
	if eng == nil {
		eng = geometry.Default
	}
	rows, err := l.Stations.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	stations, errs := station.ParseAll(rows)
	for _, e := range errs {
		logger.L().Debug("station_invalid", "err", e)
	}
	var cols []boundary.Collection
	if l.Boundaries != nil {
		cols = l.Boundaries.Collections(ctx)
	}
	for i := range cols {
		cols[i] = boundary.ValidOnly(cols[i])
	}
	kept := match.FilterNearStations(eng, cols, stations, l.RadiusMiles)
	regions := boundary.Flatten(kept)

	var prices pricing.PriceMap
	if l.Prices != nil && len(regions) > 0 {
		ids := regionIDs(regions)
		obs, err := l.Prices.LatestPrices(ctx, ids)
		if err != nil {
			logger.L().Error("price_load_error", "regions", len(ids), "err", err)
		} else {
			prices = pricing.NewPriceMap(obs)
		}
	}
	cents := match.Centroids(eng, regions)
	results := make([]match.Result, 0, len(stations))
	for _, st := range stations {
		results = append(results, match.MatchStation(eng, st, regions, cents))
	}
	snap := newSnapshot(stations, kept, cents, results, prices)
	metrics.RegionsKept.Set(float64(len(regions)))
	logger.L().Info("dataset_loaded",
		"stations", len(stations),
		"invalid_stations", len(errs),
		"sources", len(cols),
		"regions", len(regions),
		"prices", len(snap.Prices),
		"duration_ms", time.Since(t0).Milliseconds(),
	)
	return snap, nil
}

func regionIDs(regions []boundary.Region) []int64 {
	seen := make(map[int64]bool, len(regions))
	out := make([]int64, 0, len(regions))
	for _, r := range regions {
		n, ok := pricing.RegionOf(r.ZIP)
		if !ok || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
