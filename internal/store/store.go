// 包 store: 提供与 PostgreSQL 的只读数据访问层，包含站点、房价与预测查询
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

// AttachDB: 包装已打开的连接池
func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

// DB: 暴露底层连接池（迁移工具使用）
func (s *Store) DB() *sql.DB { return s.db }

func fail(query string, err error) error {
	metrics.DBErrorsTotal.WithLabelValues(query).Inc()
	logger.L().Error("db_query_error", "query", query, "err", err)
	return fmt.Errorf("%s: %w", query, err)
}

// ListStations: 读取全部站点行，按站名排序并以序号作为稳定 ID
// 约束：坐标按文本读取，由 station.Parse 统一校验
func (s *Store) ListStations(ctx context.Context) ([]station.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_name, line_code1, line_code2, line_code3, line_code4, lat::text, lon::text
        FROM "Station" ORDER BY station_name`)
	if err != nil {
		return nil, fail("list_stations", err)
	}
	defer rows.Close()
	var out []station.Row
	for rows.Next() {
		var name, l1, l2, l3, l4, lat, lon sql.NullString
		if err := rows.Scan(&name, &l1, &l2, &l3, &l4, &lat, &lon); err != nil {
			return nil, fail("list_stations", err)
		}
		out = append(out, station.Row{
			ID:    int64(len(out) + 1),
			Name:  name.String,
			Lines: [station.MaxLines]string{l1.String, l2.String, l3.String, l4.String},
			Lat:   lat.String,
			Lon:   lon.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fail("list_stations", err)
	}
	logger.L().Debug("db_stations_loaded", "count", len(out))
	return out, nil
}

// LatestPrices: 每个区域的最新一条价格（按 date 最大）
func (s *Store) LatestPrices(ctx context.Context, regions []int64) ([]pricing.Observation, error) {
	if len(regions) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT ON (region_name) region_name, date, value
        FROM "Locations_Prices"
        WHERE region_name = ANY($1) AND value IS NOT NULL
        ORDER BY region_name, date DESC`, pq.Array(regions))
	if err != nil {
		return nil, fail("latest_prices", err)
	}
	defer rows.Close()
	out := make([]pricing.Observation, 0, len(regions))
	for rows.Next() {
		var o pricing.Observation
		if err := rows.Scan(&o.Region, &o.Date, &o.Value); err != nil {
			return nil, fail("latest_prices", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("latest_prices", err)
	}
	logger.L().Debug("db_latest_prices", "regions", len(regions), "rows", len(out))
	return out, nil
}

// LatestPrice: 单个区域的最新价格；无数据返回 nil, nil
func (s *Store) LatestPrice(ctx context.Context, region int64) (*float64, error) {
	var v float64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM "Locations_Prices"
        WHERE region_name=$1 AND value IS NOT NULL ORDER BY date DESC LIMIT 1`, region).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("latest_price", err)
	}
	return &v, nil
}

// PriceHistory: 区域全部价格，按日期升序
func (s *Store) PriceHistory(ctx context.Context, region int64) ([]pricing.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, value FROM "Locations_Prices"
        WHERE region_name=$1 AND value IS NOT NULL ORDER BY date ASC`, region)
	if err != nil {
		return nil, fail("price_history", err)
	}
	defer rows.Close()
	var out []pricing.Observation
	for rows.Next() {
		o := pricing.Observation{Region: region}
		if err := rows.Scan(&o.Date, &o.Value); err != nil {
			return nil, fail("price_history", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("price_history", err)
	}
	return out, nil
}

// LatestPrediction: 按 base_date 倒序取最近一次预测；无数据返回 nil, nil
func (s *Store) LatestPrediction(ctx context.Context, region int64) (*pricing.Prediction, error) {
	var (
		base               time.Time
		month, quart, year sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `SELECT base_date, month_ahead, quarter_ahead, year_ahead
        FROM "Predictions" WHERE region_name=$1 ORDER BY base_date DESC LIMIT 1`, region).
		Scan(&base, &month, &quart, &year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("latest_prediction", err)
	}
	return &pricing.Prediction{
		Region:       region,
		BaseDate:     base,
		MonthAhead:   nullFloat(month),
		QuarterAhead: nullFloat(quart),
		YearAhead:    nullFloat(year),
	}, nil
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
