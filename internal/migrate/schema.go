package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"metro-price-map/internal/logger"
)

// Statements：站点、房价、预测三张表及查询索引
// 约束：表名保留大小写（带引号），与既有数据源一致；全部使用 IF NOT EXISTS
var Statements = []string{
	`CREATE TABLE IF NOT EXISTS "Station" (
        station_name TEXT NOT NULL,
        line_code1 TEXT,
        line_code2 TEXT,
        line_code3 TEXT,
        line_code4 TEXT,
        lat TEXT,
        lon TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS "Locations_Prices" (
        region_name INT NOT NULL,
        date DATE NOT NULL,
        value NUMERIC
    )`,
	`CREATE INDEX IF NOT EXISTS idx_locations_prices_region_date ON "Locations_Prices"(region_name, date DESC)`,
	`CREATE TABLE IF NOT EXISTS "Predictions" (
        region_name INT NOT NULL,
        base_date DATE NOT NULL,
        month_ahead DOUBLE PRECISION,
        quarter_ahead DOUBLE PRECISION,
        year_ahead DOUBLE PRECISION
    )`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_region_base ON "Predictions"(region_name, base_date DESC)`,
}

// EnsureSchema：首次运行时创建所需表与索引
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range Statements {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
