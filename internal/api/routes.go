// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"net/http"
	"time"

	"metro-price-map/internal/cache"
	"metro-price-map/internal/chat"
	"metro-price-map/internal/config"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/middleware"
	"metro-price-map/internal/viewstate"
	"metro-price-map/internal/visitor"
)

// Deps：路由依赖；可选项为 nil 时对应接口降级
type Deps struct {
	Config config.Config
	Engine geometry.Engine
	// View：持有当前数据集（由 dataset.Refresher 写入）
	View *viewstate.Store
	// Popups：价格/预测/走势查询；nil 时弹窗只含空值
	Popups viewstate.PopupSource
	Cache  cache.Cache
	Chat   *chat.Client
	Geo    *visitor.Locator
	// Reload：手动刷新数据集；nil 时 /reload 返回 503
	Reload     func(ctx context.Context) error
	AdminToken string
	// PopupTimeout：单次弹窗查询的总超时
	PopupTimeout time.Duration
}

type server struct {
	Deps
}

// BuildRoutes：构建并返回 API 路由；独立 ServeMux 便于在主入口挂载到 API_BASE 前缀
func BuildRoutes(d Deps) *http.ServeMux {
	if d.Engine == nil {
		d.Engine = geometry.Default
	}
	if d.Cache == nil {
		d.Cache = cache.NewLRU(d.Config.Refresh.CacheSize, time.Duration(d.Config.Refresh.CacheTTLSeconds)*time.Second)
	}
	if d.View == nil {
		d.View = viewstate.NewStore()
	}
	if d.PopupTimeout <= 0 {
		d.PopupTimeout = 10 * time.Second
	}
	s := &server{Deps: d}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /config", s.viewConfig)
	mux.HandleFunc("GET /legend", s.legend)
	mux.HandleFunc("GET /regions", s.regions)
	mux.HandleFunc("GET /regions/{zip}/nearby", s.regionNearby)
	mux.HandleFunc("GET /regions/{zip}/popup", s.regionPopup)
	mux.HandleFunc("GET /stations", s.stations)
	mux.HandleFunc("GET /stations/{id}/popup", s.stationPopup)
	mux.HandleFunc("GET /locate", s.locate)
	mux.Handle("POST /chat", middleware.WrapFromEnv(http.HandlerFunc(s.chat)))
	mux.HandleFunc("POST /reload", s.reload)
	return mux
}
