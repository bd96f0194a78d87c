// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"metro-price-map/internal/api"
	"metro-price-map/internal/boundary"
	"metro-price-map/internal/cache"
	"metro-price-map/internal/chat"
	"metro-price-map/internal/config"
	"metro-price-map/internal/dataset"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
	"metro-price-map/internal/migrate"
	"metro-price-map/internal/station"
	"metro-price-map/internal/store"
	"metro-price-map/internal/utils"
	"metro-price-map/internal/version"
	"metro-price-map/internal/viewstate"
	"metro-price-map/internal/visitor"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok", "commit", version.Commit)

	cfg, err := config.Load(config.Getenv("CONFIG_FILE", config.DefaultFile))
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		l.Error("config_invalid", "err", err)
		os.Exit(1)
	}
	apiBase := config.Getenv("API_BASE", "/api")
	l.Debug("config_api_base", "base", apiBase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 站点与价格：优先数据库；未配置数据库时可用导出的站点文件离线运行（无价格）
	loader := &dataset.Loader{Engine: geometry.Default, RadiusMiles: cfg.Match.RadiusMiles}
	var st *store.Store
	if utils.PostgresConfigured() {
		db, err := utils.OpenPostgresFromEnv(ctx)
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		l.Info("db_open_ok")
		if config.GetenvBool("SCHEMA_AUTO") {
			if err := migrate.EnsureSchema(ctx, db); err != nil {
				l.Error("schema_error", "err", err)
				os.Exit(1)
			}
		}
		st = store.AttachDB(db)
		loader.Stations = st
		loader.Prices = st
	} else if path := os.Getenv("STATIONS_FILE"); path != "" {
		rows, err := station.LoadJSON(path)
		if err != nil {
			l.Error("stations_file_error", "path", path, "err", err)
			os.Exit(1)
		}
		loader.Stations = dataset.StaticStations(rows)
		l.Info("db_disabled", "stations_file", path, "stations", len(rows))
	} else {
		l.Error("no_station_source", "hint", "set PG_HOST/PG_DSN or STATIONS_FILE")
		os.Exit(1)
	}
	if cfg.Boundary.LocalDir != "" {
		loader.Boundaries = dataset.LocalBoundaries{Dir: cfg.Boundary.LocalDir, ZIPKey: cfg.Boundary.ZIPProperty}
	} else {
		timeout := time.Duration(cfg.Boundary.TimeoutSeconds) * time.Second
		loader.Boundaries = dataset.RemoteBoundaries{Fetcher: boundary.NewFetcher(timeout, cfg.Boundary.ZIPProperty), Sources: cfg.Boundary.Sources}
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
		rc = nil
	} else {
		l.Info("redis_ping_ok")
	}
	popupCache := cache.New(rc, cfg.Refresh.CacheSize, time.Duration(cfg.Refresh.CacheTTLSeconds)*time.Second)

	geo, err := visitor.Open(os.Getenv("GEOIP_DB_PATH"))
	if err != nil {
		l.Error("geoip_open_error", "err", err)
	}
	defer geo.Close()

	view := viewstate.NewStore()
	refresher := &dataset.Refresher{
		Loader:   loader,
		Interval: time.Duration(cfg.Refresh.IntervalMinutes) * time.Minute,
		OnLoad: func(s *dataset.Snapshot) {
			view.SetDatasets(s)
			popupCache.Purge(context.Background())
		},
	}
	go refresher.Run(ctx)

	deps := api.Deps{
		Config:     cfg,
		Engine:     geometry.Default,
		View:       view,
		Cache:      popupCache,
		Chat:       chat.NewClient(os.Getenv("CHAT_SERVICE_URL"), time.Duration(config.GetenvInt("CHAT_TIMEOUT_S", 60))*time.Second),
		Geo:        geo,
		Reload:     refresher.Reload,
		AdminToken: os.Getenv("ADMIN_TOKEN"),
	}
	if st != nil {
		deps.Popups = st
	}
	if deps.Chat == nil {
		l.Info("chat_disabled")
	}
	apiMux := api.BuildRoutes(deps)

	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	ui := config.Getenv("UI_DIST", filepath.Join("ui", "dist"))
	mux.Handle("/", http.FileServer(http.Dir(ui)))
	// 向前端暴露 API 基础路径，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'\n"))
	})

	origins := strings.Split(config.Getenv("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-Admin-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	})(handler)

	addr := config.Getenv("ADDR", ":8080")
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if config.GetenvBool("TLS_ENABLE") {
		certPath := config.Getenv("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt"))
		keyPath := config.Getenv("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key"))
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "metro-price-map.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}
