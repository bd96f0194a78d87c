package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/cache"
	"metro-price-map/internal/chat"
	"metro-price-map/internal/dataset"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/viewstate"
	"metro-price-map/internal/visitor"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDetail：错误统一为 {"detail": "..."}
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// snapshot：当前数据集；尚未加载时写 503 并返回 nil
func (s *server) snapshot(w http.ResponseWriter) *dataset.Snapshot {
	snap := s.View.State().Data
	if snap == nil {
		writeDetail(w, http.StatusServiceUnavailable, "dataset not loaded")
	}
	return snap
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok", "dataset_loaded": false}
	if snap := s.View.State().Data; snap != nil {
		out["dataset_loaded"] = true
		out["loaded_at"] = snap.LoadedAt
		out["regions"] = len(snap.Regions)
		out["stations"] = len(snap.Stations)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) viewConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"center":       s.Config.Map.Center,
		"zoom":         s.Config.Map.Zoom,
		"lines":        s.Config.Lines,
		"radius_miles": s.Config.Match.RadiusMiles,
		"nearby_count": s.Config.Match.NearbyCount,
		"chat_enabled": s.Chat != nil,
	})
}

func (s *server) legend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.Config.Prices.Legend(),
		"missing": s.Config.Prices.MissingColor,
	})
}

// regions：保留区域的 FeatureCollection，属性带价格与填充色
func (s *server) regions(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, c := range snap.Collections {
		for _, reg := range c.Regions {
			price := snap.Prices.Lookup(reg.ZIP)
			f := geojson.NewFeature(reg.Shape.Orb())
			f.Properties["zip"] = reg.ZIP
			f.Properties["source"] = c.Source
			f.Properties["price"] = price
			f.Properties["price_text"] = pricing.FormatUSD(price)
			f.Properties["fill"] = s.Config.Prices.Color(price)
			fc.Append(f)
		}
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		logger.L().Error("regions_encode_error", "err", err)
		writeDetail(w, http.StatusInternalServerError, "encode error")
		return
	}
	w.Header().Set("content-type", "application/geo+json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(b)
}

func (s *server) regionNearby(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	zip := boundary.PadZIP(r.PathValue("zip"))
	near, ok := snap.Nearby(s.Engine, zip, s.Config.Match.NearbyCount)
	if !ok {
		writeDetail(w, http.StatusNotFound, "unknown zip")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"zip": zip, "stations": nearbyViews(s.Config.Lines, near)})
}

func (s *server) regionPopup(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	zip := boundary.PadZIP(r.PathValue("zip"))
	near, ok := snap.Nearby(s.Engine, zip, s.Config.Match.NearbyCount)
	if !ok {
		writeDetail(w, http.StatusNotFound, "unknown zip")
		return
	}
	detail := s.zipDetail(r.Context(), viewstate.PopupRegion, zip, zip)
	writeJSON(w, http.StatusOK, RegionPopup{ZIPDetail: detail, Nearby: nearbyViews(s.Config.Lines, near)})
}

func (s *server) stations(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	out := make([]StationView, 0, len(snap.Stations))
	for i, st := range snap.Stations {
		if !st.Valid {
			continue
		}
		out = append(out, stationView(s.Config.Lines, st, snap.Matches[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) stationPopup(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot(w)
	if snap == nil {
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "bad station id")
		return
	}
	st, res, ok := snap.Station(id)
	if !ok || !st.Valid {
		writeDetail(w, http.StatusNotFound, "unknown station")
		return
	}
	if res.Empty() {
		writeDetail(w, http.StatusNotFound, "location context unavailable")
		return
	}
	detail := s.zipDetail(r.Context(), viewstate.PopupStation, strconv.FormatInt(id, 10), res.ZIP)
	writeJSON(w, http.StatusOK, StationPopup{Station: stationView(s.Config.Lines, st, res), ZIPDetail: detail})
}

// zipDetail：先查缓存；未命中时在独立会话中打开弹窗并等待三路查询回写
func (s *server) zipDetail(ctx context.Context, kind viewstate.PopupKind, key, zip string) ZIPDetail {
	ck := cache.PopupKey(zip)
	if d, ok := cache.GetJSON[ZIPDetail](ctx, s.Cache, ck); ok {
		return d
	}
	sess := viewstate.NewStore()
	tok := sess.Open(kind, key, zip, nil)
	if s.Popups == nil {
		sess.Dispatch(viewstate.PriceLoaded{Token: tok})
		sess.Dispatch(viewstate.PredictionLoaded{Token: tok})
		sess.Dispatch(viewstate.HistoryLoaded{Token: tok})
		return buildZIPDetail(s.Config.Prices, sess.State().Popup)
	}
	qctx, cancel := context.WithTimeout(ctx, s.PopupTimeout)
	err := sess.LoadPopup(qctx, s.Popups, tok, zip)
	if err == nil {
		err = qctx.Err()
	}
	cancel()
	d := buildZIPDetail(s.Config.Prices, sess.State().Popup)
	// 任一路查询失败或超时的结果只返回本次请求，不写缓存
	if err != nil {
		logger.L().Debug("popup_cache_skip", "zip", zip, "err", err)
		return d
	}
	cache.SetJSON(ctx, s.Cache, ck, d)
	return d
}

func (s *server) locate(w http.ResponseWriter, r *http.Request) {
	def := map[string]any{"lat": s.Config.Map.Center[0], "lon": s.Config.Map.Center[1], "source": "default"}
	if s.Geo == nil {
		writeJSON(w, http.StatusOK, def)
		return
	}
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = visitor.ClientIP(r)
	}
	h, err := s.Geo.Locate(ip)
	if err != nil {
		logger.L().Debug("locate_miss", "ip", ip, "err", err)
		writeJSON(w, http.StatusOK, def)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lat": h.Lat, "lon": h.Lon, "city": h.City, "region": h.Region, "source": "geoip"})
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "question must not be empty")
		return
	}
	if s.Chat == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Chatbot not available")
		return
	}
	answer, err := s.Chat.Ask(r.Context(), req.Question)
	if err != nil {
		var apiErr *chat.APIError
		if errors.As(err, &apiErr) {
			status := apiErr.Status
			if status < http.StatusBadRequest {
				status = http.StatusBadGateway
			}
			writeDetail(w, status, apiErr.Detail)
			return
		}
		writeDetail(w, http.StatusBadGateway, "chat service unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *server) reload(w http.ResponseWriter, r *http.Request) {
	if s.AdminToken == "" || r.Header.Get("x-admin-token") != s.AdminToken {
		writeDetail(w, http.StatusForbidden, "forbidden")
		return
	}
	if s.Reload == nil {
		writeDetail(w, http.StatusServiceUnavailable, "reload not available")
		return
	}
	if err := s.Reload(r.Context()); err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Cache.Purge(r.Context())
	out := map[string]any{"ok": true}
	if snap := s.View.State().Data; snap != nil {
		out["regions"] = len(snap.Regions)
		out["loaded_at"] = snap.LoadedAt
	}
	writeJSON(w, http.StatusOK, out)
}
