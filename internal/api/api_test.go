package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"metro-price-map/internal/boundary"
	"metro-price-map/internal/chat"
	"metro-price-map/internal/config"
	"metro-price-map/internal/dataset"
	"metro-price-map/internal/geometry"
	"metro-price-map/internal/pricing"
	"metro-price-map/internal/station"
	"metro-price-map/internal/viewstate"
)

func square(zip string, cx, cy, half float64) boundary.Region {
	ring := []geometry.Point{
		geometry.P(cx-half, cy-half), geometry.P(cx+half, cy-half),
		geometry.P(cx+half, cy+half), geometry.P(cx-half, cy+half),
		geometry.P(cx-half, cy-half),
	}
	return boundary.Region{ZIP: zip, Kind: string(geometry.KindPolygon), Shape: geometry.NewPolygon(ring)}
}

type fakeBoundaries []boundary.Collection

func (f fakeBoundaries) Collections(context.Context) []boundary.Collection { return append([]boundary.Collection(nil), f...) }

type fakePrices struct{}

func (fakePrices) LatestPrices(context.Context, []int64) ([]pricing.Observation, error) {
	return []pricing.Observation{{Region: 20002, Date: time.Now(), Value: 450000}}, nil
}

// fakePopups：down 为 true 时价格查询失败，模拟数据库短暂不可用
type fakePopups struct {
	calls atomic.Int32
	down  atomic.Bool
}

func (f *fakePopups) LatestPrice(context.Context, int64) (*float64, error) {
	f.calls.Add(1)
	if f.down.Load() {
		return nil, errors.New("connection refused")
	}
	v := 450000.0
	return &v, nil
}

func (f *fakePopups) LatestPrediction(_ context.Context, region int64) (*pricing.Prediction, error) {
	m, q := 1.0, 2.0
	return &pricing.Prediction{Region: region, MonthAhead: &m, QuarterAhead: &q}, nil
}

func (f *fakePopups) PriceHistory(_ context.Context, region int64) ([]pricing.Observation, error) {
	return []pricing.Observation{{Region: region, Date: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Value: 450000}}, nil
}

func loadSnapshot(t *testing.T) *dataset.Snapshot {
	t.Helper()
	l := &dataset.Loader{
		Stations: dataset.StaticStations{
			{ID: 1, Name: "Union Station", Lines: [4]string{"RD"}, Lat: "38.8977", Lon: "-77.0063"},
			{ID: 2, Name: "NoMa", Lines: [4]string{"RD", "PK"}, Lat: "38.9070", Lon: "-77.0030"},
			{ID: 3, Name: "Ghost", Lat: "", Lon: ""},
		},
		Boundaries: fakeBoundaries{{Source: "dc", Regions: []boundary.Region{
			square("20002", -77.0063, 38.8977, 0.005),
			square("20019", -76.95, 38.89, 0.01),
		}}},
		Prices:      fakePrices{},
		RadiusMiles: 5,
	}
	snap, err := l.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

type harness struct {
	mux    *http.ServeMux
	view   *viewstate.Store
	popups *fakePopups
	reload atomic.Int32
}

func newHarness(t *testing.T, chatClient *chat.Client) *harness {
	h := &harness{view: viewstate.NewStore(), popups: &fakePopups{}}
	h.mux = BuildRoutes(Deps{
		Config:     config.Defaults(),
		View:       h.view,
		Popups:     h.popups,
		Chat:       chatClient,
		AdminToken: "secret",
		Reload: func(context.Context) error {
			h.reload.Add(1)
			h.view.SetDatasets(loadSnapshot(t))
			return nil
		},
	})
	return h
}

func (h *harness) do(method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestBeforeDatasetLoaded(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do("GET", "/regions", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/regions = %d", rec.Code)
	}
	health := decode[map[string]any](t, h.do("GET", "/health", "", nil))
	if health["dataset_loaded"] != false {
		t.Errorf("health = %v", health)
	}
}

func TestRegions(t *testing.T) {
	h := newHarness(t, nil)
	h.view.SetDatasets(loadSnapshot(t))
	rec := h.do("GET", "/regions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("fc = %+v", fc)
	}
	p := fc.Features[0].Properties
	if p["zip"] != "20002" || p["fill"] != "#2b8cbe" || p["price_text"] != "$450,000" {
		t.Errorf("priced region props = %v", p)
	}
	if q := fc.Features[1].Properties; q["fill"] != "#cccccc" || q["price"] != nil {
		t.Errorf("unpriced region props = %v", q)
	}
}

func TestRegionNearby(t *testing.T) {
	h := newHarness(t, nil)
	h.view.SetDatasets(loadSnapshot(t))
	out := decode[struct {
		ZIP      string          `json:"zip"`
		Stations []NearbyStation `json:"stations"`
	}](t, h.do("GET", "/regions/20002/nearby", "", nil))
	if len(out.Stations) != 2 || out.Stations[0].Name != "Union Station" {
		t.Fatalf("nearby = %+v", out)
	}
	if out.Stations[0].DistanceMiles > out.Stations[1].DistanceMiles {
		t.Errorf("not sorted by distance")
	}
	if !strings.HasSuffix(out.Stations[1].DistanceText, " mi") {
		t.Errorf("distance text = %q", out.Stations[1].DistanceText)
	}
	if lines := out.Stations[1].Lines; len(lines) != 2 || lines[1].Color != station.UnknownLineColor {
		t.Errorf("line badges = %+v", lines)
	}
	if rec := h.do("GET", "/regions/99999/nearby", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown zip = %d", rec.Code)
	}
}

func TestRegionPopupCached(t *testing.T) {
	h := newHarness(t, nil)
	h.view.SetDatasets(loadSnapshot(t))
	for i := 0; i < 2; i++ {
		rec := h.do("GET", "/regions/20002/popup", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		p := decode[RegionPopup](t, rec)
		if p.PriceText != "$450,000" || len(p.History) != 1 || p.History[0].Date != "2024-03" {
			t.Errorf("popup = %+v", p)
		}
		if p.Predictions[0].Text != "$454,500" || p.Predictions[2].Text != pricing.Missing {
			t.Errorf("predictions = %+v", p.Predictions)
		}
		if len(p.Nearby) == 0 {
			t.Errorf("nearby missing")
		}
	}
	if n := h.popups.calls.Load(); n != 1 {
		t.Errorf("price queried %d times, second request should hit the cache", n)
	}
}

func TestRegionPopupFailureNotCached(t *testing.T) {
	h := newHarness(t, nil)
	h.view.SetDatasets(loadSnapshot(t))
	h.popups.down.Store(true)
	p := decode[RegionPopup](t, h.do("GET", "/regions/20002/popup", "", nil))
	if p.PriceText != pricing.Missing {
		t.Fatalf("price during outage = %q, want %q", p.PriceText, pricing.Missing)
	}

	h.popups.down.Store(false)
	p = decode[RegionPopup](t, h.do("GET", "/regions/20002/popup", "", nil))
	if p.PriceText != "$450,000" {
		t.Errorf("price after recovery = %q, want $450,000", p.PriceText)
	}
	if n := h.popups.calls.Load(); n != 2 {
		t.Errorf("price queried %d times, want 2 (failed result must not be cached)", n)
	}
}

func TestStations(t *testing.T) {
	h := newHarness(t, nil)
	h.view.SetDatasets(loadSnapshot(t))
	list := decode[[]StationView](t, h.do("GET", "/stations", "", nil))
	if len(list) != 2 {
		t.Fatalf("invalid stations should be hidden, got %d", len(list))
	}
	if list[0].Match.ZIP != "20002" || !list[0].Match.Contained {
		t.Errorf("station 1 match = %+v", list[0].Match)
	}
	if list[1].Match.Contained || list[1].Match.ZIP == "" {
		t.Errorf("station 2 should use nearest centroid fallback, got %+v", list[1].Match)
	}

	rec := h.do("GET", "/stations/1/popup", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("popup status = %d", rec.Code)
	}
	sp := decode[StationPopup](t, rec)
	if sp.Station.ID != 1 || sp.ZIP != "20002" {
		t.Errorf("station popup = %+v", sp)
	}
	for path, want := range map[string]int{
		"/stations/abc/popup": http.StatusBadRequest,
		"/stations/3/popup":   http.StatusNotFound,
		"/stations/42/popup":  http.StatusNotFound,
	} {
		if rec := h.do("GET", path, "", nil); rec.Code != want {
			t.Errorf("%s = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestLegendAndConfig(t *testing.T) {
	h := newHarness(t, nil)
	lg := decode[struct {
		Entries []pricing.LegendEntry `json:"entries"`
		Missing string                `json:"missing"`
	}](t, h.do("GET", "/legend", "", nil))
	if len(lg.Entries) != 4 || lg.Missing != "#cccccc" {
		t.Errorf("legend = %+v", lg)
	}
	cfg := decode[map[string]any](t, h.do("GET", "/config", "", nil))
	if cfg["zoom"] != float64(11) || cfg["chat_enabled"] != false {
		t.Errorf("config = %v", cfg)
	}
	loc := decode[map[string]any](t, h.do("GET", "/locate", "", nil))
	if loc["source"] != "default" || loc["lat"] != 38.95 {
		t.Errorf("locate = %v", loc)
	}
}

func TestChat(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do("POST", "/chat", `{"question":"  "}`, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty question = %d", rec.Code)
	}
	if rec := h.do("POST", "/chat", `not json`, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad body = %d", rec.Code)
	}
	if rec := h.do("POST", "/chat", `{"question":"hi"}`, nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured chat = %d", rec.Code)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Question {
		case "fail":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"SQL error"}`))
			return
		case "moved":
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte(`{"answer":"42"}`))
	}))
	defer upstream.Close()
	h = newHarness(t, chat.NewClient(upstream.URL, time.Second))

	ok := decode[map[string]string](t, h.do("POST", "/chat", `{"question":"what?"}`, nil))
	if ok["answer"] != "42" {
		t.Errorf("answer = %v", ok)
	}
	rec := h.do("POST", "/chat", `{"question":"fail"}`, nil)
	if rec.Code != http.StatusInternalServerError || decode[map[string]string](t, rec)["detail"] != "SQL error" {
		t.Errorf("upstream error = %d %s", rec.Code, rec.Body.String())
	}
	rec = h.do("POST", "/chat", `{"question":"moved"}`, nil)
	if rec.Code != http.StatusBadGateway || decode[map[string]string](t, rec)["detail"] != "HTTP error 304" {
		t.Errorf("non-error upstream status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestReload(t *testing.T) {
	h := newHarness(t, nil)
	if rec := h.do("POST", "/reload", "", map[string]string{"x-admin-token": "wrong"}); rec.Code != http.StatusForbidden {
		t.Errorf("bad token = %d", rec.Code)
	}
	rec := h.do("POST", "/reload", "", map[string]string{"x-admin-token": "secret"})
	if rec.Code != http.StatusOK || h.reload.Load() != 1 {
		t.Fatalf("reload = %d (%d calls)", rec.Code, h.reload.Load())
	}
	if out := decode[map[string]any](t, rec); out["regions"] != float64(2) {
		t.Errorf("reload body = %v", out)
	}
}
