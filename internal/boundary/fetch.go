package boundary

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
)

// Fetcher：通过 HTTP 拉取边界 GeoJSON
type Fetcher struct {
	Client *http.Client
	ZIPKey string
}

// NewFetcher：timeout<=0 时使用 30s
func NewFetcher(timeout time.Duration, zipKey string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{Client: &http.Client{Timeout: timeout}, ZIPKey: zipKey}
}

// Fetch：拉取单个数据源并过滤无效几何
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Collection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Collection{}, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Collection{}, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Collection{}, fmt.Errorf("fetch %s: HTTP %d", src.Name, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Collection{}, fmt.Errorf("fetch %s: %w", src.Name, err)
	}
	c, err := Decode(src.Name, b, f.ZIPKey)
	if err != nil {
		return Collection{}, err
	}
	return ValidOnly(c), nil
}

// FetchAll：并发拉取所有数据源，等待全部结束
// 约束：任一数据源失败仅丢弃该数据源，结果保持 sources 的相对顺序；全部失败时返回空切片。
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) []Collection {
	results := make([]*Collection, len(sources))
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			t0 := time.Now()
			c, err := f.Fetch(ctx, src)
			metrics.BoundaryFetchDurationMs.WithLabelValues(src.Name).Observe(float64(time.Since(t0).Milliseconds()))
			if err != nil {
				metrics.BoundaryFetchTotal.WithLabelValues(src.Name, "fail").Inc()
				logger.L().Error("boundary_fetch_error", "source", src.Name, "err", err)
				return nil
			}
			metrics.BoundaryFetchTotal.WithLabelValues(src.Name, "ok").Inc()
			logger.L().Debug("boundary_fetch_ok", "source", src.Name, "regions", len(c.Regions))
			results[i] = &c
			return nil
		})
	}
	_ = g.Wait()
	out := make([]Collection, 0, len(sources))
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}
