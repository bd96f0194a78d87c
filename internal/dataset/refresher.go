package dataset

import (
	"context"
	"sync"
	"time"

	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
)

// Refresher：启动时装配一次，之后按间隔刷新；成功后通过 OnLoad 发布新快照
// 约束：同一时刻只有一次 Load 在执行；失败时保留上一次快照
type Refresher struct {
	Loader   *Loader
	Interval time.Duration // 0 表示只在启动与手动触发时刷新
	OnLoad   func(*Snapshot)

	run     sync.Mutex
	mu      sync.RWMutex
	current *Snapshot
}

// Current：最近一次成功的快照；尚未成功时为 nil
func (r *Refresher) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reload：立即刷新一次
func (r *Refresher) Reload(ctx context.Context) error {
	r.run.Lock()
	defer r.run.Unlock()
	t0 := time.Now()
	snap, err := r.Loader.Load(ctx)
	metrics.RefreshDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		logger.L().Error("dataset_refresh_error", "err", err)
		return err
	}
	metrics.RefreshTotal.WithLabelValues("ok").Inc()
	r.mu.Lock()
	r.current = snap
	r.mu.Unlock()
	if r.OnLoad != nil {
		r.OnLoad(snap)
	}
	return nil
}

// Run：阻塞执行，直到 ctx 取消
func (r *Refresher) Run(ctx context.Context) {
	_ = r.Reload(ctx)
	if r.Interval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			logger.L().Info("dataset_refresh_tick")
			_ = r.Reload(ctx)
		}
	}
}
