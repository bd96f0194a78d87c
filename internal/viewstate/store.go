package viewstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"metro-price-map/internal/dataset"
	"metro-price-map/internal/logger"
	"metro-price-map/internal/match"
	"metro-price-map/internal/pricing"
)

// Store：单写者状态容器；Dispatch 串行执行，读方拿到的是值拷贝
type Store struct {
	mu    sync.Mutex
	state State
	next  uint64
	subs  []func(State)
}

func NewStore() *Store { return &Store{} }

// State：当前状态
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe：每次 Dispatch 之后回调（在 Dispatch 所在协程中，持锁外执行）
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Dispatch：应用一个 Action 并返回新状态
func (s *Store) Dispatch(a Action) State {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	st := s.state
	subs := s.subs
	s.mu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
	return st
}

// SetDatasets：供 dataset.Refresher.OnLoad 使用
func (s *Store) SetDatasets(snap *dataset.Snapshot) { s.Dispatch(DatasetsLoaded{Snapshot: snap}) }

// Open：分配新 Token 并打开弹窗；Token 单调递增
func (s *Store) Open(kind PopupKind, key, zip string, nearby []match.Nearby) uint64 {
	s.mu.Lock()
	s.next++
	tok := s.next
	s.mu.Unlock()
	s.Dispatch(PopupOpened{Token: tok, Kind: kind, Key: key, ZIP: zip, Nearby: nearby})
	return tok
}

// Close：关闭指定 Token 的弹窗
func (s *Store) Close(token uint64) { s.Dispatch(PopupClosed{Token: token}) }

// PopupSource：弹窗三路数据的查询接口（store.Store 实现）
type PopupSource interface {
	LatestPrice(ctx context.Context, region int64) (*float64, error)
	LatestPrediction(ctx context.Context, region int64) (*pricing.Prediction, error)
	PriceHistory(ctx context.Context, region int64) ([]pricing.Observation, error)
}

// LoadPopup：并发查询价格、预测与走势，结果带 token 回写
// 约束：单路失败只记录日志并以空值回写，不影响另外两路；返回时三路均已回写。
// 返回值合并了各路查询错误，调用方据此决定结果能否缓存。
func (s *Store) LoadPopup(ctx context.Context, src PopupSource, token uint64, zip string) error {
	region, ok := pricing.RegionOf(zip)
	if !ok {
		s.Dispatch(PriceLoaded{Token: token})
		s.Dispatch(PredictionLoaded{Token: token})
		s.Dispatch(HistoryLoaded{Token: token})
		return nil
	}
	var (
		wg   sync.WaitGroup
		errs [3]error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		v, err := src.LatestPrice(ctx, region)
		if err != nil {
			logger.L().Warn("popup_price_error", "zip", zip, "err", err)
			v, errs[0] = nil, fmt.Errorf("latest price: %w", err)
		}
		s.Dispatch(PriceLoaded{Token: token, Price: v})
	}()
	go func() {
		defer wg.Done()
		p, err := src.LatestPrediction(ctx, region)
		if err != nil {
			logger.L().Warn("popup_prediction_error", "zip", zip, "err", err)
			p, errs[1] = nil, fmt.Errorf("latest prediction: %w", err)
		}
		s.Dispatch(PredictionLoaded{Token: token, Prediction: p})
	}()
	go func() {
		defer wg.Done()
		obs, err := src.PriceHistory(ctx, region)
		if err != nil {
			logger.L().Warn("popup_history_error", "zip", zip, "err", err)
			obs, errs[2] = nil, fmt.Errorf("price history: %w", err)
		}
		s.Dispatch(HistoryLoaded{Token: token, History: pricing.History(obs)})
	}()
	wg.Wait()
	return errors.Join(errs[:]...)
}
