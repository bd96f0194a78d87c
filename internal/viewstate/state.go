// 包 viewstate：地图界面状态（数据集 + 当前弹窗）
//
// 文档注释：State 为不可变值，所有变更经 Reduce(State, Action) 产生新值。
// 弹窗相关的异步结果都携带打开时分配的 Token，Token 与当前弹窗不一致的结果直接丢弃，
// 因此快速切换弹窗时旧请求的返回不会覆盖新弹窗。
package viewstate

import (
	"slices"

	"metro-price-map/internal/dataset"
	"metro-price-map/internal/match"
	"metro-price-map/internal/pricing"
)

// PopupKind：弹窗来源
type PopupKind string

const (
	PopupStation PopupKind = "station"
	PopupRegion  PopupKind = "region"
)

// Popup：当前打开的弹窗
type Popup struct {
	Kind       PopupKind              `json:"kind"`
	Key        string                 `json:"key"` // 站点 ID 或邮编
	ZIP        string                 `json:"zip"`
	Nearby     []match.Nearby         `json:"nearby,omitempty"`
	Price      *float64               `json:"price"`
	Prediction *pricing.Prediction    `json:"-"`
	History    []pricing.HistoryPoint `json:"history"`

	PriceLoaded      bool `json:"-"`
	PredictionLoaded bool `json:"-"`
	HistoryLoaded    bool `json:"-"`
}

// Projection：由当前价格与涨幅预测派生，与两者的到达顺序无关
func (p *Popup) Projection() pricing.Projection {
	if p == nil {
		return pricing.Projection{}
	}
	return pricing.Project(p.Price, p.Prediction)
}

// Complete：三路数据均已返回（无论成功与否）
func (p *Popup) Complete() bool {
	return p != nil && p.PriceLoaded && p.PredictionLoaded && p.HistoryLoaded
}

func (p *Popup) clone() *Popup {
	c := *p
	c.Nearby = slices.Clone(p.Nearby)
	c.History = slices.Clone(p.History)
	return &c
}

// State：界面状态快照
type State struct {
	Data  *dataset.Snapshot
	Popup *Popup
	Token uint64 // 当前弹窗的 Token；无弹窗时为 0
}

// Action：状态变更
type Action interface{ isAction() }

// DatasetsLoaded：新数据集就绪；已打开的弹窗保持不变
type DatasetsLoaded struct{ Snapshot *dataset.Snapshot }

// PopupOpened：打开弹窗，替换任何已打开的弹窗
type PopupOpened struct {
	Token  uint64
	Kind   PopupKind
	Key    string
	ZIP    string
	Nearby []match.Nearby
}

// PopupClosed：关闭弹窗；Token 为 0 时无条件关闭
type PopupClosed struct{ Token uint64 }

// PriceLoaded：当前价格返回（nil 表示无数据或查询失败）
type PriceLoaded struct {
	Token uint64
	Price *float64
}

// PredictionLoaded：涨幅预测返回
type PredictionLoaded struct {
	Token      uint64
	Prediction *pricing.Prediction
}

// HistoryLoaded：价格走势返回
type HistoryLoaded struct {
	Token   uint64
	History []pricing.HistoryPoint
}

func (DatasetsLoaded) isAction()   {}
func (PopupOpened) isAction()      {}
func (PopupClosed) isAction()      {}
func (PriceLoaded) isAction()      {}
func (PredictionLoaded) isAction() {}
func (HistoryLoaded) isAction()    {}

// Reduce：纯函数，返回新状态；不修改输入
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case DatasetsLoaded:
		s.Data = a.Snapshot
	case PopupOpened:
		s.Token = a.Token
		s.Popup = &Popup{Kind: a.Kind, Key: a.Key, ZIP: a.ZIP, Nearby: slices.Clone(a.Nearby)}
	case PopupClosed:
		if a.Token == 0 || a.Token == s.Token {
			s.Popup, s.Token = nil, 0
		}
	case PriceLoaded:
		if p := s.current(a.Token); p != nil {
			p.Price, p.PriceLoaded = a.Price, true
			s.Popup = p
		}
	case PredictionLoaded:
		if p := s.current(a.Token); p != nil {
			p.Prediction, p.PredictionLoaded = a.Prediction, true
			s.Popup = p
		}
	case HistoryLoaded:
		if p := s.current(a.Token); p != nil {
			p.History, p.HistoryLoaded = slices.Clone(a.History), true
			s.Popup = p
		}
	}
	return s
}

// current：Token 匹配时返回当前弹窗的副本，否则 nil（结果过期）
func (s State) current(token uint64) *Popup {
	if s.Popup == nil || token == 0 || token != s.Token {
		return nil
	}
	return s.Popup.clone()
}
