// 包 chat：问答服务客户端
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"metro-price-map/internal/logger"
	"metro-price-map/internal/metrics"
)

// Endpoint：问答服务的固定路径
const Endpoint = "/api/chat"

// ErrEmptyQuestion：问题为空（仅空白也算）
var ErrEmptyQuestion = errors.New("chat: empty question")

// APIError：问答服务返回非 2xx
// 约束：Detail 优先取响应 JSON 的 detail 字段，否则为 "HTTP error <status>"
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string { return e.Detail }

// Client：问答服务 HTTP 客户端
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient：baseURL 为空时返回 nil，表示问答功能未配置
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer string `json:"answer"`
}

// Ask：发送问题并返回回答文本
// 返回：非 2xx 为 *APIError；传输或解码失败为包装后的普通错误
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	t0 := time.Now()
	resp, err := c.HTTP.Do(req)
	metrics.ChatDurationMs.Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("transport_error").Inc()
		logger.L().Error("chat_http_error", "err", err)
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("transport_error").Inc()
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ChatRequestsTotal.WithLabelValues("api_error").Inc()
		apiErr := &APIError{Status: resp.StatusCode, Detail: detailOf(raw, resp.StatusCode)}
		logger.L().Warn("chat_api_error", "status", resp.StatusCode, "detail", apiErr.Detail)
		return "", apiErr
	}
	var out askResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.ChatRequestsTotal.WithLabelValues("decode_error").Inc()
		logger.L().Error("chat_decode_error", "err", err)
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	metrics.ChatRequestsTotal.WithLabelValues("ok").Inc()
	logger.L().Debug("chat_ok", "duration_ms", time.Since(t0).Milliseconds())
	return out.Answer, nil
}

// detailOf：提取错误详情；detail 可能是字符串或结构化内容（如校验错误列表）
func detailOf(raw []byte, status int) string {
	fallback := fmt.Sprintf("HTTP error %d", status)
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 || string(body.Detail) == "null" {
		return fallback
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		if s == "" {
			return fallback
		}
		return s
	}
	return string(body.Detail)
}
