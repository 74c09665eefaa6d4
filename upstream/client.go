/*
Package upstream - 上游推理服务客户端

两个接口：
- POST {base}/ask    提交问题，返回 answer
- GET  {base}/health 查询模型加载状态
*/
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	gateway "github.com/legalqa/gateway"
)

// NoAnswer 上游成功返回但没有 answer 字段时的占位答案
const NoAnswer = "No answer received"

// 上游响应体读取上限
const maxBodySize = 8 << 20

// Client 上游服务客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New 创建上游客户端
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL 返回上游基础地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer *string `json:"answer"`
}

type errorResponse struct {
	Error *string `json:"error"`
}

// Ask 向上游提交问题，失败时返回 *gateway.Error
func (c *Client) Ask(ctx context.Context, question string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return "", gateway.InternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(payload))
	if err != nil {
		return "", gateway.InternalError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Info().
		Str("url", req.URL.String()).
		Int("question_len", len(question)).
		Dur("timeout", timeout).
		Msg("发送请求到上游")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", classify(ctx, err)
	}

	log.Info().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Int("body_len", len(body)).
		Msg("收到上游响应")

	switch {
	case resp.StatusCode == http.StatusInternalServerError:
		var er errorResponse
		if err := json.Unmarshal(body, &er); err != nil {
			log.Error().Err(err).Msg("上游 500 响应体无法解析")
			return "", gateway.UpstreamInternalError(err)
		}
		message := "Unknown error"
		if er.Error != nil {
			message = *er.Error
		}
		log.Error().Str("upstream_error", message).Msg("上游返回错误")
		return "", gateway.UpstreamError(message)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		log.Error().Int("status", resp.StatusCode).Msg("上游 HTTP 错误")
		return "", gateway.UpstreamHTTPError(resp.StatusCode)
	}

	var ar askResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		log.Error().Err(err).Msg("上游响应体无法解析")
		return "", gateway.InternalError(fmt.Errorf("decode upstream answer: %w", err))
	}
	if ar.Answer == nil {
		log.Warn().Msg("上游响应缺少 answer 字段")
		return NoAnswer, nil
	}
	return *ar.Answer, nil
}

// Health 查询上游健康状态，返回上游的 JSON 对象
func (c *Client) Health(ctx context.Context, timeout time.Duration) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream health returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&payload); err != nil {
		if ctx.Err() != nil {
			return nil, classify(ctx, err)
		}
		return nil, fmt.Errorf("decode upstream health: %w", err)
	}
	if payload == nil {
		return nil, errors.New("upstream health returned null")
	}
	return payload, nil
}

// classify 把传输层错误归类为超时、取消或连接失败
func classify(ctx context.Context, err error) *gateway.Error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("上游请求超时")
		return gateway.UpstreamTimeout(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		log.Warn().Err(err).Msg("上游请求超时")
		return gateway.UpstreamTimeout(err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Warn().Err(err).Msg("上游请求被取消")
		return gateway.InternalError(err)
	}

	log.Error().Err(err).Msg("无法连接上游服务")
	return gateway.UpstreamUnavailable(err)
}
