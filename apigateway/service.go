package apigateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	gateway "github.com/legalqa/gateway"
	"github.com/legalqa/gateway/config"
	"github.com/legalqa/gateway/monitor"
)

// Version 网关版本
const Version = "1.0.0"

// Upstream 上游推理服务
type Upstream interface {
	Ask(ctx context.Context, question string, timeout time.Duration) (string, error)
	Health(ctx context.Context, timeout time.Duration) (map[string]any, error)
	BaseURL() string
}

// Service 网关核心操作：chat、health、root
//
// Service 不持有请求间的可变状态，可被并发调用。
type Service struct {
	upstream Upstream
	cfg      config.UpstreamConfig
	monitor  *monitor.Monitor
	paths    map[string]string
}

// NewService 创建网关服务
func NewService(up Upstream, cfg config.UpstreamConfig, m *monitor.Monitor) *Service {
	return &Service{
		upstream: up,
		cfg:      cfg,
		monitor:  m,
		paths: map[string]string{
			"chat":   "POST /chat - ask a legal question",
			"health": "GET /health - gateway and upstream health",
			"root":   "GET / - this document",
		},
	}
}

// withEndpoint 在 root 文档中登记额外的端点
func (s *Service) withEndpoint(name, description string) {
	s.paths[name] = description
}

// Chat 把问题转发给上游并返回答案
func (s *Service) Chat(ctx context.Context, req gateway.ChatRequest) (gateway.ChatResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.Question) == "" {
		err := gateway.InvalidInput("Question cannot be empty")
		s.recordError("chat", err, start)
		return gateway.ChatResponse{}, err
	}

	log.Debug().Int("question_len", len(req.Question)).Msg("收到问题")

	answer, err := s.upstream.Ask(ctx, req.Question, s.cfg.ChatTimeout)
	if err != nil {
		gwErr := gateway.AsError(err)
		s.recordError("chat", gwErr, start)
		return gateway.ChatResponse{}, gwErr
	}

	s.recordSuccess("chat", start)
	return gateway.ChatResponse{Answer: answer}, nil
}

// Health 检查上游状态，失败作为数据返回而不是错误
func (s *Service) Health(ctx context.Context) gateway.HealthReport {
	start := time.Now()

	report := gateway.HealthReport{
		GatewayStatus: gateway.StatusHealthy,
		UpstreamURL:   s.upstream.BaseURL(),
	}

	payload, err := s.upstream.Health(ctx, s.cfg.HealthTimeout)
	if err != nil {
		log.Warn().Err(err).Str("upstream", report.UpstreamURL).Msg("上游健康检查失败")
		report.UpstreamStatus = gateway.StatusUnhealthy
		report.OverallStatus = gateway.StatusUnhealthy
		report.Error = err.Error()
		if s.monitor != nil {
			s.monitor.RecordError("health", string(healthFailureKind(err)), time.Since(start))
		}
		return report
	}

	report.UpstreamStatus = payload
	if truthy(payload["models_loaded"]) {
		report.OverallStatus = gateway.StatusHealthy
	} else {
		report.OverallStatus = gateway.StatusUpstreamNotReady
	}

	s.recordSuccess("health", start)
	return report
}

// Root 返回静态的服务说明，不访问上游
func (s *Service) Root() gateway.InfoPayload {
	endpoints := make(map[string]string, len(s.paths))
	for k, v := range s.paths {
		endpoints[k] = v
	}
	return gateway.InfoPayload{
		Message:     "Legal QA Gateway",
		Version:     Version,
		UpstreamURL: s.upstream.BaseURL(),
		Endpoints:   endpoints,
	}
}

func (s *Service) recordSuccess(operation string, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordRequest(operation, time.Since(start))
	}
}

func (s *Service) recordError(operation string, err *gateway.Error, start time.Time) {
	if s.monitor != nil {
		s.monitor.RecordError(operation, string(err.Kind), time.Since(start))
	}
}

// truthy 按 JSON 值的真假语义判断
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// healthFailureKind 已分类的错误沿用其类别，其余归为 upstream_unhealthy
func healthFailureKind(err error) gateway.Kind {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return gateway.KindUpstreamUnhealthy
}
