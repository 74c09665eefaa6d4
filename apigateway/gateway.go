/*
Package apigateway - API 网关

负责处理调用方请求：
- HTTP/JSON REST API (/chat, /health, /)
- WebSocket 问答连接
- gRPC 健康检查服务
- 请求转发到上游推理服务
*/
package apigateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	gateway "github.com/legalqa/gateway"
	"github.com/legalqa/gateway/config"
	"github.com/legalqa/gateway/monitor"
	"github.com/legalqa/gateway/ratelimit"
	"github.com/legalqa/gateway/upstream"
)

// Gateway API 网关
type Gateway struct {
	cfg        *config.Config
	service    *Service
	monitor    *monitor.Monitor
	limiter    ratelimit.Limiter
	redis      *redis.Client
	router     *gin.Engine
	httpServer *http.Server
	grpcServer *grpc.Server
}

// Option 网关选项
type Option func(*Gateway)

// WithUpstream 替换上游实现
func WithUpstream(up Upstream) Option {
	return func(g *Gateway) {
		g.service.upstream = up
	}
}

// WithLimiter 替换限流器
func WithLimiter(l ratelimit.Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// New 创建 API 网关
func New(cfg *config.Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		monitor: monitor.New(cfg.Metrics),
	}
	g.service = NewService(upstream.New(cfg.Upstream.URL), cfg.Upstream, g.monitor)

	if cfg.RateLimit.Enabled {
		switch cfg.RateLimit.Backend {
		case "redis":
			g.redis = redis.NewClient(&redis.Options{
				Addr:     cfg.RateLimit.Redis.Addr,
				Password: cfg.RateLimit.Redis.Password,
				DB:       cfg.RateLimit.Redis.DB,
			})
			g.limiter = ratelimit.NewRedis(g.redis, cfg.RateLimit.Burst, cfg.RateLimit.Redis.Prefix)
		default:
			g.limiter = ratelimit.NewMemory(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	for _, opt := range opts {
		opt(g)
	}

	g.router = g.buildRouter()
	return g
}

// Service 返回网关核心服务
func (g *Gateway) Service() *Service {
	return g.service
}

// Monitor 返回监控器
func (g *Gateway) Monitor() *monitor.Monitor {
	return g.monitor
}

// Handler 返回 HTTP 处理器
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start 启动网关，ctx 结束后优雅关闭
func (g *Gateway) Start(ctx context.Context) error {
	errCh := make(chan error, 3)

	// 先打开全部监听，任何一个失败都不启动服务
	httpLis, err := net.Listen("tcp", g.cfg.HTTPAddr)
	if err != nil {
		g.shutdown()
		return fmt.Errorf("HTTP 监听失败: %w", err)
	}

	var grpcLis net.Listener
	if g.cfg.GRPC.Enabled {
		grpcLis, err = net.Listen("tcp", g.cfg.GRPC.Addr)
		if err != nil {
			httpLis.Close()
			g.shutdown()
			return fmt.Errorf("gRPC 监听失败: %w", err)
		}
	}

	g.httpServer = &http.Server{
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := g.httpServer.Serve(httpLis); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP 服务错误: %w", err)
		}
	}()

	if grpcLis != nil {
		g.grpcServer = newGRPCServer(g.service)
		go func() {
			if err := g.grpcServer.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("gRPC 服务错误: %w", err)
			}
		}()
	}

	if g.cfg.Metrics.Enabled && g.cfg.Metrics.Addr != "" {
		go func() {
			if err := g.monitor.Serve(ctx); err != nil {
				errCh <- fmt.Errorf("指标服务错误: %w", err)
			}
		}()
	}

	if mem, ok := g.limiter.(*ratelimit.Memory); ok {
		go mem.RunCleanup(ctx, time.Minute)
	}

	log.Info().
		Str("http", g.cfg.HTTPAddr).
		Str("upstream", g.service.upstream.BaseURL()).
		Bool("grpc", g.cfg.GRPC.Enabled).
		Bool("websocket", g.cfg.WebSocket.Enabled).
		Bool("rate_limit", g.limiter != nil).
		Msg("API Gateway 已启动")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if err := g.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// shutdown 关闭服务
func (g *Gateway) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()

	log.Info().Msg("正在关闭 API Gateway...")

	var errs []error
	if g.httpServer != nil {
		errs = append(errs, g.httpServer.Shutdown(ctx))
	}
	if g.grpcServer != nil {
		g.grpcServer.GracefulStop()
	}
	if g.redis != nil {
		errs = append(errs, g.redis.Close())
	}
	return errors.Join(errs...)
}

// buildRouter 构建路由
func (g *Gateway) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 中间件
	r.Use(g.requestIDMiddleware())
	r.Use(g.loggerMiddleware())
	r.Use(g.corsMiddleware())

	// /health 与 / 不限流，始终返回 200
	r.GET("/health", g.handleHealth)
	r.GET("/", g.handleRoot)

	// 会访问上游的路由
	limited := r.Group("")
	if g.limiter != nil {
		limited.Use(g.rateLimitMiddleware())
	}
	limited.POST("/chat", g.handleChat)

	if g.cfg.WebSocket.Enabled {
		limited.GET(g.cfg.WebSocket.Path, g.handleWebSocket)
		g.service.withEndpoint("websocket", "GET "+g.cfg.WebSocket.Path+" - ask questions over a WebSocket")
	}
	if g.cfg.Metrics.Enabled && g.cfg.Metrics.Addr == "" {
		r.GET(g.cfg.Metrics.Path, gin.WrapH(g.monitor.Handler()))
		g.service.withEndpoint("metrics", "GET "+g.cfg.Metrics.Path+" - Prometheus metrics")
	}

	return r
}

// ============================================================================
// HTTP 处理器
// ============================================================================

// handleChat 处理聊天请求
func (g *Gateway) handleChat(c *gin.Context) {
	var req gateway.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, gateway.InvalidInput("Invalid request body: "+err.Error()))
		return
	}

	resp, err := g.service.Chat(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// handleHealth 健康检查，始终返回 200
func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, g.service.Health(c.Request.Context()))
}

// handleRoot 服务说明
func (g *Gateway) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, g.service.Root())
}

// writeError 把错误渲染为 JSON 响应
func writeError(c *gin.Context, err error) {
	gwErr := gateway.AsError(err)
	c.AbortWithStatusJSON(gwErr.Status, gwErr.Body())
}
