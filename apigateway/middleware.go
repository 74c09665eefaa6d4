package apigateway

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	gateway "github.com/legalqa/gateway"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// ============================================================================
// 中间件
// ============================================================================

func (g *Gateway) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)

		ctx := log.With().Str("request_id", id).Logger().WithContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (g *Gateway) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("请求")
	}
}

// corsMiddleware 允许配置的来源；允许凭证时回显 Origin 而不是 "*"
func (g *Gateway) corsMiddleware() gin.HandlerFunc {
	cfg := g.cfg.CORS
	anyOrigin := slices.Contains(cfg.AllowOrigins, "*")
	anyMethod := slices.Contains(cfg.AllowMethods, "*")
	anyHeader := slices.Contains(cfg.AllowHeaders, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := anyOrigin || slices.Contains(cfg.AllowOrigins, origin)

		if allowed {
			switch {
			case origin != "" && (cfg.AllowCredentials || !anyOrigin):
				c.Header("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			default:
				c.Header("Access-Control-Allow-Origin", "*")
			}
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}

		// 预检请求
		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		if anyMethod {
			c.Header("Access-Control-Allow-Methods", c.GetHeader("Access-Control-Request-Method"))
		} else {
			c.Header("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
		}
		if anyHeader {
			if h := c.GetHeader("Access-Control-Request-Headers"); h != "" {
				c.Header("Access-Control-Allow-Headers", h)
			}
		} else {
			c.Header("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
		}
		c.Header("Access-Control-Max-Age", "600")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// rateLimitMiddleware 按客户端 IP 限流，限流器出错时放行
func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := g.limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("限流器错误，放行请求")
			c.Next()
			return
		}
		if !ok {
			writeError(c, gateway.RateLimited())
			return
		}
		c.Next()
	}
}
