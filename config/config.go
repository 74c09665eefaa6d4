package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 网关总配置
type Config struct {
	HTTPAddr  string          `yaml:"http_addr"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	WebSocket WebSocketConfig `yaml:"websocket"`

	// 优雅关闭等待时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig 上游推理服务配置
type UpstreamConfig struct {
	URL string `yaml:"url"`

	// /ask 超时
	ChatTimeout time.Duration `yaml:"chat_timeout"`

	// /health 超时
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// 每秒请求数
	RPS int `yaml:"rps"`

	// 突发请求数
	Burst int `yaml:"burst"`

	// memory 或 redis
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MetricsConfig Prometheus metrics 配置
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// 为空时挂在主 HTTP 服务上
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// GRPCConfig gRPC 健康检查服务配置
type GRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load 加载配置文件，文件不存在时使用默认配置，最后应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖
func (c *Config) applyEnv() {
	if v := os.Getenv("UPSTREAM_URL"); v != "" {
		c.Upstream.URL = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RateLimit.Redis.Addr = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Upstream.URL == "" {
		return errors.New("upstream.url 不能为空")
	}
	if c.Upstream.ChatTimeout <= 0 || c.Upstream.HealthTimeout <= 0 {
		return errors.New("upstream 超时必须大于 0")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
			return errors.New("rate_limit.rps 与 rate_limit.burst 必须大于 0")
		}
		switch c.RateLimit.Backend {
		case "memory", "redis":
		default:
			return fmt.Errorf("未知的限流后端: %q", c.RateLimit.Backend)
		}
	}
	return nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr: ":8000",
		Upstream: UpstreamConfig{
			URL:           "http://localhost:5000",
			ChatTimeout:   120 * time.Second,
			HealthTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		CORS: CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"*"},
			AllowHeaders:     []string{"*"},
			AllowCredentials: true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     100,
			Burst:   200,
			Backend: "memory",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "legal-gateway:ratelimit:",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		GRPC: GRPCConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
		ShutdownTimeout: 5 * time.Second,
	}
}
