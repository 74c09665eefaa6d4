// Package ratelimit 按客户端限流，支持内存与 Redis 两种后端。
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter 限流器
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ============================================================================
// 内存令牌桶
// ============================================================================

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// Memory 进程内令牌桶限流
type Memory struct {
	rps     float64
	burst   float64
	buckets map[string]*bucket
	mu      sync.Mutex
	now     func() time.Time
}

// NewMemory 创建内存限流器
func NewMemory(rps, burst int) *Memory {
	return &Memory{
		rps:     float64(rps),
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow 消耗一个令牌
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, exists := m.buckets[key]
	if !exists {
		b = &bucket{tokens: m.burst, lastFill: now}
		m.buckets[key] = b
	}

	// 补充令牌
	b.tokens += now.Sub(b.lastFill).Seconds() * m.rps
	if b.tokens > m.burst {
		b.tokens = m.burst
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Cleanup 删除已经回满的桶
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, b := range m.buckets {
		if b.tokens+now.Sub(b.lastFill).Seconds()*m.rps >= m.burst {
			delete(m.buckets, key)
		}
	}
}

// RunCleanup 定期清理，ctx 结束时退出
func (m *Memory) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

// ============================================================================
// Redis 固定窗口
// ============================================================================

// Redis 基于 Redis 的每秒固定窗口计数，多实例共享
type Redis struct {
	client redis.Cmdable
	limit  int64
	prefix string
	now    func() time.Time
}

// NewRedis 创建 Redis 限流器，limit 为每秒允许的请求数
func NewRedis(client redis.Cmdable, limit int, prefix string) *Redis {
	return &Redis{
		client: client,
		limit:  int64(limit),
		prefix: prefix,
		now:    time.Now,
	}
}

// Allow 计数并判断是否超出窗口上限
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("%s%s:%d", r.prefix, key, r.now().Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis 限流计数失败: %w", err)
	}

	return incr.Val() <= r.limit, nil
}
