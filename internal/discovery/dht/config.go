package dht

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Config DHT 配置
type Config struct {
	// BucketSize K 桶大小，也是查找结果数量和 FIND_PEER 响应的节点上限
	BucketSize int

	// Concurrency 单个查找同时进行中的请求上限
	Concurrency int

	// RequestTimeout 单个请求超时
	RequestTimeout time.Duration

	// InitialContactTimeout 联系种子节点的超时
	InitialContactTimeout time.Duration

	// RefreshInterval 路由表刷新间隔，0 表示禁用周期刷新
	RefreshInterval time.Duration

	// MaxValues 本地值存储最大条目数，0 表示不限
	MaxValues int

	// ValueTTL 本地值存活时间，0 表示不过期
	ValueTTL time.Duration

	// BootstrapPeers Join 未指定种子时使用的引导端点
	BootstrapPeers []types.Endpoint

	// ============= 注入依赖 =============

	// ID 本节点标识符，零值时随机生成
	ID types.ID

	// Clock 时钟，nil 时使用真实时钟
	Clock clock.Clock

	// Random 随机源，用于生成 token 和随机 ID，nil 时使用 crypto/rand
	Random io.Reader

	// Registerer 指标注册器，nil 时使用独立的 registry
	Registerer prometheus.Registerer
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BucketSize:            20,
		Concurrency:           20,
		RequestTimeout:        2 * time.Second,
		InitialContactTimeout: 2 * time.Second,
		RefreshInterval:       1 * time.Hour,
		MaxValues:             0,
		ValueTTL:              0,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.BucketSize <= 0 {
		return errors.New("bucket size must be positive")
	}
	if c.BucketSize > message.MaxPeers {
		return fmt.Errorf("bucket size must not exceed %d", message.MaxPeers)
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.InitialContactTimeout <= 0 {
		return errors.New("initial contact timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh interval must not be negative")
	}
	if c.MaxValues < 0 {
		return errors.New("max values must not be negative")
	}
	if c.ValueTTL < 0 {
		return errors.New("value ttl must not be negative")
	}
	return nil
}

// ConfigOption 配置选项
type ConfigOption func(*Config)

// WithConfig 整体替换配置（注入依赖字段保留已设置的值）
func WithConfig(cfg *Config) ConfigOption {
	return func(c *Config) {
		if cfg == nil {
			return
		}
		id, clk, rnd, reg := c.ID, c.Clock, c.Random, c.Registerer
		*c = *cfg
		if c.ID.IsZero() {
			c.ID = id
		}
		if c.Clock == nil {
			c.Clock = clk
		}
		if c.Random == nil {
			c.Random = rnd
		}
		if c.Registerer == nil {
			c.Registerer = reg
		}
	}
}

// WithBucketSize 设置 K 桶大小
func WithBucketSize(size int) ConfigOption {
	return func(c *Config) {
		c.BucketSize = size
	}
}

// WithConcurrency 设置查找并发度
func WithConcurrency(n int) ConfigOption {
	return func(c *Config) {
		c.Concurrency = n
	}
}

// WithRequestTimeout 设置请求超时
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithInitialContactTimeout 设置种子联系超时
func WithInitialContactTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.InitialContactTimeout = timeout
	}
}

// WithRefreshInterval 设置刷新间隔
func WithRefreshInterval(interval time.Duration) ConfigOption {
	return func(c *Config) {
		c.RefreshInterval = interval
	}
}

// WithValueStore 设置本地值存储容量和 TTL
func WithValueStore(maxValues int, ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxValues = maxValues
		c.ValueTTL = ttl
	}
}

// WithBootstrapPeers 设置引导端点
func WithBootstrapPeers(peers ...types.Endpoint) ConfigOption {
	return func(c *Config) {
		c.BootstrapPeers = append([]types.Endpoint(nil), peers...)
	}
}

// WithID 设置本节点标识符
func WithID(id types.ID) ConfigOption {
	return func(c *Config) {
		c.ID = id
	}
}

// WithClock 设置时钟
func WithClock(clk clock.Clock) ConfigOption {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithRandom 设置随机源
func WithRandom(r io.Reader) ConfigOption {
	return func(c *Config) {
		c.Random = r
	}
}

// WithRegisterer 设置指标注册器
func WithRegisterer(reg prometheus.Registerer) ConfigOption {
	return func(c *Config) {
		c.Registerer = reg
	}
}
