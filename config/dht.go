package config

import (
	"errors"
	"time"
)

// DHTConfig DHT 配置
type DHTConfig struct {
	// BucketSize K 桶大小
	BucketSize int `json:"bucket_size,omitempty"`

	// Concurrency 查找并发度
	Concurrency int `json:"concurrency,omitempty"`

	// RequestTimeout 单个请求超时
	RequestTimeout Duration `json:"request_timeout,omitempty"`

	// InitialContactTimeout 联系种子节点的超时
	InitialContactTimeout Duration `json:"initial_contact_timeout,omitempty"`

	// RefreshInterval 路由表刷新间隔，0 表示禁用
	RefreshInterval Duration `json:"refresh_interval"`

	// MaxValues 本地值存储最大条目数，0 表示不限
	MaxValues int `json:"max_values"`

	// ValueTTL 本地值存活时间，0 表示不过期
	ValueTTL Duration `json:"value_ttl"`

	// BootstrapPeers 引导节点地址，"host:port" 格式
	BootstrapPeers []string `json:"bootstrap_peers,omitempty"`

	// AutoJoin 启动后是否自动通过引导节点加入网络
	AutoJoin bool `json:"auto_join"`
}

// DefaultDHTConfig 返回默认 DHT 配置
func DefaultDHTConfig() DHTConfig {
	return DHTConfig{
		BucketSize:            20,
		Concurrency:           20,
		RequestTimeout:        Duration(2 * time.Second),
		InitialContactTimeout: Duration(2 * time.Second),
		RefreshInterval:       Duration(1 * time.Hour),
		MaxValues:             0,
		ValueTTL:              0,
		AutoJoin:              true,
	}
}

// Validate 验证 DHT 配置
func (c DHTConfig) Validate() error {
	if c.BucketSize <= 0 {
		return errors.New("dht: bucket size must be positive")
	}
	if c.Concurrency <= 0 {
		return errors.New("dht: concurrency must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("dht: request timeout must be positive")
	}
	if c.InitialContactTimeout <= 0 {
		return errors.New("dht: initial contact timeout must be positive")
	}
	if c.RefreshInterval < 0 {
		return errors.New("dht: refresh interval must not be negative")
	}
	if c.MaxValues < 0 {
		return errors.New("dht: max values must not be negative")
	}
	if c.ValueTTL < 0 {
		return errors.New("dht: value ttl must not be negative")
	}
	if _, err := parseEndpoints("dht", c.BootstrapPeers); err != nil {
		return err
	}
	return nil
}

// WithBootstrapPeers 设置引导节点
func (c DHTConfig) WithBootstrapPeers(addrs ...string) DHTConfig {
	c.BootstrapPeers = append([]string(nil), addrs...)
	return c
}

// WithBucketSize 设置 K 桶大小
func (c DHTConfig) WithBucketSize(size int) DHTConfig {
	c.BucketSize = size
	return c
}
