package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，额外处理 nil 配置。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 监听地址为空 -> 使用默认地址
//   - 查找参数非正 -> 使用默认值
//   - 日志级别为空 -> info
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	defaults := NewConfig()

	if len(c.Transport.ListenAddrs) == 0 {
		c.Transport.ListenAddrs = defaults.Transport.ListenAddrs
	}
	if c.DHT.BucketSize <= 0 {
		c.DHT.BucketSize = defaults.DHT.BucketSize
	}
	if c.DHT.Concurrency <= 0 {
		c.DHT.Concurrency = c.DHT.BucketSize
	}
	if c.DHT.RequestTimeout <= 0 {
		c.DHT.RequestTimeout = defaults.DHT.RequestTimeout
	}
	if c.DHT.InitialContactTimeout <= 0 {
		c.DHT.InitialContactTimeout = defaults.DHT.InitialContactTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}
