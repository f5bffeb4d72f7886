package config

import (
	"fmt"

	"github.com/dep2p/go-kaddht/pkg/lib/log"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug, info, warn, error
	Level string `json:"level"`

	// Format 输出格式: text, json
	Format string `json:"format"`

	// File 日志文件路径，为空时输出到 stderr
	File string `json:"file,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: string(log.FormatText),
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	if _, err := log.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch log.Format(c.Format) {
	case "", log.FormatText, log.FormatJSON:
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}
