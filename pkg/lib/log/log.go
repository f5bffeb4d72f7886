// Package log 提供 go-kaddht 统一日志接口
//
// 基于 Go 标准库 log/slog 封装。各包通过 Logger(component) 获取懒加载 logger，
// 每次调用时读取当前的 slog.Default()，因此可以在运行时切换输出和级别。
//
// 环境变量：
//   - KADDHT_LOG_LEVEL: debug、info、warn、error
//   - KADDHT_LOG_FORMAT: text 或 json
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format 日志输出格式
type Format string

const (
	// FormatText 文本格式（默认）
	FormatText Format = "text"
	// FormatJSON JSON 格式
	FormatJSON Format = "json"
)

// Options 日志初始化选项
type Options struct {
	Level  slog.Level
	Format Format
	Output io.Writer
}

// Setup 按选项重建默认 logger
func Setup(opts Options) {
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}

	var h slog.Handler
	if opts.Format == FormatJSON {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	slog.SetDefault(slog.New(h))
}

// SetOutput 设置日志输出目标，级别为 Info
func SetOutput(w io.Writer) {
	Setup(Options{Level: LevelInfo, Output: w})
}

// SetOutputWithLevel 同时设置日志输出目标和级别
func SetOutputWithLevel(w io.Writer, level slog.Level) {
	Setup(Options{Level: level, Output: w})
}

// SetLevel 设置日志级别，输出到 stderr
func SetLevel(level slog.Level) {
	Setup(Options{Level: level})
}

// ParseLevel 解析日志级别字符串
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("dht/routing")
//	logger.Info("hello")
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) get() *slog.Logger {
	return slog.Default().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.get().Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.get().Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.get().Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	l.get().Error(msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.get().DebugContext(ctx, msg, args...)
}

// InfoContext 带 context 的 Info 日志
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.get().InfoContext(ctx, msg, args...)
}

// Enabled 检查级别是否启用
//
// 用于跳过高开销的日志参数构造。
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return slog.Default().Enabled(context.Background(), level)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.get().With(args...)
}

// ============================================================================
//                              初始化
// ============================================================================

func init() {
	level, err := ParseLevel(os.Getenv("KADDHT_LOG_LEVEL"))
	if err != nil {
		level = LevelInfo
	}
	Setup(Options{
		Level:  level,
		Format: Format(strings.ToLower(os.Getenv("KADDHT_LOG_FORMAT"))),
	})
}
