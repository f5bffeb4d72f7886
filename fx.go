package kaddht

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-kaddht/internal/core/transport"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
)

var fxLogger = log.Logger("kaddht/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 配置注入
//  2. 传输层：用户提供的传输或 UDP
//  3. DHT 引擎
//  4. 用户扩展与 Node 组件注入
func buildFxApp(cfg *nodeConfig, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := cfg.config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	modules := []fx.Option{
		fx.Supply(cfg.config),
	}
	if len(cfg.dhtOptions) > 0 {
		modules = append(modules, fx.Supply(dht.Options(cfg.dhtOptions)))
	}
	if cfg.registerer != nil {
		reg := cfg.registerer
		modules = append(modules, fx.Provide(func() prometheus.Registerer { return reg }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 传输层
	// ════════════════════════════════════════════════════════════════════════
	if cfg.transport != nil {
		t := cfg.transport
		node.transport = t
		modules = append(modules, fx.Provide(func() interfaces.Transport { return t }))
		fxLogger.Debug("使用自定义传输层", "endpoints", t.LocalEndpoints())
	} else {
		modules = append(modules, transport.Module(func(t interfaces.Transport) {
			node.transport = t
		}))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. DHT 引擎
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, dht.Module)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户扩展与组件注入
	// ════════════════════════════════════════════════════════════════════════
	if len(cfg.userFxOptions) > 0 {
		modules = append(modules, cfg.userFxOptions...)
	}
	modules = append(modules, fx.Invoke(func(d *dht.DHT) {
		node.dht = d
	}))

	// 禁用 Fx 日志输出（避免干扰用户日志）
	modules = append(modules,
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	return fx.New(modules...), nil
}
