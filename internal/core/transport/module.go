package transport

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/core/transport/udp"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("core/transport")

// Config 传输层配置
type Config struct {
	// ListenEndpoints 监听端点
	ListenEndpoints []types.Endpoint

	// ReceiveQueue 接收队列长度
	ReceiveQueue int
}

// NewConfig 创建默认配置
func NewConfig() Config {
	cfg, err := ConfigFromUnified(config.NewConfig())
	if err != nil {
		panic(err)
	}
	return cfg
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) (Config, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	eps, err := cfg.Transport.Endpoints()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ListenEndpoints: eps,
		ReceiveQueue:    cfg.Transport.ReceiveQueue,
	}, nil
}

// Params 传输层依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Module 返回 Fx 模块
//
// onCreate 在传输层创建成功后立即调用，早于任何生命周期钩子。
// 调用方借此在 App 未启动时也能关闭已绑定的 socket。
func Module(onCreate ...func(interfaces.Transport)) fx.Option {
	return fx.Module("transport",
		fx.Provide(
			func(p Params) (interfaces.Transport, error) {
				t, err := ProvideTransport(p)
				if err != nil {
					return nil, err
				}
				for _, fn := range onCreate {
					fn(t)
				}
				return t, nil
			},
		),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideTransport 按统一配置监听 UDP
func ProvideTransport(p Params) (interfaces.Transport, error) {
	cfg, err := ConfigFromUnified(p.UnifiedCfg)
	if err != nil {
		return nil, err
	}

	t, err := udp.Listen(cfg.ListenEndpoints, udp.WithReceiveQueue(cfg.ReceiveQueue))
	if err != nil {
		return nil, err
	}
	logger.Debug("传输层已创建", "endpoints", t.LocalEndpoints())
	return t, nil
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, t interfaces.Transport) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return t.Close()
		},
	})
}
