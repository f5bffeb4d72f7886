package dht

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// bootstrapTimeout 启动后自动加入网络的超时
const bootstrapTimeout = 30 * time.Second

// Module DHT Fx 模块
var Module = fx.Module("discovery_dht",
	fx.Provide(
		NewFromParams,
	),
	fx.Invoke(registerDHTLifecycle),
)

// Params DHT 依赖参数
type Params struct {
	fx.In

	Transport  interfaces.Transport
	UnifiedCfg *config.Config         `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
	Extra      Options               `optional:"true"`
}

// Options 在统一配置之后追加的 DHT 选项
type Options []ConfigOption

// ConfigFromUnified 从统一配置创建 DHT 配置
func ConfigFromUnified(cfg *config.Config) *Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}

	c.BucketSize = cfg.DHT.BucketSize
	c.Concurrency = cfg.DHT.Concurrency
	c.RequestTimeout = cfg.DHT.RequestTimeout.Duration()
	c.InitialContactTimeout = cfg.DHT.InitialContactTimeout.Duration()
	c.RefreshInterval = cfg.DHT.RefreshInterval.Duration()
	c.MaxValues = cfg.DHT.MaxValues
	c.ValueTTL = cfg.DHT.ValueTTL.Duration()
	c.ID = cfg.Identity.NodeID()

	for _, addr := range cfg.DHT.BootstrapPeers {
		ep, err := types.ParseEndpoint(addr)
		if err != nil {
			logger.Debug("解析引导节点地址失败", "addr", addr, "error", err)
			continue
		}
		c.BootstrapPeers = append(c.BootstrapPeers, ep)
	}
	return c
}

// NewFromParams 从 Fx 参数创建 DHT
func NewFromParams(p Params) (*DHT, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	opts := append([]ConfigOption{WithConfig(cfg), WithRegisterer(p.Registerer)}, p.Extra...)
	return New(p.Transport, opts...)
}

// lifecycleParams DHT 生命周期参数
type lifecycleParams struct {
	fx.In

	LC         fx.Lifecycle
	DHT        *DHT
	UnifiedCfg *config.Config `optional:"true"`
}

// registerDHTLifecycle 注册 DHT 生命周期钩子
//
// OnStart 在后台启动 Run，并在配置了引导节点时异步加入网络；
// OnStop 停止 DHT 并等待 Run 返回。
func registerDHTLifecycle(p lifecycleParams) {
	runDone := make(chan error, 1)

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				runDone <- p.DHT.Run(context.Background())
			}()

			if shouldAutoJoin(p.UnifiedCfg, p.DHT) {
				go scheduleJoin(p.DHT)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.DHT.Stop()
			select {
			case err := <-runDone:
				if err != nil && !errors.Is(err, ErrRunAborted) {
					logger.Error("DHT 运行异常结束", "error", err)
					return err
				}
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

// shouldAutoJoin 判断是否应在启动后自动加入网络
func shouldAutoJoin(cfg *config.Config, d *DHT) bool {
	if cfg != nil && !cfg.DHT.AutoJoin {
		return false
	}
	return len(d.config.BootstrapPeers) > 0
}

// scheduleJoin 通过引导节点加入网络，失败只记录日志
func scheduleJoin(d *DHT) {
	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	logger.Info("自动加入网络", "seeds", len(d.config.BootstrapPeers))
	if err := d.Join(ctx); err != nil {
		logger.Warn("自动加入网络失败", "error", err)
	}
}
