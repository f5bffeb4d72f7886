package kaddht

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/config"
	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// Option 用户配置选项函数
type Option func(*nodeConfig) error

// nodeConfig 内部选项结构
type nodeConfig struct {
	// config 统一配置
	config *config.Config

	// transport 用户提供的传输层，为空时按配置监听 UDP
	transport interfaces.Transport

	// registerer 指标注册器
	registerer prometheus.Registerer

	// dhtOptions 额外的 DHT 选项
	dhtOptions []dht.ConfigOption

	// userFxOptions 用户扩展的 Fx 选项
	userFxOptions []fx.Option
}

func newNodeConfig() *nodeConfig {
	return &nodeConfig{config: config.NewConfig()}
}

// ============================================================================
//                              配置选项
// ============================================================================

// WithConfig 使用完整的统一配置
//
// 之后的选项会在此配置上继续修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *nodeConfig) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		c := *cfg
		o.config = &c
		return nil
	}
}

// WithConfigFile 从 JSON 文件加载统一配置
func WithConfigFile(path string) Option {
	return func(o *nodeConfig) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		o.config = cfg
		return nil
	}
}

// ============================================================================
//                              身份与监听
// ============================================================================

// WithID 使用指定的十六进制标识符
func WithID(id string) Option {
	return func(o *nodeConfig) error {
		if _, err := types.ParseID(id); err != nil {
			return err
		}
		o.config.Identity = o.config.Identity.WithID(id)
		return nil
	}
}

// WithListenAddrs 设置 UDP 监听地址
//
// 示例:
//
//	kaddht.New(ctx, kaddht.WithListenAddrs("0.0.0.0:27980", "[::]:27980"))
func WithListenAddrs(addrs ...string) Option {
	return func(o *nodeConfig) error {
		if len(addrs) == 0 {
			return errors.New("at least one listen address is required")
		}
		for _, a := range addrs {
			if _, err := types.ParseEndpoint(a); err != nil {
				return err
			}
		}
		o.config.Transport = o.config.Transport.WithListenAddrs(addrs...)
		return nil
	}
}

// WithListenPort 在 IPv4 和 IPv6 的所有接口上监听指定端口
//
// port=0 时只在 IPv4 上监听随机端口，避免两个地址族拿到不同端口。
func WithListenPort(port int) Option {
	return func(o *nodeConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("invalid port: %d", port)
		}
		if port == 0 {
			o.config.Transport = o.config.Transport.WithListenAddrs("0.0.0.0:0")
			return nil
		}
		o.config.Transport = o.config.Transport.WithListenAddrs(
			fmt.Sprintf("0.0.0.0:%d", port),
			fmt.Sprintf("[::]:%d", port),
		)
		return nil
	}
}

// WithTransport 使用自定义传输层（例如进程内网络）
func WithTransport(t interfaces.Transport) Option {
	return func(o *nodeConfig) error {
		if t == nil {
			return errors.New("transport is nil")
		}
		o.transport = t
		return nil
	}
}

// ============================================================================
//                              DHT 选项
// ============================================================================

// WithBootstrapPeers 设置引导节点，启动后自动加入网络
func WithBootstrapPeers(peers ...string) Option {
	return func(o *nodeConfig) error {
		for _, p := range peers {
			if _, err := types.ParseEndpoint(p); err != nil {
				return err
			}
		}
		o.config.DHT = o.config.DHT.WithBootstrapPeers(peers...)
		return nil
	}
}

// WithAutoJoin 设置启动后是否自动通过引导节点加入网络
func WithAutoJoin(enable bool) Option {
	return func(o *nodeConfig) error {
		o.config.DHT.AutoJoin = enable
		return nil
	}
}

// WithDHTOptions 追加 DHT 引擎选项（在统一配置之后应用）
func WithDHTOptions(opts ...dht.ConfigOption) Option {
	return func(o *nodeConfig) error {
		o.dhtOptions = append(o.dhtOptions, opts...)
		return nil
	}
}

// WithRegisterer 设置 Prometheus 指标注册器
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *nodeConfig) error {
		o.registerer = reg
		return nil
	}
}

// WithFxOptions 追加用户自定义的 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *nodeConfig) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
