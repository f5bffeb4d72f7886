package config

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// TransportConfig 传输层配置
//
// 每个监听地址对应一个 UDP socket。IPv4 地址只接收 IPv4 数据报，
// IPv6 地址以 v6-only 模式监听。
type TransportConfig struct {
	// ListenAddrs 监听地址列表，"host:port" 格式
	// 省略端口时使用 27980
	ListenAddrs []string `json:"listen_addrs"`

	// ReceiveQueue 接收队列长度
	ReceiveQueue int `json:"receive_queue,omitempty"`
}

// DefaultTransportConfig 返回默认传输层配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ListenAddrs: []string{
			fmt.Sprintf("0.0.0.0:%d", types.DefaultPort),
			fmt.Sprintf("[::]:%d", types.DefaultPort),
		},
		ReceiveQueue: 256,
	}
}

// Validate 验证传输层配置
func (c TransportConfig) Validate() error {
	if len(c.ListenAddrs) == 0 {
		return errors.New("transport: at least one listen address is required")
	}
	if _, err := c.Endpoints(); err != nil {
		return err
	}
	if c.ReceiveQueue < 0 {
		return errors.New("transport: receive queue must not be negative")
	}
	return nil
}

// Endpoints 解析所有监听地址
func (c TransportConfig) Endpoints() ([]types.Endpoint, error) {
	return parseEndpoints("transport", c.ListenAddrs)
}

// WithListenAddrs 设置监听地址
func (c TransportConfig) WithListenAddrs(addrs ...string) TransportConfig {
	c.ListenAddrs = append([]string(nil), addrs...)
	return c
}

func parseEndpoints(section string, addrs []string) ([]types.Endpoint, error) {
	eps := make([]types.Endpoint, 0, len(addrs))
	for _, a := range addrs {
		ep, err := types.ParseEndpoint(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
