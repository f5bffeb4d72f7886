// Package interfaces 定义 go-kaddht 公共接口
//
// 本文件定义 Transport 接口，抽象底层数据报传输。
package interfaces

import (
	"errors"

	"github.com/dep2p/go-kaddht/pkg/types"
)

var (
	// ErrTransportClosed 传输已关闭
	ErrTransportClosed = errors.New("transport: closed")

	// ErrHostUnreachable 目标不可达
	ErrHostUnreachable = errors.New("transport: host unreachable")
)

// Transport 定义数据报传输接口
//
// 实现可以是真实的 UDP 套接字，也可以是测试用的内存网络。
// 数据报不保证送达、不保证顺序。
type Transport interface {
	// Send 发送一个数据报到指定端点
	//
	// 失败时返回 ErrHostUnreachable、ErrTransportClosed 或底层错误。
	Send(data []byte, to types.Endpoint) error

	// Receive 阻塞直到收到一个数据报
	//
	// 传输关闭后返回 ErrTransportClosed。
	Receive() ([]byte, types.Endpoint, error)

	// Close 关闭传输，可重复调用
	Close() error

	// LocalEndpoints 返回本地监听端点
	LocalEndpoints() []types.Endpoint
}
