package dht

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/lookup"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/tracker"
)

// 预定义错误
var (
	// ErrAlreadyRunning Run 已在运行
	ErrAlreadyRunning = errors.New("dht: already running")

	// ErrRunAborted DHT 已停止
	ErrRunAborted = errors.New("dht: run aborted")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrNilTransport 传输层为空
	ErrNilTransport = errors.New("dht: transport is nil")

	// ErrUnexpectedResponse 响应类型与请求不匹配
	ErrUnexpectedResponse = errors.New("dht: unexpected response")
)

// 查找与请求错误
var (
	// ErrValueNotFound 值未找到
	ErrValueNotFound = lookup.ErrValueNotFound

	// ErrMissingPeers 没有可用节点
	ErrMissingPeers = lookup.ErrMissingPeers

	// ErrInitialPeerFailedToRespond 种子节点均未响应
	ErrInitialPeerFailedToRespond = lookup.ErrInitialPeerFailedToRespond

	// ErrTimedOut 请求超时
	ErrTimedOut = tracker.ErrTimedOut

	// ErrUnassociatedMessageID 响应没有对应的请求
	ErrUnassociatedMessageID = tracker.ErrUnassociatedMessageID
)

// DHTError DHT 错误类型
type DHTError struct {
	Op      string // 操作名称
	Err     error  // 底层错误
	Message string // 错误消息
}

// Error 实现 error 接口
func (e *DHTError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("dht %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("dht %s: %v", e.Op, e.Err)
}

// Unwrap 实现错误解包
func (e *DHTError) Unwrap() error {
	return e.Err
}

// NewDHTError 创建 DHT 错误
func NewDHTError(op string, err error, message string) *DHTError {
	return &DHTError{
		Op:      op,
		Err:     err,
		Message: message,
	}
}
