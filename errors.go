package kaddht

import (
	"errors"

	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// DHT 错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrValueNotFound 值未找到
	ErrValueNotFound = dht.ErrValueNotFound

	// ErrMissingPeers 没有可用节点
	ErrMissingPeers = dht.ErrMissingPeers

	// ErrInitialPeerFailedToRespond 种子节点均未响应
	ErrInitialPeerFailedToRespond = dht.ErrInitialPeerFailedToRespond

	// ErrTimedOut 请求超时
	ErrTimedOut = dht.ErrTimedOut

	// ErrAlreadyRunning DHT 已在运行
	ErrAlreadyRunning = dht.ErrAlreadyRunning

	// ErrRunAborted DHT 已停止
	ErrRunAborted = dht.ErrRunAborted

	// ────────────────────────────────────────────────────────────────────────
	// 输入与网络错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrInvalidID 无效标识符
	ErrInvalidID = types.ErrInvalidID

	// ErrInvalidEndpoint 无效端点
	ErrInvalidEndpoint = types.ErrInvalidEndpoint

	// ErrHostUnreachable 目标不可达
	ErrHostUnreachable = interfaces.ErrHostUnreachable
)
