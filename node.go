package kaddht

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-kaddht/internal/discovery/dht"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("kaddht")

// ════════════════════════════════════════════════════════════════════════════
//                              节点状态
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 空闲状态（已创建，未启动）
	StateIdle NodeState = iota

	// StateStarting 启动中（Fx App 启动中）
	StateStarting

	// StateRunning 运行中
	StateRunning

	// StateStopping 停止中
	StateStopping

	// StateStopped 已停止（不可重新启动）
	StateStopped
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	// startTimeout Fx App 启动超时
	startTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 10 * time.Second
)

// Node Kademlia DHT 节点
//
// Node 是用户与 DHT 网络交互的主入口，聚合传输层和 DHT 引擎。
//
// 使用示例：
//
//	node, err := kaddht.Start(ctx,
//	    kaddht.WithListenPort(27980),
//	    kaddht.WithBootstrapPeers("203.0.113.7:27980"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	if err := node.Save(ctx, []byte("key"), []byte("value")); err != nil {
//	    log.Fatal(err)
//	}
//	value, err := node.Load(ctx, []byte("key"))
type Node struct {
	// config 节点配置
	config *nodeConfig

	// app Fx 应用
	app *fx.App

	// dht DHT 引擎（由 Fx 注入）
	dht *dht.DHT

	// transport 传输层，构建 App 时即已绑定
	transport interfaces.Transport

	mu      sync.RWMutex
	state   NodeState
	started bool
	closed  bool
}

// New 创建节点（不启动）
func New(_ context.Context, opts ...Option) (*Node, error) {
	cfg := newNodeConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{config: cfg, state: StateIdle}

	app, err := buildFxApp(cfg, node)
	if err != nil {
		return nil, err
	}
	if err := app.Err(); err != nil {
		_ = node.releaseTransport()
		return nil, fmt.Errorf("build node: %w", err)
	}
	node.app = app

	logger.Debug("节点已创建", "id", node.ID().ShortString())
	return node, nil
}

// Start 创建并启动节点
func Start(ctx context.Context, opts ...Option) (*Node, error) {
	node, err := New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if err := node.Start(ctx); err != nil {
		_ = node.Close()
		return nil, err
	}
	return node, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期管理
// ════════════════════════════════════════════════════════════════════════════

// Start 启动节点
//
// 启动 Fx App：传输层开始接收，DHT 开始运行；
// 配置了引导节点且开启自动加入时，在后台加入网络。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := n.app.Start(startCtx); err != nil {
		n.state = StateIdle
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}

	n.state = StateRunning
	n.started = true
	logger.Info("节点启动成功",
		"id", n.dht.ID().ShortString(),
		"endpoints", n.dht.LocalEndpoints())
	return nil
}

// Stop 停止节点
//
// DHT 停止后不能再次运行，因此 Stop 之后节点进入终态。
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return ErrNotStarted
	}

	n.state = StateStopping
	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()

	err := n.app.Stop(stopCtx)
	n.started = false
	n.closed = true
	n.state = StateStopped
	if err != nil {
		logger.Warn("节点停止异常", "error", err)
		return fmt.Errorf("stop failed: %w", err)
	}
	logger.Info("节点已停止")
	return nil
}

// Close 关闭节点，可重复调用
//
// 未启动的节点直接关闭传输层，释放构建时绑定的 socket。
func (n *Node) Close() error {
	n.mu.RLock()
	started := n.started
	n.mu.RUnlock()

	if started {
		return n.Stop(context.Background())
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	n.state = StateStopped
	return n.releaseTransport()
}

// releaseTransport 在 App 未运行时停止 DHT 并关闭传输层
func (n *Node) releaseTransport() error {
	if n.dht != nil {
		n.dht.Stop()
	}
	if n.transport == nil {
		return nil
	}
	if err := n.transport.Close(); err != nil {
		logger.Debug("关闭传输层失败", "error", err)
		return err
	}
	return nil
}

// State 返回节点当前状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// IsRunning 节点是否正在运行
func (n *Node) IsRunning() bool {
	return n.State() == StateRunning
}

// ════════════════════════════════════════════════════════════════════════════
//                              DHT 操作
// ════════════════════════════════════════════════════════════════════════════

// Join 通过种子节点加入网络
//
// seeds 为空时使用配置的引导节点。
func (n *Node) Join(ctx context.Context, seeds ...string) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	eps := make([]types.Endpoint, 0, len(seeds))
	for _, s := range seeds {
		ep, err := types.ParseEndpoint(s)
		if err != nil {
			return err
		}
		eps = append(eps, ep)
	}
	return n.dht.Join(ctx, eps...)
}

// Save 把 value 保存到距离 key 摘要最近的节点上
func (n *Node) Save(ctx context.Context, key, value []byte) error {
	if err := n.checkRunning(); err != nil {
		return err
	}
	return n.dht.Save(ctx, key, value)
}

// Load 从网络中读取 key 对应的值
func (n *Node) Load(ctx context.Context, key []byte) ([]byte, error) {
	if err := n.checkRunning(); err != nil {
		return nil, err
	}
	return n.dht.Load(ctx, key)
}

// Ping 探测指定地址的节点并返回其标识符
func (n *Node) Ping(ctx context.Context, addr string) (types.ID, error) {
	if err := n.checkRunning(); err != nil {
		return types.ID{}, err
	}
	ep, err := types.ParseEndpoint(addr)
	if err != nil {
		return types.ID{}, err
	}
	return n.dht.Ping(ctx, ep)
}

func (n *Node) checkRunning() error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrNodeClosed
	}
	if !n.started {
		return ErrNotStarted
	}
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询
// ════════════════════════════════════════════════════════════════════════════

// ID 返回节点标识符
func (n *Node) ID() types.ID {
	if n.dht == nil {
		return types.ID{}
	}
	return n.dht.ID()
}

// LocalEndpoints 返回本地监听端点
func (n *Node) LocalEndpoints() []types.Endpoint {
	if n.dht == nil {
		return nil
	}
	return n.dht.LocalEndpoints()
}

// PeerCount 返回路由表中的节点数
func (n *Node) PeerCount() int {
	if n.dht == nil {
		return 0
	}
	return n.dht.PeerCount()
}

// Peers 返回路由表中的全部节点
func (n *Node) Peers() []types.Peer {
	if n.dht == nil {
		return nil
	}
	return n.dht.Peers()
}

// DHT 返回底层 DHT 引擎
func (n *Node) DHT() *dht.DHT {
	return n.dht
}
