// Package memory 实现进程内数据报网络
//
// Network 充当交换机：每个 Transport 绑定一个端点，Send 直接把数据报
// 投递到目标的接收队列。队列满时丢弃，与 UDP 的语义一致。
// 可以设置丢弃过滤器和发送观察者来模拟丢包、观察流量。
package memory

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("core/transport/memory")

// DefaultQueueSize 默认接收队列长度
const DefaultQueueSize = 1024

// ErrAddressInUse 端点已被占用
var ErrAddressInUse = errors.New("memory: address in use")

// DropFunc 返回 true 时丢弃该数据报
type DropFunc func(from, to types.Endpoint, data []byte) bool

// ObserveFunc 观察每个被投递的数据报
type ObserveFunc func(from, to types.Endpoint, data []byte)

// Network 进程内网络
type Network struct {
	mu       sync.RWMutex
	nodes    map[types.Endpoint]*Transport
	drop     DropFunc
	observe  ObserveFunc
	nextPort uint16
	queue    int
}

// NewNetwork 创建进程内网络
func NewNetwork() *Network {
	return &Network{
		nodes:    make(map[types.Endpoint]*Transport),
		nextPort: 10000,
		queue:    DefaultQueueSize,
	}
}

// SetDropFilter 设置丢弃过滤器，nil 表示不丢弃
func (n *Network) SetDropFilter(f DropFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drop = f
}

// SetObserver 设置发送观察者
func (n *Network) SetObserver(f ObserveFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observe = f
}

// Listen 在指定端点上创建传输
func (n *Network) Listen(ep types.Endpoint) (*Transport, error) {
	ep = types.NormalizeEndpoint(ep)

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.nodes[ep]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, ep)
	}
	t := &Transport{
		network: n,
		local:   ep,
		inbox:   make(chan datagram, n.queue),
		closed:  make(chan struct{}),
	}
	n.nodes[ep] = t
	return t, nil
}

// NewTransport 在 127.0.0.1 上分配一个未占用的端口并创建传输
func (n *Network) NewTransport() (*Transport, error) {
	n.mu.Lock()
	var ep types.Endpoint
	for {
		ep = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), n.nextPort)
		n.nextPort++
		if _, ok := n.nodes[ep]; !ok {
			break
		}
	}
	n.mu.Unlock()
	return n.Listen(ep)
}

// Len 返回已绑定的传输数
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

func (n *Network) deliver(from, to types.Endpoint, data []byte) error {
	n.mu.RLock()
	dst, ok := n.nodes[to]
	drop, observe := n.drop, n.observe
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrHostUnreachable, to)
	}
	if drop != nil && drop(from, to, data) {
		return nil
	}
	if observe != nil {
		observe(from, to, data)
	}

	d := datagram{data: append([]byte(nil), data...), from: from}
	select {
	case <-dst.closed:
		return fmt.Errorf("%w: %s", interfaces.ErrHostUnreachable, to)
	default:
	}
	select {
	case dst.inbox <- d:
	default:
		logger.Debug("接收队列已满，丢弃数据报", "from", from, "to", to)
	}
	return nil
}

func (n *Network) remove(t *Transport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.nodes[t.local] == t {
		delete(n.nodes, t.local)
	}
}

// ============================================================================
//                              Transport
// ============================================================================

type datagram struct {
	data []byte
	from types.Endpoint
}

// 确保实现了接口
var _ interfaces.Transport = (*Transport)(nil)

// Transport 绑定在 Network 上的传输
type Transport struct {
	network *Network
	local   types.Endpoint
	inbox   chan datagram

	closed    chan struct{}
	closeOnce sync.Once
}

// Send 把数据报投递到目标端点
func (t *Transport) Send(data []byte, to types.Endpoint) error {
	select {
	case <-t.closed:
		return interfaces.ErrTransportClosed
	default:
	}
	return t.network.deliver(t.local, types.NormalizeEndpoint(to), data)
}

// Receive 阻塞直到收到一个数据报或传输关闭
func (t *Transport) Receive() ([]byte, types.Endpoint, error) {
	select {
	case d := <-t.inbox:
		return d.data, d.from, nil
	case <-t.closed:
		return nil, types.Endpoint{}, interfaces.ErrTransportClosed
	}
}

// LocalEndpoints 返回绑定的端点
func (t *Transport) LocalEndpoints() []types.Endpoint {
	return []types.Endpoint{t.local}
}

// Endpoint 返回绑定的端点
func (t *Transport) Endpoint() types.Endpoint {
	return t.local
}

// Close 解除绑定，可重复调用
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.network.remove(t)
	})
	return nil
}
