// Package udp 实现基于 UDP 的数据报传输
//
// 每个地址族最多一个 socket：IPv4 socket 只收发 IPv4 数据报，
// IPv6 socket 以 v6-only 模式监听。每个 socket 有一个读 goroutine，
// 所有数据报汇入同一个接收队列。发送时按目标地址族选择 socket。
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("core/transport/udp")

const (
	// maxDatagramSize UDP 数据报最大长度
	maxDatagramSize = 64 * 1024

	// DefaultReceiveQueue 默认接收队列长度
	DefaultReceiveQueue = 256
)

var (
	// ErrNoEndpoints 没有监听地址
	ErrNoEndpoints = errors.New("udp: no listen endpoints")

	// ErrDuplicateFamily 同一地址族配置了多个监听地址
	ErrDuplicateFamily = errors.New("udp: duplicate address family")
)

// 确保实现了接口
var _ interfaces.Transport = (*Transport)(nil)

type datagram struct {
	data []byte
	from types.Endpoint
}

// Transport UDP 传输
type Transport struct {
	v4 *net.UDPConn
	v6 *net.UDPConn

	local []types.Endpoint
	inbox chan datagram

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Option 传输选项
type Option func(*options)

type options struct {
	queue int
}

// WithReceiveQueue 设置接收队列长度
func WithReceiveQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queue = n
		}
	}
}

// Listen 在给定端点上监听
//
// 端口为 0 时由系统分配，实际端点可以通过 LocalEndpoints 获取。
func Listen(endpoints []types.Endpoint, opts ...Option) (*Transport, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	o := options{queue: DefaultReceiveQueue}
	for _, opt := range opts {
		opt(&o)
	}

	t := &Transport{
		inbox:  make(chan datagram, o.queue),
		closed: make(chan struct{}),
	}

	for _, ep := range endpoints {
		ep = types.NormalizeEndpoint(ep)
		network, slot := "udp4", &t.v4
		if ep.Addr().Is6() {
			network, slot = "udp6", &t.v6
		}
		if *slot != nil {
			t.closeConns()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFamily, ep)
		}

		conn, err := net.ListenUDP(network, net.UDPAddrFromAddrPort(ep))
		if err != nil {
			t.closeConns()
			return nil, fmt.Errorf("udp: listen %s: %w", ep, err)
		}
		*slot = conn

		local := types.NormalizeEndpoint(conn.LocalAddr().(*net.UDPAddr).AddrPort())
		t.local = append(t.local, local)
		logger.Info("UDP 监听成功", "endpoint", local)
	}

	for _, conn := range []*net.UDPConn{t.v4, t.v6} {
		if conn != nil {
			t.wg.Add(1)
			go t.readLoop(conn)
		}
	}
	return t, nil
}

func (t *Transport) readLoop(conn *net.UDPConn) {
	defer t.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Debug("读取数据报失败", "error", err)
			continue
		}

		d := datagram{
			data: append([]byte(nil), buf[:n]...),
			from: types.NormalizeEndpoint(from),
		}
		select {
		case t.inbox <- d:
		case <-t.closed:
			return
		default:
			logger.Debug("接收队列已满，丢弃数据报", "from", d.from, "size", n)
		}
	}
}

// Send 发送一个数据报
func (t *Transport) Send(data []byte, to types.Endpoint) error {
	select {
	case <-t.closed:
		return interfaces.ErrTransportClosed
	default:
	}

	to = types.NormalizeEndpoint(to)
	conn := t.v4
	if to.Addr().Is6() {
		conn = t.v6
	}
	if conn == nil {
		return fmt.Errorf("%w: no socket for %s", interfaces.ErrHostUnreachable, to)
	}

	if _, err := conn.WriteToUDPAddrPort(data, to); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return interfaces.ErrTransportClosed
		}
		return fmt.Errorf("udp: send to %s: %w", to, err)
	}
	return nil
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

// LocalEndpoints 返回实际监听的端点
func (t *Transport) LocalEndpoints() []types.Endpoint {
	return append([]types.Endpoint(nil), t.local...)
}

// Close 关闭所有 socket，可重复调用
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.closeErr = t.closeConns()
		t.wg.Wait()
		logger.Debug("UDP 传输已关闭", "endpoints", t.local)
	})
	return t.closeErr
}

func (t *Transport) closeConns() error {
	var err error
	for _, conn := range []*net.UDPConn{t.v4, t.v6} {
		if conn != nil {
			err = multierr.Append(err, conn.Close())
		}
	}
	return err
}
