package mocks

import (
	"sync"

	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// MockTransport 模拟 interfaces.Transport 实现
//
// 发送的数据报被记录下来；Deliver 向 Receive 注入入站数据报。
// 并发安全。
type MockTransport struct {
	// 可覆盖的方法
	SendFunc func(data []byte, to types.Endpoint) error

	Local []types.Endpoint

	mu        sync.Mutex
	sent      []SendCall
	inbox     chan Datagram
	closed    chan struct{}
	closeOnce sync.Once
}

// SendCall 记录 Send 调用
type SendCall struct {
	Data []byte
	To   types.Endpoint
}

// Datagram 入站数据报
type Datagram struct {
	Data []byte
	From types.Endpoint
}

var _ interfaces.Transport = (*MockTransport)(nil)

// NewMockTransport 创建 MockTransport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		inbox:  make(chan Datagram, 64),
		closed: make(chan struct{}),
	}
}

// Send 记录并发送数据报
func (m *MockTransport) Send(data []byte, to types.Endpoint) error {
	select {
	case <-m.closed:
		return interfaces.ErrTransportClosed
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.mu.Lock()
	m.sent = append(m.sent, SendCall{Data: buf, To: to})
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(data, to)
	}
	return nil
}

// Receive 返回下一个注入的数据报
func (m *MockTransport) Receive() ([]byte, types.Endpoint, error) {
	select {
	case d := <-m.inbox:
		return d.Data, d.From, nil
	case <-m.closed:
		return nil, types.Endpoint{}, interfaces.ErrTransportClosed
	}
}

// Deliver 注入一个入站数据报
func (m *MockTransport) Deliver(data []byte, from types.Endpoint) {
	m.inbox <- Datagram{Data: data, From: from}
}

// Close 关闭传输
func (m *MockTransport) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// LocalEndpoints 返回本地端点
func (m *MockTransport) LocalEndpoints() []types.Endpoint {
	return m.Local
}

// SendCalls 返回所有 Send 调用记录
func (m *MockTransport) SendCalls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendCall, len(m.sent))
	copy(out, m.sent)
	return out
}

// SendCount 返回 Send 调用次数
func (m *MockTransport) SendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// LastSend 返回最后一次 Send 调用
func (m *MockTransport) LastSend() (SendCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SendCall{}, false
	}
	return m.sent[len(m.sent)-1], true
}
