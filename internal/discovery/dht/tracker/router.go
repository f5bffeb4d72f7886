// Package tracker 实现请求/响应关联
//
// Router 按随机 token 登记待响应请求，每个请求都有超时。
// 对同一个 token，响应回调和错误回调恰好触发其中一个：
// 谁先把登记项从表中移除，谁执行回调，另一方变为空操作。
//
// Tracker 在 Router 之上负责生成 token、编码并发送数据报。
package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("dht/tracker")

var (
	// ErrTimedOut 请求超时
	ErrTimedOut = errors.New("dht: request timed out")

	// ErrUnassociatedMessageID 响应没有对应的待处理请求
	ErrUnassociatedMessageID = errors.New("dht: unassociated message id")

	// ErrTokenInUse token 已被登记
	ErrTokenInUse = errors.New("dht: token already in use")
)

// OnResponse 响应回调
type OnResponse func(from types.Endpoint, h message.Header, payload []byte)

// OnError 错误回调
type OnError func(err error)

type pending struct {
	onResponse OnResponse
	onError    OnError
	timer      *clock.Timer
}

// Router 响应路由器
type Router struct {
	clock clock.Clock

	mu      sync.Mutex
	pending map[types.ID]*pending
}

// NewRouter 创建响应路由器
//
// clk 为 nil 时使用真实时钟。
func NewRouter(clk clock.Clock) *Router {
	if clk == nil {
		clk = clock.New()
	}
	return &Router{
		clock:   clk,
		pending: make(map[types.ID]*pending),
	}
}

// Register 登记一个待响应请求
//
// timeout <= 0 时立即以 ErrTimedOut 调用 onError，不做登记。
func (r *Router) Register(token types.ID, timeout time.Duration, onResponse OnResponse, onError OnError) error {
	if timeout <= 0 {
		onError(ErrTimedOut)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[token]; ok {
		return ErrTokenInUse
	}
	p := &pending{
		onResponse: onResponse,
		onError:    onError,
	}
	p.timer = r.clock.AfterFunc(timeout, func() { r.expire(token, p) })
	r.pending[token] = p
	return nil
}

func (r *Router) expire(token types.ID, p *pending) {
	if !r.take(token, p) {
		return
	}
	logger.Debug("请求超时", "token", token.ShortString())
	p.onError(ErrTimedOut)
}

// take 移除登记项，只有移除成功的一方可以触发回调
func (r *Router) take(token types.ID, p *pending) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.pending[token]; !ok || cur != p {
		return false
	}
	delete(r.pending, token)
	return true
}

// HandleNewResponse 分发一个响应
//
// 没有对应登记项时返回 ErrUnassociatedMessageID，调用方自行决定是否记录。
func (r *Router) HandleNewResponse(from types.Endpoint, h message.Header, payload []byte) error {
	r.mu.Lock()
	p, ok := r.pending[h.Token]
	if ok {
		delete(r.pending, h.Token)
	}
	r.mu.Unlock()

	if !ok {
		return ErrUnassociatedMessageID
	}
	p.timer.Stop()
	p.onResponse(from, h, payload)
	return nil
}

// Cancel 撤销登记，不触发任何回调
//
// 返回 false 表示该 token 已经被响应、超时或从未登记。
func (r *Router) Cancel(token types.ID) bool {
	r.mu.Lock()
	p, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	r.mu.Unlock()

	if ok {
		p.timer.Stop()
	}
	return ok
}

// Abort 清空所有登记项，并以 err 调用各自的 onError
//
// 返回被中止的请求数。
func (r *Router) Abort(err error) int {
	r.mu.Lock()
	all := r.pending
	r.pending = make(map[types.ID]*pending)
	r.mu.Unlock()

	for _, p := range all {
		p.timer.Stop()
		p.onError(err)
	}
	return len(all)
}

// Pending 返回待响应请求数
func (r *Router) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
