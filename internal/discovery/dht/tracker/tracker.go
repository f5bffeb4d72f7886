package tracker

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// maxTokenAttempts 生成不冲突 token 的最大尝试次数
const maxTokenAttempts = 4

// Tracker 请求跟踪器
//
// 负责为请求分配随机 token、编码数据报、交给传输层发送，并在 Router 中登记回调。
type Tracker struct {
	self      types.ID
	transport interfaces.Transport
	router    *Router

	randMu sync.Mutex
	rand   io.Reader
}

// New 创建请求跟踪器
//
// rnd 为 nil 时使用 crypto/rand。
func New(self types.ID, transport interfaces.Transport, router *Router, rnd io.Reader) *Tracker {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &Tracker{
		self:      self,
		transport: transport,
		router:    router,
		rand:      rnd,
	}
}

// Router 返回响应路由器
func (t *Tracker) Router() *Router {
	return t.router
}

func (t *Tracker) newToken() (types.ID, error) {
	t.randMu.Lock()
	defer t.randMu.Unlock()
	return types.RandomID(t.rand)
}

// SendRequest 发送请求并等待响应
//
// onResponse 与 onError 恰好触发一个。发送失败时立即以传输层错误调用 onError，
// 不等待超时。
func (t *Tracker) SendRequest(body message.Body, to types.Endpoint, timeout time.Duration, onResponse OnResponse, onError OnError) {
	if timeout <= 0 {
		onError(ErrTimedOut)
		return
	}

	var (
		token types.ID
		err   error
	)
	for i := 0; i < maxTokenAttempts; i++ {
		if token, err = t.newToken(); err != nil {
			onError(err)
			return
		}
		if err = t.router.Register(token, timeout, onResponse, onError); err == nil {
			break
		}
	}
	if err != nil {
		onError(fmt.Errorf("allocate token: %w", err))
		return
	}

	data := message.Marshal(t.self, token, body)
	if err := t.transport.Send(data, to); err != nil {
		logger.Debug("发送请求失败", "type", body.Type(), "to", to, "error", err)
		if t.router.Cancel(token) {
			onError(err)
		}
		return
	}
	logger.Debug("发送请求", "type", body.Type(), "to", to, "token", token.ShortString())
}

// SendResponse 以请求的 token 发送响应
//
// 响应不登记、不等待确认。
func (t *Tracker) SendResponse(token types.ID, body message.Body, to types.Endpoint) error {
	if err := t.transport.Send(message.Marshal(t.self, token, body), to); err != nil {
		logger.Debug("发送响应失败", "type", body.Type(), "to", to, "error", err)
		return err
	}
	return nil
}

// SendMessage 以新 token 发送一个不等待响应的请求
func (t *Tracker) SendMessage(body message.Body, to types.Endpoint) error {
	token, err := t.newToken()
	if err != nil {
		return err
	}
	if err := t.transport.Send(message.Marshal(t.self, token, body), to); err != nil {
		logger.Debug("发送消息失败", "type", body.Type(), "to", to, "error", err)
		return err
	}
	return nil
}

// HandleNewResponse 转发响应到 Router
func (t *Tracker) HandleNewResponse(from types.Endpoint, h message.Header, payload []byte) error {
	return t.router.HandleNewResponse(from, h, payload)
}

// Abort 以 err 中止所有待响应请求
func (t *Tracker) Abort(err error) int {
	return t.router.Abort(err)
}

// Pending 返回待响应请求数
func (t *Tracker) Pending() int {
	return t.router.Pending()
}
