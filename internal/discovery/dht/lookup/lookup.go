// Package lookup 实现 Kademlia 迭代查找状态机
//
// 每个查找是一个独立的状态对象，状态为 probing、awaiting、done，
// 由事件（启动、响应到达、请求失败）驱动。状态转换在查找自己的锁内完成，
// 只产生副作用描述（要探测的节点、完成回调）；副作用在释放锁后执行，
// 因此跟踪器同步回调时可以安全重入。
//
// 多个查找之间互不串行，只共享路由表。
package lookup

import (
	"errors"
	"sync"
	"time"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/tracker"
	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("dht/lookup")

var (
	// ErrValueNotFound 候选节点耗尽仍未找到值
	ErrValueNotFound = errors.New("dht: value not found")

	// ErrMissingPeers 没有可用节点
	ErrMissingPeers = errors.New("dht: missing peers")

	// ErrInitialPeerFailedToRespond 所有种子节点都未响应
	ErrInitialPeerFailedToRespond = errors.New("dht: initial peer failed to respond")
)

// Tracker 查找使用的请求发送能力
type Tracker interface {
	SendRequest(body message.Body, to types.Endpoint, timeout time.Duration, onResponse tracker.OnResponse, onError tracker.OnError)
	SendMessage(body message.Body, to types.Endpoint) error
}

// Table 查找使用的路由表能力
type Table interface {
	Push(id types.ID, ep types.Endpoint) bool
	Closest(target types.ID, n int) []types.Peer
}

// Deps 查找的依赖和参数
type Deps struct {
	Self    types.ID
	Tracker Tracker
	Table   Table

	// BucketSize K 值：候选窗口宽度和结果数量
	BucketSize int

	// Concurrency 同时进行中的请求上限
	Concurrency int

	// Timeout 单个请求超时
	Timeout time.Duration

	// InitialContactTimeout 加入网络时联系种子节点的超时
	InitialContactTimeout time.Duration
}

func (d Deps) concurrency() int {
	if d.Concurrency > 0 {
		return d.Concurrency
	}
	return d.BucketSize
}

// ============================================================================
//                              事件与状态
// ============================================================================

type state uint8

const (
	stateProbing state = iota
	stateAwaiting
	stateDone
)

type eventKind uint8

const (
	eventStart eventKind = iota
	eventResponse
	eventFailure
)

type event struct {
	kind    eventKind
	peer    types.Peer
	header  message.Header
	payload []byte
	err     error
}

// effects 一次状态转换产生的副作用
type effects struct {
	probes []types.Peer
	finish func()
}

// ============================================================================
//                              迭代查找
// ============================================================================

// iterative find-peer 与 find-value 共用的迭代查找
type iterative struct {
	deps Deps
	kind string

	// request 构造发给每个候选节点的请求
	request func() message.Body
	// onValue 非空时表示 find-value：收到值即结束
	onValue func(value []byte)
	// onExhausted 候选节点耗尽时调用
	onExhausted func(closest []types.Peer)

	mu         sync.Mutex
	state      state
	candidates *CandidateSet
	sent       int
}

func newIterative(deps Deps, kind string, key types.ID) *iterative {
	seeds := filterSelf(deps.Self, deps.Table.Closest(key, deps.BucketSize))
	return &iterative{
		deps:       deps,
		kind:       kind,
		candidates: NewCandidateSet(key, deps.BucketSize, seeds),
	}
}

func (l *iterative) start() {
	l.handle(event{kind: eventStart})
}

func (l *iterative) handle(ev event) {
	l.mu.Lock()
	eff := l.transition(ev)
	l.mu.Unlock()

	for _, p := range eff.probes {
		l.probe(p)
	}
	if eff.finish != nil {
		eff.finish()
	}
}

// transition 在锁内执行，只修改查找自身状态
func (l *iterative) transition(ev event) effects {
	if l.state == stateDone {
		return effects{}
	}

	switch ev.kind {
	case eventResponse:
		if value, ok := l.extractValue(ev); ok {
			l.candidates.FlagCandidateAsValid(ev.peer.ID)
			l.state = stateDone
			onValue := l.onValue
			return effects{finish: func() { onValue(value) }}
		}
		if peers, ok := decodePeers(ev.header, ev.payload, l.deps.BucketSize); ok {
			l.candidates.FlagCandidateAsValid(ev.peer.ID)
			l.candidates.AddCandidates(filterSelf(l.deps.Self, peers))
		} else {
			logger.Debug("无效的查找响应", "kind", l.kind, "peer", ev.peer, "type", ev.header.Type)
			l.candidates.FlagCandidateAsInvalid(ev.peer.ID)
		}
	case eventFailure:
		logger.Debug("查找请求失败", "kind", l.kind, "peer", ev.peer, "error", ev.err)
		l.candidates.FlagCandidateAsInvalid(ev.peer.ID)
	}

	budget := l.deps.concurrency() - l.candidates.InFlight()
	var probes []types.Peer
	if budget > 0 {
		probes = l.candidates.SelectNewClosestCandidates(budget)
	}
	l.sent += len(probes)

	if len(probes) == 0 && l.candidates.HaveAllRequestsCompleted() {
		l.state = stateDone
		closest := l.candidates.SelectClosestValidCandidates(l.deps.BucketSize)
		logger.Debug("查找结束",
			"kind", l.kind,
			"key", l.candidates.Key().ShortString(),
			"sent", l.sent,
			"candidates", l.candidates.Len(),
			"closest", len(closest))
		onExhausted := l.onExhausted
		return effects{finish: func() { onExhausted(closest) }}
	}

	l.state = stateAwaiting
	return effects{probes: probes}
}

func (l *iterative) extractValue(ev event) ([]byte, bool) {
	if l.onValue == nil || ev.header.Type != message.TypeFindValueResponse {
		return nil, false
	}
	var body message.FindValueResponse
	if err := message.UnmarshalBody(ev.payload, &body); err != nil {
		return nil, false
	}
	return body.Value, true
}

func (l *iterative) probe(p types.Peer) {
	l.deps.Tracker.SendRequest(l.request(), p.Endpoint, l.deps.Timeout,
		func(_ types.Endpoint, h message.Header, payload []byte) {
			l.handle(event{kind: eventResponse, peer: p, header: h, payload: payload})
		},
		func(err error) {
			l.handle(event{kind: eventFailure, peer: p, err: err})
		})
}

// decodePeers 解码 FIND_PEER_RESPONSE，只保留前 limit 个节点
func decodePeers(h message.Header, payload []byte, limit int) ([]types.Peer, bool) {
	if h.Type != message.TypeFindPeerResponse {
		return nil, false
	}
	var body message.FindPeerResponse
	if err := message.UnmarshalBody(payload, &body); err != nil {
		return nil, false
	}
	if limit > 0 && len(body.Peers) > limit {
		body.Peers = body.Peers[:limit]
	}
	return body.Peers, true
}

func filterSelf(self types.ID, peers []types.Peer) []types.Peer {
	out := peers[:0:0]
	for _, p := range peers {
		if p.ID != self {
			out = append(out, p)
		}
	}
	return out
}

// ============================================================================
//                              查找入口
// ============================================================================

// StartFindPeer 启动一次 find-peer 查找
//
// done 以至多 BucketSize 个最近的有效节点调用，恰好一次。
func StartFindPeer(target types.ID, deps Deps, done func(peers []types.Peer)) {
	l := newIterative(deps, "find_peer", target)
	l.request = func() message.Body { return &message.FindPeerRequest{Target: target} }
	l.onExhausted = done
	l.start()
}

// StartFindValue 启动一次 find-value 查找
//
// 任一节点返回值即以该值结束；候选节点耗尽时以 ErrValueNotFound 结束。
func StartFindValue(key types.ID, deps Deps, done func(value []byte, err error)) {
	l := newIterative(deps, "find_value", key)
	l.request = func() message.Body { return &message.FindValueRequest{Key: key} }
	l.onValue = func(value []byte) { done(value, nil) }
	l.onExhausted = func([]types.Peer) { done(nil, ErrValueNotFound) }
	l.start()
}
