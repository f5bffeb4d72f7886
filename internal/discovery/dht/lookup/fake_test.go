package lookup

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/routing"
	"github.com/dep2p/go-kaddht/internal/discovery/dht/tracker"
	"github.com/dep2p/go-kaddht/pkg/interfaces"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// responder 根据请求返回响应，nil 表示不响应
type responder func(req message.Body) message.Body

type sentRequest struct {
	to   types.Endpoint
	body message.Body
}

// fakeTracker 按脚本同步（或异步）应答请求的跟踪器
type fakeTracker struct {
	async bool

	mu        sync.Mutex
	ids       map[types.Endpoint]types.ID
	responses map[types.Endpoint]responder
	requests  []sentRequest
	messages  []sentRequest
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		ids:       make(map[types.Endpoint]types.ID),
		responses: make(map[types.Endpoint]responder),
	}
}

// addPeer 登记一个远端节点及其应答脚本
func (f *fakeTracker) addPeer(id types.ID, ep types.Endpoint, r responder) types.Peer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[ep] = id
	if r != nil {
		f.responses[ep] = r
	}
	return types.Peer{ID: id, Endpoint: ep}
}

func (f *fakeTracker) SendRequest(body message.Body, to types.Endpoint, _ time.Duration, onResponse tracker.OnResponse, onError tracker.OnError) {
	f.mu.Lock()
	f.requests = append(f.requests, sentRequest{to: to, body: body})
	r := f.responses[to]
	id := f.ids[to]
	f.mu.Unlock()

	reply := func() {
		if r == nil {
			onError(tracker.ErrTimedOut)
			return
		}
		resp := r(body)
		if resp == nil {
			onError(tracker.ErrTimedOut)
			return
		}
		h, payload, err := message.Unmarshal(message.Marshal(id, types.NewRandomID(), resp))
		if err != nil {
			onError(err)
			return
		}
		onResponse(to, h, payload)
	}
	if f.async {
		go reply()
		return
	}
	reply()
}

func (f *fakeTracker) SendMessage(body message.Body, to types.Endpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.ids[to]; !ok {
		return interfaces.ErrHostUnreachable
	}
	f.messages = append(f.messages, sentRequest{to: to, body: body})
	return nil
}

func (f *fakeTracker) sentRequests() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.requests...)
}

func (f *fakeTracker) sentMessages() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.messages...)
}

func testEndpoint(i int) types.Endpoint {
	return netip.AddrPortFrom(netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i)}), 27980)
}

func newDeps(self types.ID, ft *fakeTracker) (Deps, *routing.Table) {
	table := routing.NewTable(self, routing.DefaultBucketSize)
	return Deps{
		Self:                  self,
		Tracker:               ft,
		Table:                 table,
		BucketSize:            routing.DefaultBucketSize,
		Concurrency:           routing.DefaultBucketSize,
		Timeout:               time.Second,
		InitialContactTimeout: time.Second,
	}, table
}

// peersReply 返回给定节点列表的 FIND_PEER_RESPONSE 应答
func peersReply(peers ...types.Peer) responder {
	return func(message.Body) message.Body {
		return &message.FindPeerResponse{Peers: peers}
	}
}

// valueReply 返回给定值的 FIND_VALUE_RESPONSE 应答
func valueReply(value []byte) responder {
	return func(message.Body) message.Body {
		return &message.FindValueResponse{Value: value}
	}
}

// simNetwork 模拟网络：每个节点用自己的路由表应答
type simNetwork struct {
	ft     *fakeTracker
	tables map[types.ID]*routing.Table
	peers  []types.Peer
}

func newSimNetwork(n int) *simNetwork {
	s := &simNetwork{
		ft:     newFakeTracker(),
		tables: make(map[types.ID]*routing.Table),
	}
	for i := 0; i < n; i++ {
		id := types.NewRandomID()
		ep := testEndpoint(i + 1)
		table := routing.NewTable(id, routing.DefaultBucketSize)
		s.tables[id] = table
		s.peers = append(s.peers, s.ft.addPeer(id, ep, func(req message.Body) message.Body {
			switch r := req.(type) {
			case *message.FindPeerRequest:
				return &message.FindPeerResponse{Peers: table.Closest(r.Target, routing.DefaultBucketSize)}
			case *message.FindValueRequest:
				return &message.FindPeerResponse{Peers: table.Closest(r.Key, routing.DefaultBucketSize)}
			default:
				panic(fmt.Sprintf("unexpected request %T", req))
			}
		}))
	}
	for _, a := range s.peers {
		for _, b := range s.peers {
			s.tables[a.ID].Push(b.ID, b.Endpoint)
		}
	}
	return s
}
