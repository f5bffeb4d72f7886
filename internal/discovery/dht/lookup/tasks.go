package lookup

import (
	"sync"

	"github.com/dep2p/go-kaddht/internal/discovery/dht/message"
	"github.com/dep2p/go-kaddht/pkg/types"
)

// ============================================================================
//                              store-value
// ============================================================================

// StartStoreValue 查找 key 的最近节点并向它们发送 STORE 请求
//
// STORE 不等待确认，done 在请求发出后以 nil 调用。
// 找不到任何有效节点时以 ErrMissingPeers 调用。
func StartStoreValue(key types.ID, value []byte, deps Deps, done func(err error)) {
	StartFindPeer(key, deps, func(peers []types.Peer) {
		if len(peers) == 0 {
			done(ErrMissingPeers)
			return
		}
		req := &message.StoreRequest{Key: key, Value: value}
		for _, p := range peers {
			if err := deps.Tracker.SendMessage(req, p.Endpoint); err != nil {
				logger.Debug("发送 STORE 失败", "peer", p, "error", err)
			}
		}
		logger.Debug("STORE 已发送", "key", key.ShortString(), "peers", len(peers))
		done(nil)
	})
}

// ============================================================================
//                              notify-peer
// ============================================================================

// StartNotifyPeer 对 target 执行一次 find-peer，仅用于填充路由表
func StartNotifyPeer(target types.ID, deps Deps, done func()) {
	StartFindPeer(target, deps, func([]types.Peer) {
		if done != nil {
			done()
		}
	})
}

// RefreshTargets 计算桶刷新目标
//
// 从 self 与最近邻居的最高差异位开始，到最低位为止，
// 每一位生成一个目标：self 翻转该位。
func RefreshTargets(self, neighbor types.ID) []types.ID {
	h := types.Distance(self, neighbor).HighestBit()
	if h < 0 {
		return nil
	}
	targets := make([]types.ID, 0, h+1)
	for i := h; i >= 0; i-- {
		targets = append(targets, self.FlipBit(i))
	}
	return targets
}

// StartRefresh 以最近邻居为基准刷新所有桶
//
// 路由表为空时不做任何事，返回启动的刷新任务数。
func StartRefresh(deps Deps, done func()) int {
	closest := deps.Table.Closest(deps.Self, 1)
	if len(closest) == 0 {
		if done != nil {
			done()
		}
		return 0
	}

	targets := RefreshTargets(deps.Self, closest[0].ID)
	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, target := range targets {
		StartNotifyPeer(target, deps, wg.Done)
	}
	if done != nil {
		go func() {
			wg.Wait()
			done()
		}()
	}
	return len(targets)
}

// ============================================================================
//                              join
// ============================================================================

// join 逐个联系种子节点直到有一个返回合法的 FIND_PEER_RESPONSE
type join struct {
	deps Deps

	mu    sync.Mutex
	state state
	seeds []types.Endpoint
	done  func(err error)
}

// StartJoin 通过种子节点加入网络
//
// 从最后一个种子开始依次尝试；成功后把返回的节点加入路由表，
// 启动桶刷新并以 nil 调用 done（不等待刷新完成）。
// 种子耗尽时以 ErrInitialPeerFailedToRespond 调用 done。
func StartJoin(seeds []types.Endpoint, deps Deps, done func(err error)) {
	j := &join{
		deps:  deps,
		seeds: append([]types.Endpoint(nil), seeds...),
		done:  done,
	}
	j.handle(event{kind: eventStart})
}

func (j *join) handle(ev event) {
	j.mu.Lock()
	eff := j.transition(ev)
	j.mu.Unlock()

	for _, seed := range eff.probes {
		j.contact(seed.Endpoint)
	}
	if eff.finish != nil {
		eff.finish()
	}
}

func (j *join) transition(ev event) effects {
	if j.state == stateDone {
		return effects{}
	}

	switch ev.kind {
	case eventResponse:
		if peers, ok := decodePeers(ev.header, ev.payload, j.deps.BucketSize); ok {
			added := 0
			for _, p := range filterSelf(j.deps.Self, peers) {
				if j.deps.Table.Push(p.ID, p.Endpoint) {
					added++
				}
			}
			logger.Info("已联系种子节点", "seed", ev.peer.Endpoint, "peers", len(peers), "added", added)

			j.state = stateDone
			deps, done := j.deps, j.done
			return effects{finish: func() {
				n := StartRefresh(deps, nil)
				logger.Debug("启动桶刷新", "tasks", n)
				done(nil)
			}}
		}
		logger.Debug("种子节点响应无效", "seed", ev.peer.Endpoint, "type", ev.header.Type)
	case eventFailure:
		logger.Debug("种子节点未响应", "seed", ev.peer.Endpoint, "error", ev.err)
	}

	if len(j.seeds) == 0 {
		j.state = stateDone
		done := j.done
		return effects{finish: func() { done(ErrInitialPeerFailedToRespond) }}
	}

	seed := j.seeds[len(j.seeds)-1]
	j.seeds = j.seeds[:len(j.seeds)-1]
	j.state = stateAwaiting
	return effects{probes: []types.Peer{{Endpoint: seed}}}
}

func (j *join) contact(seed types.Endpoint) {
	p := types.Peer{Endpoint: seed}
	j.deps.Tracker.SendRequest(&message.FindPeerRequest{Target: j.deps.Self}, seed, j.deps.InitialContactTimeout,
		func(_ types.Endpoint, h message.Header, payload []byte) {
			j.handle(event{kind: eventResponse, peer: p, header: h, payload: payload})
		},
		func(err error) {
			j.handle(event{kind: eventFailure, peer: p, err: err})
		})
}
