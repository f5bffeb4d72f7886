// Package routing 实现 Kademlia K 桶路由表
//
// 桶编号为本节点 ID 与对方 ID 的最高差异位：
// 0 表示在最高位即不同（最远），IDBits-1 表示仅最低位不同（最近）。
//
// 桶满时拒绝新节点，不做 LRU 驱逐。编号最大的非空桶（未分裂的自身桶）
// 不受容量限制。
package routing

import (
	"sort"
	"sync"

	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("dht/routing")

// DefaultBucketSize 默认 K 桶大小
const DefaultBucketSize = 20

// BucketIndex 计算 id 相对 self 所在的桶编号
//
// id 与 self 相同时返回 -1。
func BucketIndex(self, id types.ID) int {
	h := types.Distance(self, id).HighestBit()
	if h < 0 {
		return -1
	}
	return types.IDBits - 1 - h
}

// ============================================================================
//                              K 桶
// ============================================================================

// bucket 按插入顺序保存节点
type bucket struct {
	peers []types.Peer
}

func (b *bucket) indexOf(id types.ID) int {
	for i := range b.peers {
		if b.peers[i].ID == id {
			return i
		}
	}
	return -1
}

// ============================================================================
//                              路由表
// ============================================================================

// Table K 桶路由表
//
// 并发安全。所有读操作返回快照，不持有锁。
type Table struct {
	self       types.ID
	bucketSize int

	mu      sync.RWMutex
	buckets [types.IDBits]bucket
	count   int
	// deepest 当前编号最大的非空桶，表为空时为 -1
	deepest int
}

// NewTable 创建路由表
//
// bucketSize <= 0 时使用 DefaultBucketSize。
func NewTable(self types.ID, bucketSize int) *Table {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	return &Table{
		self:       self,
		bucketSize: bucketSize,
		deepest:    -1,
	}
}

// Self 返回本节点 ID
func (t *Table) Self() types.ID {
	return t.self
}

// BucketSize 返回 K 桶大小
func (t *Table) BucketSize() int {
	return t.bucketSize
}

// Push 添加节点
//
// 以下情况返回 false：id 为本节点、id 已存在、所在桶已满且不是编号最大的非空桶。
func (t *Table) Push(id types.ID, ep types.Endpoint) bool {
	idx := BucketIndex(t.self, id)
	if idx < 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]
	if b.indexOf(id) >= 0 {
		return false
	}
	if len(b.peers) >= t.bucketSize && idx < t.deepest {
		logger.Debug("K 桶已满，拒绝节点", "bucket", idx, "peer", id.ShortString())
		return false
	}

	b.peers = append(b.peers, types.Peer{ID: id, Endpoint: types.NormalizeEndpoint(ep)})
	t.count++
	if idx > t.deepest {
		t.deepest = idx
	}
	return true
}

// Remove 移除节点
func (t *Table) Remove(id types.ID) bool {
	idx := BucketIndex(t.self, id)
	if idx < 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]
	i := b.indexOf(id)
	if i < 0 {
		return false
	}
	b.peers = append(b.peers[:i], b.peers[i+1:]...)
	t.count--

	if idx == t.deepest && len(b.peers) == 0 {
		t.deepest = -1
		for j := idx - 1; j >= 0; j-- {
			if len(t.buckets[j].peers) > 0 {
				t.deepest = j
				break
			}
		}
	}
	return true
}

// Contains 检查节点是否存在
func (t *Table) Contains(id types.ID) bool {
	idx := BucketIndex(t.self, id)
	if idx < 0 {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buckets[idx].indexOf(id) >= 0
}

// PeerCount 返回节点总数
func (t *Table) PeerCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// BucketLen 返回指定桶的节点数
func (t *Table) BucketLen(idx int) int {
	if idx < 0 || idx >= types.IDBits {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.buckets[idx].peers)
}

// Find 返回从 target 所在桶开始的遍历游标
//
// 遍历顺序：target 所在桶，然后编号更大的桶（升序），然后编号更小的桶（降序），
// 跳过空桶。桶间距离类别单调不减，桶内保持插入顺序。
// 游标遍历的是调用时的快照，每个节点恰好出现一次。
func (t *Table) Find(target types.ID) *Iterator {
	start := BucketIndex(t.self, target)
	if start < 0 {
		start = types.IDBits - 1
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	peers := make([]types.Peer, 0, t.count)
	appendBucket := func(idx int) {
		peers = append(peers, t.buckets[idx].peers...)
	}
	appendBucket(start)
	for idx := start + 1; idx < types.IDBits; idx++ {
		appendBucket(idx)
	}
	for idx := start - 1; idx >= 0; idx-- {
		appendBucket(idx)
	}
	return &Iterator{peers: peers}
}

// Closest 返回距离 target 最近的至多 n 个节点，按距离升序
func (t *Table) Closest(target types.ID, n int) []types.Peer {
	if n <= 0 {
		return nil
	}
	peers := t.Find(target).peers
	sort.SliceStable(peers, func(i, j int) bool {
		return types.CloserTo(target, peers[i].ID, peers[j].ID)
	})
	if len(peers) > n {
		peers = peers[:n]
	}
	return peers
}

// Peers 返回所有节点
func (t *Table) Peers() []types.Peer {
	return t.Find(t.self).peers
}

// ============================================================================
//                              遍历游标
// ============================================================================

// Iterator 路由表遍历游标
type Iterator struct {
	peers []types.Peer
	pos   int
}

// Next 返回下一个节点，遍历结束时 ok 为 false
func (it *Iterator) Next() (types.Peer, bool) {
	if it.pos >= len(it.peers) {
		return types.Peer{}, false
	}
	p := it.peers[it.pos]
	it.pos++
	return p, true
}

// Remaining 返回剩余节点数
func (it *Iterator) Remaining() int {
	return len(it.peers) - it.pos
}
