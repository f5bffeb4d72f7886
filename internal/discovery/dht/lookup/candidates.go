package lookup

import (
	"sort"

	"github.com/dep2p/go-kaddht/pkg/types"
)

// candidateState 候选节点状态
type candidateState uint8

const (
	stateUnprobed candidateState = iota
	stateInFlight
	stateValid
	stateInvalid
)

type candidate struct {
	peer  types.Peer
	state candidateState
}

// CandidateSet 迭代查找的候选节点集合
//
// 候选节点按到 key 的距离升序排列。选择新候选时只考虑最近的 width 个
// 非失效节点，这保证了查找在找不到更近节点时收敛。
//
// 不是并发安全的，由所属查找持有锁访问。
type CandidateSet struct {
	key      types.ID
	width    int
	list     []*candidate
	index    map[types.ID]*candidate
	inFlight int
}

// NewCandidateSet 创建候选集合
func NewCandidateSet(key types.ID, width int, peers []types.Peer) *CandidateSet {
	s := &CandidateSet{
		key:   key,
		width: width,
		index: make(map[types.ID]*candidate),
	}
	s.AddCandidates(peers)
	return s
}

// Key 返回查找目标
func (s *CandidateSet) Key() types.ID {
	return s.key
}

// Len 返回候选节点总数
func (s *CandidateSet) Len() int {
	return len(s.list)
}

// InFlight 返回已发出但未完成的请求数
func (s *CandidateSet) InFlight() int {
	return s.inFlight
}

// AddCandidates 合并新发现的节点，已存在的忽略
//
// 返回新加入的节点数。
func (s *CandidateSet) AddCandidates(peers []types.Peer) int {
	added := 0
	for _, p := range peers {
		if _, ok := s.index[p.ID]; ok {
			continue
		}
		c := &candidate{peer: p}
		s.index[p.ID] = c

		i := sort.Search(len(s.list), func(i int) bool {
			return types.CloserTo(s.key, p.ID, s.list[i].peer.ID)
		})
		s.list = append(s.list, nil)
		copy(s.list[i+1:], s.list[i:])
		s.list[i] = c
		added++
	}
	return added
}

// SelectNewClosestCandidates 选出至多 n 个最近的未探测节点，并标记为进行中
func (s *CandidateSet) SelectNewClosestCandidates(n int) []types.Peer {
	var out []types.Peer
	considered := 0
	for _, c := range s.list {
		if len(out) >= n || considered >= s.width {
			break
		}
		if c.state == stateInvalid {
			continue
		}
		considered++
		if c.state == stateUnprobed {
			c.state = stateInFlight
			s.inFlight++
			out = append(out, c.peer)
		}
	}
	return out
}

// FlagCandidateAsValid 标记进行中的节点为有效
func (s *CandidateSet) FlagCandidateAsValid(id types.ID) bool {
	return s.resolve(id, stateValid)
}

// FlagCandidateAsInvalid 标记进行中的节点为失效
func (s *CandidateSet) FlagCandidateAsInvalid(id types.ID) bool {
	return s.resolve(id, stateInvalid)
}

func (s *CandidateSet) resolve(id types.ID, st candidateState) bool {
	c, ok := s.index[id]
	if !ok || c.state != stateInFlight {
		return false
	}
	c.state = st
	s.inFlight--
	return true
}

// SelectClosestValidCandidates 返回至多 n 个最近的有效节点
func (s *CandidateSet) SelectClosestValidCandidates(n int) []types.Peer {
	var out []types.Peer
	for _, c := range s.list {
		if len(out) >= n {
			break
		}
		if c.state == stateValid {
			out = append(out, c.peer)
		}
	}
	return out
}

// HaveAllRequestsCompleted 是否所有已发出的请求都已有结果
func (s *CandidateSet) HaveAllRequestsCompleted() bool {
	return s.inFlight == 0
}
