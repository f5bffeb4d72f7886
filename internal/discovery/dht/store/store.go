// Package store 提供 DHT 本地值存储
//
// 基于 golang-lru 的 expirable LRU：默认不限容量、不过期，
// 可选地配置最大条目数和 TTL。重复写入同一 key 时后写者胜出。
package store

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dep2p/go-kaddht/pkg/lib/log"
	"github.com/dep2p/go-kaddht/pkg/types"
)

var logger = log.Logger("dht/store")

// ValueStore 键值存储
//
// 并发安全。存入和取出时都复制值，调用方可以自由修改自己的切片。
type ValueStore struct {
	lru *expirable.LRU[types.ID, []byte]
}

// New 创建值存储
//
// maxEntries <= 0 表示不限容量，ttl <= 0 表示不过期。
func New(maxEntries int, ttl time.Duration) *ValueStore {
	if maxEntries < 0 {
		maxEntries = 0
	}
	onEvict := func(key types.ID, _ []byte) {
		logger.Debug("值被淘汰", "key", key.ShortString())
	}
	return &ValueStore{
		lru: expirable.NewLRU[types.ID, []byte](maxEntries, onEvict, ttl),
	}
}

// Put 写入值，覆盖已有值
func (s *ValueStore) Put(key types.ID, value []byte) {
	s.lru.Add(key, clone(value))
}

// Get 读取值
func (s *ValueStore) Get(key types.ID) ([]byte, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	return clone(v), true
}

// Delete 删除值
func (s *ValueStore) Delete(key types.ID) bool {
	return s.lru.Remove(key)
}

// Len 返回条目数
func (s *ValueStore) Len() int {
	return s.lru.Len()
}

// Keys 返回所有 key
func (s *ValueStore) Keys() []types.ID {
	return s.lru.Keys()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
