package ws

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

// Registry 维护用户到在线连接句柄的映射，一个用户可以有多端连接。
// 按用户 ID 哈希分片，稳态广播期间不存在全局锁。
type Registry struct {
	shards [shardCount]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	conns map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]map[*Client]struct{})
	}
	return r
}

func shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Register 幂等注册一个连接句柄；返回该用户是否从无连接变为有连接。
func (r *Registry) Register(userID string, c *Client) bool {
	s := &r.shards[shardIndex(userID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[userID]
	if !ok {
		set = make(map[*Client]struct{})
		s.conns[userID] = set
	}
	first := len(set) == 0
	set[c] = struct{}{}
	return first
}

// Unregister 移除这一个句柄；句柄不存在时是 no-op。
// 返回该用户是否因此从有连接变为无连接。
func (r *Registry) Unregister(userID string, c *Client) bool {
	s := &r.shards[shardIndex(userID)]
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[userID]
	if !ok {
		return false
	}
	if _, present := set[c]; !present {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(s.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor 展开多端连接，返回给定用户集合的全部在线句柄；
// 未知用户不产生句柄，也不报错。
func (r *Registry) ConnectionsFor(userIDs ...string) []*Client {
	var out []*Client
	for _, id := range userIDs {
		s := &r.shards[shardIndex(id)]
		s.mu.RLock()
		for c := range s.conns[id] {
			out = append(out, c)
		}
		s.mu.RUnlock()
	}
	return out
}

// IsOnline 至少有一个句柄注册时为 true。
func (r *Registry) IsOnline(userID string) bool {
	s := &r.shards[shardIndex(userID)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns[userID]) > 0
}
