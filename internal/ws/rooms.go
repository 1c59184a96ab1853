package ws

import (
	"sort"
	"strings"
	"sync"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
)

// AdminsRoom 管理端连接加入的常驻房间，接收用户/群的生命周期通知。
const AdminsRoom = "admins"

// Rooms 房间到成员集合（含角色）的进程内缓存。持久层才是事实来源：
// 进程启动时用 Rebuild 从数据库重建，之后由事件路由保持同步。
type Rooms struct {
	shards [shardCount]roomShard
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string
}

func NewRooms() *Rooms {
	r := &Rooms{}
	for i := range r.shards {
		r.shards[i].rooms = make(map[string]map[string]string)
	}
	r.Create(AdminsRoom)
	return r
}

// GroupKey 群房间的缓存键。
func GroupKey(groupID string) string { return "group:" + groupID }

// DirectKey 一对一房间的缓存键，按字典序排列用户对保证双方得到同一个键。
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "dm:" + strings.Join(pair, ":")
}

func (r *Rooms) shard(roomID string) *roomShard {
	return &r.shards[shardIndex(roomID)]
}

// Create 幂等地建立一个空房间。
func (r *Rooms) Create(roomID string) {
	s := r.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = make(map[string]string)
	}
}

// Drop 移除整个房间（群解散）。
func (r *Rooms) Drop(roomID string) {
	s := r.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

// MembersOf 返回房间成员；房间不存在时返回 ErrRoomNotFound。
func (r *Rooms) MembersOf(roomID string) ([]string, error) {
	s := r.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out, nil
}

func (r *Rooms) IsMember(roomID, userID string) bool {
	s := r.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	_, present := members[userID]
	return present
}

// RoleOf 返回成员角色；非成员时第二个返回值为 false。
func (r *Rooms) RoleOf(roomID, userID string) (string, bool) {
	s := r.shard(roomID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return "", false
	}
	role, present := members[userID]
	return role, present
}

// AddMember 调用方先持久化成功再更新缓存；两者跨崩溃不保证原子，
// 由启动时的 Rebuild 兜底。
func (r *Rooms) AddMember(roomID, userID, role string) error {
	s := r.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if _, present := members[userID]; present {
		return ErrAlreadyMember
	}
	members[userID] = role
	return nil
}

func (r *Rooms) RemoveMember(roomID, userID string) error {
	s := r.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	members, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if _, present := members[userID]; !present {
		return ErrNotMember
	}
	delete(members, userID)
	return nil
}

// EnsureDirect 惰性物化一对一房间：首次互发消息时创建，双方即为成员。
func (r *Rooms) EnsureDirect(a, b string) string {
	key := DirectKey(a, b)
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[key]; !ok {
		s.rooms[key] = map[string]string{a: models.RoleMember, b: models.RoleMember}
	}
	return key
}

// Rebuild 用持久化的群成员关系重置缓存，进程启动时调用。
func (r *Rooms) Rebuild(memberships []models.GroupMember) {
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		s.rooms = make(map[string]map[string]string)
		s.mu.Unlock()
	}
	r.Create(AdminsRoom)
	for _, m := range memberships {
		key := GroupKey(m.GroupID)
		r.Create(key)
		_ = r.AddMember(key, m.UserID, m.Role)
	}
}
