package ws

import (
	"fmt"
	"time"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"github.com/rahulrsolguruz/chat-app-api/internal/repo"
	"github.com/rs/zerolog/log"
)

// Tracker 维护 online/offline/last_seen 状态：先持久化，再向当前
// 在线的联系人广播变更。广播是尽力而为的，离线的联系人看到的旧状态
// 等下次查询时自然修正。
type Tracker struct {
	reg   *Registry
	store repo.Store
}

func NewTracker(reg *Registry, store repo.Store) *Tracker {
	return &Tracker{reg: reg, store: store}
}

// ConnectionOpened 首个连接注册成功后调用（多端时后续连接不触发）。
func (t *Tracker) ConnectionOpened(userID string) {
	if err := t.SetOnline(userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("presence online")
	}
}

// ConnectionClosed 最后一个连接注销后调用。
func (t *Tracker) ConnectionClosed(userID string) {
	if err := t.SetOffline(userID); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("presence offline")
	}
}

func (t *Tracker) SetOnline(userID string) error {
	now := time.Now()
	if err := t.store.UpdateUserPresence(userID, models.StatusOnline, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	t.broadcast(EventUserOnline, userID, models.StatusOnline, now)
	return nil
}

func (t *Tracker) SetOffline(userID string) error {
	now := time.Now()
	if err := t.store.UpdateUserPresence(userID, models.StatusOffline, now); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	t.broadcast(EventUserOffline, userID, models.StatusOffline, now)
	return nil
}

// TouchLastSeen 只刷新 last_seen 时间戳，不改变在线状态、不广播。
func (t *Tracker) TouchLastSeen(userID string) error {
	status := models.StatusOffline
	if t.reg.IsOnline(userID) {
		status = models.StatusOnline
	}
	if err := t.store.UpdateUserPresence(userID, status, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (t *Tracker) broadcast(evtType, userID, status string, lastSeen time.Time) {
	contacts, err := t.store.ContactIDs(userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("presence contacts lookup")
		return
	}
	data := map[string]interface{}{
		"user_id":   userID,
		"status":    status,
		"last_seen": lastSeen,
	}
	for _, c := range t.reg.ConnectionsFor(contacts...) {
		c.sendEvent(evtType, true, "", data)
	}
}
