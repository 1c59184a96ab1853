package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rahulrsolguruz/chat-app-api/internal/metrics"
	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"github.com/rahulrsolguruz/chat-app-api/internal/repo"
	"github.com/rs/zerolog/log"
)

// statusRank 投递状态的推进序；只允许向更高的序推进。
var statusRank = map[string]int{
	models.MessageSent:      0,
	models.MessageDelivered: 1,
	models.MessageRead:      2,
}

type handlerFunc func(*Client, json.RawMessage) error

// Router 事件路由：校验发送者权限、执行持久化副作用、计算广播集合。
// 所有事件经由单一分发表，每个 handler 都可以脱离真实 socket 测试。
type Router struct {
	reg      *Registry
	rooms    *Rooms
	tracker  *Tracker
	store    repo.Store
	validate *validator.Validate

	// 群广播是否包含发送者本人（历史实现不一致，做成配置）。
	includeSender bool

	handlers map[string]handlerFunc
}

func NewRouter(reg *Registry, rooms *Rooms, tracker *Tracker, store repo.Store, includeSender bool) *Router {
	r := &Router{
		reg:           reg,
		rooms:         rooms,
		tracker:       tracker,
		store:         store,
		validate:      validator.New(),
		includeSender: includeSender,
	}
	r.handlers = map[string]handlerFunc{
		EventSendMessage:      r.handleSendMessage,
		EventMessageDelivered: r.handleMessageDelivered,
		EventMessageRead:      r.handleMessageRead,
		EventTyping:           r.handleTyping,
		EventStopTyping:       r.handleStopTyping,
		EventOnline:           r.handleOnline,
		EventOffline:          r.handleOffline,
		EventLastSeen:         r.handleLastSeen,
		EventCreateGroup:      r.handleCreateGroup,
		EventUpdateGroup:      r.handleUpdateGroup,
		EventDeleteGroup:      r.handleDeleteGroup,
		EventJoinGroup:        r.handleJoinGroup,
		EventAddMember:        r.handleAddMember,
		EventRemoveMember:     r.handleRemoveMember,
		EventSendGroupMessage: r.handleSendGroupMessage,
		EventDeleteGroupMsg:   r.handleDeleteGroupMessage,
	}
	return r
}

// Dispatch 处理一帧入站事件。失败只回给肇事连接，从不波及其他连接，
// 也从不让连接 goroutine 崩溃。
func (r *Router) Dispatch(c *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Type == "" {
		c.sendEvent(EventError, false, errorText(ErrMalformedPayload), nil)
		metrics.WsEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return
	}
	h, ok := r.handlers[frame.Type]
	if !ok {
		c.sendEvent(EventError, false, "unknown event type", nil)
		metrics.WsEventsTotal.WithLabelValues(frame.Type, "unknown").Inc()
		return
	}
	if err := h(c, frame.Payload); err != nil {
		c.sendEvent(frame.Type, false, errorText(err), nil)
		metrics.WsEventsTotal.WithLabelValues(frame.Type, "error").Inc()
		if errors.Is(err, ErrStorage) {
			log.Error().Err(err).Str("event", frame.Type).Str("user_id", c.userID).Msg("event storage failure")
		}
		return
	}
	metrics.WsEventsTotal.WithLabelValues(frame.Type, "ok").Inc()
}

// decode 在边界处一次性反序列化并校验 payload。
func (r *Router) decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return ErrMalformedPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ErrMalformedPayload
	}
	if err := r.validate.Struct(v); err != nil {
		return ErrMalformedPayload
	}
	return nil
}

// fanout 把一个事件投递到目标用户集合的全部在线连接。
func (r *Router) fanout(evtType string, userIDs []string, data interface{}) {
	for _, c := range r.reg.ConnectionsFor(userIDs...) {
		c.sendEvent(evtType, true, "", data)
	}
}

// logActivity 追加审计记录；失败只记日志，绝不阻塞主响应。
func (r *Router) logActivity(userID, activityType, targetID, targetType string) {
	entry := &models.UserActivity{
		UserID:       userID,
		ActivityType: activityType,
		TargetID:     targetID,
		TargetType:   targetType,
	}
	if err := r.store.AppendActivity(entry); err != nil {
		log.Warn().Err(err).Str("activity", activityType).Str("user_id", userID).Msg("activity log append")
	}
}

// NotifyAdmins 向管理房间的在线连接推送生命周期通知。
func (r *Router) NotifyAdmins(evtType string, data interface{}) {
	admins, err := r.rooms.MembersOf(AdminsRoom)
	if err != nil {
		return
	}
	r.fanout(evtType, admins, data)
}

func (r *Router) handleSendMessage(c *Client, raw json.RawMessage) error {
	var p sendMessagePayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	if _, err := r.store.FindUser(p.ReceiverID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	msgType := p.MessageType
	if msgType == "" {
		msgType = models.TypeText
	}
	msg := &models.Message{
		SenderID:   c.userID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
		Type:       msgType,
		Status:     models.MessageSent,
		MediaURL:   p.MediaURL,
	}
	if err := r.store.InsertMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	r.rooms.EnsureDirect(c.userID, p.ReceiverID)
	metrics.WsMessagesTotal.Inc()
	data := messageData(msg)
	r.fanout(EventReceiveMessage, []string{p.ReceiverID}, data)
	c.sendEvent(EventSendMessage, true, "message sent", data)
	r.logActivity(c.userID, models.ActivityMessageSent, msg.ID, models.TargetMessage)
	return nil
}

func (r *Router) handleMessageDelivered(c *Client, raw json.RawMessage) error {
	return r.advanceStatus(c, raw, models.MessageDelivered, EventMessageDelivered)
}

func (r *Router) handleMessageRead(c *Client, raw json.RawMessage) error {
	return r.advanceStatus(c, raw, models.MessageRead, EventMessageRead)
}

// advanceStatus 回执状态机：只有原始接收者可以推进，且只能向前。
func (r *Router) advanceStatus(c *Client, raw json.RawMessage, next, evtType string) error {
	var p statusPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	msg, err := r.store.FindMessage(p.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if msg.ReceiverID != c.userID {
		return ErrUnauthorized
	}
	if statusRank[next] <= statusRank[msg.Status] {
		return ErrInvalidTransition
	}
	if err := r.store.UpdateMessageStatus(msg.ID, next); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	r.fanout(evtType, []string{msg.SenderID}, map[string]interface{}{
		"message_id":  msg.ID,
		"receiver_id": msg.ReceiverID,
		"status":      next,
	})
	c.sendEvent(evtType, true, "status updated", map[string]interface{}{"message_id": msg.ID, "status": next})
	return nil
}

func (r *Router) handleTyping(c *Client, raw json.RawMessage) error {
	return r.relayTyping(c, raw, EventTyping)
}

func (r *Router) handleStopTyping(c *Client, raw json.RawMessage) error {
	return r.relayTyping(c, raw, EventStopTyping)
}

// relayTyping 输入指示不落库、尽力而为；目标不合法时静默丢弃。
func (r *Router) relayTyping(c *Client, raw json.RawMessage, evtType string) error {
	var p typingPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	data := map[string]interface{}{"sender_id": c.userID}
	if p.GroupID != "" {
		key := GroupKey(p.GroupID)
		if !r.rooms.IsMember(key, c.userID) {
			return nil
		}
		members, err := r.rooms.MembersOf(key)
		if err != nil {
			return nil
		}
		data["group_id"] = p.GroupID
		r.fanout(evtType, exclude(members, c.userID), data)
		return nil
	}
	r.fanout(evtType, []string{p.ReceiverID}, data)
	return nil
}

func (r *Router) handleOnline(c *Client, raw json.RawMessage) error {
	if err := r.tracker.SetOnline(c.userID); err != nil {
		c.sendEvent(EventOnlineResponse, false, "failed to update status", nil)
		return nil
	}
	c.sendEvent(EventOnlineResponse, true, "status updated", nil)
	r.logActivity(c.userID, models.ActivityStatusChanged, c.userID, models.TargetUser)
	return nil
}

func (r *Router) handleOffline(c *Client, raw json.RawMessage) error {
	if err := r.tracker.SetOffline(c.userID); err != nil {
		c.sendEvent(EventOfflineResponse, false, "failed to update status", nil)
		return nil
	}
	c.sendEvent(EventOfflineResponse, true, "status updated", nil)
	r.logActivity(c.userID, models.ActivityStatusChanged, c.userID, models.TargetUser)
	return nil
}

func (r *Router) handleLastSeen(c *Client, raw json.RawMessage) error {
	if err := r.tracker.TouchLastSeen(c.userID); err != nil {
		c.sendEvent(EventLastSeenResponse, false, "failed to update last seen", nil)
		return nil
	}
	c.sendEvent(EventLastSeenResponse, true, "last seen updated successfully", nil)
	return nil
}

func (r *Router) handleCreateGroup(c *Client, raw json.RawMessage) error {
	var p createGroupPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	group := &models.Group{Name: p.GroupName, PictureURL: p.PictureURL, AdminID: c.userID}
	if err := r.store.InsertGroup(group); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	member := &models.GroupMember{GroupID: group.ID, UserID: c.userID, Role: models.RoleAdmin, JoinedAt: time.Now()}
	if err := r.store.InsertMembership(member); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	key := GroupKey(group.ID)
	r.rooms.Create(key)
	_ = r.rooms.AddMember(key, c.userID, models.RoleAdmin)
	data := groupData(group)
	c.sendEvent(EventCreateGroup, true, "group created", data)
	r.NotifyAdmins(EventGroupCreated, data)
	r.logActivity(c.userID, models.ActivityGroupCreated, group.ID, models.TargetGroup)
	return nil
}

func (r *Router) handleUpdateGroup(c *Client, raw json.RawMessage) error {
	var p updateGroupPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	if role, ok := r.rooms.RoleOf(key, c.userID); !ok || role != models.RoleAdmin {
		return ErrUnauthorized
	}
	if err := r.store.UpdateGroup(p.GroupID, p.GroupName, p.PictureURL); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"group_id":          p.GroupID,
		"group_name":        p.GroupName,
		"group_picture_url": p.PictureURL,
	}
	r.fanout(EventGroupUpdated, members, data)
	r.NotifyAdmins(EventGroupUpdated, data)
	r.logActivity(c.userID, models.ActivityGroupUpdated, p.GroupID, models.TargetGroup)
	return nil
}

func (r *Router) handleDeleteGroup(c *Client, raw json.RawMessage) error {
	var p groupPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	if role, ok := r.rooms.RoleOf(key, c.userID); !ok || role != models.RoleAdmin {
		return ErrUnauthorized
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	if err := r.store.SoftDeleteGroup(p.GroupID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	data := map[string]interface{}{"group_id": p.GroupID}
	r.fanout(EventGroupDeleted, members, data)
	r.rooms.Drop(key)
	r.NotifyAdmins(EventGroupDeleted, data)
	r.logActivity(c.userID, models.ActivityGroupDeleted, p.GroupID, models.TargetGroup)
	return nil
}

// handleJoinGroup 成员资格校验通过即静默成功；失败只回给请求者。
func (r *Router) handleJoinGroup(c *Client, raw json.RawMessage) error {
	var p groupPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	if !r.rooms.IsMember(GroupKey(p.GroupID), c.userID) {
		return ErrUnauthorized
	}
	c.sendEvent(EventJoinGroup, true, "joined", map[string]interface{}{"group_id": p.GroupID})
	r.logActivity(c.userID, models.ActivityGroupJoined, p.GroupID, models.TargetGroup)
	return nil
}

func (r *Router) handleAddMember(c *Client, raw json.RawMessage) error {
	var p memberPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	if role, ok := r.rooms.RoleOf(key, c.userID); !ok || role != models.RoleAdmin {
		return ErrUnauthorized
	}
	if r.rooms.IsMember(key, p.MemberID) {
		return ErrAlreadyMember
	}
	if _, err := r.store.FindUser(p.MemberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	member := &models.GroupMember{GroupID: p.GroupID, UserID: p.MemberID, Role: models.RoleMember, JoinedAt: time.Now()}
	if err := r.store.InsertMembership(member); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := r.rooms.AddMember(key, p.MemberID, models.RoleMember); err != nil {
		return err
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	// 新成员包含在广播集合内
	r.fanout(EventMemberAdded, members, map[string]interface{}{"group_id": p.GroupID, "member_id": p.MemberID})
	c.sendEvent(EventAddMember, true, "member added", map[string]interface{}{"group_id": p.GroupID, "member_id": p.MemberID})
	r.logActivity(c.userID, models.ActivityMemberAdded, p.GroupID, models.TargetGroup)
	return nil
}

func (r *Router) handleRemoveMember(c *Client, raw json.RawMessage) error {
	var p memberPayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	if role, ok := r.rooms.RoleOf(key, c.userID); !ok || role != models.RoleAdmin {
		return ErrUnauthorized
	}
	if !r.rooms.IsMember(key, p.MemberID) {
		return ErrNotMember
	}
	if err := r.store.DeleteMembership(p.GroupID, p.MemberID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := r.rooms.RemoveMember(key, p.MemberID); err != nil {
		return err
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	data := map[string]interface{}{"group_id": p.GroupID, "member_id": p.MemberID}
	// 移除后的房间收到 memberRemoved，被移除者单独收到 removedFromGroup
	r.fanout(EventMemberRemoved, members, data)
	r.fanout(EventRemovedFromGroup, []string{p.MemberID}, data)
	c.sendEvent(EventRemoveMember, true, "member removed", data)
	r.logActivity(c.userID, models.ActivityMemberRemoved, p.GroupID, models.TargetGroup)
	return nil
}

func (r *Router) handleSendGroupMessage(c *Client, raw json.RawMessage) error {
	var p sendGroupMessagePayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	if !r.rooms.IsMember(key, c.userID) {
		return ErrUnauthorized
	}
	msgType := p.MessageType
	if msgType == "" {
		msgType = models.TypeText
	}
	msg := &models.GroupMessage{
		GroupID:  p.GroupID,
		SenderID: c.userID,
		Content:  p.Content,
		Type:     msgType,
		Status:   models.MessageSent,
		MediaURL: p.MediaURL,
	}
	if err := r.store.InsertGroupMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	if !r.includeSender {
		members = exclude(members, c.userID)
	}
	metrics.WsMessagesTotal.Inc()
	data := groupMessageData(msg)
	r.fanout(EventReceiveGroupMessage, members, data)
	c.sendEvent(EventSendGroupMessage, true, "message sent", data)
	r.logActivity(c.userID, models.ActivityGroupMsgSent, msg.ID, models.TargetMessage)
	return nil
}

func (r *Router) handleDeleteGroupMessage(c *Client, raw json.RawMessage) error {
	var p deleteGroupMessagePayload
	if err := r.decode(raw, &p); err != nil {
		return err
	}
	key := GroupKey(p.GroupID)
	msg, err := r.store.FindGroupMessage(p.MessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	role, isMember := r.rooms.RoleOf(key, c.userID)
	if msg.SenderID != c.userID && !(isMember && role == models.RoleAdmin) {
		return ErrUnauthorized
	}
	if err := r.store.SoftDeleteGroupMessage(p.MessageID); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	members, err := r.rooms.MembersOf(key)
	if err != nil {
		return err
	}
	r.fanout(EventGroupMessageDeleted, members, map[string]interface{}{"group_id": p.GroupID, "message_id": p.MessageID})
	c.sendEvent(EventDeleteGroupMsg, true, "message deleted", map[string]interface{}{"message_id": p.MessageID})
	r.logActivity(c.userID, models.ActivityMessageDeleted, p.MessageID, models.TargetMessage)
	return nil
}

func exclude(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func messageData(m *models.Message) map[string]interface{} {
	return map[string]interface{}{
		"message_id":      m.ID,
		"sender_id":       m.SenderID,
		"receiver_id":     m.ReceiverID,
		"message_content": m.Content,
		"message_type":    m.Type,
		"media_url":       m.MediaURL,
		"status":          m.Status,
		"time_stamp":      m.CreatedAt,
	}
}

func groupMessageData(m *models.GroupMessage) map[string]interface{} {
	return map[string]interface{}{
		"message_id":      m.ID,
		"group_id":        m.GroupID,
		"sender_id":       m.SenderID,
		"message_content": m.Content,
		"message_type":    m.Type,
		"media_url":       m.MediaURL,
		"status":          m.Status,
		"time_stamp":      m.CreatedAt,
	}
}

func groupData(g *models.Group) map[string]interface{} {
	return map[string]interface{}{
		"group_id":          g.ID,
		"group_name":        g.Name,
		"group_picture_url": g.PictureURL,
		"group_admin":       g.AdminID,
		"created_at":        g.CreatedAt,
	}
}
