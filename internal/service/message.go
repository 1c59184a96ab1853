package service

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
)

// MessageService 封装历史消息查询；墓碑消息一律不返回。
type MessageService struct {
	db *gorm.DB
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db}
}

// MessageDTO 是对外输出的一对一消息数据。
type MessageDTO struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	MediaURL   string    `json:"media_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DirectHistory 分页查询与某个用户的一对一消息，按时间升序返回。
// before 非零时只返回这个时间点之前的消息。
func (s *MessageService) DirectHistory(userID, peerID string, limit int, before time.Time) ([]MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := s.db.Where(
		"((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND deleted_at IS NULL",
		userID, peerID, peerID, userID,
	)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	var msgs []models.Message
	if err := q.Order("created_at desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	lo.Reverse(msgs)

	return lo.Map(msgs, func(m models.Message, _ int) MessageDTO {
		return MessageDTO{
			ID:         m.ID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			Content:    m.Content,
			Type:       m.Type,
			Status:     m.Status,
			MediaURL:   m.MediaURL,
			CreatedAt:  m.CreatedAt,
		}
	}), nil
}

// GroupMessageDTO 是对外输出的群消息数据。
type GroupMessageDTO struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	MediaURL  string    `json:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupHistory 分页查询群消息，按时间升序返回；只有群成员可以查询。
func (s *MessageService) GroupHistory(groupID, requesterID string, limit int, before time.Time) ([]GroupMessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var count int64
	if err := s.db.Model(&models.GroupMember{}).Where("group_id = ? AND user_id = ?", groupID, requesterID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotGroupMember
	}

	q := s.db.Where("group_id = ? AND deleted_at IS NULL", groupID)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	var msgs []models.GroupMessage
	if err := q.Order("created_at desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	lo.Reverse(msgs)

	usernames, err := s.resolveUsernames(msgs)
	if err != nil {
		return nil, err
	}

	return lo.Map(msgs, func(m models.GroupMessage, _ int) GroupMessageDTO {
		return GroupMessageDTO{
			ID:        m.ID,
			GroupID:   m.GroupID,
			SenderID:  m.SenderID,
			Username:  usernames[m.SenderID],
			Content:   m.Content,
			Type:      m.Type,
			MediaURL:  m.MediaURL,
			CreatedAt: m.CreatedAt,
		}
	}), nil
}

// resolveUsernames 批量获取消息涉及的用户名。
func (s *MessageService) resolveUsernames(msgs []models.GroupMessage) (map[string]string, error) {
	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.GroupMessage, _ int) string { return m.SenderID }))

	usernames := make(map[string]string, len(senderIDs))
	if len(senderIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", senderIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}
	return usernames, nil
}
