package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound 表示目标行不存在（区别于底层存储故障）。
var ErrNotFound = errors.New("record not found")

// Store 是实时内核消费的持久化接口；内存缓存只是软状态，
// 数据库才是唯一的事实来源。
type Store interface {
	FindUser(id string) (*models.User, error)
	UpdateUserPresence(id, status string, lastSeen time.Time) error
	ContactIDs(userID string) ([]string, error)

	InsertMessage(m *models.Message) error
	FindMessage(id string) (*models.Message, error)
	UpdateMessageStatus(id, status string) error
	SoftDeleteMessage(id string) error

	InsertGroup(g *models.Group) error
	FindGroup(id string) (*models.Group, error)
	UpdateGroup(id, name, pictureURL string) error
	SoftDeleteGroup(id string) error

	InsertMembership(m *models.GroupMember) error
	DeleteMembership(groupID, userID string) error
	ListMemberships() ([]models.GroupMember, error)

	InsertGroupMessage(m *models.GroupMessage) error
	FindGroupMessage(id string) (*models.GroupMessage, error)
	SoftDeleteGroupMessage(id string) error

	AppendActivity(a *models.UserActivity) error
}

// GormStore 基于 gorm 的 Store 实现。
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) FindUser(id string) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *GormStore) UpdateUserPresence(id, status string, lastSeen time.Time) error {
	return s.db.Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "last_seen": lastSeen}).Error
}

func (s *GormStore) ContactIDs(userID string) ([]string, error) {
	var ids []string
	err := s.db.Model(&models.Contact{}).Where("user_id = ?", userID).
		Pluck("contact_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("contact ids: %w", err)
	}
	return ids, nil
}

func (s *GormStore) InsertMessage(m *models.Message) error {
	return s.db.Create(m).Error
}

func (s *GormStore) FindMessage(id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, "id = ? AND deleted_at IS NULL", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return &msg, nil
}

func (s *GormStore) UpdateMessageStatus(id, status string) error {
	return s.db.Model(&models.Message{}).Where("id = ?", id).
		Update("status", status).Error
}

func (s *GormStore) SoftDeleteMessage(id string) error {
	now := time.Now()
	return s.db.Model(&models.Message{}).Where("id = ?", id).
		Update("deleted_at", &now).Error
}

func (s *GormStore) InsertGroup(g *models.Group) error {
	return s.db.Create(g).Error
}

func (s *GormStore) FindGroup(id string) (*models.Group, error) {
	var group models.Group
	if err := s.db.First(&group, "id = ? AND deleted_at IS NULL", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &group, nil
}

func (s *GormStore) UpdateGroup(id, name, pictureURL string) error {
	return s.db.Model(&models.Group{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": name, "picture_url": pictureURL}).Error
}

func (s *GormStore) SoftDeleteGroup(id string) error {
	now := time.Now()
	return s.db.Model(&models.Group{}).Where("id = ?", id).
		Update("deleted_at", &now).Error
}

func (s *GormStore) InsertMembership(m *models.GroupMember) error {
	return s.db.Create(m).Error
}

func (s *GormStore) DeleteMembership(groupID, userID string) error {
	return s.db.Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&models.GroupMember{}).Error
}

func (s *GormStore) ListMemberships() ([]models.GroupMember, error) {
	var members []models.GroupMember
	err := s.db.Joins("JOIN groups ON groups.id = group_members.group_id AND groups.deleted_at IS NULL").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	return members, nil
}

func (s *GormStore) InsertGroupMessage(m *models.GroupMessage) error {
	return s.db.Create(m).Error
}

func (s *GormStore) FindGroupMessage(id string) (*models.GroupMessage, error) {
	var msg models.GroupMessage
	if err := s.db.First(&msg, "id = ? AND deleted_at IS NULL", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find group message: %w", err)
	}
	return &msg, nil
}

func (s *GormStore) SoftDeleteGroupMessage(id string) error {
	now := time.Now()
	return s.db.Model(&models.GroupMessage{}).Where("id = ?", id).
		Update("deleted_at", &now).Error
}

func (s *GormStore) AppendActivity(a *models.UserActivity) error {
	return s.db.Create(a).Error
}
