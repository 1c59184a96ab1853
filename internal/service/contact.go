package service

import (
	"errors"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"github.com/rahulrsolguruz/chat-app-api/internal/ws"
)

// ContactService 封装联系人相关的业务逻辑。
type ContactService struct {
	db  *gorm.DB
	reg *ws.Registry
}

func NewContactService(db *gorm.DB, reg *ws.Registry) *ContactService {
	return &ContactService{db: db, reg: reg}
}

// ContactDTO 是对外输出的联系人数据。
type ContactDTO struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	Status    string    `json:"status"`
	LastSeen  time.Time `json:"last_seen"`
	AddedAt   time.Time `json:"added_at"`
}

// Add 把对方加入自己的联系人列表；联系关系是单向的。
func (s *ContactService) Add(userID, contactID string) (*ContactDTO, error) {
	if userID == contactID {
		return nil, ErrSelfContact
	}
	var peer models.User
	if err := s.db.First(&peer, "id = ?", contactID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	var count int64
	if err := s.db.Model(&models.Contact{}).Where("user_id = ? AND contact_id = ?", userID, contactID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrContactExists
	}
	rec := models.Contact{UserID: userID, ContactID: contactID}
	if err := s.db.Create(&rec).Error; err != nil {
		return nil, err
	}
	appendActivity(s.db, userID, models.ActivityContactAdded, contactID, models.TargetUser)
	return &ContactDTO{
		ID:        peer.ID,
		Username:  peer.Username,
		AvatarURL: peer.AvatarURL,
		Status:    s.liveStatus(peer),
		LastSeen:  peer.LastSeen,
		AddedAt:   rec.CreatedAt,
	}, nil
}

// List 返回联系人列表，附带实时在线状态。
func (s *ContactService) List(userID string) ([]ContactDTO, error) {
	var recs []models.Contact
	if err := s.db.Where("user_id = ?", userID).Order("created_at asc").Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []ContactDTO{}, nil
	}

	ids := lo.Map(recs, func(r models.Contact, _ int) string { return r.ContactID })
	var users []models.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := lo.KeyBy(users, func(u models.User) string { return u.ID })

	out := make([]ContactDTO, 0, len(recs))
	for _, r := range recs {
		u, ok := byID[r.ContactID]
		if !ok {
			continue
		}
		out = append(out, ContactDTO{
			ID:        u.ID,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			Status:    s.liveStatus(u),
			LastSeen:  u.LastSeen,
			AddedAt:   r.CreatedAt,
		})
	}
	return out, nil
}

// PresenceDTO 是对外输出的在线状态数据。
type PresenceDTO struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Presence 查询任意用户的在线状态。
func (s *ContactService) Presence(userID string) (*PresenceDTO, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &PresenceDTO{UserID: user.ID, Status: s.liveStatus(user), LastSeen: user.LastSeen}, nil
}

// liveStatus 优先看连接注册表；数据库状态只在进程重启后短暂失真。
func (s *ContactService) liveStatus(u models.User) string {
	if s.reg != nil && s.reg.IsOnline(u.ID) {
		return models.StatusOnline
	}
	return u.Status
}
