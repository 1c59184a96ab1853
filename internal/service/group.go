package service

import (
	"errors"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
	"github.com/rahulrsolguruz/chat-app-api/internal/ws"
)

// GroupService 封装群组相关的业务逻辑；
// 群的修改与成员变更走 WebSocket 事件，不在这里。
type GroupService struct {
	db    *gorm.DB
	reg   *ws.Registry
	rooms *ws.Rooms
}

func NewGroupService(db *gorm.DB, reg *ws.Registry, rooms *ws.Rooms) *GroupService {
	return &GroupService{db: db, reg: reg, rooms: rooms}
}

// GroupDTO 是对外输出的群组数据。
type GroupDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PictureURL string    `json:"picture_url"`
	AdminID    string    `json:"admin_id"`
	Members    int       `json:"members"`
	Online     int       `json:"online"`
	CreatedAt  time.Time `json:"created_at"`
}

// Create 建群：落库群与创建者的管理员成员关系，并同步成员缓存。
func (s *GroupService) Create(name, pictureURL, adminID string) (*GroupDTO, error) {
	group := models.Group{Name: name, PictureURL: pictureURL, AdminID: adminID}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		membership := models.GroupMember{GroupID: group.ID, UserID: adminID, Role: models.RoleAdmin, JoinedAt: time.Now()}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return nil, err
	}

	key := ws.GroupKey(group.ID)
	s.rooms.Create(key)
	_ = s.rooms.AddMember(key, adminID, models.RoleAdmin)

	appendActivity(s.db, adminID, models.ActivityGroupCreated, group.ID, models.TargetGroup)
	return &GroupDTO{
		ID:         group.ID,
		Name:       group.Name,
		PictureURL: group.PictureURL,
		AdminID:    group.AdminID,
		Members:    1,
		Online:     1,
		CreatedAt:  group.CreatedAt,
	}, nil
}

// ListForUser 返回用户所在的群组列表，附带成员数与在线人数。
func (s *GroupService) ListForUser(userID string) ([]GroupDTO, error) {
	var memberships []models.GroupMember
	if err := s.db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return []GroupDTO{}, nil
	}

	groupIDs := lo.Map(memberships, func(m models.GroupMember, _ int) string { return m.GroupID })
	var groups []models.Group
	if err := s.db.Where("id IN ? AND deleted_at IS NULL", groupIDs).Find(&groups).Error; err != nil {
		return nil, err
	}

	var all []models.GroupMember
	if err := s.db.Where("group_id IN ?", groupIDs).Find(&all).Error; err != nil {
		return nil, err
	}
	byGroup := lo.GroupBy(all, func(m models.GroupMember) string { return m.GroupID })

	out := make([]GroupDTO, 0, len(groups))
	for _, g := range groups {
		members := byGroup[g.ID]
		online := lo.CountBy(members, func(m models.GroupMember) bool { return s.reg.IsOnline(m.UserID) })
		out = append(out, GroupDTO{
			ID:         g.ID,
			Name:       g.Name,
			PictureURL: g.PictureURL,
			AdminID:    g.AdminID,
			Members:    len(members),
			Online:     online,
			CreatedAt:  g.CreatedAt,
		})
	}
	return out, nil
}

// MemberDTO 是对外输出的群成员数据。
type MemberDTO struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// Members 返回群成员列表；只有群成员本人可以查询。
func (s *GroupService) Members(groupID, requesterID string) ([]MemberDTO, error) {
	var group models.Group
	if err := s.db.Where("id = ? AND deleted_at IS NULL", groupID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	var memberships []models.GroupMember
	if err := s.db.Where("group_id = ?", groupID).Order("joined_at asc").Find(&memberships).Error; err != nil {
		return nil, err
	}
	if !lo.ContainsBy(memberships, func(m models.GroupMember) bool { return m.UserID == requesterID }) {
		return nil, ErrNotGroupMember
	}

	userIDs := lo.Map(memberships, func(m models.GroupMember, _ int) string { return m.UserID })
	var users []models.User
	if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := lo.KeyBy(users, func(u models.User) string { return u.ID })

	out := make([]MemberDTO, 0, len(memberships))
	for _, m := range memberships {
		status := models.StatusOffline
		if s.reg.IsOnline(m.UserID) {
			status = models.StatusOnline
		}
		out = append(out, MemberDTO{
			UserID:   m.UserID,
			Username: byID[m.UserID].Username,
			Role:     m.Role,
			Status:   status,
			JoinedAt: m.JoinedAt,
		})
	}
	return out, nil
}
