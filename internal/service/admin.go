package service

import (
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/rahulrsolguruz/chat-app-api/internal/models"
)

// AdminService 封装管理端的统计与审计查询。
type AdminService struct {
	db *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{db: db}
}

// ActivityDTO 是对外输出的审计记录。
type ActivityDTO struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	ActivityType string    `json:"activity_type"`
	TargetID     string    `json:"target_id,omitempty"`
	TargetType   string    `json:"target_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityReport 分页查询审计日志，按时间倒序；可按用户或动作类型过滤。
func (s *AdminService) ActivityReport(limit, offset int, userID, activityType string) ([]ActivityDTO, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	q := s.db.Model(&models.UserActivity{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if activityType != "" {
		q = q.Where("activity_type = ?", activityType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []models.UserActivity
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return nil, 0, err
	}

	userIDs := lo.Uniq(lo.Map(recs, func(r models.UserActivity, _ int) string { return r.UserID }))
	usernames := make(map[string]string, len(userIDs))
	if len(userIDs) > 0 {
		var users []models.User
		if err := s.db.Select("id", "username").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			return nil, 0, err
		}
		for _, u := range users {
			usernames[u.ID] = u.Username
		}
	}

	out := lo.Map(recs, func(r models.UserActivity, _ int) ActivityDTO {
		return ActivityDTO{
			ID:           r.ID,
			UserID:       r.UserID,
			Username:     usernames[r.UserID],
			ActivityType: r.ActivityType,
			TargetID:     r.TargetID,
			TargetType:   r.TargetType,
			CreatedAt:    r.CreatedAt,
		}
	})
	return out, total, nil
}

// OverviewDTO 是管理端的全局概览。
type OverviewDTO struct {
	Users    int64 `json:"users"`
	Groups   int64 `json:"groups"`
	Messages int64 `json:"messages"`
	Online   int64 `json:"online"`
}

// Overview 返回全局统计概览。
func (s *AdminService) Overview() (*OverviewDTO, error) {
	var out OverviewDTO
	if err := s.db.Model(&models.User{}).Count(&out.Users).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Group{}).Where("deleted_at IS NULL").Count(&out.Groups).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.Message{}).Where("deleted_at IS NULL").Count(&out.Messages).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.User{}).Where("status = ?", models.StatusOnline).Count(&out.Online).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
