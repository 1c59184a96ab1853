package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 用户在线状态。
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// 消息投递状态，只允许单向推进 sent -> delivered -> read。
const (
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
)

// 消息内容类型。
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeVoice    = "voice"
	TypeDocument = "document"
	TypeEmoji    = "emoji"
)

// 群成员角色。
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// 活动日志的目标类型。
const (
	TargetUser    = "user"
	TargetGroup   = "group"
	TargetMessage = "message"
)

// 活动日志的动作类型。
const (
	ActivityUserCreated    = "user_created"
	ActivityGroupCreated   = "group_created"
	ActivityGroupUpdated   = "group_updated"
	ActivityGroupDeleted   = "group_deleted"
	ActivityGroupJoined    = "group_joined"
	ActivityMemberAdded    = "member_added"
	ActivityMemberRemoved  = "member_removed"
	ActivityMessageSent    = "message_sent"
	ActivityGroupMsgSent   = "group_message_sent"
	ActivityMessageDeleted = "message_deleted"
	ActivityContactAdded   = "contact_added"
	ActivityProfileUpdated = "profile_updated"
	ActivityMediaUploaded  = "media_uploaded"
	ActivityStatusChanged  = "status_changed"
)

type User struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:256;not null"`
	PasswordHash string `gorm:"not null"`
	Bio          string `gorm:"type:text"`
	AvatarURL    string `gorm:"size:512"`
	Role         string `gorm:"size:16;not null;default:member"`
	Status       string `gorm:"size:16;not null;default:offline"`
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"type:uuid;index;not null"`
	Token     string    `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

type Contact struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index:idx_contact_pair,unique;not null"`
	ContactID string `gorm:"type:uuid;index:idx_contact_pair,unique;not null"`
	CreatedAt time.Time
}

func (c *Contact) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type Group struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	Name       string `gorm:"size:128;not null"`
	PictureURL string `gorm:"size:512"`
	AdminID    string `gorm:"type:uuid;index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time `gorm:"index"`
}

func (g *Group) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

type GroupMember struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	GroupID  string `gorm:"type:uuid;index:idx_group_member,unique;not null"`
	UserID   string `gorm:"type:uuid;index:idx_group_member,unique;not null"`
	Role     string `gorm:"size:16;not null;default:member"`
	JoinedAt time.Time
}

func (m *GroupMember) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Message 一对一消息，删除采用 deleted_at 墓碑而非物理删除。
type Message struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	SenderID   string `gorm:"type:uuid;index;not null"`
	ReceiverID string `gorm:"type:uuid;index;not null"`
	Content    string `gorm:"type:text"`
	Type       string `gorm:"size:16;not null;default:text"`
	Status     string `gorm:"size:16;not null;default:sent"`
	MediaURL   string `gorm:"size:512"`
	CreatedAt  time.Time
	DeletedAt  *time.Time `gorm:"index"`
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

type GroupMessage struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	GroupID   string `gorm:"type:uuid;index;not null"`
	SenderID  string `gorm:"type:uuid;index;not null"`
	Content   string `gorm:"type:text"`
	Type      string `gorm:"size:16;not null;default:text"`
	Status    string `gorm:"size:16;not null;default:sent"`
	MediaURL  string `gorm:"size:512"`
	CreatedAt time.Time
	DeletedAt *time.Time `gorm:"index"`
}

func (m *GroupMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// UserActivity 只追加的审计记录，任何操作都不会修改或删除已有行。
type UserActivity struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"type:uuid;index;not null"`
	ActivityType string    `gorm:"size:48;not null"`
	TargetID     string    `gorm:"type:uuid;index"`
	TargetType   string    `gorm:"size:16;not null"`
	CreatedAt    time.Time `gorm:"index"`
}

func (a *UserActivity) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
