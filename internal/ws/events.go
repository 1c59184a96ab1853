package ws

import "encoding/json"

// 入站事件名。
const (
	EventSendMessage      = "sendMessage"
	EventMessageDelivered = "messageDelivered"
	EventMessageRead      = "messageRead"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventOnline           = "online"
	EventOffline          = "offline"
	EventLastSeen         = "last_seen"
	EventCreateGroup      = "createGroup"
	EventUpdateGroup      = "updateGroup"
	EventDeleteGroup      = "deleteGroup"
	EventJoinGroup        = "joinGroup"
	EventAddMember        = "addMember"
	EventRemoveMember     = "removeMember"
	EventSendGroupMessage = "sendGroupMessage"
	EventDeleteGroupMsg   = "deleteGroupMessage"
)

// 出站事件名。
const (
	EventReceiveMessage      = "receiveMessage"
	EventUserOnline          = "userOnline"
	EventUserOffline         = "userOffline"
	EventOnlineResponse      = "onlineResponse"
	EventOfflineResponse     = "offlineResponse"
	EventLastSeenResponse    = "lastSeenResponse"
	EventGroupCreated        = "groupCreated"
	EventGroupUpdated        = "groupUpdated"
	EventGroupDeleted        = "groupDeleted"
	EventMemberAdded         = "memberAdded"
	EventMemberRemoved       = "memberRemoved"
	EventRemovedFromGroup    = "removedFromGroup"
	EventReceiveGroupMessage = "receiveGroupMessage"
	EventGroupMessageDeleted = "groupMessageDeleted"
	EventError               = "error"
)

// Frame 入站帧；payload 在传输边界解码一次，之后全程是结构体。
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope 统一的出站信封，客户端可按 type 做通用分发。
type Envelope struct {
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type sendMessagePayload struct {
	ReceiverID  string `json:"receiver_id" validate:"required,uuid"`
	Content     string `json:"message_content" validate:"required_without=MediaURL"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image video voice document emoji"`
	MediaURL    string `json:"media_url" validate:"omitempty,url"`
}

type statusPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

type typingPayload struct {
	ReceiverID string `json:"receiver_id" validate:"required_without=GroupID,omitempty,uuid"`
	GroupID    string `json:"group_id" validate:"required_without=ReceiverID,omitempty,uuid"`
}

type createGroupPayload struct {
	GroupName  string `json:"group_name" validate:"required,max=128"`
	PictureURL string `json:"group_picture_url" validate:"omitempty,url"`
}

type updateGroupPayload struct {
	GroupID    string `json:"group_id" validate:"required,uuid"`
	GroupName  string `json:"group_name" validate:"required,max=128"`
	PictureURL string `json:"group_picture_url" validate:"omitempty,url"`
}

type groupPayload struct {
	GroupID string `json:"group_id" validate:"required,uuid"`
}

type memberPayload struct {
	GroupID  string `json:"group_id" validate:"required,uuid"`
	MemberID string `json:"member_id" validate:"required,uuid"`
}

type sendGroupMessagePayload struct {
	GroupID     string `json:"group_id" validate:"required,uuid"`
	Content     string `json:"message_content" validate:"required_without=MediaURL"`
	MessageType string `json:"message_type" validate:"omitempty,oneof=text image video voice document emoji"`
	MediaURL    string `json:"media_url" validate:"omitempty,url"`
}

type deleteGroupMessagePayload struct {
	GroupID   string `json:"group_id" validate:"required,uuid"`
	MessageID string `json:"message_id" validate:"required,uuid"`
}
