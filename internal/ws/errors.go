package ws

import "errors"

// 实时内核的错误分类；handler 据此决定回给哪个连接、回什么消息。
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotFound          = errors.New("not found")
	ErrNotMember         = errors.New("not a member")
	ErrRoomNotFound      = errors.New("room not found")
	ErrAlreadyMember     = errors.New("already a member")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMalformedPayload  = errors.New("malformed payload")
	ErrStorage           = errors.New("storage failure")
)

// errorText 把内部错误映射为回给客户端的文案，存储细节不外泄。
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrNotMember):
		return "not a member"
	case errors.Is(err, ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, ErrAlreadyMember):
		return "already a member"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid status transition"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed payload"
	case errors.Is(err, ErrStorage):
		return "storage failure"
	default:
		return "internal error"
	}
}
