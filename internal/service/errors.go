package service

import (
	"errors"

	"socialchat/internal/auth"
)

// 错误分类，handler 用 errors.Is 判断类别并映射到 HTTP 状态码。
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = auth.ErrUnauthenticated
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error { return &kindError{kind: kind, msg: msg} }

// 具体业务错误，错误文本可直接返回给客户端。
var (
	ErrUserNotFound         = newError(ErrNotFound, "user not found")
	ErrConversationNotFound = newError(ErrNotFound, "conversation not found")
	ErrNotificationNotFound = newError(ErrNotFound, "notification not found")

	ErrNotParticipant = newError(ErrForbidden, "not a participant of this conversation")
	ErrNotOwner       = newError(ErrForbidden, "notification belongs to another user")

	ErrEmptyMessage            = newError(ErrValidation, "message content must not be empty")
	ErrSelfConversation        = newError(ErrValidation, "cannot start a conversation with yourself")
	ErrSelfNotification        = newError(ErrValidation, "cannot notify yourself")
	ErrInvalidNotificationType = newError(ErrValidation, "unknown notification type")
	ErrInvalidUsername         = newError(ErrValidation, "invalid username")
	ErrInvalidPassword         = newError(ErrValidation, "invalid password")

	ErrUsernameTaken      = newError(ErrConflict, "username taken")
	ErrInvalidCredentials = newError(ErrUnauthenticated, "invalid credentials")
)
