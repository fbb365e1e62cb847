// Package apperror 引擎的错误分类
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindIntegrity  Kind = "integrity"
	KindConflict   Kind = "concurrency_conflict"
)

// Error 带实体与操作上下文的错误
type Error struct {
	Kind      Kind
	Entity    string // task/milestone/booking
	ID        string
	Operation string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Operation, e.Entity)
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类别的 *Error 视为相等，便于 errors.Is(err, apperror.ErrConflict)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Entity == "" && t.ID == ""
}

// 类别哨兵
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
	ErrConflict   = &Error{Kind: KindConflict}
)

func newError(kind Kind, op, entity, id, msg string) *Error {
	return &Error{Kind: kind, Operation: op, Entity: entity, ID: id, Message: msg}
}

// Validation 输入不合法
func Validation(op, entity, id, format string, args ...interface{}) *Error {
	return newError(KindValidation, op, entity, id, fmt.Sprintf(format, args...))
}

// NotFound 实体不存在
func NotFound(op, entity, id string) *Error {
	return newError(KindNotFound, op, entity, id, "not found")
}

// Forbidden 调用方与预订没有关系
func Forbidden(op, entity, id string) *Error {
	return newError(KindForbidden, op, entity, id, "access denied")
}

// Integrity 找不到上级实体
func Integrity(op, entity, id, format string, args ...interface{}) *Error {
	return newError(KindIntegrity, op, entity, id, fmt.Sprintf(format, args...))
}

// Conflict 并发重算冲突
func Conflict(op, entity, id string) *Error {
	return newError(KindConflict, op, entity, id, "version changed concurrently")
}

// WithCause 附加底层错误
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// KindOf 返回错误类别，非 *Error 返回空
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConflict 是否为并发冲突
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound 是否为不存在
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsIntegrity 是否为完整性错误
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }

// HTTPStatus 错误类别对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
