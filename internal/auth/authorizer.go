package auth

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
)

// 预订上的关系
const (
	RelationViewer = "viewer"
	RelationEditor = "editor"
)

// Authorizer 判断调用方对预订的访问权限
type Authorizer interface {
	Authorize(ctx context.Context, caller Caller, booking *model.BookingModel, relation string) (bool, error)
}

// RelationAuthorizer 基于预订的 client_id / provider_id 判断
//
// viewer: 客户、服务方、管理员；editor: 服务方、管理员。
type RelationAuthorizer struct{}

// NewRelationAuthorizer 创建基于预订关系的鉴权器
func NewRelationAuthorizer() *RelationAuthorizer {
	return &RelationAuthorizer{}
}

// Authorize 实现 Authorizer
func (a *RelationAuthorizer) Authorize(_ context.Context, caller Caller, booking *model.BookingModel, relation string) (bool, error) {
	if caller.IsAdmin() {
		return true, nil
	}
	if caller.UserID == "" || booking == nil {
		return false, nil
	}
	isProvider := booking.ProviderID == caller.UserID
	switch relation {
	case RelationViewer:
		return isProvider || booking.ClientID == caller.UserID, nil
	case RelationEditor:
		return isProvider, nil
	}
	return false, nil
}
