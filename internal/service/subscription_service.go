package service

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"gorm.io/gorm"
)

// Subscriber 按预订订阅变更，propagation.Broker 实现它
type Subscriber interface {
	Subscribe(bookingID string, cb propagation.Callback) *propagation.Subscription
}

// SubscriptionService 带访问控制的变更订阅
type SubscriptionService interface {
	Subscribe(ctx context.Context, caller auth.Caller, bookingID string, cb propagation.Callback) (*propagation.Subscription, error)
}

type subscriptionService struct {
	access     *access
	subscriber Subscriber
}

// NewSubscriptionService 创建订阅服务
func NewSubscriptionService(db *gorm.DB, subscriber Subscriber, authorizer auth.Authorizer) SubscriptionService {
	return &subscriptionService{
		access:     newAccess(db, authorizer),
		subscriber: subscriber,
	}
}

// Subscribe 调用方需要是预订的客户、服务方或管理员
func (s *subscriptionService) Subscribe(ctx context.Context, caller auth.Caller, bookingID string, cb propagation.Callback) (*propagation.Subscription, error) {
	if _, err := s.access.booking(ctx, "subscribe", caller, bookingID, auth.RelationViewer); err != nil {
		return nil, err
	}
	return s.subscriber.Subscribe(bookingID, cb), nil
}
