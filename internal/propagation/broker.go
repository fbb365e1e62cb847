package propagation

import (
	"context"
	"sync"

	"github.com/AbuAli85/business-services-hub-sub014/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Callback 订阅回调，在发布方 goroutine 中同步调用，不应阻塞
type Callback func(ChangeEvent)

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, evt ChangeEvent) error
}

// Broker 进程内按预订分发事件，可选地经 Backplane 与其他实例互通
type Broker struct {
	mu        sync.RWMutex
	subs      map[string]map[uint64]*Subscription
	nextID    uint64
	origin    string
	backplane Backplane
	logger    logrus.FieldLogger
}

// BrokerOption Broker 选项
type BrokerOption func(*Broker)

// WithBackplane 设置跨实例转发
func WithBackplane(bp Backplane) BrokerOption {
	return func(b *Broker) { b.backplane = bp }
}

// NewBroker 创建 Broker
func NewBroker(logger logrus.FieldLogger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := &Broker{
		subs:   make(map[string]map[uint64]*Subscription),
		origin: uuid.NewString(),
		logger: logger.WithField("component", "propagation"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin 本实例标识
func (b *Broker) Origin() string {
	return b.origin
}

// Subscribe 订阅某个预订下全部实体的变更
func (b *Broker) Subscribe(bookingID string, cb Callback) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, bookingID: bookingID, cb: cb, broker: b}
	if b.subs[bookingID] == nil {
		b.subs[bookingID] = make(map[uint64]*Subscription)
	}
	b.subs[bookingID][sub.id] = sub
	metrics.UpdateSubscriberCount(b.countLocked())
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[sub.bookingID]
	delete(set, sub.id)
	if len(set) == 0 {
		delete(b.subs, sub.bookingID)
	}
	metrics.UpdateSubscriberCount(b.countLocked())
}

func (b *Broker) countLocked() int {
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

// SubscriberCount 某预订的订阅数，bookingID 为空时返回总数
func (b *Broker) SubscriberCount(bookingID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if bookingID == "" {
		return b.countLocked()
	}
	return len(b.subs[bookingID])
}

// Publish 分发给本地订阅者，再转发到 Backplane
func (b *Broker) Publish(ctx context.Context, evt ChangeEvent) error {
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	b.deliver(evt)
	metrics.RecordEventPublished(evt.EntityType)

	if b.backplane == nil {
		return nil
	}
	if err := b.backplane.Publish(ctx, evt); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"entity_type": evt.EntityType,
			"entity_id":   evt.EntityID,
		}).Warn("backplane publish failed")
		return err
	}
	return nil
}

func (b *Broker) deliver(evt ChangeEvent) {
	b.mu.RLock()
	set := b.subs[evt.BookingID]
	targets := make([]*Subscription, 0, len(set))
	for _, sub := range set {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.invoke(evt, b.logger)
	}
}

// Run 接收其他实例经 Backplane 转发的事件，阻塞到 ctx 结束
func (b *Broker) Run(ctx context.Context) error {
	if b.backplane == nil {
		<-ctx.Done()
		return nil
	}
	return b.backplane.Listen(ctx, func(evt ChangeEvent) {
		if evt.Origin == b.origin {
			return
		}
		b.deliver(evt)
	})
}

// Subscription 一个订阅
type Subscription struct {
	id        uint64
	bookingID string
	cb        Callback
	broker    *Broker
	once      sync.Once
	mu        sync.Mutex
	closed    bool
}

// BookingID 订阅的预订
func (s *Subscription) BookingID() string {
	return s.bookingID
}

// Unsubscribe 取消订阅，可重复调用
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.cb = nil
		s.mu.Unlock()
		s.broker.remove(s)
	})
}

func (s *Subscription) invoke(evt ChangeEvent, logger logrus.FieldLogger) {
	s.mu.Lock()
	cb := s.cb
	closed := s.closed
	s.mu.Unlock()
	if closed || cb == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("booking_id", s.bookingID).Errorf("subscriber callback panicked: %v", r)
		}
	}()
	cb(evt)
}
