package integration

import (
	"context"
	"sync"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/metrics"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventSink outbox 事件的下游，例如 RabbitMQ
type EventSink interface {
	Send(ctx context.Context, routingKey, messageID string, body []byte) error
}

// OutboxDispatcher 定期把待投递的变更事件发送到 EventSink
type OutboxDispatcher struct {
	events     repository.EventRepository
	sink       EventSink
	routingKey func(entityType string) string
	interval   time.Duration
	batchSize  int
	maxRetries int
	logger     logrus.FieldLogger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// DispatcherConfig 投递参数
type DispatcherConfig struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	RoutingKey func(entityType string) string
}

// NewOutboxDispatcher 创建投递器
func NewOutboxDispatcher(db *gorm.DB, sink EventSink, cfg DispatcherConfig, logger logrus.FieldLogger) *OutboxDispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RoutingKey == nil {
		cfg.RoutingKey = func(entityType string) string { return entityType }
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &OutboxDispatcher{
		events:     repository.NewEventRepository(db),
		sink:       sink,
		routingKey: cfg.RoutingKey,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		logger:     logger.WithField("component", "outbox"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start 启动后台投递
func (d *OutboxDispatcher) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop 停止并等待当前批次结束
func (d *OutboxDispatcher) Stop() {
	d.once.Do(func() { close(d.stop) })
	<-d.done
}

func (d *OutboxDispatcher) loop(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.WithError(err).Warn("outbox dispatch failed")
			}
		}
	}
}

// DispatchOnce 投递一批事件，返回成功数
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.events.FindPending(ctx, d.batchSize, d.maxRetries)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, evt := range pending {
		if err := d.send(ctx, evt); err != nil {
			metrics.RecordOutboxDispatch("failed")
			d.logger.WithError(err).WithFields(logrus.Fields{
				"event_id":    evt.ID,
				"entity_type": evt.EntityType,
				"retry_count": evt.RetryCount + 1,
			}).Warn("outbox event delivery failed")
			if markErr := d.events.MarkFailed(ctx, evt.ID, err, d.maxRetries); markErr != nil {
				return sent, markErr
			}
			continue
		}
		if err := d.events.MarkSent(ctx, evt.ID); err != nil {
			return sent, err
		}
		metrics.RecordOutboxDispatch("sent")
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) send(ctx context.Context, evt *model.EventModel) error {
	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return d.sink.Send(sendCtx, d.routingKey(evt.EntityType), evt.ID, evt.Payload)
}
