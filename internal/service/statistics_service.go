package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"gorm.io/gorm"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	GetTaskStatistics(ctx context.Context) (*TaskStatistics, error)
	GetOutboxStatistics(ctx context.Context) (*OutboxStatistics, error)
}

// TaskStatistics 任务统计
type TaskStatistics struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"byStatus"`
	Overdue  int64            `json:"overdue"`
}

// OutboxStatistics outbox 事件统计
type OutboxStatistics struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
}

type statisticsService struct {
	tasks  repository.TaskRepository
	events repository.EventRepository
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{
		tasks:  repository.NewTaskRepository(db),
		events: repository.NewEventRepository(db),
	}
}

// GetTaskStatistics 按状态统计任务，逾期按当前时间计算
func (s *statisticsService) GetTaskStatistics(ctx context.Context) (*TaskStatistics, error) {
	byStatus, err := s.tasks.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get task statistics by status: %w", err)
	}
	overdue, err := s.tasks.CountOverdue(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count overdue tasks: %w", err)
	}

	stats := &TaskStatistics{ByStatus: byStatus, Overdue: overdue}
	for _, n := range byStatus {
		stats.Total += n
	}
	return stats, nil
}

// GetOutboxStatistics 按投递状态统计事件
func (s *statisticsService) GetOutboxStatistics(ctx context.Context) (*OutboxStatistics, error) {
	stats := &OutboxStatistics{}
	for status, dst := range map[string]*int64{
		model.EventStatusPending: &stats.Pending,
		model.EventStatusSent:    &stats.Sent,
		model.EventStatusFailed:  &stats.Failed,
	} {
		n, err := s.events.CountByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s events: %w", status, err)
		}
		*dst = n
	}
	return stats, nil
}
