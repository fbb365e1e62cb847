package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/utils"
	"gorm.io/gorm"
)

// 任务列表允许的排序字段
var taskSortFields = []string{"created_at", "updated_at", "due_date", "status", "progress_percentage", "title"}

// QueryService 查询服务接口
type QueryService interface {
	ListTasks(ctx context.Context, caller auth.Caller, bookingID string, filter *ListTasksFilter) ([]TaskView, error)
	GetHistory(ctx context.Context, caller auth.Caller, entityType, id string) ([]*model.StateHistoryModel, error)
	ListEvents(ctx context.Context, caller auth.Caller, bookingID string) ([]*model.EventModel, error)
}

// ListTasksFilter 任务列表查询过滤器
type ListTasksFilter struct {
	Status      string `form:"status"`
	MilestoneID string `form:"milestone_id"`
	OverdueOnly bool   `form:"overdue"`
	SortBy      string `form:"sort_by"`
	Order       string `form:"order"`
	Limit       int    `form:"limit"`
}

type queryService struct {
	access  *access
	tasks   repository.TaskRepository
	history repository.StateHistoryRepository
	events  repository.EventRepository
}

// NewQueryService 创建查询服务
func NewQueryService(db *gorm.DB, authorizer auth.Authorizer) QueryService {
	return &queryService{
		access:  newAccess(db, authorizer),
		tasks:   repository.NewTaskRepository(db),
		history: repository.NewStateHistoryRepository(db),
		events:  repository.NewEventRepository(db),
	}
}

// ListTasks 列出预订下的任务
func (s *queryService) ListTasks(ctx context.Context, caller auth.Caller, bookingID string, filter *ListTasksFilter) ([]TaskView, error) {
	const op = "listTasks"
	if filter == nil {
		filter = &ListTasksFilter{}
	}
	if _, err := s.access.booking(ctx, op, caller, bookingID, auth.RelationViewer); err != nil {
		return nil, err
	}

	f := &repository.TaskFilter{BookingID: &bookingID, Limit: filter.Limit}
	if filter.Status != "" {
		if !model.ValidWorkStatus(filter.Status) {
			return nil, apperror.Validation(op, model.EntityTask, "", "unknown status %q", filter.Status)
		}
		f.Status = &filter.Status
	}
	if filter.MilestoneID != "" {
		f.MilestoneID = &filter.MilestoneID
	}
	now := time.Now().UTC()
	if filter.OverdueOnly {
		f.DueBefore = &now
	}
	if filter.SortBy != "" {
		if err := utils.ValidateSortField(filter.SortBy, taskSortFields); err != nil {
			return nil, apperror.Validation(op, model.EntityTask, "", "%s", err.Error())
		}
		f.SortBy = filter.SortBy
		f.SortOrder = utils.SanitizeSortOrder(filter.Order)
	}

	tasks, err := s.tasks.FindByFilter(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	views := make([]TaskView, 0, len(tasks))
	for i := range tasks {
		overdue := progress.IsOverdue(&tasks[i], now)
		if filter.OverdueOnly && !overdue {
			continue
		}
		views = append(views, TaskView{TaskModel: tasks[i], Overdue: overdue})
	}
	return views, nil
}

// GetHistory 任务或里程碑的状态历史
func (s *queryService) GetHistory(ctx context.Context, caller auth.Caller, entityType, id string) ([]*model.StateHistoryModel, error) {
	const op = "getHistory"
	var err error
	switch entityType {
	case model.EntityTask:
		_, err = s.access.task(ctx, op, caller, id, auth.RelationViewer)
	case model.EntityMilestone:
		_, err = s.access.milestone(ctx, op, caller, id, auth.RelationViewer)
	default:
		return nil, apperror.Validation(op, entityType, id, "history is kept for tasks and milestones only")
	}
	if err != nil {
		return nil, err
	}

	histories, err := s.history.ListForEntity(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return histories, nil
}

// ListEvents 预订的变更事件，供断线重连的订阅方补齐
func (s *queryService) ListEvents(ctx context.Context, caller auth.Caller, bookingID string) ([]*model.EventModel, error) {
	if _, err := s.access.booking(ctx, "listEvents", caller, bookingID, auth.RelationViewer); err != nil {
		return nil, err
	}
	return s.events.FindByBookingID(ctx, bookingID)
}
