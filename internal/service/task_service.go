package service

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskService 任务与里程碑的变更，鉴权后交给 TaskManager
type TaskService interface {
	CreateTask(ctx context.Context, caller auth.Caller, milestoneID string, req *CreateTaskRequest) (*MutationResult, error)
	UpdateTask(ctx context.Context, caller auth.Caller, taskID string, req *UpdateTaskRequest) (*MutationResult, error)
	DeleteTask(ctx context.Context, caller auth.Caller, taskID string) (*MutationResult, error)
	CreateMilestone(ctx context.Context, caller auth.Caller, bookingID string, req *CreateMilestoneRequest) (*MutationResult, error)
	UpdateMilestone(ctx context.Context, caller auth.Caller, milestoneID string, req *UpdateMilestoneRequest) (*MutationResult, error)
	DeleteMilestone(ctx context.Context, caller auth.Caller, milestoneID string) (*MutationResult, error)
}

// CreateTaskRequest 创建任务请求
type CreateTaskRequest struct {
	Title              string     `json:"title" binding:"required"`
	Status             string     `json:"status"`
	DueDate            *time.Time `json:"due_date"`
	ProgressPercentage int        `json:"progress_percentage"`
	EstimatedHours     float64    `json:"estimated_hours"`
	Editable           *bool      `json:"editable"`
}

// UpdateTaskRequest 修改任务请求，缺省字段不修改
type UpdateTaskRequest struct {
	Status             *string    `json:"status"`
	Title              *string    `json:"title"`
	DueDate            *time.Time `json:"due_date"`
	ClearDueDate       bool       `json:"clear_due_date"`
	ProgressPercentage *int       `json:"progress_percentage"`
	EstimatedHours     *float64   `json:"estimated_hours"`
	ActualHours        *float64   `json:"actual_hours"`
	Reason             string     `json:"reason"`
}

// CreateMilestoneRequest 创建里程碑请求
type CreateMilestoneRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Weight      float64    `json:"weight"`
	OrderIndex  int        `json:"order_index"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateMilestoneRequest 修改里程碑请求
type UpdateMilestoneRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Status       *string    `json:"status"`
	Weight       *float64   `json:"weight"`
	OrderIndex   *int       `json:"order_index"`
	DueDate      *time.Time `json:"due_date"`
	ClearDueDate bool       `json:"clear_due_date"`
	Reason       string     `json:"reason"`
}

// MutationResult 变更后的实体与重算出的上级进度
type MutationResult struct {
	Task            *model.TaskModel      `json:"task,omitempty"`
	Milestone       *model.MilestoneModel `json:"milestone,omitempty"`
	BookingID       string                `json:"bookingId,omitempty"`
	BookingProgress *int                  `json:"bookingProgress,omitempty"`
}

func resultOf(out *integration.Outcome) *MutationResult {
	if out == nil {
		return nil
	}
	r := &MutationResult{Task: out.Task, Milestone: out.Milestone()}
	if out.Booking != nil {
		p := out.Booking.ProjectProgress
		r.BookingID = out.Booking.ID
		r.BookingProgress = &p
	}
	return r
}

type taskService struct {
	access  *access
	taskMgr *integration.TaskManager
	audit   AuditLogService
	logger  logrus.FieldLogger
}

// NewTaskService 创建任务服务
func NewTaskService(db *gorm.DB, taskMgr *integration.TaskManager, authorizer auth.Authorizer, audit AuditLogService, logger logrus.FieldLogger) TaskService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &taskService{
		access:  newAccess(db, authorizer),
		taskMgr: taskMgr,
		audit:   audit,
		logger:  logger.WithField("component", "task_service"),
	}
}

func (s *taskService) record(ctx context.Context, caller auth.Caller, action, entity, id string, details interface{}) {
	if caller.UserID == "" {
		return
	}
	recordAudit(ctx, s.audit, s.logger, caller.UserID, action, entity, id, details)
}

// CreateTask 在里程碑下创建任务
func (s *taskService) CreateTask(ctx context.Context, caller auth.Caller, milestoneID string, req *CreateTaskRequest) (*MutationResult, error) {
	if _, err := s.access.milestone(ctx, "createTask", caller, milestoneID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.CreateTask(ctx, milestoneID, integration.NewTask{
		Title:              req.Title,
		Status:             req.Status,
		DueDate:            req.DueDate,
		ProgressPercentage: req.ProgressPercentage,
		EstimatedHours:     req.EstimatedHours,
		Editable:           req.Editable,
	}, caller.UserID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, "create", model.EntityTask, out.Task.ID, map[string]string{"milestone_id": milestoneID})
	return resultOf(out), nil
}

// UpdateTask 修改任务，孤儿任务的写入会保留并返回完整性错误
func (s *taskService) UpdateTask(ctx context.Context, caller auth.Caller, taskID string, req *UpdateTaskRequest) (*MutationResult, error) {
	if _, err := s.access.task(ctx, "mutateTask", caller, taskID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.UpdateTask(ctx, taskID, integration.TaskUpdate{
		Status:             req.Status,
		Title:              req.Title,
		DueDate:            req.DueDate,
		ClearDueDate:       req.ClearDueDate,
		ProgressPercentage: req.ProgressPercentage,
		EstimatedHours:     req.EstimatedHours,
		ActualHours:        req.ActualHours,
		Reason:             req.Reason,
	}, caller.UserID)
	if out != nil && out.Task != nil {
		s.record(ctx, caller, "update", model.EntityTask, taskID, req)
	}
	return resultOf(out), err
}

// DeleteTask 删除任务
func (s *taskService) DeleteTask(ctx context.Context, caller auth.Caller, taskID string) (*MutationResult, error) {
	if _, err := s.access.task(ctx, "deleteTask", caller, taskID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.DeleteTask(ctx, taskID, caller.UserID)
	if err != nil {
		return resultOf(out), err
	}
	s.record(ctx, caller, "delete", model.EntityTask, taskID, nil)
	return resultOf(out), nil
}

// CreateMilestone 在预订下创建里程碑
func (s *taskService) CreateMilestone(ctx context.Context, caller auth.Caller, bookingID string, req *CreateMilestoneRequest) (*MutationResult, error) {
	if _, err := s.access.booking(ctx, "createMilestone", caller, bookingID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.CreateMilestone(ctx, bookingID, integration.NewMilestone{
		Title:       req.Title,
		Description: req.Description,
		Weight:      req.Weight,
		OrderIndex:  req.OrderIndex,
		DueDate:     req.DueDate,
	}, caller.UserID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, caller, "create", model.EntityMilestone, out.Milestone().ID, map[string]string{"booking_id": bookingID})
	return resultOf(out), nil
}

// UpdateMilestone 修改里程碑
func (s *taskService) UpdateMilestone(ctx context.Context, caller auth.Caller, milestoneID string, req *UpdateMilestoneRequest) (*MutationResult, error) {
	if _, err := s.access.milestone(ctx, "mutateMilestone", caller, milestoneID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.UpdateMilestone(ctx, milestoneID, integration.MilestoneUpdate{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Weight:       req.Weight,
		OrderIndex:   req.OrderIndex,
		DueDate:      req.DueDate,
		ClearDueDate: req.ClearDueDate,
		Reason:       req.Reason,
	}, caller.UserID)
	if out != nil && len(out.Milestones) > 0 {
		s.record(ctx, caller, "update", model.EntityMilestone, milestoneID, req)
	}
	return resultOf(out), err
}

// DeleteMilestone 删除里程碑及其任务
func (s *taskService) DeleteMilestone(ctx context.Context, caller auth.Caller, milestoneID string) (*MutationResult, error) {
	if _, err := s.access.milestone(ctx, "deleteMilestone", caller, milestoneID, auth.RelationEditor); err != nil {
		return nil, err
	}
	out, err := s.taskMgr.DeleteMilestone(ctx, milestoneID, caller.UserID)
	if err != nil {
		return resultOf(out), err
	}
	s.record(ctx, caller, "delete", model.EntityMilestone, milestoneID, nil)
	return resultOf(out), nil
}
