package integration

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// transitions 允许的状态迁移，相同状态总是允许（重试幂等）
var transitions = map[string][]string{
	model.StatusPending:    {model.StatusInProgress, model.StatusCompleted, model.StatusCancelled, model.StatusOnHold},
	model.StatusInProgress: {model.StatusPending, model.StatusCompleted, model.StatusCancelled, model.StatusOnHold},
	model.StatusOnHold:     {model.StatusPending, model.StatusInProgress, model.StatusCancelled},
	model.StatusCompleted:  {model.StatusInProgress},
	model.StatusCancelled:  {model.StatusPending},
}

// CanTransition 判断状态迁移是否合法
func CanTransition(from, to string) bool {
	if from == to {
		return model.ValidWorkStatus(to)
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NewTask 创建任务参数
type NewTask struct {
	Title              string
	Status             string
	DueDate            *time.Time
	ProgressPercentage int
	EstimatedHours     float64
	Editable           *bool
}

// TaskUpdate 任务变更，nil 字段不修改
type TaskUpdate struct {
	Status             *string
	Title              *string
	DueDate            *time.Time
	ClearDueDate       bool
	ProgressPercentage *int
	EstimatedHours     *float64
	ActualHours        *float64
	Reason             string
}

// NewMilestone 创建里程碑参数
type NewMilestone struct {
	Title       string
	Description string
	Weight      float64
	OrderIndex  int
	DueDate     *time.Time
}

// MilestoneUpdate 里程碑变更，nil 字段不修改
type MilestoneUpdate struct {
	Title        *string
	Description  *string
	Status       *string
	Weight       *float64
	OrderIndex   *int
	DueDate      *time.Time
	ClearDueDate bool
	Reason       string
}

// TaskManager 任务与里程碑的生命周期，所有写入都经过 Recalculator
type TaskManager struct {
	db     *gorm.DB
	recalc *Recalculator
	logger logrus.FieldLogger
}

// NewTaskManager 创建任务管理器
func NewTaskManager(db *gorm.DB, recalc *Recalculator, logger logrus.FieldLogger) *TaskManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TaskManager{db: db, recalc: recalc, logger: logger.WithField("component", "task_manager")}
}

// Recalculator 返回底层重算器
func (m *TaskManager) Recalculator() *Recalculator {
	return m.recalc
}

// CreateTask 在里程碑下创建任务
func (m *TaskManager) CreateTask(ctx context.Context, milestoneID string, in NewTask, operator string) (*Outcome, error) {
	const op = "createTask"

	title, err := utils.CleanTitle(in.Title, 255)
	if err != nil {
		return nil, apperror.Validation(op, model.EntityTask, "", "title: %s", err.Error())
	}
	status := in.Status
	if status == "" {
		status = model.StatusPending
	}
	if !model.ValidWorkStatus(status) {
		return nil, apperror.Validation(op, model.EntityTask, "", "unknown status %q", status)
	}
	if in.ProgressPercentage < 0 || in.ProgressPercentage > 100 {
		return nil, apperror.Validation(op, model.EntityTask, "", "progress %d outside [0,100]", in.ProgressPercentage)
	}
	if status == model.StatusCompleted && in.ProgressPercentage != 0 && in.ProgressPercentage != 100 {
		return nil, apperror.Validation(op, model.EntityTask, "", "completed task must have progress 100")
	}
	if in.EstimatedHours < 0 {
		return nil, apperror.Validation(op, model.EntityTask, "", "estimated hours must not be negative")
	}
	editable := true
	if in.Editable != nil {
		editable = *in.Editable
	}

	task := &model.TaskModel{
		ID:                 NewID(),
		MilestoneID:        milestoneID,
		Title:              title,
		Status:             status,
		DueDate:            utcPtr(in.DueDate),
		ProgressPercentage: in.ProgressPercentage,
		EstimatedHours:     in.EstimatedHours,
		Editable:           editable,
		Version:            1,
	}
	out, err := m.recalc.OnTaskCreated(ctx, task)
	if err != nil {
		return out, err
	}
	m.logger.WithFields(logrus.Fields{"task_id": task.ID, "milestone_id": milestoneID, "operator": operator}).Info("task created")
	return out, nil
}

// UpdateTask 修改任务并重算
func (m *TaskManager) UpdateTask(ctx context.Context, taskID string, upd TaskUpdate, operator string) (*Outcome, error) {
	const op = "mutateTask"

	// 与数据无关的校验在事务外完成
	var title string
	if upd.Title != nil {
		t, err := utils.CleanTitle(*upd.Title, 255)
		if err != nil {
			return nil, apperror.Validation(op, model.EntityTask, taskID, "title: %s", err.Error())
		}
		title = t
	}
	if upd.Status != nil && !model.ValidWorkStatus(*upd.Status) {
		return nil, apperror.Validation(op, model.EntityTask, taskID, "unknown status %q", *upd.Status)
	}
	if p := upd.ProgressPercentage; p != nil && (*p < 0 || *p > 100) {
		return nil, apperror.Validation(op, model.EntityTask, taskID, "progress %d outside [0,100]", *p)
	}
	if (upd.EstimatedHours != nil && *upd.EstimatedHours < 0) || (upd.ActualHours != nil && *upd.ActualHours < 0) {
		return nil, apperror.Validation(op, model.EntityTask, taskID, "hours must not be negative")
	}

	return m.recalc.OnTaskMutated(ctx, taskID, func(tx *gorm.DB, task *model.TaskModel) ([]string, error) {
		if !task.Editable {
			return nil, apperror.Validation(op, model.EntityTask, taskID, "task is not editable")
		}

		var changed []string
		from := task.Status

		if upd.Status != nil && *upd.Status != task.Status {
			if !CanTransition(task.Status, *upd.Status) {
				return nil, apperror.Validation(op, model.EntityTask, taskID, "invalid status transition %s -> %s", task.Status, *upd.Status)
			}
			task.Status = *upd.Status
			changed = append(changed, "status")
			// 重新打开已完成任务时进度归零，除非同时给出进度
			if from == model.StatusCompleted && upd.ProgressPercentage == nil {
				task.ProgressPercentage = 0
				changed = append(changed, "progress_percentage")
			}
		}
		if upd.ProgressPercentage != nil && *upd.ProgressPercentage != task.ProgressPercentage {
			if task.Status == model.StatusCompleted && *upd.ProgressPercentage != 100 {
				return nil, apperror.Validation(op, model.EntityTask, taskID, "completed task must have progress 100")
			}
			task.ProgressPercentage = *upd.ProgressPercentage
			changed = appendOnce(changed, "progress_percentage")
		}
		if task.Status == model.StatusCompleted && task.ProgressPercentage != 100 {
			task.ProgressPercentage = 100
			changed = appendOnce(changed, "progress_percentage")
		}
		if upd.Title != nil && title != task.Title {
			task.Title = title
			changed = append(changed, "title")
		}
		if upd.ClearDueDate && task.DueDate != nil {
			task.DueDate = nil
			changed = append(changed, "due_date")
		} else if upd.DueDate != nil && (task.DueDate == nil || !task.DueDate.Equal(*upd.DueDate)) {
			task.DueDate = utcPtr(upd.DueDate)
			changed = append(changed, "due_date")
		}
		if upd.EstimatedHours != nil && *upd.EstimatedHours != task.EstimatedHours {
			task.EstimatedHours = *upd.EstimatedHours
			changed = append(changed, "estimated_hours")
		}
		if upd.ActualHours != nil && *upd.ActualHours != task.ActualHours {
			task.ActualHours = *upd.ActualHours
			changed = append(changed, "actual_hours")
		}

		if task.Status != from {
			// 孤儿任务的历史不带预订
			bookingID := ""
			if ms, err := repository.NewMilestoneRepository(tx).FindByID(tx.Statement.Context, task.MilestoneID); err == nil {
				bookingID = ms.BookingID
			} else if !apperror.IsNotFound(err) {
				return nil, err
			}
			if err := saveHistory(tx, model.EntityTask, task.ID, bookingID, from, task.Status, upd.Reason, operator); err != nil {
				return nil, err
			}
		}
		return changed, nil
	})
}

// DeleteTask 删除任务并重算
func (m *TaskManager) DeleteTask(ctx context.Context, taskID, operator string) (*Outcome, error) {
	out, err := m.recalc.OnTaskDeleted(ctx, taskID)
	if err == nil {
		m.logger.WithFields(logrus.Fields{"task_id": taskID, "operator": operator}).Info("task deleted")
	}
	return out, err
}

// CreateMilestone 在预订下创建里程碑
func (m *TaskManager) CreateMilestone(ctx context.Context, bookingID string, in NewMilestone, operator string) (*Outcome, error) {
	const op = "createMilestone"

	title, err := utils.CleanTitle(in.Title, 255)
	if err != nil {
		return nil, apperror.Validation(op, model.EntityMilestone, "", "title: %s", err.Error())
	}
	if in.Weight <= 0 {
		return nil, apperror.Validation(op, model.EntityMilestone, "", "weight must be positive, got %v", in.Weight)
	}
	ms := model.MilestoneModel{
		ID:          NewID(),
		BookingID:   bookingID,
		Title:       title,
		Description: in.Description,
		Status:      model.StatusPending,
		Weight:      in.Weight,
		OrderIndex:  in.OrderIndex,
		DueDate:     utcPtr(in.DueDate),
		Version:     1,
	}
	out, err := m.recalc.OnMilestoneCreated(ctx, []model.MilestoneModel{ms}, nil)
	if err != nil {
		return out, err
	}
	m.logger.WithFields(logrus.Fields{"milestone_id": ms.ID, "booking_id": bookingID, "operator": operator}).Info("milestone created")
	return out, nil
}

// UpdateMilestone 修改里程碑并重算
func (m *TaskManager) UpdateMilestone(ctx context.Context, milestoneID string, upd MilestoneUpdate, operator string) (*Outcome, error) {
	const op = "mutateMilestone"

	if upd.Weight != nil && *upd.Weight <= 0 {
		return nil, apperror.Validation(op, model.EntityMilestone, milestoneID, "weight must be positive, got %v", *upd.Weight)
	}
	if upd.Status != nil && !model.ValidWorkStatus(*upd.Status) {
		return nil, apperror.Validation(op, model.EntityMilestone, milestoneID, "unknown status %q", *upd.Status)
	}
	var title string
	if upd.Title != nil {
		t, err := utils.CleanTitle(*upd.Title, 255)
		if err != nil {
			return nil, apperror.Validation(op, model.EntityMilestone, milestoneID, "title: %s", err.Error())
		}
		title = t
	}

	return m.recalc.OnMilestoneMutated(ctx, milestoneID, func(tx *gorm.DB, ms *model.MilestoneModel) ([]string, error) {
		var changed []string
		from := ms.Status

		if upd.Status != nil && *upd.Status != ms.Status {
			if !CanTransition(ms.Status, *upd.Status) {
				return nil, apperror.Validation(op, model.EntityMilestone, milestoneID, "invalid status transition %s -> %s", ms.Status, *upd.Status)
			}
			ms.Status = *upd.Status
			changed = append(changed, "status")
		}
		if upd.Title != nil && title != ms.Title {
			ms.Title = title
			changed = append(changed, "title")
		}
		if upd.Description != nil && *upd.Description != ms.Description {
			ms.Description = *upd.Description
			changed = append(changed, "description")
		}
		if upd.Weight != nil && *upd.Weight != ms.Weight {
			ms.Weight = *upd.Weight
			changed = append(changed, "weight")
		}
		if upd.OrderIndex != nil && *upd.OrderIndex != ms.OrderIndex {
			ms.OrderIndex = *upd.OrderIndex
			changed = append(changed, "order_index")
		}
		if upd.ClearDueDate && ms.DueDate != nil {
			ms.DueDate = nil
			changed = append(changed, "due_date")
		} else if upd.DueDate != nil && (ms.DueDate == nil || !ms.DueDate.Equal(*upd.DueDate)) {
			ms.DueDate = utcPtr(upd.DueDate)
			changed = append(changed, "due_date")
		}

		if ms.Status != from {
			if err := saveHistory(tx, model.EntityMilestone, ms.ID, ms.BookingID, from, ms.Status, upd.Reason, operator); err != nil {
				return nil, err
			}
		}
		return changed, nil
	})
}

// DeleteMilestone 删除里程碑及其任务
func (m *TaskManager) DeleteMilestone(ctx context.Context, milestoneID, operator string) (*Outcome, error) {
	out, err := m.recalc.OnMilestoneDeleted(ctx, milestoneID)
	if err == nil {
		m.logger.WithFields(logrus.Fields{"milestone_id": milestoneID, "operator": operator}).Info("milestone deleted")
	}
	return out, err
}

// History 实体状态历史
func (m *TaskManager) History(ctx context.Context, entityType, entityID string) ([]*model.StateHistoryModel, error) {
	return repository.NewStateHistoryRepository(m.db).ListForEntity(ctx, entityType, entityID)
}

func saveHistory(tx *gorm.DB, entityType, entityID, bookingID, from, to, reason, operator string) error {
	if operator == "" {
		operator = "system"
	}
	return repository.NewStateHistoryRepository(tx).Append(tx.Statement.Context, &model.StateHistoryModel{
		ID:         NewID(),
		EntityType: entityType,
		EntityID:   entityID,
		BookingID:  bookingID,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		Operator:   operator,
		CreatedAt:  time.Now().UTC(),
	})
}

func appendOnce(fields []string, f string) []string {
	for _, x := range fields {
		if x == f {
			return fields
		}
	}
	return append(fields, f)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
