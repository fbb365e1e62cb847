package repository

import (
	"context"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// TaskRepository 任务仓储接口
type TaskRepository interface {
	Create(ctx context.Context, task *model.TaskModel) error
	FindByID(ctx context.Context, id string) (*model.TaskModel, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.TaskModel, error)
	ListByMilestoneID(ctx context.Context, milestoneID string) ([]model.TaskModel, error)
	ListByBookingID(ctx context.Context, bookingID string) ([]model.TaskModel, error)
	UpdateFields(ctx context.Context, task *model.TaskModel, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	DeleteByMilestoneID(ctx context.Context, milestoneID string) (int64, error)
	FindByFilter(ctx context.Context, filter *TaskFilter) ([]model.TaskModel, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
	// FindOrphans 查找所属里程碑不存在的任务
	FindOrphans(ctx context.Context) ([]model.TaskModel, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	Status      *string
	BookingID   *string
	MilestoneID *string
	DueBefore   *time.Time
	SortBy      string
	SortOrder   string
	Limit       int
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) Create(ctx context.Context, task *model.TaskModel) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *taskRepository) FindByID(ctx context.Context, id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, notFound(err, model.EntityTask, id)
	}
	return &task, nil
}

func (r *taskRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, notFound(err, model.EntityTask, id)
	}
	return &task, nil
}

func (r *taskRepository) ListByMilestoneID(ctx context.Context, milestoneID string) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.db.WithContext(ctx).
		Where("milestone_id = ?", milestoneID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) ListByBookingID(ctx context.Context, bookingID string) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.db.WithContext(ctx).
		Where("milestone_id IN (?)", r.db.Model(&model.MilestoneModel{}).Select("id").Where("booking_id = ?", bookingID)).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) UpdateFields(ctx context.Context, task *model.TaskModel, expectedVersion int64) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("id = ? AND version = ?", task.ID, expectedVersion).
		Updates(map[string]interface{}{
			"title":               task.Title,
			"status":              task.Status,
			"due_date":            task.DueDate,
			"progress_percentage": task.ProgressPercentage,
			"estimated_hours":     task.EstimatedHours,
			"actual_hours":        task.ActualHours,
			"editable":            task.Editable,
			"version":             gorm.Expr("version + 1"),
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperror.Conflict("mutateTask", model.EntityTask, task.ID)
	}
	task.Version = expectedVersion + 1
	task.UpdatedAt = now
	return nil
}

func (r *taskRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TaskModel{}).Error
}

func (r *taskRepository) DeleteByMilestoneID(ctx context.Context, milestoneID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("milestone_id = ?", milestoneID).Delete(&model.TaskModel{})
	return res.RowsAffected, res.Error
}

// FindByFilter 根据过滤器查找任务，排序字段由调用方校验
func (r *taskRepository) FindByFilter(ctx context.Context, filter *TaskFilter) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	query := r.db.WithContext(ctx).Model(&model.TaskModel{})

	order := "created_at DESC"
	if filter != nil {
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.BookingID != nil {
			query = query.Where("milestone_id IN (?)",
				r.db.Model(&model.MilestoneModel{}).Select("id").Where("booking_id = ?", *filter.BookingID))
		}
		if filter.MilestoneID != nil {
			query = query.Where("milestone_id = ?", *filter.MilestoneID)
		}
		if filter.DueBefore != nil {
			query = query.Where("due_date IS NOT NULL AND due_date < ?", *filter.DueBefore)
		}
		if filter.SortBy != "" {
			order = filter.SortBy + " " + filter.SortOrder
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	err := query.Order(order).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *taskRepository) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TaskModel{}).
		Where("due_date IS NOT NULL AND due_date < ? AND status <> ?", now, model.StatusCompleted).
		Count(&n).Error
	return n, err
}

func (r *taskRepository) FindOrphans(ctx context.Context) ([]model.TaskModel, error) {
	var tasks []model.TaskModel
	err := r.db.WithContext(ctx).
		Where("milestone_id NOT IN (?)", r.db.Model(&model.MilestoneModel{}).Select("id")).
		Find(&tasks).Error
	return tasks, err
}
