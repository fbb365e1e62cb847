package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/metrics"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/propagation"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskMutation 在事务内修改任务，返回变更的字段；重试时会在新读取的任务上再次调用
type TaskMutation func(tx *gorm.DB, task *model.TaskModel) ([]string, error)

// MilestoneMutation 在事务内修改里程碑
type MilestoneMutation func(tx *gorm.DB, milestone *model.MilestoneModel) ([]string, error)

// Outcome 一次重算后的最终状态
type Outcome struct {
	Task       *model.TaskModel
	Milestones []model.MilestoneModel
	Booking    *model.BookingModel
	Events     []propagation.ChangeEvent
}

// Milestone 返回受影响的第一个里程碑
func (o *Outcome) Milestone() *model.MilestoneModel {
	if o == nil || len(o.Milestones) == 0 {
		return nil
	}
	return &o.Milestones[0]
}

// Recalculator 缓存进度的唯一写入方
//
// 每次变更在一个事务内完成：写入实体、重新读取全部子任务计算里程碑进度、
// 重新读取全部里程碑计算预订进度，写 outbox；提交后按 任务、里程碑、预订 的顺序发布事件。
// 缓存进度按版本号条件更新，冲突时整个事务用新数据重试。
type Recalculator struct {
	db         *gorm.DB
	mode       progress.Mode
	maxRetries int
	publisher  propagation.Publisher
	logger     logrus.FieldLogger

	// 测试钩子，在写入缓存进度前调用
	beforeProgressWrite func(tx *gorm.DB, entity string)
}

// NewRecalculator 创建 Recalculator，publisher 为 nil 时只写 outbox
func NewRecalculator(db *gorm.DB, mode progress.Mode, maxRetries int, publisher propagation.Publisher, logger logrus.FieldLogger) *Recalculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Recalculator{
		db:         db,
		mode:       mode,
		maxRetries: maxRetries,
		publisher:  publisher,
		logger:     logger.WithField("component", "recalculator"),
	}
}

// Mode 当前进度模式
func (r *Recalculator) Mode() progress.Mode {
	return r.mode
}

// scope 单次事务内的仓储与待发布事件
type scope struct {
	ctx        context.Context
	tx         *gorm.DB
	tasks      repository.TaskRepository
	milestones repository.MilestoneRepository
	bookings   repository.BookingRepository
	events     repository.EventRepository

	out       Outcome
	integrity error
}

func (r *Recalculator) newScope(ctx context.Context, tx *gorm.DB) *scope {
	return &scope{
		ctx:        ctx,
		tx:         tx,
		tasks:      repository.NewTaskRepository(tx),
		milestones: repository.NewMilestoneRepository(tx),
		bookings:   repository.NewBookingRepository(tx),
		events:     repository.NewEventRepository(tx),
	}
}

// emit 写 outbox 并记录待发布事件
func (s *scope) emit(entityType, entityID, bookingID string, changed []string, value interface{}, version int64, at time.Time) error {
	evt, err := propagation.NewChangeEvent(entityType, entityID, bookingID, changed, value, version, at)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	row := &model.EventModel{
		ID:            evt.ID,
		EntityType:    entityType,
		EntityID:      entityID,
		BookingID:     bookingID,
		ChangedFields: strings.Join(changed, ","),
		Payload:       payload,
		EntityVersion: version,
		Status:        model.EventStatusPending,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := s.events.Save(s.ctx, row); err != nil {
		return fmt.Errorf("failed to write outbox event: %w", err)
	}
	s.out.Events = append(s.out.Events, evt)
	return nil
}

// run 执行事务，处理冲突重试、指标和提交后的事件发布
func (r *Recalculator) run(ctx context.Context, trigger string, fn func(s *scope) error) (*Outcome, error) {
	start := time.Now()
	var s *scope
	var err error

	for attempt := 0; ; attempt++ {
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			s = r.newScope(ctx, tx)
			return fn(s)
		})
		err = repository.TranslateLockError(err, "recompute", trigger, "")
		if err == nil || !apperror.IsConflict(err) {
			break
		}
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			metrics.RecordConflict(appErr.Entity)
		}
		if attempt >= r.maxRetries {
			r.logger.WithError(err).WithField("trigger", trigger).Warn("recompute conflict persisted after retries")
			break
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"trigger": trigger,
			"attempt": attempt + 1,
		}).Debug("recompute conflict, retrying with fresh reads")
	}

	elapsed := time.Since(start).Seconds()
	if err != nil {
		outcome := "error"
		switch apperror.KindOf(err) {
		case apperror.KindConflict:
			outcome = "conflict"
		case apperror.KindIntegrity:
			outcome = "integrity"
			metrics.RecordIntegrityError()
		case apperror.KindValidation, apperror.KindNotFound:
			outcome = "rejected"
		}
		metrics.RecordRecompute(trigger, outcome, elapsed)
		return nil, err
	}

	r.publish(ctx, s.out.Events)

	if s.integrity != nil {
		metrics.RecordIntegrityError()
		metrics.RecordRecompute(trigger, "integrity", elapsed)
		r.logger.WithError(s.integrity).WithField("trigger", trigger).
			Warn("orphaned entity, cached progress left unchanged for manual repair")
		return &s.out, s.integrity
	}

	metrics.RecordRecompute(trigger, "ok", elapsed)
	return &s.out, nil
}

// publish 提交后发布；持久化已成功，发布失败只记录日志，outbox 负责补发
func (r *Recalculator) publish(ctx context.Context, events []propagation.ChangeEvent) {
	if r.publisher == nil {
		return
	}
	for _, evt := range events {
		if err := r.publisher.Publish(ctx, evt); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"entity_type": evt.EntityType,
				"entity_id":   evt.EntityID,
			}).Warn("change event publish failed")
		}
	}
}

// resolveParents 在任何派生写入前解析上级；不存在时记录完整性错误
func (s *scope) resolveParents(op, childEntity, childID, milestoneID string) (*model.MilestoneModel, *model.BookingModel, error) {
	ms, err := s.milestones.FindByIDForUpdate(s.ctx, milestoneID)
	if err != nil {
		if apperror.IsNotFound(err) {
			s.integrity = apperror.Integrity(op, childEntity, childID, "owning milestone %s not found", milestoneID)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	booking, err := s.resolveBooking(op, model.EntityMilestone, ms.ID, ms.BookingID)
	if err != nil || booking == nil {
		return nil, nil, err
	}
	return ms, booking, nil
}

func (s *scope) resolveBooking(op, childEntity, childID, bookingID string) (*model.BookingModel, error) {
	booking, err := s.bookings.FindByIDForUpdate(s.ctx, bookingID)
	if err != nil {
		if apperror.IsNotFound(err) {
			s.integrity = apperror.Integrity(op, childEntity, childID, "owning booking %s not found", bookingID)
			return nil, nil
		}
		return nil, err
	}
	return booking, nil
}

// recomputeMilestone 从最新任务集合计算并写入里程碑进度，changed 为本次一并发布的其他字段
func (r *Recalculator) recomputeMilestone(s *scope, ms *model.MilestoneModel, changed []string) error {
	tasks, err := s.tasks.ListByMilestoneID(s.ctx, ms.ID)
	if err != nil {
		return fmt.Errorf("failed to list tasks of milestone %s: %w", ms.ID, err)
	}
	pct := progress.ComputeMilestoneProgress(progress.SnapshotTasks(tasks), r.mode)

	if r.beforeProgressWrite != nil {
		r.beforeProgressWrite(s.tx, model.EntityMilestone)
	}
	now := time.Now().UTC()
	version, err := s.milestones.UpdateProgress(s.ctx, ms.ID, ms.Version, pct, now)
	if err != nil {
		return err
	}
	ms.ProgressPercentage = pct
	ms.Version = version
	ms.UpdatedAt = now

	s.out.Milestones = append(s.out.Milestones, *ms)
	fields := append(append([]string{}, changed...), "progress_percentage")
	return s.emit(model.EntityMilestone, ms.ID, ms.BookingID, fields, ms, ms.Version, now)
}

// recomputeBooking 从最新里程碑集合计算并写入预订进度
func (r *Recalculator) recomputeBooking(s *scope, booking *model.BookingModel) error {
	milestones, err := s.milestones.ListByBookingID(s.ctx, booking.ID)
	if err != nil {
		return fmt.Errorf("failed to list milestones of booking %s: %w", booking.ID, err)
	}
	pct := progress.ComputeBookingProgress(progress.SnapshotMilestones(milestones))

	if r.beforeProgressWrite != nil {
		r.beforeProgressWrite(s.tx, model.EntityBooking)
	}
	now := time.Now().UTC()
	version, err := s.bookings.UpdateProgress(s.ctx, booking.ID, booking.Version, pct, now)
	if err != nil {
		return err
	}
	booking.ProjectProgress = pct
	booking.Version = version
	booking.UpdatedAt = now

	s.out.Booking = booking
	return s.emit(model.EntityBooking, booking.ID, booking.ID, []string{"project_progress"}, booking, booking.Version, now)
}

// OnTaskMutated 修改任务并级联重算
func (r *Recalculator) OnTaskMutated(ctx context.Context, taskID string, mutate TaskMutation) (*Outcome, error) {
	const op = "onTaskMutated"
	return r.run(ctx, "task", func(s *scope) error {
		task, err := s.tasks.FindByIDForUpdate(s.ctx, taskID)
		if err != nil {
			return err
		}
		expected := task.Version

		changed, err := mutate(s.tx, task)
		if err != nil {
			return err
		}
		task.Normalize()
		if err := task.Validate(); err != nil {
			return apperror.Validation(op, model.EntityTask, taskID, "%s", err.Error())
		}
		if len(changed) > 0 {
			if err := s.tasks.UpdateFields(s.ctx, task, expected); err != nil {
				return err
			}
		}
		s.out.Task = task

		ms, booking, err := s.resolveParents(op, model.EntityTask, task.ID, task.MilestoneID)
		if err != nil {
			return err
		}
		if ms == nil {
			return nil
		}
		if err := s.emit(model.EntityTask, task.ID, booking.ID, changed, task, task.Version, task.UpdatedAt); err != nil {
			return err
		}
		if err := r.recomputeMilestone(s, ms, nil); err != nil {
			return err
		}
		return r.recomputeBooking(s, booking)
	})
}

// OnTaskCreated 创建任务并级联重算，所属里程碑必须存在
func (r *Recalculator) OnTaskCreated(ctx context.Context, task *model.TaskModel) (*Outcome, error) {
	const op = "createTask"
	return r.run(ctx, "task", func(s *scope) error {
		ms, err := s.milestones.FindByIDForUpdate(s.ctx, task.MilestoneID)
		if err != nil {
			return err
		}
		booking, err := s.resolveBooking(op, model.EntityMilestone, ms.ID, ms.BookingID)
		if err != nil {
			return err
		}

		created := *task
		created.Normalize()
		if created.CreatedAt.IsZero() {
			created.CreatedAt = time.Now().UTC()
		}
		created.UpdatedAt = created.CreatedAt
		if created.Version == 0 {
			created.Version = 1
		}
		if err := created.Validate(); err != nil {
			return apperror.Validation(op, model.EntityTask, created.ID, "%s", err.Error())
		}
		if err := s.tasks.Create(s.ctx, &created); err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		s.out.Task = &created

		if booking == nil {
			// 不在孤儿里程碑下创建任务
			return s.integrity
		}
		if err := s.emit(model.EntityTask, created.ID, booking.ID, []string{"created"}, &created, created.Version, created.UpdatedAt); err != nil {
			return err
		}
		if err := r.recomputeMilestone(s, ms, nil); err != nil {
			return err
		}
		return r.recomputeBooking(s, booking)
	})
}

// OnTaskDeleted 删除任务并级联重算
func (r *Recalculator) OnTaskDeleted(ctx context.Context, taskID string) (*Outcome, error) {
	const op = "deleteTask"
	return r.run(ctx, "task", func(s *scope) error {
		task, err := s.tasks.FindByIDForUpdate(s.ctx, taskID)
		if err != nil {
			return err
		}
		if err := s.tasks.Delete(s.ctx, task.ID); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", task.ID, err)
		}
		s.out.Task = task

		ms, booking, err := s.resolveParents(op, model.EntityTask, task.ID, task.MilestoneID)
		if err != nil || ms == nil {
			return err
		}
		tombstone := map[string]interface{}{"id": task.ID, "milestone_id": task.MilestoneID, "deleted": true}
		if err := s.emit(model.EntityTask, task.ID, booking.ID, []string{"deleted"}, tombstone, task.Version+1, time.Now().UTC()); err != nil {
			return err
		}
		if err := r.recomputeMilestone(s, ms, nil); err != nil {
			return err
		}
		return r.recomputeBooking(s, booking)
	})
}

// OnMilestoneMutated 修改里程碑并级联重算
func (r *Recalculator) OnMilestoneMutated(ctx context.Context, milestoneID string, mutate MilestoneMutation) (*Outcome, error) {
	const op = "onMilestoneMutated"
	return r.run(ctx, "milestone", func(s *scope) error {
		ms, err := s.milestones.FindByIDForUpdate(s.ctx, milestoneID)
		if err != nil {
			return err
		}
		expected := ms.Version

		changed, err := mutate(s.tx, ms)
		if err != nil {
			return err
		}
		if err := ms.Validate(); err != nil {
			return apperror.Validation(op, model.EntityMilestone, milestoneID, "%s", err.Error())
		}
		if len(changed) > 0 {
			if err := s.milestones.UpdateFields(s.ctx, ms, expected); err != nil {
				return err
			}
		}

		booking, err := s.resolveBooking(op, model.EntityMilestone, ms.ID, ms.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			s.out.Milestones = append(s.out.Milestones, *ms)
			return nil
		}
		if err := r.recomputeMilestone(s, ms, changed); err != nil {
			return err
		}
		return r.recomputeBooking(s, booking)
	})
}

// OnMilestoneCreated 创建里程碑及其任务并级联重算，所属预订必须存在
func (r *Recalculator) OnMilestoneCreated(ctx context.Context, milestones []model.MilestoneModel, tasks []model.TaskModel) (*Outcome, error) {
	const op = "createMilestone"
	if len(milestones) == 0 {
		return nil, apperror.Validation(op, model.EntityMilestone, "", "no milestones given")
	}
	bookingID := milestones[0].BookingID
	return r.run(ctx, "milestone", func(s *scope) error {
		booking, err := s.bookings.FindByIDForUpdate(s.ctx, bookingID)
		if err != nil {
			return err
		}

		created := make([]model.MilestoneModel, len(milestones))
		for i := range milestones {
			created[i] = milestones[i]
			m := &created[i]
			if m.BookingID != bookingID {
				return apperror.Validation(op, model.EntityMilestone, m.ID, "milestones must belong to one booking")
			}
			if m.Version == 0 {
				m.Version = 1
			}
			if err := m.Validate(); err != nil {
				return apperror.Validation(op, model.EntityMilestone, m.ID, "%s", err.Error())
			}
			if err := s.milestones.Create(s.ctx, m); err != nil {
				return fmt.Errorf("failed to create milestone: %w", err)
			}
		}
		for i := range tasks {
			t := tasks[i]
			t.Normalize()
			if t.Version == 0 {
				t.Version = 1
			}
			if err := t.Validate(); err != nil {
				return apperror.Validation(op, model.EntityTask, t.ID, "%s", err.Error())
			}
			if err := s.tasks.Create(s.ctx, &t); err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
		}

		for i := range created {
			if err := r.recomputeMilestone(s, &created[i], []string{"created"}); err != nil {
				return err
			}
		}
		return r.recomputeBooking(s, booking)
	})
}

// OnMilestoneDeleted 删除里程碑及其任务并重算预订
func (r *Recalculator) OnMilestoneDeleted(ctx context.Context, milestoneID string) (*Outcome, error) {
	const op = "deleteMilestone"
	return r.run(ctx, "milestone", func(s *scope) error {
		ms, err := s.milestones.FindByIDForUpdate(s.ctx, milestoneID)
		if err != nil {
			return err
		}
		if _, err := s.tasks.DeleteByMilestoneID(s.ctx, ms.ID); err != nil {
			return fmt.Errorf("failed to delete tasks of milestone %s: %w", ms.ID, err)
		}
		if err := s.milestones.Delete(s.ctx, ms.ID); err != nil {
			return fmt.Errorf("failed to delete milestone %s: %w", ms.ID, err)
		}

		booking, err := s.resolveBooking(op, model.EntityMilestone, ms.ID, ms.BookingID)
		if err != nil || booking == nil {
			return err
		}
		tombstone := map[string]interface{}{"id": ms.ID, "booking_id": ms.BookingID, "deleted": true}
		if err := s.emit(model.EntityMilestone, ms.ID, booking.ID, []string{"deleted"}, tombstone, ms.Version+1, time.Now().UTC()); err != nil {
			return err
		}
		return r.recomputeBooking(s, booking)
	})
}

// RecomputeBooking 重算预订下全部里程碑与预订进度，供外部协作方调用
func (r *Recalculator) RecomputeBooking(ctx context.Context, bookingID string) (*Outcome, error) {
	return r.run(ctx, "booking", func(s *scope) error {
		// 与任务和里程碑变更保持同一加锁顺序：先里程碑，后预订
		milestones, err := s.milestones.ListByBookingIDForUpdate(s.ctx, bookingID)
		if err != nil {
			return err
		}
		booking, err := s.bookings.FindByIDForUpdate(s.ctx, bookingID)
		if err != nil {
			return err
		}
		for i := range milestones {
			if err := r.recomputeMilestone(s, &milestones[i], nil); err != nil {
				return err
			}
		}
		return r.recomputeBooking(s, booking)
	})
}

// NewID 生成实体 ID
func NewID() string {
	return uuid.NewString()
}
