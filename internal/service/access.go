package service

import (
	"context"
	"fmt"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"gorm.io/gorm"
)

// access 把实体解析到所属预订并做鉴权
type access struct {
	bookings   repository.BookingRepository
	milestones repository.MilestoneRepository
	tasks      repository.TaskRepository
	authorizer auth.Authorizer
}

func newAccess(db *gorm.DB, authorizer auth.Authorizer) *access {
	if authorizer == nil {
		authorizer = auth.NewRelationAuthorizer()
	}
	return &access{
		bookings:   repository.NewBookingRepository(db),
		milestones: repository.NewMilestoneRepository(db),
		tasks:      repository.NewTaskRepository(db),
		authorizer: authorizer,
	}
}

// booking 读取预订并检查关系，不存在返回 NotFound，无权限返回 Forbidden
func (a *access) booking(ctx context.Context, op string, caller auth.Caller, bookingID, relation string) (*model.BookingModel, error) {
	booking, err := a.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := a.check(ctx, op, caller, booking, relation); err != nil {
		return nil, err
	}
	return booking, nil
}

func (a *access) check(ctx context.Context, op string, caller auth.Caller, booking *model.BookingModel, relation string) error {
	ok, err := a.authorizer.Authorize(ctx, caller, booking, relation)
	if err != nil {
		return fmt.Errorf("failed to authorize %s on booking %s: %w", op, booking.ID, err)
	}
	if !ok {
		return apperror.Forbidden(op, model.EntityBooking, booking.ID)
	}
	return nil
}

// owner 通过上级预订鉴权；上级缺失时只有管理员可以继续，由重算流程报告完整性错误
func (a *access) owner(ctx context.Context, op string, caller auth.Caller, entity, id, bookingID, relation string) error {
	booking, err := a.bookings.FindByID(ctx, bookingID)
	if apperror.IsNotFound(err) {
		if caller.IsAdmin() {
			return nil
		}
		return apperror.Integrity(op, entity, id, "owning booking %s not found", bookingID)
	}
	if err != nil {
		return err
	}
	return a.check(ctx, op, caller, booking, relation)
}

// milestone 检查调用方对里程碑所属预订的关系
func (a *access) milestone(ctx context.Context, op string, caller auth.Caller, milestoneID, relation string) (*model.MilestoneModel, error) {
	ms, err := a.milestones.FindByID(ctx, milestoneID)
	if err != nil {
		return nil, err
	}
	if err := a.owner(ctx, op, caller, model.EntityMilestone, ms.ID, ms.BookingID, relation); err != nil {
		return nil, err
	}
	return ms, nil
}

// task 检查调用方对任务所属预订的关系
func (a *access) task(ctx context.Context, op string, caller auth.Caller, taskID, relation string) (*model.TaskModel, error) {
	task, err := a.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	ms, err := a.milestones.FindByID(ctx, task.MilestoneID)
	if apperror.IsNotFound(err) {
		if caller.IsAdmin() {
			return task, nil
		}
		return nil, apperror.Integrity(op, model.EntityTask, task.ID, "owning milestone %s not found", task.MilestoneID)
	}
	if err != nil {
		return nil, err
	}
	if err := a.owner(ctx, op, caller, model.EntityMilestone, ms.ID, ms.BookingID, relation); err != nil {
		return nil, err
	}
	return task, nil
}
