package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/auth"
	"github.com/AbuAli85/business-services-hub-sub014/internal/integration"
	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"github.com/AbuAli85/business-services-hub-sub014/internal/progress"
	"github.com/AbuAli85/business-services-hub-sub014/internal/repository"
	"github.com/AbuAli85/business-services-hub-sub014/internal/status"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskView 任务及读取时计算的逾期标记
type TaskView struct {
	model.TaskModel
	Overdue bool `json:"overdue"`
}

// MilestoneView 里程碑及其任务
type MilestoneView struct {
	model.MilestoneModel
	Overdue bool       `json:"overdue"`
	Tasks   []TaskView `json:"tasks"`
}

// BookingProgress 预订进度视图
type BookingProgress struct {
	BookingID           string          `json:"bookingId"`
	Milestones          []MilestoneView `json:"milestones"`
	OverallProgress     int             `json:"overallProgress"`
	TotalTasks          int             `json:"totalTasks"`
	CompletedTasks      int             `json:"completedTasks"`
	TotalMilestones     int             `json:"totalMilestones"`
	CompletedMilestones int             `json:"completedMilestones"`
	OverdueTasks        int             `json:"overdueTasks"`
	Version             int64           `json:"version"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// BookingStatus 展示状态及其来源字段
type BookingStatus struct {
	BookingID      string         `json:"bookingId"`
	DisplayStatus  status.Display `json:"displayStatus"`
	Recognized     bool           `json:"recognized"`
	Rule           int            `json:"rule"`
	Status         string         `json:"status"`
	ApprovalStatus string         `json:"approvalStatus,omitempty"`
	InvoiceStatus  string         `json:"invoiceStatus,omitempty"`
}

// ProgressService 预订进度与状态的读取，以及手动重算入口
type ProgressService interface {
	GetProgress(ctx context.Context, caller auth.Caller, bookingID string) (*BookingProgress, error)
	GetDisplayStatus(ctx context.Context, caller auth.Caller, bookingID string) (*BookingStatus, error)
	Recompute(ctx context.Context, caller auth.Caller, bookingID string) (*BookingProgress, error)
}

type progressService struct {
	access     *access
	milestones repository.MilestoneRepository
	tasks      repository.TaskRepository
	invoices   repository.InvoiceRepository
	recalc     *integration.Recalculator
	audit      AuditLogService
	logger     logrus.FieldLogger
	now        func() time.Time
}

// NewProgressService 创建进度服务
func NewProgressService(db *gorm.DB, authorizer auth.Authorizer, recalc *integration.Recalculator, audit AuditLogService, logger logrus.FieldLogger) ProgressService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &progressService{
		access:     newAccess(db, authorizer),
		milestones: repository.NewMilestoneRepository(db),
		tasks:      repository.NewTaskRepository(db),
		invoices:   repository.NewInvoiceRepository(db),
		recalc:     recalc,
		audit:      audit,
		logger:     logger.WithField("component", "progress_service"),
		now:        time.Now,
	}
}

// GetProgress 返回缓存进度和读取时计算的计数与逾期
func (s *progressService) GetProgress(ctx context.Context, caller auth.Caller, bookingID string) (*BookingProgress, error) {
	booking, err := s.access.booking(ctx, "getProgress", caller, bookingID, auth.RelationViewer)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, booking)
}

func (s *progressService) view(ctx context.Context, booking *model.BookingModel) (*BookingProgress, error) {
	milestones, err := s.milestones.ListByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	tasks, err := s.tasks.ListByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	now := s.now()
	byMilestone := make(map[string][]TaskView, len(milestones))
	out := &BookingProgress{
		BookingID:       booking.ID,
		OverallProgress: progress.Clamp(booking.ProjectProgress),
		TotalMilestones: len(milestones),
		TotalTasks:      len(tasks),
		Version:         booking.Version,
		UpdatedAt:       booking.UpdatedAt,
	}
	for i := range tasks {
		t := &tasks[i]
		v := TaskView{TaskModel: *t, Overdue: progress.IsOverdue(t, now)}
		if t.Done() {
			out.CompletedTasks++
		}
		if v.Overdue {
			out.OverdueTasks++
		}
		byMilestone[t.MilestoneID] = append(byMilestone[t.MilestoneID], v)
	}

	out.Milestones = make([]MilestoneView, 0, len(milestones))
	for i := range milestones {
		m := &milestones[i]
		if m.Done() {
			out.CompletedMilestones++
		}
		views := byMilestone[m.ID]
		if views == nil {
			views = []TaskView{}
		}
		out.Milestones = append(out.Milestones, MilestoneView{
			MilestoneModel: *m,
			Overdue:        progress.IsOverdue(m, now),
			Tasks:          views,
		})
	}
	return out, nil
}

// GetDisplayStatus 按规则表推断展示状态
func (s *progressService) GetDisplayStatus(ctx context.Context, caller auth.Caller, bookingID string) (*BookingStatus, error) {
	booking, err := s.access.booking(ctx, "getStatus", caller, bookingID, auth.RelationViewer)
	if err != nil {
		return nil, err
	}
	invoice, err := s.invoices.FindLatestByBookingID(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	var facts *status.InvoiceFacts
	out := &BookingStatus{
		BookingID:      booking.ID,
		Status:         booking.Status,
		ApprovalStatus: booking.ApprovalStatus,
	}
	if invoice != nil {
		facts = &status.InvoiceFacts{Status: invoice.Status}
		out.InvoiceStatus = invoice.Status
	}
	d := status.Derive(status.BookingFacts{Status: booking.Status, ApprovalStatus: booking.ApprovalStatus}, facts)
	out.DisplayStatus = d
	out.Recognized = d.Recognized()
	out.Rule = d.Rule

	if !d.Recognized() {
		s.logger.WithFields(logrus.Fields{
			"booking_id":      booking.ID,
			"status":          booking.Status,
			"approval_status": booking.ApprovalStatus,
		}).Warn("unrecognized booking status, passing raw value through")
	}
	return out, nil
}

// Recompute 从任务重新计算整个预订的缓存进度
func (s *progressService) Recompute(ctx context.Context, caller auth.Caller, bookingID string) (*BookingProgress, error) {
	booking, err := s.access.booking(ctx, "recompute", caller, bookingID, auth.RelationEditor)
	if err != nil {
		return nil, err
	}
	out, err := s.recalc.RecomputeBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, caller.UserID, "recompute", model.EntityBooking, booking.ID,
		map[string]interface{}{"project_progress": out.Booking.ProjectProgress})
	return s.view(ctx, out.Booking)
}
