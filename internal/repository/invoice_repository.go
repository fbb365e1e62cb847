package repository

import (
	"context"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
	"gorm.io/gorm"
)

// InvoiceRepository 发票仓储接口，引擎只读取最新发票状态
type InvoiceRepository interface {
	Save(ctx context.Context, invoice *model.InvoiceModel) error
	// FindLatestByBookingID 没有发票时返回 nil, nil
	FindLatestByBookingID(ctx context.Context, bookingID string) (*model.InvoiceModel, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository 创建发票仓储
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Save(ctx context.Context, invoice *model.InvoiceModel) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *invoiceRepository) FindLatestByBookingID(ctx context.Context, bookingID string) (*model.InvoiceModel, error) {
	var inv model.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		Limit(1).
		Find(&inv).Error
	if err != nil {
		return nil, err
	}
	if inv.ID == "" {
		return nil, nil
	}
	return &inv, nil
}

