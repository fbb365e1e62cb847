package model

import "time"

// InvoiceModel 发票数据模型，由外部账单系统写入，这里只读
type InvoiceModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	BookingID string    `gorm:"type:varchar(64);not null;index" json:"booking_id"`
	Status    string    `gorm:"type:varchar(32);not null" json:"status"` // draft/issued/paid/void
	Amount    float64   `json:"amount"`
	Currency  string    `gorm:"type:varchar(8)" json:"currency,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (InvoiceModel) TableName() string {
	return "invoices"
}
