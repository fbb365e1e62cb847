// Package status 把预订/审批/发票的原始状态映射为统一的展示状态
package status

// Canonical 展示状态，封闭枚举
type Canonical int

const (
	// Unrecognized 无法识别的原始状态，原样透传
	Unrecognized Canonical = iota
	Delivered
	InProduction
	ReadyToLaunch
	Approved
	PendingReview
	Cancelled
	OnHold
)

var canonicalNames = [...]string{
	Unrecognized:  "unrecognized",
	Delivered:     "delivered",
	InProduction:  "in_production",
	ReadyToLaunch: "ready_to_launch",
	Approved:      "approved",
	PendingReview: "pending_review",
	Cancelled:     "cancelled",
	OnHold:        "on_hold",
}

// String 返回状态名
func (c Canonical) String() string {
	if c < 0 || int(c) >= len(canonicalNames) {
		return canonicalNames[Unrecognized]
	}
	return canonicalNames[c]
}

// BookingFacts 推断所需的预订字段
type BookingFacts struct {
	Status         string
	ApprovalStatus string
}

// InvoiceFacts 最新发票的状态，没有发票时传 nil
type InvoiceFacts struct {
	Status string
}

// Display 推断结果
type Display struct {
	Canonical Canonical `json:"-"`
	// Raw 仅在 Unrecognized 时有值
	Raw string `json:"-"`
	// Rule 命中的规则序号，从 1 开始
	Rule int `json:"rule"`
}

// String 展示值，无法识别时透传原始值
func (d Display) String() string {
	if d.Canonical == Unrecognized {
		return d.Raw
	}
	return d.Canonical.String()
}

// Recognized 是否命中了前 7 条规则
func (d Display) Recognized() bool {
	return d.Canonical != Unrecognized
}

// MarshalText 序列化为展示值
func (d Display) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
