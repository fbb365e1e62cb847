package status

type rule struct {
	result Canonical
	match  func(b BookingFacts, inv *InvoiceFacts) bool
}

// rules 按顺序匹配，先命中者生效，顺序不可调整
var rules = []rule{
	{Delivered, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.Status == "completed"
	}},
	{InProduction, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.Status == "in_progress"
	}},
	{ReadyToLaunch, func(_ BookingFacts, inv *InvoiceFacts) bool {
		return inv != nil && (inv.Status == "issued" || inv.Status == "paid")
	}},
	{Approved, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.ApprovalStatus == "approved" || b.Status == "approved"
	}},
	{Cancelled, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.Status == "declined" || b.ApprovalStatus == "declined" || b.Status == "cancelled"
	}},
	{OnHold, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.Status == "on_hold"
	}},
	{PendingReview, func(b BookingFacts, _ *InvoiceFacts) bool {
		return b.Status == "rescheduled" || b.Status == "pending"
	}},
}

// Derive 推断展示状态，纯函数，不修改任何持久化字段
func Derive(b BookingFacts, inv *InvoiceFacts) Display {
	for i, r := range rules {
		if r.match(b, inv) {
			return Display{Canonical: r.result, Rule: i + 1}
		}
	}
	return Display{Canonical: Unrecognized, Raw: b.Status, Rule: len(rules) + 1}
}
