package model

// 任务与里程碑共用的工作状态
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusOnHold     = "on_hold"
)

// ValidWorkStatus 判断是否为合法的工作状态
func ValidWorkStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusOnHold:
		return true
	}
	return false
}

// 实体类型，用于状态历史、审计日志与变更事件
const (
	EntityTask      = "task"
	EntityMilestone = "milestone"
	EntityBooking   = "booking"
	EntityTemplate  = "milestone_template"
)
