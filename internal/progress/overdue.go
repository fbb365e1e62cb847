package progress

import "time"

// Schedulable 可判断逾期的实体（任务或里程碑）
type Schedulable interface {
	Deadline() *time.Time
	Done() bool
}

// IsOverdue 截止时间已设置且早于 now，并且未完成
// 只在读取时计算，不落库
func IsOverdue(e Schedulable, now time.Time) bool {
	due := e.Deadline()
	if due == nil {
		return false
	}
	return due.Before(now) && !e.Done()
}
