// Package progress 进度聚合的纯计算，不做任何 I/O
package progress

import (
	"fmt"
	"math"

	"github.com/AbuAli85/business-services-hub-sub014/internal/model"
)

// Mode 里程碑进度计算模式，按部署统一配置
type Mode string

const (
	// ModeCompletionRatio round(100 * 已完成任务数 / 任务总数)
	ModeCompletionRatio Mode = "completion_ratio"
	// ModeTaskAverage 任务进度均值，已完成任务按 100 计
	ModeTaskAverage Mode = "task_average"
)

// ParseMode 解析配置中的模式
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCompletionRatio, ModeTaskAverage:
		return Mode(s), nil
	case "":
		return ModeCompletionRatio, nil
	}
	return "", fmt.Errorf("unknown progress mode %q", s)
}

// TaskSnapshot 参与计算的任务字段
type TaskSnapshot struct {
	Status   string
	Progress int
}

// WeightedProgress 参与加权的里程碑字段
type WeightedProgress struct {
	Percent int
	Weight  float64
}

// SnapshotTasks 从模型提取计算字段
func SnapshotTasks(tasks []model.TaskModel) []TaskSnapshot {
	out := make([]TaskSnapshot, len(tasks))
	for i := range tasks {
		out[i] = TaskSnapshot{Status: tasks[i].Status, Progress: tasks[i].ProgressPercentage}
	}
	return out
}

// SnapshotMilestones 从模型提取加权字段
func SnapshotMilestones(milestones []model.MilestoneModel) []WeightedProgress {
	out := make([]WeightedProgress, len(milestones))
	for i := range milestones {
		out[i] = WeightedProgress{Percent: milestones[i].ProgressPercentage, Weight: milestones[i].Weight}
	}
	return out
}

// ComputeMilestoneProgress 计算里程碑进度；没有任务时为 0
func ComputeMilestoneProgress(tasks []TaskSnapshot, mode Mode) int {
	if len(tasks) == 0 {
		return 0
	}

	if mode == ModeTaskAverage {
		sum := 0
		for _, t := range tasks {
			if t.Status == model.StatusCompleted {
				sum += 100
				continue
			}
			sum += Clamp(t.Progress)
		}
		return Clamp(roundInt(float64(sum) / float64(len(tasks))))
	}

	completed := 0
	for _, t := range tasks {
		if t.Status == model.StatusCompleted {
			completed++
		}
	}
	return RatioPercent(completed, len(tasks))
}

// ComputeBookingProgress 按权重计算预订进度
// 非正权重不参与计算，权重和为 0 时返回 0
func ComputeBookingProgress(milestones []WeightedProgress) int {
	var weighted, total float64
	for _, m := range milestones {
		if m.Weight <= 0 || math.IsNaN(m.Weight) || math.IsInf(m.Weight, 0) {
			continue
		}
		weighted += float64(Clamp(m.Percent)) * m.Weight
		total += m.Weight
	}
	if total == 0 {
		return 0
	}
	return Clamp(roundInt(weighted / total))
}

// RatioPercent round(100 * part / total)，结果限制在 [0,100]
func RatioPercent(part, total int) int {
	if total <= 0 {
		return 0
	}
	return Clamp(roundInt(100 * float64(part) / float64(total)))
}

// Clamp 限制到 [0,100]
func Clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// 四舍五入，0.5 远离零
func roundInt(f float64) int {
	return int(math.Round(f))
}
