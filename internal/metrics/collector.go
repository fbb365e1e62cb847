package metrics

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaskCounter 任务统计来源
type TaskCounter interface {
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
}

// Collector 轮询连接池和任务分布。逾期在读取时计算，没有写入事件可以驱动这个指标。
type Collector struct {
	db       *gorm.DB
	tasks    TaskCounter
	interval time.Duration
	logger   logrus.FieldLogger

	// 上一轮出现过的状态，本轮缺席时归零
	seen map[string]bool
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, tasks TaskCounter, interval time.Duration, logger logrus.FieldLogger) *Collector {
	return &Collector{
		db:       db,
		tasks:    tasks,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]bool),
	}
}

// Run 立即采集一次，之后按间隔采集，直到 ctx 结束
func (c *Collector) Run(ctx context.Context) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		c.CollectOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// CollectOnce 采集一次；查询失败时保留上一次的值
func (c *Collector) CollectOnce(ctx context.Context) {
	if c.db != nil {
		if err := UpdateDatabaseConnections(c.db); err != nil {
			c.logger.WithError(err).Debug("connection pool metrics skipped")
		}
	}
	if c.tasks == nil {
		return
	}

	if counts, err := c.tasks.CountByStatus(ctx); err != nil {
		c.logger.WithError(err).Debug("task status metrics skipped")
	} else {
		for status := range c.seen {
			if _, ok := counts[status]; !ok {
				UpdateTasksByStatus(status, 0)
			}
		}
		c.seen = make(map[string]bool, len(counts))
		for status, n := range counts {
			UpdateTasksByStatus(status, float64(n))
			c.seen[status] = true
		}
	}

	if n, err := c.tasks.CountOverdue(ctx, time.Now().UTC()); err != nil {
		c.logger.WithError(err).Debug("overdue metric skipped")
	} else {
		UpdateOverdueTasks(n)
	}
}
