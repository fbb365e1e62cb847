package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 重算次数，outcome: ok/conflict/integrity/error
	recomputesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_recomputes_total",
			Help: "Total number of progress recomputations by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	recomputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "progress_recompute_duration_seconds",
			Help:    "Duration of a recompute transaction including retries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"trigger"},
	)

	versionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_version_conflicts_total",
			Help: "Optimistic concurrency conflicts detected on cached progress writes",
		},
		[]string{"entity"},
	)

	integrityErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "progress_integrity_errors_total",
			Help: "Orphaned tasks or milestones found during recompute",
		},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "change_events_published_total",
			Help: "Change events published to subscribers",
		},
		[]string{"entity"},
	)

	outboxDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatch_total",
			Help: "Outbox events handed to the message broker",
		},
		[]string{"result"},
	)

	subscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "change_subscribers_active",
			Help: "Number of active change subscriptions in this instance",
		},
	)

	overdueTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_overdue",
			Help: "Number of tasks past their due date and not completed",
		},
	)

	tasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_by_status",
			Help: "Number of tasks by status",
		},
		[]string{"status"},
	)

	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)
)

var once sync.Once

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		recomputesTotal,
		recomputeDuration,
		versionConflictsTotal,
		integrityErrorsTotal,
		eventsPublishedTotal,
		outboxDispatchTotal,
		subscribersActive,
		overdueTasks,
		tasksByStatus,
		databaseConnectionsActive,
		databaseConnectionsIdle,
		databaseConnectionsMax,
	)

	// Go 运行时指标，已注册则忽略
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordRecompute 记录一次重算
func RecordRecompute(trigger, outcome string, seconds float64) {
	recomputesTotal.WithLabelValues(trigger, outcome).Inc()
	recomputeDuration.WithLabelValues(trigger).Observe(seconds)
}

// RecordConflict 记录版本冲突
func RecordConflict(entity string) {
	versionConflictsTotal.WithLabelValues(entity).Inc()
}

// RecordIntegrityError 记录孤儿数据
func RecordIntegrityError() {
	integrityErrorsTotal.Inc()
}

// RecordEventPublished 记录事件发布
func RecordEventPublished(entity string) {
	eventsPublishedTotal.WithLabelValues(entity).Inc()
}

// RecordOutboxDispatch 记录 outbox 投递结果: sent/failed
func RecordOutboxDispatch(result string) {
	outboxDispatchTotal.WithLabelValues(result).Inc()
}

// UpdateSubscriberCount 更新订阅数
func UpdateSubscriberCount(n int) {
	subscribersActive.Set(float64(n))
}

// UpdateOverdueTasks 更新逾期任务数
func UpdateOverdueTasks(n int64) {
	overdueTasks.Set(float64(n))
}

// UpdateTasksByStatus 更新任务状态分布
func UpdateTasksByStatus(status string, count float64) {
	tasksByStatus.WithLabelValues(status).Set(count)
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}
