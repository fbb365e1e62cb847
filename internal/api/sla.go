package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SLA 操作类别
const (
	opProgressRead      = "progress_read"
	opTaskMutation      = "task_mutation"
	opMilestoneMutation = "milestone_mutation"
	opTemplateQuery     = "template_query"
)

// SLAConfig 各类操作的最大响应时间
type SLAConfig struct {
	ProgressReadMaxTime      time.Duration
	TaskMutationMaxTime      time.Duration // 包含级联重算
	MilestoneMutationMaxTime time.Duration
	TemplateQueryMaxTime     time.Duration
}

// DefaultSLAConfig 返回默认 SLA 配置
func DefaultSLAConfig() *SLAConfig {
	return &SLAConfig{
		ProgressReadMaxTime:      300 * time.Millisecond,
		TaskMutationMaxTime:      1 * time.Second,
		MilestoneMutationMaxTime: 1 * time.Second,
		TemplateQueryMaxTime:     500 * time.Millisecond,
	}
}

// getOperation 由路由模板和方法判断操作类别
func getOperation(c *gin.Context) string {
	method := c.Request.Method
	route := c.FullPath()

	switch {
	case method == http.MethodGet && strings.HasPrefix(route, "/api/v1/bookings/:id/") &&
		(strings.HasSuffix(route, "/progress") || strings.HasSuffix(route, "/status")):
		return opProgressRead
	case method != http.MethodGet && (strings.HasPrefix(route, "/api/v1/tasks") || strings.HasSuffix(route, "/tasks")):
		return opTaskMutation
	case method != http.MethodGet && strings.Contains(route, "milestones"):
		return opMilestoneMutation
	case method == http.MethodGet && strings.HasPrefix(route, "/api/v1/templates"):
		return opTemplateQuery
	}
	return ""
}

func (cfg *SLAConfig) expected(operation string) time.Duration {
	switch operation {
	case opProgressRead:
		return cfg.ProgressReadMaxTime
	case opTaskMutation:
		return cfg.TaskMutationMaxTime
	case opMilestoneMutation:
		return cfg.MilestoneMutationMaxTime
	case opTemplateQuery:
		return cfg.TemplateQueryMaxTime
	}
	return 0
}

// CheckSLA 未知操作不检查
func CheckSLA(operation string, duration time.Duration, cfg *SLAConfig) bool {
	limit := cfg.expected(operation)
	return limit == 0 || duration <= limit
}

// SLAViolation SLA 违反记录
type SLAViolation struct {
	Operation string
	Duration  time.Duration
	Expected  time.Duration
	Timestamp time.Time
	Path      string
	Method    string
}

// SLAAlertManager 同一操作的违反次数达到阈值时触发告警回调，触发后清零
type SLAAlertManager struct {
	violations     map[string][]SLAViolation
	thresholds     map[string]int
	alertCallbacks []func(string, []SLAViolation)
	mu             sync.Mutex
}

// NewSLAAlertManager 创建 SLA 告警管理器
func NewSLAAlertManager() *SLAAlertManager {
	return &SLAAlertManager{
		violations: make(map[string][]SLAViolation),
		thresholds: make(map[string]int),
	}
}

// SetAlertThreshold 设置告警阈值
func (m *SLAAlertManager) SetAlertThreshold(operation string, threshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[operation] = threshold
}

// OnAlert 注册告警回调
func (m *SLAAlertManager) OnAlert(callback func(string, []SLAViolation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertCallbacks = append(m.alertCallbacks, callback)
}

// RecordViolation 记录 SLA 违反
func (m *SLAAlertManager) RecordViolation(v SLAViolation) {
	m.mu.Lock()
	m.violations[v.Operation] = append(m.violations[v.Operation], v)
	threshold := m.thresholds[v.Operation]
	if threshold <= 0 || len(m.violations[v.Operation]) < threshold {
		m.mu.Unlock()
		return
	}
	batch := m.violations[v.Operation]
	m.violations[v.Operation] = nil
	callbacks := append([]func(string, []SLAViolation){}, m.alertCallbacks...)
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(v.Operation, batch)
	}
}

// GetViolations 获取尚未告警的违反记录
func (m *SLAAlertManager) GetViolations(operation string) []SLAViolation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SLAViolation(nil), m.violations[operation]...)
}

// SLAMonitorMiddleware 记录超出预期耗时的请求
func SLAMonitorMiddleware(cfg *SLAConfig, alerts *SLAAlertManager, logger logrus.FieldLogger) gin.HandlerFunc {
	if cfg == nil {
		cfg = DefaultSLAConfig()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		operation := getOperation(c)
		duration := time.Since(start)
		if CheckSLA(operation, duration, cfg) {
			return
		}

		v := SLAViolation{
			Operation: operation,
			Duration:  duration,
			Expected:  cfg.expected(operation),
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
		}
		logger.WithFields(logrus.Fields{
			"operation":  v.Operation,
			"duration":   v.Duration.String(),
			"expected":   v.Expected.String(),
			"path":       v.Path,
			"request_id": c.GetString("request_id"),
		}).Warn("SLA violated")
		if alerts != nil {
			alerts.RecordViolation(v)
		}
	}
}
