package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthCheck 单项依赖检查
type HealthCheck func(ctx context.Context) error

// HealthController 健康检查控制器
type HealthController struct {
	checks map[string]HealthCheck
}

// NewHealthController 创建健康检查控制器，数据库检查总是存在
func NewHealthController(db *gorm.DB) *HealthController {
	c := &HealthController{checks: make(map[string]HealthCheck)}
	c.AddCheck("database", func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	return c
}

// AddCheck 注册可选依赖（OpenFGA、RabbitMQ、Redis）
func (c *HealthController) AddCheck(name string, check HealthCheck) {
	c.checks[name] = check
}

// Check GET /health
func (c *HealthController) Check(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := c.checks[name](reqCtx); err != nil {
			status = "unhealthy"
			results[name] = "unhealthy: " + err.Error()
			continue
		}
		results[name] = "healthy"
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    results,
	})
}
