package api

import (
	"github.com/AbuAli85/business-services-hub-sub014/internal/metrics"
	"github.com/gin-gonic/gin"
)

// MetricsHandler Prometheus 指标端点
func MetricsHandler(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
