package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	currentAPIVersion = "v1"
	apiVersionKey     = "api_version"
)

// VersionMiddleware 从 URL 路径 /api/vN 或 API-Version 头确定版本，回写到响应头
func VersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		version := currentAPIVersion

		parts := strings.Split(strings.TrimPrefix(c.Request.URL.Path, "/"), "/")
		if len(parts) > 1 && parts[0] == "api" && strings.HasPrefix(parts[1], "v") && len(parts[1]) > 1 {
			version = parts[1]
		}
		if h := c.GetHeader("API-Version"); h != "" {
			version = h
		}

		c.Set(apiVersionKey, version)
		c.Header("X-API-Version", version)
		c.Next()
	}
}

// GetAPIVersion 从上下文获取 API 版本
func GetAPIVersion(c *gin.Context) string {
	if v := c.GetString(apiVersionKey); v != "" {
		return v
	}
	return currentAPIVersion
}
