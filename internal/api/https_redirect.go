package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HTTPSRedirectMiddleware 生产环境把 HTTP 请求重定向到 HTTPS；enabled 为 false 时直接放行
func HTTPSRedirectMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled || IsHTTPS(c) {
			c.Next()
			return
		}

		host := c.Request.Host
		if host == "" {
			host = "localhost"
		}
		// 非 GET 请求用 308 保留方法和请求体
		code := http.StatusMovedPermanently
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			code = http.StatusPermanentRedirect
		}
		c.Redirect(code, "https://"+host+c.Request.RequestURI)
		c.Abort()
	}
}

// IsHTTPS 检查请求是否通过 HTTPS，包括反向代理转发的情况
func IsHTTPS(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
		return true
	}
	if c.GetHeader("X-Forwarded-SSL") == "on" {
		return true
	}
	return c.Request.URL.Scheme == "https" || c.Request.TLS != nil
}
