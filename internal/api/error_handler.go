package api

import (
	"net/http"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/gin-gonic/gin"
)

// HandleError 把服务层错误写成响应，data 不为空时一并返回
func HandleError(c *gin.Context, err error, data interface{}) {
	code := apperror.HTTPStatus(err)
	kind := apperror.KindOf(err)

	key := "error.internal_error"
	if kind != "" {
		key = "error." + string(kind)
	}
	resp := ErrorResponse{
		Code:    code,
		Kind:    string(kind),
		Message: T(c, key),
		Detail:  err.Error(),
		Data:    data,
	}
	if code == http.StatusInternalServerError && kind == "" {
		// 内部错误不把细节暴露给调用方
		_ = c.Error(err)
		resp.Detail = ""
	}
	c.JSON(code, resp)
}

// ErrorHandlerMiddleware 兜底：处理器通过 c.Error 记录但没有写响应的错误
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		HandleError(c, c.Errors.Last().Err, nil)
	}
}

// badRequest 请求体或参数无法解析
func badRequest(c *gin.Context, err error) {
	Error(c, http.StatusBadRequest, T(c, "error.bad_request"), err.Error())
}
