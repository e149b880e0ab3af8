package middleware

import (
	"PMobility/global"
	"PMobility/logger"
	"PMobility/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OK 按统一包返回
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, global.Success(data))
}

// Fail 把错误归类成 HTTP 状态码 + 业务码；未分类的错误不外泄细节
func Fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	ce, ok := errs.AsCode(err)
	if !ok {
		logger.Error("[HTTP] unclassified error", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(status, global.Failure(errs.ServerInternalError, errs.ErrServerInternal.Msg))
		return
	}
	if status >= 500 {
		logger.Error("[HTTP] request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	msg := ce.Msg
	// not found 类不带细节，避免泄露会话是否存在
	if ce.Detail != "" && status != 404 && status < 500 {
		msg = ce.Msg + ": " + ce.Detail
	}
	c.AbortWithStatusJSON(status, global.Failure(ce.Code, msg))
}

// RequestLog 访问日志
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("[HTTP] access",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
