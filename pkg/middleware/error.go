package middleware

import (
	"errors"

	"creatorpay-engine/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error. BaseErrors
// keep their status; anything else becomes an internal error.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			zap.L().Error("[HTTP] unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
			be = errutil.Internal("internal error", last.Err).(errutil.BaseError)
		}
		c.JSON(be.Code.HTTPStatus(), be.JSON())
	}
}
