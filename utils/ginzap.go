package utils

import (
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// Ginzap logs one line per request through the given zap logger, tagged with the request id.
func Ginzap(logger *zap.Logger, timeFormat string, utc bool) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(logger, &ginzap.Config{
		TimeFormat: timeFormat,
		UTC:        utc,
		Context: func(c *gin.Context) []zapcore.Field {
			if rid := c.GetString(RequestIDKey); rid != "" {
				return []zapcore.Field{zap.String("request_id", rid)}
			}
			return nil
		},
	})
}

// RecoveryWithZap recovers from panics, logs them and answers with the JSON envelope.
func RecoveryWithZap(logger *zap.Logger, stack bool) gin.HandlerFunc {
	return ginzap.CustomRecoveryWithZap(logger, stack, func(c *gin.Context, _ any) {
		Error(c, http.StatusInternalServerError, 50000, "internal server error")
		c.Abort()
	})
}
