package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	loggerKey       = "httpapi.logger"
)

// requestID propagates X-Request-ID, generating one when absent, and stores
// a request-scoped logger carrying it.
func requestID(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Set(loggerKey, logging.WithRequestID(base, rid))
		c.Next()
	}
}

// accessLog logs one line per request once it completes.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		lg := loggerFrom(c)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if actor, ok := identity.ActorFromContext(c); ok {
			fields = append(fields, zap.String("actor_id", actor))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			lg.Warn("request completed", fields...)
			return
		}
		lg.Info("request completed", fields...)
	}
}

// recovery turns a panic into a JSON 500.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				loggerFrom(c).Error("panic recovered",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))
				if !c.Writer.Written() {
					fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// requireActor rejects requests without an authenticated actor.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := identity.ActorFromContext(c); !ok {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing identity")
			return
		}
		c.Next()
	}
}

func loggerFrom(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zap.Logger); ok {
			return lg
		}
	}
	return zap.NewNop()
}

func actor(c *gin.Context) string {
	a, _ := identity.ActorFromContext(c)
	return a
}
