package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sahasand/site-tracker/internal/util"
	"github.com/sahasand/site-tracker/pkg/logger"
	"github.com/sahasand/site-tracker/pkg/metrics"
	"github.com/sahasand/site-tracker/pkg/rbac"
	"github.com/sahasand/site-tracker/pkg/trace"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// TraceMiddleware keeps a well-formed caller X-Trace-ID or mints one,
// stores it in the request context and echoes it back.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, traceID := trace.Ensure(c.Request.Context(), c.GetHeader(trace.Header))
		c.Request = c.Request.WithContext(ctx)
		c.Header(trace.Header, traceID)
		c.Next()
	}
}

// LoggingMiddleware writes one line per request.
func LoggingMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString(ctxUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		l := logger.WithTrace(c.Request.Context(), log)
		if c.Writer.Status() >= http.StatusInternalServerError {
			l.Error("request", fields...)
			return
		}
		l.Info("request", fields...)
	}
}

// MetricsMiddleware records request duration by route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AuthMiddleware requires a valid bearer token carrying a known role.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(token, jwtSecret)
		if err != nil || !rbac.IsValidRole(claims.Role) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequirePermission lets the request through only when the caller's role
// grants permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ctxUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(userID, c.GetString(ctxRole), permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Next()
	}
}
