package adminapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// RequestID ensures every request carries an X-Request-ID, generating one
// via google/uuid when the client didn't supply a usable one. Grounded on
// the teacher's middleware.RequestID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if l := len(id); l < 1 || l > 64 {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

func getRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ZapLogger logs one structured line per request, following the teacher's
// cmd/zmux-server ZapLogger function.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("request_id", getRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

const sessionUIDKey = "uid"
const sessionCSRFKey = "csrf"

// RequireSession rejects any request without a valid admin session,
// following the teacher's isSessionAuthenticated check.
func RequireSession(c *gin.Context) {
	session := sessions.Default(c)
	uid, _ := session.Get(sessionUIDKey).(string)
	if uid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Next()
}

// ValidateSessionCSRF applies the teacher's constant-time double-submit
// check to mutating methods only.
func ValidateSessionCSRF(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		c.Next()
		return
	}

	want, _ := sessions.Default(c).Get(sessionCSRFKey).(string)
	got := c.GetHeader("X-CSRF-Token")

	if want == "" || got == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid csrf token"})
		return
	}
	c.Next()
}
