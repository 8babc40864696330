package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"calplan/internal/apperr"
	"calplan/internal/metrics"
	"calplan/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	userKey      = "user"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger writes one line per request, at warn for 4xx and error for
// 5xx.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		routePath := c.FullPath()
		if routePath == "" {
			routePath = c.Request.URL.Path
		}
		attrs := []any{
			"request_id", requestIDFrom(c),
			"method", c.Request.Method,
			"path", routePath,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("http_request", attrs...)
		default:
			logger.Info("http_request", attrs...)
		}
	}
}

// Instrumentation records request counts and latency by route template.
func Instrumentation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Recovery turns a panic into a 500 with the usual error body.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Recovered from panic", "request_id", requestIDFrom(c), "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, apperr.Payload(apperr.ErrInternal))
	})
}

// UserLookup loads a user by id.
type UserLookup func(ctx context.Context, id uuid.UUID) (*models.User, error)

// CurrentUser resolves the caller from the Authorization header, which
// carries the user id, optionally as a Bearer token.
func CurrentUser(lookup UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
		if raw == "" {
			respondError(c, apperr.New("unauthorized", http.StatusUnauthorized, "missing authorization header"))
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, apperr.New("unauthorized", http.StatusUnauthorized, "invalid authorization header"))
			return
		}
		u, err := lookup(c.Request.Context(), id)
		if err != nil || !u.IsActive {
			respondError(c, apperr.New("unauthorized", http.StatusUnauthorized, "unknown or inactive user"))
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	u, _ := c.MustGet(userKey).(*models.User)
	return u
}

// respondError writes err with the status and body from its apperr code.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.Status(err), apperr.Payload(err))
}
