package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"adreport/internal/log"
	"adreport/internal/metric"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID reuses an incoming X-Request-ID or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// Recovery turns a panic into a 500 with the INTERNAL category.
func Recovery(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("handler panic",
					log.String("path", c.Request.URL.Path),
					log.String("request_id", requestIDFrom(c)),
					log.Any("panic", rec),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "INTERNAL",
					RequestID: requestIDFrom(c),
				})
			}
		}()
		c.Next()
	}
}

// AccessLog logs one line per request and records it in metrics.
func AccessLog(logger log.Logger, metrics *metric.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		metrics.RequestProcessed(c.Request.Method, status)
		logger.Info("request",
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Int("status", status),
			log.Duration("elapsed", time.Since(start)),
			log.String("request_id", requestIDFrom(c)),
		)
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
