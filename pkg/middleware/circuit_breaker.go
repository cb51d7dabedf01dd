package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/yeisme/sourcelens/pkg/configs"
	"github.com/yeisme/sourcelens/pkg/log"
)

var errServerStatus = errors.New("server error status")

// NewBreaker 失败比例达到阈值后打开，状态变化写日志.
func NewBreaker(name string, cfg configs.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= max(cfg.MinRequests, 1) &&
				float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Logger().Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
		},
	})
}

// CircuitBreakerMiddleware 5xx 计为失败，打开时直接返回 503 并带 Retry-After.
func CircuitBreakerMiddleware(cfg configs.CircuitBreakerConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	cb := NewBreaker(configs.AppName+"-http", cfg)
	retryAfter := strconv.Itoa(int(max(cfg.OpenTimeout, time.Second) / time.Second))

	return func(c *gin.Context) {
		_, err := cb.Execute(func() (any, error) {
			c.Next()

			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, errServerStatus
			}

			return nil, nil
		})

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service temporarily unavailable"})
		}
	}
}
