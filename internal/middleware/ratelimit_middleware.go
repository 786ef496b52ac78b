package middleware

import (
	"context"
	"net/http"
	"strconv"

	"medportal/internal/redis"
	"medportal/internal/services"
	"medportal/internal/transport/httpdto"
	"medportal/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RateLimiter interface {
	AllowCreate(ctx context.Context, wallet string) (*redis.RateLimitResult, error)
	AllowAuth(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// AuthRateLimitMiddleware limits session requests per client IP.
func AuthRateLimitMiddleware(limiter RateLimiter, allowOnError bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowAuth(c.Request.Context(), c.ClientIP())
		applyLimit(c, result, err, allowOnError, "rate limit exceeded")
	}
}

// CreateRateLimitMiddleware limits artifact creation per wallet. It must run
// after AuthMiddleware.
func CreateRateLimitMiddleware(limiter RateLimiter, allowOnError bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet, ok := services.WalletFromContext(c.Request.Context())
		if !ok {
			c.Next()
			return
		}
		result, err := limiter.AllowCreate(c.Request.Context(), wallet)
		applyLimit(c, result, err, allowOnError, "artifact creation rate limit exceeded")
	}
}

func applyLimit(c *gin.Context, result *redis.RateLimitResult, err error, allowOnError bool, msg string) {
	if err != nil {
		if allowOnError {
			logger.OrNop(logger.GetGlobalLogger()).With(c.Request.Context()).Warn("rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}
		c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse("rate limit error", "UNAVAILABLE"))
		c.Abort()
		return
	}

	setRateLimitHeaders(c, result)

	if !result.Allowed {
		c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse(msg, "RATE_LIMITED"))
		c.Abort()
		return
	}

	c.Next()
}

// setRateLimitHeaders sets standard rate limit response headers
func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
