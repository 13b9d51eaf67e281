package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/artisan-market-backend/internal/logger"
)

const (
	defaultRateLimit  = 20
	defaultRatePeriod = time.Minute
)

// RateLimitMiddleware ограничивает частоту запросов по IP клиента.
// Вешается на эндпоинты авторизации, чтобы перебор паролей упирался
// в лимит раньше, чем в bcrypt.
func RateLimitMiddleware(limit int64, period time.Duration) gin.HandlerFunc {
	if limit <= 0 {
		limit = defaultRateLimit
	}
	if period <= 0 {
		period = defaultRatePeriod
	}

	instance := limiter.New(memory.NewStore(), limiter.Rate{Period: period, Limit: limit})

	return func(c *gin.Context) {
		state, err := instance.Get(c, c.ClientIP())
		if err != nil {
			if logger.Log != nil {
				logger.Log.WithError(err).Error("Rate limiter store failure")
			}
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(state.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(state.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(state.Reset, 10))

		if state.Reached {
			retryAfter := state.Reset - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "слишком много запросов, попробуйте позже",
				"code":  "RATE_LIMITED",
			})
			return
		}

		c.Next()
	}
}
