package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/congo-pay/accounts/internal/logging"
)

const loginRateKeyPrefix = "accounts:rl:login:"

// LoginRateLimit limits login attempts per phone, or per client IP when the
// body carries no phone. Redis holds a fixed one-minute window shared across
// instances. Without Redis, or when Redis errors, a process-local token bucket
// takes over.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	if logger == nil {
		logger = logging.Discard()
	}
	local := newLocalLimiter(maxPerMin)

	return func(c *fiber.Ctx) error {
		var req struct {
			Phone string `json:"phone"`
		}
		_ = json.Unmarshal(c.Body(), &req)
		subject := strings.TrimSpace(req.Phone)
		if subject == "" {
			subject = c.IP()
		}

		if cache != nil {
			key := loginRateKeyPrefix + subject
			cnt, err := cache.Incr(c.UserContext(), key).Result()
			if err == nil {
				if cnt == 1 {
					cache.Expire(c.UserContext(), key, time.Minute)
				}
				if cnt > int64(maxPerMin) {
					return tooManyAttempts(c, cache.TTL(c.UserContext(), key).Val())
				}
				return c.Next()
			}
			logger.Warn("login rate limit store unavailable, using local limiter", slog.Any("error", err))
		}

		if !local.allow(subject) {
			return tooManyAttempts(c, time.Minute/time.Duration(maxPerMin))
		}
		return c.Next()
	}
}

func tooManyAttempts(c *fiber.Ctx, retry time.Duration) error {
	if retry > 0 {
		secs := int(retry.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}
	return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
}

type localLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*localEntry
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const localLimiterMaxKeys = 10000

func newLocalLimiter(perMin int) *localLimiter {
	return &localLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMin)),
		burst:    perMin,
		limiters: make(map[string]*localEntry),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.limiters) >= localLimiterMaxKeys {
		for k, e := range l.limiters {
			if now.Sub(e.lastSeen) > time.Minute {
				delete(l.limiters, k)
			}
		}
	}
	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}
