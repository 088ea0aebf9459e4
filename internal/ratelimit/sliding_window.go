package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"codesync/internal/models"
	"codesync/internal/utils"
)

const (
	keyPrefix  = "ratelimit:execute:"
	maxRetries = 16
)

// SlidingWindow is a Redis sorted-set sliding window log: each admitted call
// is a member scored by its timestamp, and a caller is admitted while fewer
// than limit members fall inside the window.
type SlidingWindow struct {
	rdb    *redis.Client
	window time.Duration
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

func NewSlidingWindow(rdb *redis.Client, window time.Duration, limit int, logger *zap.Logger) *SlidingWindow {
	return &SlidingWindow{rdb: rdb, window: window, limit: limit, now: time.Now, logger: logger}
}

// Allow records a call for identity and reports whether it fits in the window.
// Rejected calls are not recorded.
func (s *SlidingWindow) Allow(ctx context.Context, identity string) (bool, error) {
	key := keyPrefix + identity

	for attempt := 0; attempt < maxRetries; attempt++ {
		now := s.now()
		cutoff := strconv.FormatInt(now.Add(-s.window).UnixMilli(), 10)
		allowed := false

		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.ZCount(ctx, key, "("+cutoff, "+inf").Result()
			if err != nil {
				return err
			}
			if n >= int64(s.limit) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
				pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
				pipe.PExpire(ctx, key, s.window)
				return nil
			})
			if err == nil {
				allowed = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return allowed, err
	}
	return false, redis.TxFailedErr
}

// Middleware rejects callers over the limit with 429 RATE_LIMIT. The caller
// identity is the client IP, so chi's RealIP should run first. Redis failures
// let the request through.
func (s *SlidingWindow) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, err := s.Allow(r.Context(), ip)
		if err != nil {
			s.logger.Warn("rate limiter unavailable", zap.String("ip", ip), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.window.Seconds())))
			utils.Error(w, http.StatusTooManyRequests, models.ErrCodeRateLimit, "Too many execution requests, please slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
