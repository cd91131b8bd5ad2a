package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/stackpilot/teamgate/internal/core/port"
)

const defaultRateLimitPrefix = "ratelimit"

// RateLimitRepository implements a sliding-window limiter over Redis sorted
// sets: each attempt is a member scored by its nanosecond timestamp, and the
// window is evaluated by trimming and counting the set.
type RateLimitRepository struct {
	client *red.Client
	prefix string
}

// NewRateLimitRepository constructs a repository with the provided Redis
// client and key prefix.
func NewRateLimitRepository(client *red.Client, keyPrefix string) *RateLimitRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultRateLimitPrefix
	}

	return &RateLimitRepository{client: client, prefix: prefix}
}

// Allow trims attempts that fell out of the window, then either records the
// new attempt or reports the wait until the oldest one expires.
func (r *RateLimitRepository) Allow(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (bool, time.Duration, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return false, 0, errors.New("identifier is required")
	}
	if limit <= 0 || window <= 0 {
		return false, 0, errors.New("limit and window must be positive")
	}

	key := r.key(identifier)
	threshold := strconv.FormatInt(at.Add(-window).UnixNano(), 10)

	if err := r.client.ZRemRangeByScore(ctx, key, "-inf", threshold).Err(); err != nil {
		return false, 0, fmt.Errorf("redis zremrangebyscore: %w", err)
	}

	count, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis zcard: %w", err)
	}

	if count >= int64(limit) {
		retryAfter, err := r.retryAfter(ctx, key, window, at)
		if err != nil {
			return false, 0, err
		}
		return false, retryAfter, nil
	}

	member := red.Z{Score: float64(at.UnixNano()), Member: at.UnixNano()}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("redis record attempt: %w", err)
	}

	return true, 0, nil
}

func (r *RateLimitRepository) retryAfter(ctx context.Context, key string, window time.Duration, at time.Time) (time.Duration, error) {
	values, err := r.client.ZRangeByScore(ctx, key, &red.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	if len(values) == 0 {
		return 0, nil
	}

	ts, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attempt timestamp: %w", err)
	}

	wait := time.Unix(0, ts).Add(window).Sub(at)
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	return fmt.Sprintf("%s:%s", r.prefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
