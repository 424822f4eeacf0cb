// Package analytics counts firings in Redis, bucketed by time window, so
// operators can see how often a schedule speaks without touching the
// primary store.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ralpioxxcs/vtlr/internal/domain"
)

// Config tunes the counter buckets.
type Config struct {
	// Window is the counter bucket size: a minute, five minutes, or an
	// hour.
	Window time.Duration

	// Retention is how long buckets survive after their last increment.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:    5 * time.Minute,
		Retention: 7 * 24 * time.Hour,
	}
}

type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}
	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}
	return &RedisSink{client: client, config: config}
}

// Record increments the firing counter for the schedule's current bucket.
// Failures are logged and swallowed; analytics never affects dispatch.
func (s *RedisSink) Record(ctx context.Context, firing domain.Firing) {
	key := buildKey(firing.Key.String(), string(firing.Kind), firing.FiredAt, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: redis pipeline failed for schedule=%s: %v", firing.Key, err)
	}
}

func buildKey(scheduleID, kind string, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("s:%s:%s:%s", scheduleID, kind, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
