// Package ratelimit implements fixed-window counters in Redis.
//
// A nil *Limiter allows everything, and so does a Limiter whose Redis is down:
// availability of login wins over throttling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrRateLimited = errors.New("rate limited")

// Rule allows Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

var (
	LoginRule       = Rule{Limit: 10, Window: 15 * time.Minute}
	CodeRequestRule = Rule{Limit: 3, Window: 10 * time.Minute}
	CodeConfirmRule = Rule{Limit: 5, Window: 10 * time.Minute}
)

type Limiter struct {
	redis  redis.UniversalClient
	log    logrus.FieldLogger
	prefix string
}

func New(client redis.UniversalClient, log logrus.FieldLogger) *Limiter {
	return &Limiter{redis: client, log: log, prefix: "classsite:rl:"}
}

// Connect parses a redis:// URL and checks the server is reachable.
func Connect(ctx context.Context, url string, log logrus.FieldLogger) (*Limiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, log), nil
}

// Allow counts one hit for scope/key and returns ErrRateLimited once the rule is exceeded.
func (l *Limiter) Allow(ctx context.Context, scope, key string, rule Rule) error {
	if l == nil || key == "" {
		return nil
	}
	count, ok := l.incr(ctx, scope, key, rule)
	if ok && count > int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Exceeded reports ErrRateLimited when scope/key already used up its budget.
// Unlike Allow it does not count a hit; pair it with Hit for failure-only budgets.
func (l *Limiter) Exceeded(ctx context.Context, scope, key string, rule Rule) error {
	if l == nil || key == "" {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(scope, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		l.log.WithError(err).WithField("scope", scope).Warn("[ratelimit] redis unavailable, allowing")
		return nil
	}
	if count >= int64(rule.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Hit counts one hit for scope/key without judging it.
func (l *Limiter) Hit(ctx context.Context, scope, key string, rule Rule) {
	if l == nil || key == "" {
		return
	}
	l.incr(ctx, scope, key, rule)
}

func (l *Limiter) incr(ctx context.Context, scope, key string, rule Rule) (int64, bool) {
	k := l.key(scope, key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		l.log.WithError(err).WithField("scope", scope).Warn("[ratelimit] redis unavailable, allowing")
		return 0, false
	}
	// TTL ставим только на первый хит окна
	if count == 1 {
		if err := l.redis.Expire(ctx, k, rule.Window).Err(); err != nil {
			l.log.WithError(err).WithField("scope", scope).Warn("[ratelimit] expire failed")
		}
	}
	return count, true
}

// Reset clears the counter for scope/key.
func (l *Limiter) Reset(ctx context.Context, scope, key string) {
	if l == nil || key == "" {
		return
	}
	if err := l.redis.Del(ctx, l.key(scope, key)).Err(); err != nil {
		l.log.WithError(err).WithField("scope", scope).Warn("[ratelimit] reset failed")
	}
}

func (l *Limiter) Close() error {
	if l == nil {
		return nil
	}
	return l.redis.Close()
}

func (l *Limiter) key(scope, key string) string {
	return l.prefix + scope + ":" + key
}
