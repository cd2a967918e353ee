package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A zero max disables that limit.
type Config struct {
	MaxHandshakes       int
	HandshakeWindow     time.Duration
	MaxRedeemFailures   int
	RedeemFailureWindow time.Duration
}

// Limiter enforces per-IP limits on handshakes and failed magic-token
// redemptions using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckHandshake counts one handshake attempt for ip and fails once the window
// budget is spent.
func (l *Limiter) CheckHandshake(ctx context.Context, ip string) error {
	if l == nil || l.config.MaxHandshakes <= 0 || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, handshakeKey(ip), l.config.HandshakeWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxHandshakes) {
		return ErrRateLimited
	}
	return nil
}

// CheckRedeem fails when ip has exhausted its failed-redemption budget.
func (l *Limiter) CheckRedeem(ctx context.Context, ip string) error {
	if l == nil || l.config.MaxRedeemFailures <= 0 || ip == "" {
		return nil
	}
	return l.checkCounter(ctx, redeemKey(ip), l.config.MaxRedeemFailures)
}

// RecordRedeemFailure counts one failed redemption for ip.
func (l *Limiter) RecordRedeemFailure(ctx context.Context, ip string) error {
	if l == nil || l.config.MaxRedeemFailures <= 0 || ip == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, redeemKey(ip), l.config.RedeemFailureWindow)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxRedeemFailures) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func handshakeKey(ip string) string {
	return "rl:hs:" + ip
}

func redeemKey(ip string) string {
	return "rl:mr:" + ip
}
