// Package ratelimit provides Redis-backed rate limiting using the INCR +
// EXPIRE window algorithm. The control surface throttles per-reviewer
// action volume, with a tighter budget for destructive bulk operations.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum
// number of requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g. "rl:act:", "rl:bulk:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

var (
	// RuleAction allows 120 dispatch actions per minute per reviewer.
	RuleAction = Rule{Key: "rl:act:", Limit: 120, Window: 1 * time.Minute}

	// RuleBulk allows 10 destructive bulk/profile actions per minute per
	// reviewer. Destructive fan-out is deliberately slow.
	RuleBulk = Rule{Key: "rl:bulk:", Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit
// defined by rule. It increments the counter in Redis and sets the expiry
// on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does
// not lock reviewers out of the queue.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v", key, err)
		}
	}

	return count <= int64(rule.Limit), nil
}
