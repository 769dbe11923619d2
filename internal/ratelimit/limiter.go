// Package ratelimit provides Redis-backed rate limiting using the
// INCR + EXPIRE window algorithm. The transport adapter uses it to throttle
// search requests and relayed messages per participant before they reach
// the engine.
package ratelimit

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number
// of actions allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:relay:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Standard rules for the pairing bot.
var (
	// RuleSearch allows 10 search requests per minute per participant.
	RuleSearch = Rule{Key: "rl:search:", Limit: 10, Window: time.Minute}

	// RuleRelay allows 20 relayed messages per 10 seconds per participant.
	RuleRelay = Rule{Key: "rl:relay:", Limit: 20, Window: 10 * time.Second}

	// RuleReport allows 3 report submissions per minute per participant.
	RuleReport = Rule{Key: "rl:report:", Limit: 3, Window: time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the participant is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first
// access.
//
// Returns true if the action is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does
// not block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, participantID int64, rule Rule) (bool, error) {
	key := rule.Key + strconv.FormatInt(participantID, 10)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL and would throttle the
			// participant forever. Best effort: delete it.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	return int(count) <= rule.Limit, nil
}
