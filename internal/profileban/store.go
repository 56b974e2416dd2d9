// Package profileban provides profile-level ban and warning management
// backed by Redis. Records are simple key-value pairs with TTL-based
// expiry:
//
//	Key:   pban:<profileID>   Value: <reason>   TTL: ban duration
//	Key:   pwarn:<profileID>  Value: <reason>   TTL: warning window
//
// Repeat offenses escalate the ban duration via a 24h offense counter.
package profileban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoreel/moderation/internal/item"
)

const (
	// BanPrefix is the Redis key prefix for active profile bans.
	BanPrefix = "pban:"

	// WarnPrefix is the Redis key prefix for profile warnings.
	WarnPrefix = "pwarn:"

	// OffensePrefix is the Redis key prefix for the escalation counters.
	OffensePrefix = "poffense:"

	// Escalating ban durations by offense count.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// OffenseTTL is how long the offense counter lives. After 24h without
	// a new offense the counter resets to zero.
	OffenseTTL = 24 * time.Hour

	// WarnTTL is how long a warning stays visible on a profile.
	WarnTTL = 7 * 24 * time.Hour
)

// Store manages profile ban state in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a profile ban store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Status reports the engine-visible status of a profile: banned while a
// ban key exists, warned while a warning key exists, active otherwise.
func (s *Store) Status(ctx context.Context, profileID string) (item.ProfileStatus, error) {
	_, err := s.client.Get(ctx, BanPrefix+profileID).Result()
	if err == nil {
		return item.ProfileBanned, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("profileban: status %s: %w", profileID, err)
	}

	_, err = s.client.Get(ctx, WarnPrefix+profileID).Result()
	if err == nil {
		return item.ProfileWarned, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("profileban: status %s: %w", profileID, err)
	}
	return item.ProfileActive, nil
}

// Ban sets a ban on a profile with the given duration and reason. The ban
// expires automatically.
func (s *Store) Ban(ctx context.Context, profileID string, duration time.Duration, reason string) error {
	return s.client.Set(ctx, BanPrefix+profileID, reason, duration).Err()
}

// Unban lifts a ban immediately.
func (s *Store) Unban(ctx context.Context, profileID string) error {
	return s.client.Del(ctx, BanPrefix+profileID).Err()
}

// Warn marks a profile as warned for WarnTTL.
func (s *Store) Warn(ctx context.Context, profileID string) error {
	return s.client.Set(ctx, WarnPrefix+profileID, "warned", WarnTTL).Err()
}

// escalationDuration returns the ban duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Ban15Min
	case offenseCount == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}

// Escalate increments the offense counter for a profile and applies a ban
// whose duration escalates with the number of offenses:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// The counter has a 24h TTL set on first increment, so the window does not
// slide and quiet profiles age out. Returns the applied ban duration.
func (s *Store) Escalate(ctx context.Context, profileID, reason string) (time.Duration, error) {
	key := OffensePrefix + profileID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("profileban: escalate incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffenseTTL).Err(); err != nil {
			return 0, fmt.Errorf("profileban: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Ban(ctx, profileID, duration, reason); err != nil {
		return 0, fmt.Errorf("profileban: escalate ban: %w", err)
	}
	return duration, nil
}

// Counters are the abuse counters surfaced by the getMetrics action.
type Counters struct {
	ActiveBans       int `json:"active_bans"`
	ActiveWarnings   int `json:"active_warnings"`
	TrackedOffenders int `json:"tracked_offenders"`
}

// Counters scans the ban, warning, and offense keyspaces and returns their
// sizes. SCAN keeps the walk incremental; the counts are approximate under
// concurrent writes, which is fine for a dashboard.
func (s *Store) Counters(ctx context.Context) (Counters, error) {
	var c Counters
	counts := []struct {
		prefix string
		dst    *int
	}{
		{BanPrefix, &c.ActiveBans},
		{WarnPrefix, &c.ActiveWarnings},
		{OffensePrefix, &c.TrackedOffenders},
	}
	for _, kc := range counts {
		iter := s.client.Scan(ctx, 0, kc.prefix+"*", 200).Iterator()
		for iter.Next(ctx) {
			*kc.dst++
		}
		if err := iter.Err(); err != nil {
			return Counters{}, fmt.Errorf("profileban: scan %s: %w", kc.prefix, err)
		}
	}
	return c, nil
}
