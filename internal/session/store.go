// Package session manages reviewer sessions backed by Redis. A session
// binds an opaque device credential to a reviewer identity and role; the
// control surface refuses every request whose credential does not resolve
// to a reviewer session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echoreel/moderation/internal/item"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys, refreshed on use.
	SessionTTL = 12 * time.Hour

	// RoleReviewer is the role required by every moderation action.
	RoleReviewer = "reviewer"
)

// Session is the explicit identity value passed into every engine call.
// There is no ambient session state anywhere in the engine.
type Session struct {
	Token      string `redis:"token"`
	ReviewerID string `redis:"reviewer_id"`
	Role       string `redis:"role"`
	CreatedAt  int64  `redis:"created_at"`  // unix timestamp
	LastActive int64  `redis:"last_active"` // unix timestamp
}

// IsReviewer reports whether the session is authorized for moderation
// actions.
func (s *Session) IsReviewer() bool {
	return s.Role == RoleReviewer
}

// Store manages reviewer sessions in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a session store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Create stores a new session for a reviewer credential.
func (s *Store) Create(ctx context.Context, token, reviewerID, role string) error {
	key := SessionPrefix + token
	now := time.Now().Unix()

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"token":       token,
		"reviewer_id": reviewerID,
		"role":        role,
		"created_at":  now,
		"last_active": now,
	})
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w: %v", item.ErrTransient, err)
	}
	return nil
}

// Get resolves a credential to a session. Returns nil if the credential is
// unknown or expired. A Redis failure is a transient downstream error, not
// a missing session.
func (s *Store) Get(ctx context.Context, token string) (*Session, error) {
	key := SessionPrefix + token
	var sess Session
	if err := s.client.HGetAll(ctx, key).Scan(&sess); err != nil {
		return nil, fmt.Errorf("session: get: %w: %v", item.ErrTransient, err)
	}
	if sess.Token == "" {
		return nil, nil // not found
	}
	return &sess, nil
}

// Touch refreshes the last-active timestamp and the TTL.
func (s *Store) Touch(ctx context.Context, token string) error {
	key := SessionPrefix + token
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: touch: %w: %v", item.ErrTransient, err)
	}
	return nil
}

// Revoke deletes a session immediately.
func (s *Store) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, SessionPrefix+token).Err()
}
