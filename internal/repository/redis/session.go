package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore persists the per-actor reservation session (active lock set,
// last-sold set) with a TTL comfortably above the lock window. A vanished
// session is harmless: locks expire through the sweep on their own.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl}
}

// Get loads the session for the given actor ID, returning a fresh empty
// session when none is stored.
func (s *SessionStore) Get(ctx context.Context, id string) (*domain.ReservationSession, error) {
	const op = "redis.SessionStore.Get"

	v, err := s.rdb.Get(ctx, KeySession(id)).Result()
	if err == redis.Nil {
		return &domain.ReservationSession{ID: id}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	var sess domain.ReservationSession
	if err := json.Unmarshal([]byte(v), &sess); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}
	sess.ID = id

	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess *domain.ReservationSession) error {
	const op = "redis.SessionStore.Save"

	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := s.rdb.Set(ctx, KeySession(sess.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	const op = "redis.SessionStore.Delete"

	if err := s.rdb.Del(ctx, KeySession(id)).Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
