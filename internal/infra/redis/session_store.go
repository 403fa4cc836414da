package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"livequiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps one serialized SessionState per join code:
//
//	SET session:{code} {json} EX {ttl}
//
// Update runs an optimistic WATCH/GET/MULTI-SET transaction so the
// duplicate-answer check and the question-index increment always apply
// against the freshest stored value; concurrent writers retry with
// jittered backoff instead of clobbering each other. Create uses SETNX,
// which doubles as the uniqueness guard for join-code allocation.
// Grace markers are short-TTL keys beside the session document.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

const (
	casAttempts = 8
	casBackoff  = 2 * time.Millisecond
)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SessionStore) Create(ctx context.Context, code string, state domain.SessionState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(code), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, code string) (domain.SessionState, error) {
	data, err := s.client.Get(ctx, s.key(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return state, nil
}

func (s *SessionStore) Update(ctx context.Context, code string, apply func(*domain.SessionState) error) (domain.SessionState, error) {
	key := s.key(code)

	for attempt := 0; attempt < casAttempts; attempt++ {
		var updated domain.SessionState
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrSessionNotFound
			}
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
			}
			var state domain.SessionState
			if err := json.Unmarshal(data, &state); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			if err := apply(&state); err != nil {
				return err
			}
			out, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			// TTL refreshed on every mutating write so live sessions outlast idle ones.
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			updated = state
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-time.After(s.backoff(attempt)):
				continue
			case <-ctx.Done():
				return domain.SessionState{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
			}
		}
		if err != nil {
			return domain.SessionState{}, err
		}
		return updated, nil
	}
	return domain.SessionState{}, fmt.Errorf("%w: update conflicts exhausted for %s", domain.ErrStoreUnavailable, code)
}

func (s *SessionStore) MarkDisconnected(ctx context.Context, code, participantID string, grace time.Duration) error {
	if err := s.client.Set(ctx, s.graceKey(code, participantID), "1", grace).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SessionStore) IsDisconnected(ctx context.Context, code, participantID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.graceKey(code, participantID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *SessionStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SessionStore) key(code string) string {
	return "session:" + code
}

func (s *SessionStore) graceKey(code, participantID string) string {
	return "session:" + code + ":grace:" + participantID
}

// backoff grows linearly with up to 100% jitter; contention is bounded
// by session size, so a couple of milliseconds is plenty.
func (s *SessionStore) backoff(attempt int) time.Duration {
	base := casBackoff * time.Duration(attempt+1)
	s.mu.Lock()
	jitter := time.Duration(s.rnd.Int63n(int64(base) + 1))
	s.mu.Unlock()
	return base + jitter
}
