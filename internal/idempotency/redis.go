package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// casAttempts bounds the optimistic retries of a status update.
const casAttempts = 5

// RedisStore keeps records as JSON strings, one key per record. Creation
// uses SETNX and status changes run under WATCH so that concurrent callers
// see the same transitions as with the DynamoDB store.
type RedisStore struct {
	client    *redis.Client
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewRedisStore returns a store over client. ttlWindow 0 keeps records forever.
func NewRedisStore(client *redis.Client, ttlWindow time.Duration) *RedisStore {
	return &RedisStore{client: client, ttlWindow: ttlWindow, nowFunc: time.Now}
}

func (s *RedisStore) newRecord(key, reference string) Record {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		Reference:      reference,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.ttlWindow > 0 {
		rec.ExpiresAt = now.Add(s.ttlWindow).Unix()
	}
	return rec
}

// CreateIfNotExists stores an IN_PROGRESS record unless the key exists.
func (s *RedisStore) CreateIfNotExists(ctx context.Context, key, reference string) (bool, error) {
	data, err := json.Marshal(s.newRecord(key, reference))
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}
	created, err := s.client.SetNX(ctx, recordKey(key), data, s.ttlWindow).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return created, nil
}

// Get returns the record for key, or (nil, nil) when there is none.
func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	return getRecord(ctx, s.client, key)
}

// Reclaim moves a FAILED record back to IN_PROGRESS. Only one caller wins.
func (s *RedisStore) Reclaim(ctx context.Context, key string) (bool, error) {
	won := false
	err := s.update(ctx, key, false, func(rec *Record) bool {
		if rec.Status != StatusFailed {
			return false
		}
		rec.Status = StatusInProgress
		won = true
		return true
	})
	if err != nil {
		return false, fmt.Errorf("reclaim: %w", err)
	}
	return won, nil
}

// MarkDone sets status to DONE and stores the response body and status.
func (s *RedisStore) MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error {
	err := s.update(ctx, key, true, func(rec *Record) bool {
		rec.Status = StatusDone
		rec.ResponseBody = responseBody
		rec.ResponseStatus = responseStatus
		return true
	})
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkFailed marks the record FAILED with a note.
func (s *RedisStore) MarkFailed(ctx context.Context, key, note string) error {
	err := s.update(ctx, key, true, func(rec *Record) bool {
		rec.Status = StatusFailed
		rec.Note = note
		return true
	})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// update applies fn to the stored record inside a WATCH transaction and saves
// it when fn returns true. A missing key is skipped, or replaced by a fresh
// record when createMissing is set, like an unconditional DynamoDB update.
func (s *RedisStore) update(ctx context.Context, key string, createMissing bool, fn func(*Record) bool) error {
	rk := recordKey(key)
	txf := func(tx *redis.Tx) error {
		rec, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}
		var ttl time.Duration = redis.KeepTTL
		if rec == nil {
			if !createMissing {
				return nil
			}
			fresh := s.newRecord(key, "")
			rec = &fresh
			ttl = s.ttlWindow
		}
		if !fn(rec) {
			return nil
		}
		rec.UpdatedAt = s.nowFunc()
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < casAttempts; i++ {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: too much contention", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRecord(ctx context.Context, c getter, key string) (*Record, error) {
	data, err := c.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func recordKey(key string) string {
	return "idempotency:" + key
}
