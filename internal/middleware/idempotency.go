package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// IdempotencyRecord is a stored response for one (user, key, endpoint).
type IdempotencyRecord struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, bool, error)
	// Save keeps the first record written for a key.
	Save(ctx context.Context, key string, rec IdempotencyRecord, ttl time.Duration) error
}

type RedisIdempotencyStore struct {
	rdb *redis.Client
}

func NewRedisIdempotencyStore(rdb *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*IdempotencyRecord, bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get idempotency record: %w", err)
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, true, nil
}

func (s *RedisIdempotencyStore) Save(ctx context.Context, key string, rec IdempotencyRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.SetNX(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// IdempotencyMiddleware replays the stored response when a mutating request
// repeats an Idempotency-Key. Only responses below 500 are stored, so a
// request that hit a storage failure can be retried with the same key.
// Store errors fail open.
func IdempotencyMiddleware(store IdempotencyStore, ttl time.Duration, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}
		idemKey := c.Get(HeaderIdempotencyKey)
		if idemKey == "" || len(idemKey) > 255 {
			return c.Next()
		}

		key := fmt.Sprintf("idem:%s:%s:%s:%s", GetUserID(c), c.Method(), c.Path(), idemKey)
		ctx := c.UserContext()

		rec, found, err := store.Get(ctx, key)
		if err != nil {
			log.Warn("idempotency lookup failed", zap.String("request_id", GetRequestID(c)), zap.Error(err))
			return c.Next()
		}
		if found {
			c.Set(HeaderReplayed, "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(rec.Status).Send(rec.Body)
		}

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			return nil
		}
		body := append([]byte(nil), c.Response().Body()...)
		if err := store.Save(ctx, key, IdempotencyRecord{Status: status, Body: body}, ttl); err != nil {
			log.Warn("idempotency save failed", zap.String("request_id", GetRequestID(c)), zap.Error(err))
		}
		return nil
	}
}
