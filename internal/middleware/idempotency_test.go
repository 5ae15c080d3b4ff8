package middleware

import (
	"context"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type memIdempotencyStore struct {
	mu   sync.Mutex
	recs map[string]IdempotencyRecord
}

func (s *memIdempotencyStore) Get(_ context.Context, key string) (*IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *memIdempotencyStore) Save(_ context.Context, key string, rec IdempotencyRecord, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[key]; !ok {
		s.recs[key] = rec
	}
	return nil
}

func TestIdempotencyMiddleware(t *testing.T) {
	store := &memIdempotencyStore{recs: map[string]IdempotencyRecord{}}
	calls := 0
	failNext := false

	app := fiber.New()
	app.Use(IdempotencyMiddleware(store, time.Hour, zap.NewNop()))
	app.Post("/things", func(c *fiber.Ctx) error {
		calls++
		if failNext {
			failNext = false
			return c.Status(fiber.StatusInternalServerError).SendString(`{"error":"internal error"}`)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"n": calls})
	})

	do := func(key string) (int, string, string) {
		req := httptest.NewRequest(fiber.MethodPost, "/things", nil)
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body), resp.Header.Get(HeaderReplayed)
	}

	tests := []struct {
		name       string
		key        string
		fail       bool
		wantStatus int
		wantBody   string
		replayed   string
	}{
		{"first call runs", "k1", false, fiber.StatusCreated, `{"n":1}`, ""},
		{"repeat replays", "k1", false, fiber.StatusCreated, `{"n":1}`, "true"},
		{"no key always runs", "", false, fiber.StatusCreated, `{"n":2}`, ""},
		{"server error not stored", "k2", true, fiber.StatusInternalServerError, `{"error":"internal error"}`, ""},
		{"retry after server error runs", "k2", false, fiber.StatusCreated, `{"n":4}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failNext = tt.fail
			status, body, replayed := do(tt.key)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body != tt.wantBody {
				t.Errorf("body = %s, want %s", body, tt.wantBody)
			}
			if replayed != tt.replayed {
				t.Errorf("replayed header = %q, want %q", replayed, tt.replayed)
			}
		})
	}
}
