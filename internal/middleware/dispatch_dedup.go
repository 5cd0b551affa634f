package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// DispatchDeduper tracks recently seen dispatch triggers by job id.
type DispatchDeduper interface {
	Seen(ctx context.Context, jobID string) (bool, error)
}

type redisDispatchDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisDispatchDeduper) Seen(ctx context.Context, jobID string) (bool, error) {
	key := d.prefix + ":" + jobID
	ok, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => key already exists => duplicate
	return !ok, nil
}

type memoryDispatchDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
}

func newMemoryDispatchDeduper(ttl time.Duration) *memoryDispatchDeduper {
	now := time.Now()
	return &memoryDispatchDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
	}
}

func (d *memoryDispatchDeduper) Seen(_ context.Context, jobID string) (bool, error) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[jobID]; ok && exp.After(now) {
		return true, nil
	}

	d.seen[jobID] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for id, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return false, nil
}

// NewDispatchDeduper builds a Redis deduper and falls back to in-memory on failure.
func NewDispatchDeduper(addr, pass string, db int, ttl time.Duration) (DispatchDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr == "" {
		return newMemoryDispatchDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return newMemoryDispatchDeduper(ttl), err
	}

	return &redisDispatchDeduper{
		client: client,
		prefix: "bosun:dispatch",
		ttl:    ttl,
	}, nil
}

// DispatchDedup drops duplicate dispatch triggers before they reach the
// dispatcher. Duplicates are still acknowledged — the trigger's contract
// is an immediate accept either way — and the job store's pending check
// stays the authoritative guard.
func DispatchDedup(deduper DispatchDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}

			req := c.Request()
			if req.Body == nil {
				return next(c)
			}

			rawBody, err := io.ReadAll(req.Body)
			if err != nil {
				return next(c)
			}
			req.Body = io.NopCloser(bytes.NewBuffer(rawBody))
			if len(rawBody) == 0 {
				return next(c)
			}

			var payload struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(rawBody, &payload); err != nil || payload.JobID == "" {
				return next(c)
			}

			isDuplicate, err := deduper.Seen(req.Context(), payload.JobID)
			if err != nil {
				return next(c)
			}
			if isDuplicate {
				return c.JSON(http.StatusAccepted, map[string]interface{}{
					"accepted": true,
					"jobId":    payload.JobID,
				})
			}

			return next(c)
		}
	}
}
