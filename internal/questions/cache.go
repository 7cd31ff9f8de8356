package questions

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gamerooms/internal/game/quiz"
)

type cached struct {
	questions []quiz.Question
	expires   time.Time
}

// Cache remembers fetched question sets for a while, and collapses
// concurrent fetches of the same set into one upstream call.
type Cache struct {
	next    Supplier
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]cached
}

// NewCache wraps next. A shared upstream fetch is bounded by timeout
// rather than by any one caller's context.
func NewCache(next Supplier, ttl, timeout time.Duration) *Cache {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Cache{next: next, ttl: ttl, timeout: timeout, now: time.Now, entries: make(map[string]cached)}
}

func (c *Cache) Fetch(ctx context.Context, topic, difficulty string, count int) ([]quiz.Question, error) {
	key := topic + "|" + difficulty + "|" + strconv.Itoa(count)
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		return clone(e.questions), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		qs, err := c.next.Fetch(fctx, topic, difficulty, count)
		if err != nil {
			return nil, err
		}
		// short results are served but not kept
		if len(qs) >= count {
			c.mu.Lock()
			c.purgeLocked()
			c.entries[key] = cached{questions: qs, expires: c.now().Add(c.ttl)}
			c.mu.Unlock()
		}
		return qs, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]quiz.Question)), nil
	}
}

func (c *Cache) purgeLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

func clone(qs []quiz.Question) []quiz.Question {
	out := make([]quiz.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}
