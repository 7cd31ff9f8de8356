package questions

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamerooms/internal/game"
	"gamerooms/internal/game/gametest"
	"gamerooms/internal/game/quiz"
)

func TestBankLoads(t *testing.T) {
	b, err := NewBank(game.NewRandom())
	require.NoError(t, err)
	qs, err := b.Fetch(context.Background(), "", "", 3)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for _, q := range qs {
		assert.NotEmpty(t, q.Text)
		assert.Less(t, q.CorrectAnswerIndex, len(q.Options))
	}
}

func TestBankFiltersByTopicAndDifficulty(t *testing.T) {
	b, err := NewBank(gametest.Dice())
	require.NoError(t, err)

	qs, err := b.Fetch(context.Background(), "Science", "easy", 10)
	require.NoError(t, err)
	assert.Len(t, qs, 2, "short result is returned as is")
	for _, q := range qs {
		assert.Contains(t, []string{"sci-1", "sci-2"}, q.ID)
	}

	qs, err = b.Fetch(context.Background(), "astrology", "", 2)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "gen-1", qs[0].ID, "unknown topics fall back to general")
}

func TestParseBankRejectsBadAnswer(t *testing.T) {
	_, err := ParseBank([]byte(`- {id: x, topic: t, text: q, options: [a, b], answer: 2}`), gametest.Dice())
	assert.ErrorContains(t, err, "out of range")

	_, err = ParseBank([]byte(`not: [valid`), gametest.Dice())
	assert.Error(t, err)
}

type countingSupplier struct {
	calls atomic.Int32
	n     int
	err   error
	delay time.Duration
}

func (s *countingSupplier) Fetch(ctx context.Context, topic, difficulty string, count int) ([]quiz.Question, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]quiz.Question, min(s.n, count))
	for i := range out {
		out[i] = quiz.Question{ID: topic, Options: []string{"a", "b"}}
	}
	return out, nil
}

func TestCacheServesUntilExpiry(t *testing.T) {
	up := &countingSupplier{n: 5}
	c := NewCache(up, time.Minute, time.Second)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	first, err := c.Fetch(ctx, "science", "easy", 3)
	require.NoError(t, err)
	first[0].Options[0] = "mutated"

	second, err := c.Fetch(ctx, "science", "easy", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.calls.Load())
	assert.Equal(t, "a", second[0].Options[0], "callers get their own copy")

	_, err = c.Fetch(ctx, "science", "hard", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.calls.Load(), "different key")

	now = now.Add(2 * time.Minute)
	_, err = c.Fetch(ctx, "science", "easy", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestCacheDoesNotKeepShortResults(t *testing.T) {
	up := &countingSupplier{n: 1}
	c := NewCache(up, time.Minute, time.Second)
	for i := 0; i < 2; i++ {
		qs, err := c.Fetch(context.Background(), "t", "", 3)
		require.NoError(t, err)
		assert.Len(t, qs, 1)
	}
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestCacheCollapsesConcurrentFetches(t *testing.T) {
	up := &countingSupplier{n: 3, delay: 50 * time.Millisecond}
	c := NewCache(up, time.Minute, time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Fetch(context.Background(), "t", "", 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestCachePropagatesErrors(t *testing.T) {
	boom := errors.New("upstream down")
	c := NewCache(&countingSupplier{err: boom}, time.Minute, time.Second)
	_, err := c.Fetch(context.Background(), "t", "", 3)
	assert.ErrorIs(t, err, boom)
}

// gatedSupplier blocks every fetch until release is closed.
type gatedSupplier struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *gatedSupplier) Fetch(ctx context.Context, topic, difficulty string, count int) ([]quiz.Question, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []quiz.Question{{ID: "q1", Options: []string{"a", "b"}}}, nil
}

func TestCacheCallerCancelDoesNotFailOthers(t *testing.T) {
	up := &gatedSupplier{release: make(chan struct{})}
	c := NewCache(up, time.Minute, 5*time.Second)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(firstCtx, "t", "", 1)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return up.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		qs  []quiz.Question
		err error
	}
	second := make(chan result, 1)
	go func() {
		qs, err := c.Fetch(context.Background(), "t", "", 1)
		second <- result{qs, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(up.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.qs, 1)
	assert.Equal(t, int32(1), up.calls.Load(), "the waiting caller shared the first fetch")
}

func TestCacheBoundsUpstreamFetch(t *testing.T) {
	up := &gatedSupplier{release: make(chan struct{})}
	c := NewCache(up, time.Minute, 10*time.Millisecond)
	_, err := c.Fetch(context.Background(), "t", "", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
