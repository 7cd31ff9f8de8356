package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLockSerializesHolders(t *testing.T) {
	tbl := newLockTable(time.Now)
	ctx := context.Background()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tbl.acquire(ctx, "r1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected one holder at a time, saw %d", maxInside)
	}
}

func TestLockRoomsAreIndependent(t *testing.T) {
	tbl := newLockTable(time.Now)
	ctx := context.Background()
	r1, err := tbl.acquire(ctx, "r1")
	if err != nil {
		t.Fatalf("acquire r1: %v", err)
	}
	defer r1()

	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	r2, err := tbl.acquire(ctx2, "r2")
	if err != nil {
		t.Fatalf("r2 blocked behind r1: %v", err)
	}
	r2()
}

func TestLockAcquireHonorsContext(t *testing.T) {
	tbl := newLockTable(time.Now)
	release, err := tbl.acquire(context.Background(), "r1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := tbl.acquire(ctx, "r1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	// a held lock is never pruned, however old
	if n := tbl.prune(0); n != 0 {
		t.Fatalf("pruned a held lock")
	}
}

func TestLockPrune(t *testing.T) {
	now := time.Unix(1000, 0)
	tbl := newLockTable(func() time.Time { return now })
	for _, id := range []string{"a", "b"} {
		release, err := tbl.acquire(context.Background(), id)
		if err != nil {
			t.Fatalf("acquire %s: %v", id, err)
		}
		release()
	}
	held, err := tbl.acquire(context.Background(), "c")
	if err != nil {
		t.Fatalf("acquire c: %v", err)
	}

	if n := tbl.prune(time.Minute); n != 0 {
		t.Fatalf("pruned %d fresh locks", n)
	}
	now = now.Add(time.Hour)
	if n := tbl.prune(time.Minute); n != 2 {
		t.Fatalf("expected 2 idle locks pruned, got %d", n)
	}
	if tbl.size() != 1 {
		t.Fatalf("held lock was evicted")
	}
	held()
	tbl.forget("c")
	if tbl.size() != 0 {
		t.Fatalf("forget kept a free lock")
	}
}

func TestLockSerializesWhilePruning(t *testing.T) {
	tbl := newLockTable(time.Now)
	ctx := context.Background()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				tbl.prune(0)
				tbl.forget("r1")
			}
		}
	}()

	var mu sync.Mutex
	inside, maxInside := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tbl.acquire(ctx, "r1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			maxInside = max(maxInside, inside)
			mu.Unlock()
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	close(stop)
	<-done
	if maxInside != 1 {
		t.Fatalf("an evicted lock let %d holders in at once", maxInside)
	}
}
