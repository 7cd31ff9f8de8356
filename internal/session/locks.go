package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// roomLock serializes actions on one room. It is a one-slot channel so that
// waiting for it can be abandoned when the caller's context ends.
type roomLock struct {
	ch       chan struct{}
	refs     atomic.Int32
	lastUsed atomic.Int64
}

// lockTable hands out one roomLock per room id. Locks nobody holds or waits
// for are evicted once idle, and when their room is deleted.
type lockTable struct {
	locks *xsync.MapOf[string, *roomLock]
	now   func() time.Time
}

func newLockTable(now func() time.Time) *lockTable {
	return &lockTable{locks: xsync.NewMapOf[string, *roomLock](), now: now}
}

// acquire blocks until the room's lock is held or ctx ends.
func (t *lockTable) acquire(ctx context.Context, roomID string) (func(), error) {
	l, _ := t.locks.Compute(roomID, func(old *roomLock, loaded bool) (*roomLock, bool) {
		if !loaded {
			old = &roomLock{ch: make(chan struct{}, 1)}
		}
		old.refs.Add(1)
		return old, false
	})
	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		l.refs.Add(-1)
		return nil, ctx.Err()
	}
	return func() {
		l.lastUsed.Store(t.now().UnixNano())
		<-l.ch
		l.refs.Add(-1)
	}, nil
}

// prune evicts locks unused for longer than idle and returns how many went.
func (t *lockTable) prune(idle time.Duration) int {
	cutoff := t.now().Add(-idle).UnixNano()
	var ids []string
	t.locks.Range(func(id string, l *roomLock) bool {
		if l.refs.Load() == 0 && l.lastUsed.Load() < cutoff {
			ids = append(ids, id)
		}
		return true
	})
	n := 0
	for _, id := range ids {
		t.locks.Compute(id, func(old *roomLock, loaded bool) (*roomLock, bool) {
			if !loaded {
				return old, true
			}
			if old.refs.Load() == 0 && old.lastUsed.Load() < cutoff {
				n++
				return old, true
			}
			return old, false
		})
	}
	return n
}

// forget evicts a room's lock if it is free.
func (t *lockTable) forget(roomID string) {
	t.locks.Compute(roomID, func(old *roomLock, loaded bool) (*roomLock, bool) {
		return old, !loaded || old.refs.Load() == 0
	})
}

func (t *lockTable) size() int {
	return t.locks.Size()
}
