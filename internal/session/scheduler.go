package session

import (
	"context"
	"sync"
	"time"
)

// Scheduler runs deferred per-room work such as AI turns and question
// deadlines. A room has at most one pending task: scheduling replaces the
// previous one and Cancel drops it. A task that already started is left to
// finish when replaced; Cancel and Stop also cancel its context.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	seq     uint64
	stopped bool
	wg      sync.WaitGroup
}

type task struct {
	id      uint64
	timer   *time.Timer
	cancel  context.CancelFunc
	running bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*task)}
}

// Schedule runs fn for roomID after delay.
func (s *Scheduler) Schedule(roomID string, delay time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.tasks[roomID]; ok && !old.running {
		if old.timer.Stop() {
			s.wg.Done()
		}
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.seq++
	t := &task{id: s.seq, cancel: cancel}
	s.wg.Add(1)
	t.timer = time.AfterFunc(max(delay, 0), func() {
		defer s.wg.Done()
		defer cancel()
		defer s.finish(roomID, t.id)
		if !s.start(roomID, t.id) {
			return
		}
		fn(ctx)
	})
	s.tasks[roomID] = t
}

func (s *Scheduler) start(roomID string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[roomID]
	if !ok || t.id != id {
		return false
	}
	t.running = true
	return true
}

func (s *Scheduler) finish(roomID string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[roomID]; ok && t.id == id {
		delete(s.tasks, roomID)
	}
}

// Cancel drops roomID's pending task, if any.
func (s *Scheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[roomID]; ok {
		if t.timer.Stop() {
			s.wg.Done()
		}
		t.cancel()
		delete(s.tasks, roomID)
	}
}

// Pending reports whether roomID has a task waiting or running.
func (s *Scheduler) Pending(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[roomID]
	return ok
}

// Stop cancels every task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, t := range s.tasks {
		if t.timer.Stop() {
			s.wg.Done()
		}
		t.cancel()
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
