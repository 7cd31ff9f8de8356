// Package gametest provides deterministic randomness for rules tests.
package gametest

import "sync"

// Scripted is a game.Random that returns queued values from IntN and leaves
// slices untouched on Shuffle. Once the queue is empty IntN returns 0.
type Scripted struct {
	mu     sync.Mutex
	values []int
}

// Dice queues die faces (1-based) for rules that roll with IntN(faces)+1.
func Dice(faces ...int) *Scripted {
	s := &Scripted{}
	s.Faces(faces...)
	return s
}

// Faces appends more die faces to the queue.
func (s *Scripted) Faces(faces ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range faces {
		s.values = append(s.values, f-1)
	}
}

func (s *Scripted) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	s.values = s.values[1:]
	if v >= n || v < 0 {
		return 0
	}
	return v
}

func (s *Scripted) Shuffle(n int, swap func(i, j int)) {}
