package game

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"sync"
)

// Type identifies a game type. It is fixed for the life of a room.
type Type string

const (
	BoardRace    Type = "board-race"
	SheddingCard Type = "shedding-card"
	Chess        Type = "chess"
	QuizClassic  Type = "quiz-variant-A"
	QuizSpeed    Type = "quiz-variant-B"
)

// Valid reports whether t names a known game type.
func (t Type) Valid() bool {
	switch t {
	case BoardRace, SheddingCard, Chess, QuizClassic, QuizSpeed:
		return true
	}
	return false
}

// IsQuiz reports whether t is one of the quiz variants.
func (t Type) IsQuiz() bool {
	return t == QuizClassic || t == QuizSpeed
}

// DrawWinner is the winner id recorded when a game ends without a winner.
const DrawWinner = "draw"

// Info describes a game type for the lobby.
type Info struct {
	Name       Type `json:"name"`
	MinPlayers int  `json:"minPlayers"`
	MaxPlayers int  `json:"maxPlayers"`
	AISeats    bool `json:"aiSeats"` // empty seats may be backfilled with AI players
}

// Game describes a game type (board race, cards, chess, quiz).
type Game interface {
	Info() Info
}

// Step tells the coordinator how many seats to rotate after an action.
// Zero keeps the turn with the acting seat.
type Step struct {
	Seats int
}

var (
	Stay = Step{Seats: 0}
	Next = Step{Seats: 1}
	Skip = Step{Seats: 2}
)

// Rotate returns the seat index reached by moving steps seats in direction
// from index, wrapping around count seats.
func Rotate(index, direction, steps, count int) int {
	if count <= 0 {
		return 0
	}
	return ((index+direction*steps)%count + count) % count
}

// Outcome is the terminal result of a game.
type Outcome struct {
	WinnerID string `json:"winnerId,omitempty"`
	Draw     bool   `json:"draw,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Winner returns the winner id, or DrawWinner for drawn games.
func (o Outcome) Winner() string {
	if o.Draw {
		return DrawWinner
	}
	return o.WinnerID
}

// Random is the randomness consumed by the rules: die rolls, shuffles and
// draws. *rand.Rand from math/rand/v2 satisfies it.
type Random interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type lockedRandom struct {
	mu sync.Mutex
	r  *mrand.Rand
}

// NewRandom returns a goroutine-safe Random seeded from crypto/rand.
func NewRandom() Random {
	var b [16]byte
	_, _ = rand.Read(b[:])
	seed1 := binary.LittleEndian.Uint64(b[:8])
	seed2 := binary.LittleEndian.Uint64(b[8:])
	return &lockedRandom{r: mrand.New(mrand.NewPCG(seed1, seed2))}
}

func (l *lockedRandom) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRandom) Shuffle(n int, swap func(i, j int)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r.Shuffle(n, swap)
}
