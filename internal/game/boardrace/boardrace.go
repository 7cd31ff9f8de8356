// Package boardrace implements the rules of the four-token board race.
//
// Token positions are per-seat progress counters: 0 is the base, 1..51 the
// shared track, 52..56 the seat's home stretch and 57 home. Two tokens of
// different seats meet when their progress maps to the same absolute track
// cell.
package boardrace

import (
	"slices"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
)

const (
	TokensPerSeat = 4
	MaxSeats      = 4
	DieFaces      = 6
	EscapeValue   = 6
	TrackEnd      = 51
	Home          = 57

	trackCells = 52
	maxSixes   = 3
)

type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Yellow Color = "yellow"
	Blue   Color = "blue"
)

// Colors in seat order.
var Colors = []Color{Red, Green, Yellow, Blue}

var startCell = map[Color]int{Red: 0, Green: 13, Yellow: 26, Blue: 39}

var starCells = []int{8, 21, 34, 47}

// Rules implements game.Game.
type Rules struct{}

func (Rules) Info() game.Info {
	return game.Info{Name: game.BoardRace, MinPlayers: 1, MaxPlayers: MaxSeats, AISeats: true}
}

type Seat struct {
	PlayerID string             `json:"playerId"`
	Color    Color              `json:"color"`
	Tokens   [TokensPerSeat]int `json:"tokenPositions"`
}

type State struct {
	Seats            []Seat `json:"seats"`
	DieValue         int    `json:"dieValue"`
	DieConsumed      bool   `json:"dieConsumed"`
	ConsecutiveSixes int    `json:"consecutiveSixCount"`
	LastRoll         int    `json:"lastRoll"`
}

func (*State) GameType() game.Type { return game.BoardRace }

// New returns the initial state with every token in base.
func New(playerIDs []string) *State {
	s := &State{DieConsumed: true}
	for _, id := range playerIDs {
		_ = s.AddSeat(id)
	}
	return s
}

// AddSeat gives a player the next free color.
func (s *State) AddSeat(playerID string) error {
	if len(s.Seats) >= MaxSeats {
		return apperr.ErrRoomFull
	}
	s.Seats = append(s.Seats, Seat{PlayerID: playerID, Color: Colors[len(s.Seats)]})
	return nil
}

func (s *State) Clone() *State {
	c := *s
	c.Seats = slices.Clone(s.Seats)
	return &c
}

// DiePending reports whether a rolled value is waiting to be used.
func (s *State) DiePending() bool {
	return s.DieValue != 0 && !s.DieConsumed
}

// ClearTurn drops any pending die and six streak, as when a turn is forfeited.
func (s *State) ClearTurn() {
	s.DieValue = 0
	s.DieConsumed = true
	s.ConsecutiveSixes = 0
}

// RollDie draws a uniformly random die face.
func RollDie(r game.Random) int {
	return r.IntN(DieFaces) + 1
}

func (s *State) CheckRoll() error {
	if s.DiePending() {
		return apperr.ErrDieAlreadyRolled
	}
	return nil
}

type RollResult struct {
	Value   int       `json:"value"`
	Forfeit bool      `json:"forfeit,omitempty"`
	NoMove  bool      `json:"noMove,omitempty"`
	Step    game.Step `json:"-"`
}

// Roll records value for seat. A third consecutive escape value forfeits
// the turn; a value no token can use passes it.
func (s *State) Roll(seat, value int) RollResult {
	s.LastRoll = value
	if value == EscapeValue {
		s.ConsecutiveSixes++
		if s.ConsecutiveSixes >= maxSixes {
			s.ClearTurn()
			return RollResult{Value: value, Forfeit: true, Step: game.Next}
		}
	} else {
		s.ConsecutiveSixes = 0
	}
	s.DieValue = value
	s.DieConsumed = false
	if len(s.LegalTokens(seat)) == 0 {
		s.ClearTurn()
		return RollResult{Value: value, NoMove: true, Step: game.Next}
	}
	return RollResult{Value: value, Step: game.Stay}
}

// destination returns where a token at pos lands with die, or -1.
func destination(pos, die int) int {
	switch {
	case pos == 0:
		if die == EscapeValue {
			return 1
		}
		return -1
	case pos >= Home:
		return -1
	case pos+die > Home:
		return -1
	default:
		return pos + die
	}
}

// LegalTokens lists the token indexes seat can move with the pending die.
func (s *State) LegalTokens(seat int) []int {
	if !s.DiePending() || seat < 0 || seat >= len(s.Seats) {
		return nil
	}
	var out []int
	for i, pos := range s.Seats[seat].Tokens {
		if destination(pos, s.DieValue) > 0 {
			out = append(out, i)
		}
	}
	return out
}

func (s *State) CheckMove(seat, token int) error {
	if !s.DiePending() {
		return apperr.ErrDieNotRolled
	}
	if seat < 0 || seat >= len(s.Seats) || token < 0 || token >= TokensPerSeat {
		return apperr.ErrIllegalDestination
	}
	if destination(s.Seats[seat].Tokens[token], s.DieValue) < 0 {
		return apperr.ErrIllegalDestination
	}
	return nil
}

type Capture struct {
	PlayerID string `json:"playerId"`
	Token    int    `json:"token"`
}

type MoveResult struct {
	From     int       `json:"from"`
	To       int       `json:"to"`
	Captured []Capture `json:"captured,omitempty"`
	Won      bool      `json:"won,omitempty"`
	Step     game.Step `json:"-"`
}

// Move advances a token with the pending die. Callers must CheckMove first.
func (s *State) Move(seat, token int) MoveResult {
	die := s.DieValue
	from := s.Seats[seat].Tokens[token]
	to := destination(from, die)
	s.Seats[seat].Tokens[token] = to

	res := MoveResult{From: from, To: to}
	res.Captured = s.capture(seat, to)

	s.DieValue = 0
	s.DieConsumed = true

	if s.allHome(seat) {
		res.Won = true
		res.Step = game.Stay
		return res
	}
	if die == EscapeValue || len(res.Captured) > 0 {
		res.Step = game.Stay
		return res
	}
	s.ConsecutiveSixes = 0
	res.Step = game.Next
	return res
}

// capture sends opponents sharing the landing cell back to base.
func (s *State) capture(seat, progress int) []Capture {
	cell, ok := s.cellOf(seat, progress)
	if !ok || isSafe(cell) {
		return nil
	}
	var out []Capture
	for i := range s.Seats {
		if i == seat {
			continue
		}
		for t, pos := range s.Seats[i].Tokens {
			if c, ok := s.cellOf(i, pos); ok && c == cell {
				s.Seats[i].Tokens[t] = 0
				out = append(out, Capture{PlayerID: s.Seats[i].PlayerID, Token: t})
			}
		}
	}
	return out
}

func (s *State) cellOf(seat, progress int) (int, bool) {
	if progress < 1 || progress > TrackEnd {
		return 0, false
	}
	return (startCell[s.Seats[seat].Color] + progress - 1) % trackCells, true
}

func isSafe(cell int) bool {
	for _, c := range startCell {
		if c == cell {
			return true
		}
	}
	return slices.Contains(starCells, cell)
}

func (s *State) allHome(seat int) bool {
	for _, pos := range s.Seats[seat].Tokens {
		if pos != Home {
			return false
		}
	}
	return true
}

// Terminal reports the winner once a seat has every token home.
func (s *State) Terminal() (game.Outcome, bool) {
	for i, seat := range s.Seats {
		if s.allHome(i) {
			return game.Outcome{WinnerID: seat.PlayerID, Reason: "all tokens home"}, true
		}
	}
	return game.Outcome{}, false
}
