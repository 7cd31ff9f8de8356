// Package room holds the per-room game state shared by every game type and
// the durable room and archive records.
package room

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
	"gamerooms/internal/game/boardrace"
	"gamerooms/internal/game/cards"
	"gamerooms/internal/game/chess"
	"gamerooms/internal/game/quiz"
)

// Status represents the room lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusDeleted    Status = "deleted" // record only
)

// Player is one seat. Game-specific seat data lives in the payload.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsAI        bool   `json:"isAI,omitempty"`
	Score       int    `json:"score"`
}

// Payload is the game-specific part of a State: one of *boardrace.State,
// *cards.State, *chess.State or *quiz.State.
type Payload interface {
	GameType() game.Type
}

// State is the authoritative state of one room. It is loaded, changed and
// saved as a whole.
type State struct {
	RoomID              string    `json:"roomId"`
	GameType            game.Type `json:"gameType"`
	Players             []Player  `json:"players"`
	CurrentTurnPlayerID string    `json:"currentTurnPlayerId"`
	CurrentPlayerIndex  int       `json:"currentPlayerIndex"`
	GameStarted         bool      `json:"gameStarted"`
	GameOver            bool      `json:"gameOver"`
	WinnerID            string    `json:"winnerId,omitempty"`
	Status              Status    `json:"status"`
	HostID              string    `json:"hostId"`
	Version             int64     `json:"version"`
	StartedAt           time.Time `json:"startedAt,omitzero"`
	EndedAt             time.Time `json:"endedAt,omitzero"`
	UpdatedAt           time.Time `json:"updatedAt"`
	Payload             Payload   `json:"payload"`
}

// Key is the state store key of a room.
func Key(roomID string) string {
	return "game:" + roomID
}

// NewPayload returns the initial payload of gameType for the given seats.
func NewPayload(gameType game.Type, playerIDs []string, r game.Random) (Payload, error) {
	switch gameType {
	case game.BoardRace:
		return boardrace.New(playerIDs), nil
	case game.SheddingCard:
		return cards.New(playerIDs, r), nil
	case game.Chess:
		return chess.New(playerIDs), nil
	case game.QuizClassic, game.QuizSpeed:
		return quiz.New(gameType, playerIDs), nil
	default:
		return nil, apperr.New(apperr.CodeInvalidGameType, fmt.Sprintf("unknown game type %q", gameType))
	}
}

// New returns a waiting room with host as the only player.
func New(roomID string, gameType game.Type, host Player, r game.Random, now time.Time) (*State, error) {
	p, err := NewPayload(gameType, []string{host.ID}, r)
	if err != nil {
		return nil, err
	}
	return &State{
		RoomID:              roomID,
		GameType:            gameType,
		Players:             []Player{host},
		CurrentTurnPlayerID: host.ID,
		Status:              StatusWaiting,
		HostID:              host.ID,
		UpdatedAt:           now,
		Payload:             p,
	}, nil
}

// FromRecord materializes the default state of a room that has a record
// but no saved state yet.
func FromRecord(rec *Record, r game.Random, now time.Time) (*State, error) {
	ids := make([]string, len(rec.Players))
	for i, p := range rec.Players {
		ids[i] = p.ID
	}
	p, err := NewPayload(rec.GameType, ids, r)
	if err != nil {
		return nil, err
	}
	s := &State{
		RoomID:    rec.ID,
		GameType:  rec.GameType,
		Players:   slices.Clone(rec.Players),
		Status:    StatusWaiting,
		HostID:    rec.HostID,
		UpdatedAt: now,
		Payload:   p,
	}
	s.SetTurn(0)
	return s, nil
}

// PlayerIndex returns the seat of playerID, or -1.
func (s *State) PlayerIndex(playerID string) int {
	return slices.IndexFunc(s.Players, func(p Player) bool { return p.ID == playerID })
}

func (s *State) HasPlayer(playerID string) bool {
	return s.PlayerIndex(playerID) >= 0
}

// CurrentPlayer returns the player holding the turn.
func (s *State) CurrentPlayer() (Player, bool) {
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.Players) {
		return Player{}, false
	}
	return s.Players[s.CurrentPlayerIndex], true
}

// SetTurn moves the turn to seat index, keeping the cached player id in step.
func (s *State) SetTurn(index int) {
	if len(s.Players) == 0 {
		s.CurrentPlayerIndex, s.CurrentTurnPlayerID = 0, ""
		return
	}
	s.CurrentPlayerIndex = index
	s.CurrentTurnPlayerID = s.Players[index].ID
}

// Advance rotates the turn by step in direction.
func (s *State) Advance(step game.Step, direction int) {
	if step.Seats == 0 {
		return
	}
	s.SetTurn(game.Rotate(s.CurrentPlayerIndex, direction, step.Seats, len(s.Players)))
}

// AddPlayer seats p in the room and in the payload.
func (s *State) AddPlayer(p Player, r game.Random) error {
	var err error
	switch pl := s.Payload.(type) {
	case *boardrace.State:
		err = pl.AddSeat(p.ID)
	case *cards.State:
		err = pl.AddSeat(p.ID, r)
	case *chess.State:
		err = pl.AddSeat(p.ID)
	case *quiz.State:
		err = pl.AddSeat(p.ID)
	}
	if err != nil {
		return err
	}
	s.Players = append(s.Players, p)
	if len(s.Players) == 1 {
		s.SetTurn(0)
	}
	return nil
}

// Start moves a waiting room in progress with the first seat to play.
func (s *State) Start(now time.Time) {
	s.GameStarted = true
	s.Status = StatusInProgress
	s.StartedAt = now
	s.SetTurn(0)
}

// Finish records the outcome and ends the game.
func (s *State) Finish(out game.Outcome, now time.Time) {
	s.GameOver = true
	s.Status = StatusCompleted
	s.WinnerID = out.Winner()
	s.EndedAt = now
}

// Reset re-enters the waiting state with the same players and a fresh
// payload.
func (s *State) Reset(r game.Random, now time.Time) error {
	ids := make([]string, len(s.Players))
	for i := range s.Players {
		ids[i] = s.Players[i].ID
		s.Players[i].Score = 0
	}
	p, err := NewPayload(s.GameType, ids, r)
	if err != nil {
		return err
	}
	s.Payload = p
	s.GameStarted, s.GameOver = false, false
	s.WinnerID = ""
	s.Status = StatusWaiting
	s.StartedAt, s.EndedAt = time.Time{}, time.Time{}
	s.UpdatedAt = now
	s.SetTurn(0)
	return nil
}

// Scores returns every player's score keyed by id.
func (s *State) Scores() map[string]int {
	out := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		out[p.ID] = p.Score
	}
	return out
}

// Clone returns a deep copy, so a rejected action can never touch the
// original.
func (s *State) Clone() *State {
	c := *s
	c.Players = slices.Clone(s.Players)
	switch p := s.Payload.(type) {
	case *boardrace.State:
		c.Payload = p.Clone()
	case *cards.State:
		c.Payload = p.Clone()
	case *chess.State:
		c.Payload = p.Clone()
	case *quiz.State:
		c.Payload = p.Clone()
	}
	return &c
}

// Terminal asks the payload's rules whether the game has ended.
func (s *State) Terminal() (game.Outcome, bool) {
	switch p := s.Payload.(type) {
	case *boardrace.State:
		return p.Terminal()
	case *cards.State:
		return p.Terminal()
	case *chess.State:
		return p.Terminal()
	case *quiz.State:
		return p.Terminal()
	}
	return game.Outcome{}, false
}

type stateJSON struct {
	*stateAlias
	Payload json.RawMessage `json:"payload"`
}

type stateAlias State

func (s *State) MarshalJSON() ([]byte, error) {
	p, err := json.Marshal(s.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stateJSON{stateAlias: (*stateAlias)(s), Payload: p})
}

// UnmarshalJSON decodes the payload into the concrete type named by
// gameType.
func (s *State) UnmarshalJSON(data []byte) error {
	aux := stateJSON{stateAlias: (*stateAlias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	var p Payload
	switch s.GameType {
	case game.BoardRace:
		p = &boardrace.State{}
	case game.SheddingCard:
		p = &cards.State{}
	case game.Chess:
		p = &chess.State{}
	case game.QuizClassic, game.QuizSpeed:
		p = &quiz.State{}
	default:
		return fmt.Errorf("decode room state: unknown game type %q", s.GameType)
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return fmt.Errorf("decode room state %s: missing payload", s.RoomID)
	}
	if err := json.Unmarshal(aux.Payload, p); err != nil {
		return fmt.Errorf("decode %s payload: %w", s.GameType, err)
	}
	if p.GameType() != s.GameType {
		return fmt.Errorf("decode room state %s: payload is %s", s.RoomID, p.GameType())
	}
	s.Payload = p
	return nil
}

// Encode serializes a state for the state store.
func Encode(s *State) ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a stored state.
func Decode(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
