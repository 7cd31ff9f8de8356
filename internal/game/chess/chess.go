// Package chess adapts github.com/notnil/chess to the room rules contract.
//
// The persisted state is the FEN of the current position plus the UCI move
// list. The engine game is rebuilt from the move list on every action, so
// the position is always reachable from the start position.
package chess

import (
	"slices"

	"github.com/notnil/chess"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
)

const MaxSeats = 2

// Rules implements game.Game.
type Rules struct{}

func (Rules) Info() game.Info {
	return game.Info{Name: game.Chess, MinPlayers: 2, MaxPlayers: MaxSeats}
}

type State struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
	White string   `json:"white"`
	Black string   `json:"black,omitempty"`
}

func (*State) GameType() game.Type { return game.Chess }

// New seats white, and black when given, at the start position.
func New(playerIDs []string) *State {
	s := &State{FEN: chess.NewGame().Position().String(), Moves: []string{}}
	for _, id := range playerIDs {
		_ = s.AddSeat(id)
	}
	return s
}

// AddSeat gives white to the first player and black to the second.
func (s *State) AddSeat(playerID string) error {
	switch {
	case s.White == "":
		s.White = playerID
	case s.Black == "":
		s.Black = playerID
	default:
		return apperr.ErrRoomFull
	}
	return nil
}

func (s *State) Clone() *State {
	c := *s
	c.Moves = slices.Clone(s.Moves)
	return &c
}

// ToMove returns the id of the side to move.
func (s *State) ToMove() string {
	if len(s.Moves)%2 == 0 {
		return s.White
	}
	return s.Black
}

func (s *State) replay() (*chess.Game, error) {
	g := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	for _, m := range s.Moves {
		if err := g.MoveStr(m); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "replay move "+m, err)
		}
	}
	return g, nil
}

// decode accepts UCI ("e2e4", "e7e8q") or SAN ("e4", "Nf3", "O-O").
func decode(pos *chess.Position, notation string) (*chess.Move, error) {
	if m, err := (chess.UCINotation{}).Decode(pos, notation); err == nil {
		return m, nil
	}
	if m, err := (chess.AlgebraicNotation{}).Decode(pos, notation); err == nil {
		return m, nil
	}
	return nil, apperr.New(apperr.CodeIllegalMove, "illegal move "+notation)
}

func (s *State) play(notation string) (*chess.Game, string, error) {
	g, err := s.replay()
	if err != nil {
		return nil, "", err
	}
	if g.Outcome() != chess.NoOutcome {
		return nil, "", apperr.ErrGameNotActive
	}
	m, err := decode(g.Position(), notation)
	if err != nil {
		return nil, "", err
	}
	uci := chess.UCINotation{}.Encode(g.Position(), m)
	if err := g.Move(m); err != nil {
		return nil, "", apperr.Wrap(apperr.CodeIllegalMove, "illegal move "+notation, err)
	}
	claimDraw(g)
	return g, uci, nil
}

func (s *State) CheckMove(notation string) error {
	_, _, err := s.play(notation)
	return err
}

type MoveResult struct {
	Move    string        `json:"move"`
	FEN     string        `json:"fen"`
	Outcome *game.Outcome `json:"outcome,omitempty"`
	Step    game.Step     `json:"-"`
}

// Move plays notation for the side to move. The state is only changed when
// the move is legal.
func (s *State) Move(notation string) (MoveResult, error) {
	g, uci, err := s.play(notation)
	if err != nil {
		return MoveResult{}, err
	}
	s.Moves = append(s.Moves, uci)
	s.FEN = g.Position().String()
	res := MoveResult{Move: uci, FEN: s.FEN, Step: game.Next}
	if out, over := s.outcome(g); over {
		res.Outcome = &out
		res.Step = game.Stay
	}
	return res, nil
}

// claimDraw takes the draws a player would have to claim, so that games
// ending in threefold repetition or the fifty-move rule finish on their own.
func claimDraw(g *chess.Game) {
	if g.Outcome() != chess.NoOutcome {
		return
	}
	for _, m := range g.EligibleDraws() {
		if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
			_ = g.Draw(m)
			return
		}
	}
}

var reasons = map[chess.Method]string{
	chess.Checkmate:            "checkmate",
	chess.Stalemate:            "stalemate",
	chess.InsufficientMaterial: "insufficient material",
	chess.ThreefoldRepetition:  "threefold repetition",
	chess.FivefoldRepetition:   "fivefold repetition",
	chess.FiftyMoveRule:        "fifty-move rule",
	chess.SeventyFiveMoveRule:  "seventy-five-move rule",
}

func (s *State) outcome(g *chess.Game) (game.Outcome, bool) {
	out := game.Outcome{Reason: reasons[g.Method()]}
	switch g.Outcome() {
	case chess.WhiteWon:
		out.WinnerID = s.White
	case chess.BlackWon:
		out.WinnerID = s.Black
	case chess.Draw:
		out.Draw = true
	default:
		return game.Outcome{}, false
	}
	return out, true
}

// Terminal reports checkmate or a draw by rule.
func (s *State) Terminal() (game.Outcome, bool) {
	g, err := s.replay()
	if err != nil {
		return game.Outcome{}, false
	}
	claimDraw(g)
	return s.outcome(g)
}
