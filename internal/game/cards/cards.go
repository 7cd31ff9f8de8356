// Package cards implements the shedding card game: match the top of the
// discard pile by color or value, empty your hand first.
//
// The draw pile, the discard pile and every hand always hold the same 108
// cards between them; cards only move from one to another.
package cards

import (
	"slices"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
)

const (
	HandSize = 7
	MaxSeats = 10
)

// Rules implements game.Game.
type Rules struct{}

func (Rules) Info() game.Info {
	return game.Info{Name: game.SheddingCard, MinPlayers: 1, MaxPlayers: MaxSeats, AISeats: true}
}

type Hand struct {
	PlayerID string `json:"playerId"`
	Cards    []Card `json:"cards"`
	LowHand  bool   `json:"declaredLowHand"` // one card left
}

type State struct {
	Hands              []Hand `json:"hands"`
	DrawPile           []Card `json:"drawPile"`
	DiscardPile        []Card `json:"discardPile"`
	ActiveColor        Color  `json:"activeColor"`
	ActiveValue        Value  `json:"activeValue"`
	Direction          int    `json:"direction"`
	PendingDraw        int    `json:"pendingDrawCount"`
	PendingColorChoice bool   `json:"pendingColorChoice"`
}

func (*State) GameType() game.Type { return game.SheddingCard }

// New shuffles a fresh deck, turns the first number card face up and deals
// a hand to every player.
func New(playerIDs []string, r game.Random) *State {
	deck := NewDeck()
	r.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	s := &State{DrawPile: deck, Direction: 1}
	for i := len(s.DrawPile) - 1; i >= 0; i-- {
		if c := s.DrawPile[i]; c.IsNumber() {
			s.DrawPile = slices.Delete(s.DrawPile, i, i+1)
			s.DiscardPile = append(s.DiscardPile, c)
			s.ActiveColor, s.ActiveValue = c.Color, c.Value
			break
		}
	}
	for _, id := range playerIDs {
		_ = s.AddSeat(id, r)
	}
	return s
}

// AddSeat deals a hand to a new player.
func (s *State) AddSeat(playerID string, r game.Random) error {
	if len(s.Hands) >= MaxSeats {
		return apperr.ErrRoomFull
	}
	s.Hands = append(s.Hands, Hand{PlayerID: playerID})
	s.draw(len(s.Hands)-1, HandSize, r)
	return nil
}

func (s *State) Clone() *State {
	c := *s
	c.Hands = make([]Hand, len(s.Hands))
	for i, h := range s.Hands {
		h.Cards = slices.Clone(h.Cards)
		c.Hands[i] = h
	}
	c.DrawPile = slices.Clone(s.DrawPile)
	c.DiscardPile = slices.Clone(s.DiscardPile)
	return &c
}

// Top is the face-up card of the discard pile.
func (s *State) Top() Card {
	if len(s.DiscardPile) == 0 {
		return Card{}
	}
	return s.DiscardPile[len(s.DiscardPile)-1]
}

// Total counts every card in the game.
func (s *State) Total() int {
	n := len(s.DrawPile) + len(s.DiscardPile)
	for _, h := range s.Hands {
		n += len(h.Cards)
	}
	return n
}

// Matches reports whether c may be played on the current discard.
func (s *State) Matches(c Card) bool {
	return c.IsWild() || c.Color == s.ActiveColor || c.Value == s.ActiveValue
}

func (s *State) findCard(seat int, cardID string) int {
	if seat < 0 || seat >= len(s.Hands) {
		return -1
	}
	return slices.IndexFunc(s.Hands[seat].Cards, func(c Card) bool { return c.ID == cardID })
}

func (s *State) CheckPlay(seat int, cardID string, chosen string) error {
	if s.PendingColorChoice {
		return apperr.ErrColorChoicePending
	}
	i := s.findCard(seat, cardID)
	if i < 0 {
		return apperr.ErrCardNotInHand
	}
	if !s.Matches(s.Hands[seat].Cards[i]) {
		return apperr.ErrIllegalCardPlay
	}
	if chosen != "" && s.Hands[seat].Cards[i].IsWild() {
		if _, ok := ParseColor(chosen); !ok {
			return apperr.New(apperr.CodeInvalidColor, "unknown color "+chosen)
		}
	}
	return nil
}

type PlayResult struct {
	Card          Card      `json:"card"`
	Victim        string    `json:"victim,omitempty"`
	Drawn         int       `json:"drawn,omitempty"`
	AwaitingColor bool      `json:"awaitingColor,omitempty"`
	Won           bool      `json:"won,omitempty"`
	Points        int       `json:"points,omitempty"`
	Step          game.Step `json:"-"`
}

// Play moves a card from seat's hand to the discard pile and applies its
// effect. A wild played without a color leaves the turn with seat until
// ChooseColor. Callers must CheckPlay first.
func (s *State) Play(seat int, cardID string, chosen string, r game.Random) PlayResult {
	hand := &s.Hands[seat]
	i := s.findCard(seat, cardID)
	card := hand.Cards[i]
	hand.Cards = slices.Delete(hand.Cards, i, i+1)
	hand.LowHand = len(hand.Cards) == 1
	s.DiscardPile = append(s.DiscardPile, card)
	s.ActiveValue = card.Value
	if !card.IsWild() {
		s.ActiveColor = card.Color
	}

	res := PlayResult{Card: card, Step: game.Next}
	switch card.Value {
	case Skip:
		res.Step = game.Skip
	case Reverse:
		s.Direction = -s.Direction
		if len(s.Hands) == 2 {
			res.Step = game.Skip
		}
	case DrawTwo:
		s.PendingDraw += 2
		res.Victim, res.Drawn = s.penalize(seat, r)
		res.Step = game.Skip
	case WildCard, WildDrawFour:
		if card.Value == WildDrawFour {
			s.PendingDraw += 4
		}
		color, ok := ParseColor(chosen)
		if !ok && len(hand.Cards) > 0 {
			s.PendingColorChoice = true
			res.AwaitingColor = true
			res.Step = game.Stay
			break
		}
		if ok {
			s.ActiveColor = color
		}
		if s.PendingDraw > 0 {
			res.Victim, res.Drawn = s.penalize(seat, r)
			res.Step = game.Skip
		}
	}

	if len(hand.Cards) == 0 {
		res.Won = true
		res.Step = game.Stay
		res.Points = s.opponentPoints(seat)
	}
	return res
}

func (s *State) CheckChooseColor(color string) error {
	if !s.PendingColorChoice {
		return apperr.New(apperr.CodeNoColorChoicePending, "no color choice pending")
	}
	if _, ok := ParseColor(color); !ok {
		return apperr.New(apperr.CodeInvalidColor, "unknown color "+color)
	}
	return nil
}

// ChooseColor names the color after a wild and resolves any draw penalty
// that was waiting on it.
func (s *State) ChooseColor(seat int, color string, r game.Random) PlayResult {
	c, _ := ParseColor(color)
	s.ActiveColor = c
	s.PendingColorChoice = false
	res := PlayResult{Card: s.Top(), Step: game.Next}
	if s.PendingDraw > 0 {
		res.Victim, res.Drawn = s.penalize(seat, r)
		res.Step = game.Skip
	}
	return res
}

func (s *State) CheckDraw() error {
	if s.PendingColorChoice {
		return apperr.ErrColorChoicePending
	}
	return nil
}

// Draw takes the pending penalty, or a single card, and passes the turn.
func (s *State) Draw(seat int, r game.Random) PlayResult {
	n := 1
	if s.PendingDraw > 0 {
		n = s.PendingDraw
		s.PendingDraw = 0
	}
	drawn := s.draw(seat, n, r)
	return PlayResult{Card: s.Top(), Drawn: drawn, Step: game.Next}
}

// ClearTurn resolves anything that would block rotation away from seat: a
// pending color choice takes the color seat holds most and a pending
// penalty is dropped.
func (s *State) ClearTurn(seat int) {
	if s.PendingColorChoice {
		s.ActiveColor = DominantColor(s.Hands[seat].Cards)
		s.PendingColorChoice = false
	}
	s.PendingDraw = 0
}

// penalize makes the next seat draw the pending penalty.
func (s *State) penalize(seat int, r game.Random) (string, int) {
	victim := game.Rotate(seat, s.Direction, 1, len(s.Hands))
	n := s.PendingDraw
	s.PendingDraw = 0
	return s.Hands[victim].PlayerID, s.draw(victim, n, r)
}

// draw moves up to n cards into seat's hand, reshuffling the discard pile
// under its top card when the draw pile runs out.
func (s *State) draw(seat, n int, r game.Random) int {
	drawn := 0
	for ; drawn < n; drawn++ {
		if len(s.DrawPile) == 0 && !s.reshuffle(r) {
			break
		}
		last := len(s.DrawPile) - 1
		s.Hands[seat].Cards = append(s.Hands[seat].Cards, s.DrawPile[last])
		s.DrawPile = s.DrawPile[:last]
	}
	s.Hands[seat].LowHand = len(s.Hands[seat].Cards) == 1
	return drawn
}

func (s *State) reshuffle(r game.Random) bool {
	if len(s.DiscardPile) <= 1 {
		return false
	}
	top := s.DiscardPile[len(s.DiscardPile)-1]
	rest := slices.Clone(s.DiscardPile[:len(s.DiscardPile)-1])
	r.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	s.DrawPile = append(s.DrawPile, rest...)
	s.DiscardPile = []Card{top}
	return true
}

func (s *State) opponentPoints(seat int) int {
	total := 0
	for i, h := range s.Hands {
		if i == seat {
			continue
		}
		for _, c := range h.Cards {
			total += c.Points()
		}
	}
	return total
}

// Terminal reports the player who emptied their hand.
func (s *State) Terminal() (game.Outcome, bool) {
	for _, h := range s.Hands {
		if len(h.Cards) == 0 {
			return game.Outcome{WinnerID: h.PlayerID, Reason: "empty hand"}, true
		}
	}
	return game.Outcome{}, false
}

// DominantColor is the color held most often in cards, red when none.
func DominantColor(cards []Card) Color {
	counts := map[Color]int{}
	for _, c := range cards {
		if !c.IsWild() {
			counts[c.Color]++
		}
	}
	best := Red
	for _, c := range Colors {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
