package session

import (
	"context"
	"errors"
	"time"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
	"gamerooms/internal/game/boardrace"
	"gamerooms/internal/game/cards"
	"gamerooms/internal/game/chess"
	"gamerooms/internal/game/quiz"
	"gamerooms/internal/room"
)

// seatOf returns playerID's seat if the game is running and it is their
// turn.
func seatOf(st *room.State, playerID string) (int, error) {
	if !st.GameStarted || st.GameOver {
		return -1, apperr.ErrGameNotActive
	}
	seat := st.PlayerIndex(playerID)
	if seat < 0 {
		return -1, apperr.ErrPlayerNotFound
	}
	if seat != st.CurrentPlayerIndex {
		return -1, apperr.ErrNotYourTurn
	}
	return seat, nil
}

func wrongGame(st *room.State) error {
	return apperr.New(apperr.CodeWrongGame, "room plays "+string(st.GameType))
}

func boardOf(st *room.State) (*boardrace.State, error) {
	if p, ok := st.Payload.(*boardrace.State); ok {
		return p, nil
	}
	return nil, wrongGame(st)
}

func cardsOf(st *room.State) (*cards.State, error) {
	if p, ok := st.Payload.(*cards.State); ok {
		return p, nil
	}
	return nil, wrongGame(st)
}

func chessOf(st *room.State) (*chess.State, error) {
	if p, ok := st.Payload.(*chess.State); ok {
		return p, nil
	}
	return nil, wrongGame(st)
}

func quizOf(st *room.State) (*quiz.State, error) {
	if p, ok := st.Payload.(*quiz.State); ok {
		return p, nil
	}
	return nil, wrongGame(st)
}

// RollDie rolls for the board race player holding the turn.
func (m *Manager) RollDie(ctx context.Context, roomID, playerID string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		b, err := boardOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		if err := b.CheckRoll(); err != nil {
			return nil, err
		}
		return m.roll(st, b, seat), nil
	})
}

func (m *Manager) roll(st *room.State, b *boardrace.State, seat int) *room.Event {
	playerID := st.Players[seat].ID
	res := b.Roll(seat, boardrace.RollDie(m.opts.Random))
	st.Advance(res.Step, 1)
	return &room.Event{Type: "die_rolled", PlayerID: playerID, Data: res}
}

// MoveToken moves one of the player's tokens with the rolled die.
func (m *Manager) MoveToken(ctx context.Context, roomID, playerID string, token int) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		b, err := boardOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		return moveToken(st, b, seat, token)
	})
}

func moveToken(st *room.State, b *boardrace.State, seat, token int) (*room.Event, error) {
	if err := b.CheckMove(seat, token); err != nil {
		return nil, err
	}
	res := b.Move(seat, token)
	st.Advance(res.Step, 1)
	return &room.Event{Type: "token_moved", PlayerID: st.Players[seat].ID, Data: res}, nil
}

// PlayCard plays a card from the player's hand. color names the new color
// when the card is wild; without it the turn waits for ChooseColor.
func (m *Manager) PlayCard(ctx context.Context, roomID, playerID, cardID, color string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		c, err := cardsOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		return m.playCard(st, c, seat, cardID, color)
	})
}

func (m *Manager) playCard(st *room.State, c *cards.State, seat int, cardID, color string) (*room.Event, error) {
	if err := c.CheckPlay(seat, cardID, color); err != nil {
		return nil, err
	}
	res := c.Play(seat, cardID, color, m.opts.Random)
	st.Players[seat].Score += res.Points
	st.Advance(res.Step, c.Direction)
	return &room.Event{Type: "card_played", PlayerID: st.Players[seat].ID, Data: res}, nil
}

// ChooseColor names the active color after the player's wild card.
func (m *Manager) ChooseColor(ctx context.Context, roomID, playerID, color string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		c, err := cardsOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		return m.chooseColor(st, c, seat, color)
	})
}

func (m *Manager) chooseColor(st *room.State, c *cards.State, seat int, color string) (*room.Event, error) {
	if err := c.CheckChooseColor(color); err != nil {
		return nil, err
	}
	res := c.ChooseColor(seat, color, m.opts.Random)
	st.Advance(res.Step, c.Direction)
	return &room.Event{Type: "color_chosen", PlayerID: st.Players[seat].ID, Data: res}, nil
}

// DrawCard draws the pending penalty, or one card, and ends the turn.
func (m *Manager) DrawCard(ctx context.Context, roomID, playerID string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		c, err := cardsOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		return m.drawCard(st, c, seat)
	})
}

func (m *Manager) drawCard(st *room.State, c *cards.State, seat int) (*room.Event, error) {
	if err := c.CheckDraw(); err != nil {
		return nil, err
	}
	res := c.Draw(seat, m.opts.Random)
	st.Advance(res.Step, c.Direction)
	return &room.Event{Type: "card_drawn", PlayerID: st.Players[seat].ID, Data: res}, nil
}

// MakeMove plays a chess move given in UCI or algebraic notation.
func (m *Manager) MakeMove(ctx context.Context, roomID, playerID, notation string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		c, err := chessOf(st)
		if err != nil {
			return nil, err
		}
		seat, err := seatOf(st, playerID)
		if err != nil {
			return nil, err
		}
		if c.ToMove() != playerID {
			return nil, apperr.ErrNotYourTurn
		}
		res, err := c.Move(notation)
		if err != nil {
			return nil, err
		}
		st.Advance(res.Step, 1)
		return &room.Event{Type: "move_made", PlayerID: st.Players[seat].ID, Data: res}, nil
	})
}

// SubmitAnswer records a quiz answer. The question closes and scores as
// soon as every player has answered.
func (m *Manager) SubmitAnswer(ctx context.Context, roomID, playerID string, answer int) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		q, err := quizOf(st)
		if err != nil {
			return nil, err
		}
		if !st.GameStarted || st.GameOver {
			return nil, apperr.ErrGameNotActive
		}
		if err := q.CheckAnswer(playerID, answer); err != nil {
			return nil, err
		}
		res := q.Answer(playerID, answer)
		if res.Closed {
			m.nextQuestion(st, q)
		}
		return &room.Event{Type: "answer_submitted", PlayerID: playerID, Data: res}, nil
	})
}

// nextQuestion publishes the scores of the question just closed and starts
// the clock on the next one.
func (m *Manager) nextQuestion(st *room.State, q *quiz.State) {
	for i := range st.Players {
		st.Players[i].Score = q.Scores[st.Players[i].ID]
	}
	if !q.Finished {
		q.Deadline = m.opts.Now().Add(m.opts.QuestionDuration)
	}
}

func (m *Manager) fetchQuestions(ctx context.Context, rec *room.Record) ([]quiz.Question, error) {
	if m.questions == nil {
		return nil, apperr.New(apperr.CodeInternal, "no question supplier configured")
	}
	fctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	qs, err := m.questions.Fetch(fctx, rec.Topic, rec.Difficulty, m.opts.QuestionCount)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, persistence("fetch questions", err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "fetch questions", err)
	}
	if len(qs) < m.opts.QuestionCount {
		m.log.Warn().Str("room", rec.ID).Int("want", m.opts.QuestionCount).Int("got", len(qs)).Msg("short question list")
	}
	return qs, nil
}

func startQuiz(st *room.State, qs []quiz.Question, deadline time.Time) error {
	q, ok := st.Payload.(*quiz.State)
	if !ok {
		return nil
	}
	return q.Start(qs, deadline)
}

// forfeitTurn passes the turn on from playerID as a timeout would. Chess
// and quiz rooms have nothing to forfeit.
func forfeitTurn(st *room.State, playerID string) (*room.Event, error) {
	if !st.GameStarted || st.GameOver || st.CurrentTurnPlayerID != playerID {
		return nil, errNoChange
	}
	switch p := st.Payload.(type) {
	case *boardrace.State:
		p.ClearTurn()
		st.Advance(game.Next, 1)
	case *cards.State:
		p.ClearTurn(st.CurrentPlayerIndex)
		st.Advance(game.Next, p.Direction)
	default:
		return nil, errNoChange
	}
	return &room.Event{Type: "turn_forfeited", PlayerID: playerID}, nil
}
