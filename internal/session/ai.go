package session

import (
	"context"
	"errors"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
	"gamerooms/internal/game/boardrace"
	"gamerooms/internal/game/cards"
	"gamerooms/internal/game/quiz"
	"gamerooms/internal/room"
)

// afterCommit arms the room's deferred work for the state just saved: the
// open question's deadline in a quiz, the next AI turn otherwise. Anything
// armed for an earlier state is replaced.
func (m *Manager) afterCommit(st *room.State) {
	if !st.GameStarted || st.GameOver {
		m.sched.Cancel(st.RoomID)
		return
	}
	roomID := st.RoomID
	if q, ok := st.Payload.(*quiz.State); ok {
		if q.Deadline.IsZero() {
			m.sched.Cancel(roomID)
			return
		}
		index := q.CurrentIndex
		m.sched.Schedule(roomID, q.Deadline.Sub(m.opts.Now()), func(ctx context.Context) {
			m.expireQuestion(ctx, roomID, index)
		})
		return
	}
	p, ok := st.CurrentPlayer()
	if !ok || !p.IsAI {
		m.sched.Cancel(roomID)
		return
	}
	version := st.Version
	m.sched.Schedule(roomID, m.opts.AITurnDelay, func(ctx context.Context) {
		m.aiTurn(ctx, roomID, p.ID, version)
	})
}

// aiTurn plays one action for the AI seat playerID, provided the room is
// still at the version it was scheduled for. A failed attempt leaves the
// turn with the AI and retries later.
func (m *Manager) aiTurn(ctx context.Context, roomID, playerID string, version int64) {
	_, err := m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		if st.Version != version || st.GameOver || st.CurrentTurnPlayerID != playerID {
			return nil, errNoChange
		}
		return m.playAI(st)
	})
	if err == nil || ctx.Err() != nil || errors.Is(err, apperr.ErrRoomNotFound) {
		return
	}
	m.log.Warn().Err(err).Str("room", roomID).Str("player", playerID).Msg("ai turn failed")
	m.sched.Schedule(roomID, m.opts.AIRetryDelay, func(ctx context.Context) {
		m.aiTurn(ctx, roomID, playerID, version)
	})
}

// playAI takes one action for the seat holding the turn.
func (m *Manager) playAI(st *room.State) (*room.Event, error) {
	seat := st.CurrentPlayerIndex
	switch p := st.Payload.(type) {
	case *boardrace.State:
		if !p.DiePending() {
			return m.roll(st, p, seat), nil
		}
		token, ok := boardrace.ChooseToken(p, seat)
		if !ok {
			p.ClearTurn()
			st.Advance(game.Next, 1)
			return &room.Event{Type: "turn_passed", PlayerID: st.Players[seat].ID}, nil
		}
		return moveToken(st, p, seat, token)
	case *cards.State:
		if p.PendingColorChoice {
			return m.chooseColor(st, p, seat, string(cards.DominantColor(p.Hands[seat].Cards)))
		}
		if id, color, ok := cards.ChooseCard(p, seat); ok {
			return m.playCard(st, p, seat, id, string(color))
		}
		return m.drawCard(st, p, seat)
	default:
		return nil, errNoChange
	}
}

// expireQuestion closes quiz question index when its deadline passes. It
// does nothing if the question was already closed by the last answer.
func (m *Manager) expireQuestion(ctx context.Context, roomID string, index int) {
	_, err := m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		q, ok := st.Payload.(*quiz.State)
		if !ok || st.GameOver || !q.Expire(index) {
			return nil, errNoChange
		}
		m.nextQuestion(st, q)
		return &room.Event{Type: "question_expired", Data: map[string]int{"questionIndex": index}}, nil
	})
	if err == nil || ctx.Err() != nil || errors.Is(err, apperr.ErrRoomNotFound) {
		return
	}
	m.log.Warn().Err(err).Str("room", roomID).Int("question", index).Msg("question expiry failed")
	m.sched.Schedule(roomID, m.opts.AIRetryDelay, func(ctx context.Context) {
		m.expireQuestion(ctx, roomID, index)
	})
}
