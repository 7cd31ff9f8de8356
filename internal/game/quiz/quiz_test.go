package quiz

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
)

func questions(n int) []Question {
	out := make([]Question, n)
	for i := range out {
		out[i] = Question{
			ID:                 string(rune('a' + i)),
			Text:               "question",
			Options:            []string{"w", "x", "y", "z"},
			CorrectAnswerIndex: 1,
		}
	}
	return out
}

func started(t *testing.T, variant game.Type, n int, players ...string) *State {
	t.Helper()
	s := New(variant, players)
	require.NoError(t, s.Start(questions(n), time.Unix(100, 0)))
	return s
}

func TestAllAnswersCloseQuestion(t *testing.T) {
	s := started(t, game.QuizClassic, 2, "a", "b", "c")

	assert.False(t, s.Answer("a", 1).Closed)
	assert.False(t, s.Answer("b", 0).Closed)
	assert.Equal(t, 0, s.Scores["a"], "scores wait for the question to close")

	res := s.Answer("c", 1)
	assert.True(t, res.Closed)
	assert.False(t, res.Over)
	assert.Equal(t, 1, s.CurrentIndex)
	assert.Equal(t, map[string]int{"a": 10, "b": 0, "c": 10}, s.Scores)
	assert.Empty(t, s.Answers)

	s.Answer("a", 0)
	s.Answer("b", 0)
	res = s.Answer("c", 1)
	assert.True(t, res.Over)
	out, over := s.Terminal()
	require.True(t, over)
	assert.Equal(t, "c", out.WinnerID)
}

func TestCheckAnswer(t *testing.T) {
	s := started(t, game.QuizClassic, 1, "a", "b")
	assert.True(t, errors.Is(s.CheckAnswer("zed", 0), apperr.ErrPlayerNotFound))
	assert.Equal(t, apperr.CodeInvalidAnswer, apperr.From(s.CheckAnswer("a", 4)).Code)
	assert.Equal(t, apperr.CodeInvalidAnswer, apperr.From(s.CheckAnswer("a", -1)).Code)
	require.NoError(t, s.CheckAnswer("a", 2))
	s.Answer("a", 2)
	assert.True(t, errors.Is(s.CheckAnswer("a", 1), apperr.ErrAlreadyAnswered))

	s.Answer("b", 1)
	assert.True(t, errors.Is(s.CheckAnswer("a", 1), apperr.ErrGameNotActive))
}

func TestExpireScoresMissingAsWrong(t *testing.T) {
	s := started(t, game.QuizClassic, 2, "a", "b")
	s.Answer("a", 1)

	assert.False(t, s.Expire(1), "only the open question can expire")
	assert.True(t, s.Expire(0))
	assert.Equal(t, 10, s.Scores["a"])
	assert.Equal(t, 0, s.Scores["b"])
	assert.Equal(t, 1, s.CurrentIndex)
	assert.False(t, s.Expire(0), "a late timer is a no-op")

	assert.True(t, s.Expire(1))
	assert.True(t, s.Finished)
	assert.True(t, s.Deadline.IsZero())
	assert.False(t, s.Expire(2))
}

func TestSpeedVariantRewardsFirstCorrect(t *testing.T) {
	s := started(t, game.QuizSpeed, 1, "a", "b")
	s.Answer("b", 1)
	s.Answer("a", 1)
	assert.Equal(t, 15, s.Scores["b"])
	assert.Equal(t, 10, s.Scores["a"])
}

func TestTieGoesToFirstToReachScore(t *testing.T) {
	s := started(t, game.QuizClassic, 1, "a", "b")
	s.Answer("b", 1)
	s.Answer("a", 1)
	out, over := s.Terminal()
	require.True(t, over)
	assert.Equal(t, "b", out.WinnerID)
}

func TestNobodyScoresIsDraw(t *testing.T) {
	s := started(t, game.QuizClassic, 1, "a", "b")
	s.Expire(0)
	out, over := s.Terminal()
	require.True(t, over)
	assert.True(t, out.Draw)
	assert.Equal(t, game.DrawWinner, out.Winner())
}

func TestStartRequiresQuestions(t *testing.T) {
	s := New(game.QuizClassic, []string{"a"})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(s.Start(nil, time.Time{})))
	_, over := s.Terminal()
	assert.False(t, over)
}

func TestClone(t *testing.T) {
	s := started(t, game.QuizClassic, 1, "a", "b")
	c := s.Clone()
	c.Answer("a", 1)
	c.Scores["b"] = 99
	assert.Empty(t, s.Answers)
	assert.Equal(t, 0, s.Scores["b"])
	assert.Equal(t, 0, s.Seq)
}

func TestAddSeatLimit(t *testing.T) {
	s := New(game.QuizSpeed, nil)
	for i := 0; i < MaxSeats; i++ {
		require.NoError(t, s.AddSeat(string(rune('A'+i))))
	}
	assert.True(t, errors.Is(s.AddSeat("extra"), apperr.ErrRoomFull))
	assert.Equal(t, game.QuizSpeed, s.GameType())
}
