// Package quiz implements the timed multiple-choice quiz in two scoring
// variants. Every player answers each question once; a question closes when
// all players have answered or its deadline passes.
package quiz

import (
	"maps"
	"slices"
	"time"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
)

const (
	MaxSeats     = 20
	CorrectScore = 10
	SpeedBonus   = 5
)

type Question struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
}

// Rules implements game.Game for one variant.
type Rules struct {
	Variant game.Type
}

func (r Rules) Info() game.Info {
	return game.Info{Name: r.Variant, MinPlayers: 1, MaxPlayers: MaxSeats}
}

type Answer struct {
	Index int `json:"index"`
	Seq   int `json:"seq"`
}

type State struct {
	Variant      game.Type         `json:"variant"`
	Players      []string          `json:"players"`
	Questions    []Question        `json:"questions"`
	CurrentIndex int               `json:"currentQuestionIndex"`
	Answers      map[string]Answer `json:"answers"`
	Scores       map[string]int    `json:"scores"`
	ReachedAt    map[string]int    `json:"reachedAt"` // answer sequence of each player's last score change
	Seq          int               `json:"seq"`
	Deadline     time.Time         `json:"deadline,omitzero"`
	Finished     bool              `json:"finished"`
}

func (s *State) GameType() game.Type { return s.Variant }

func New(variant game.Type, playerIDs []string) *State {
	s := &State{
		Variant:   variant,
		Answers:   map[string]Answer{},
		Scores:    map[string]int{},
		ReachedAt: map[string]int{},
	}
	for _, id := range playerIDs {
		_ = s.AddSeat(id)
	}
	return s
}

func (s *State) AddSeat(playerID string) error {
	if len(s.Players) >= MaxSeats {
		return apperr.ErrRoomFull
	}
	s.Players = append(s.Players, playerID)
	s.Scores[playerID] = 0
	return nil
}

func (s *State) Clone() *State {
	c := *s
	c.Players = slices.Clone(s.Players)
	c.Questions = slices.Clone(s.Questions)
	c.Answers = maps.Clone(s.Answers)
	c.Scores = maps.Clone(s.Scores)
	c.ReachedAt = maps.Clone(s.ReachedAt)
	return &c
}

// Start loads the question list and opens the first question.
func (s *State) Start(questions []Question, deadline time.Time) error {
	if len(questions) == 0 {
		return apperr.New(apperr.CodeInternal, "no questions available")
	}
	s.Questions = slices.Clone(questions)
	s.CurrentIndex = 0
	s.Answers = map[string]Answer{}
	s.Deadline = deadline
	s.Finished = false
	return nil
}

// Current returns the open question.
func (s *State) Current() (Question, bool) {
	if s.Finished || s.CurrentIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

func (s *State) CheckAnswer(playerID string, index int) error {
	q, ok := s.Current()
	if !ok {
		return apperr.ErrGameNotActive
	}
	if !slices.Contains(s.Players, playerID) {
		return apperr.ErrPlayerNotFound
	}
	if _, done := s.Answers[playerID]; done {
		return apperr.ErrAlreadyAnswered
	}
	if index < 0 || index >= len(q.Options) {
		return apperr.New(apperr.CodeInvalidAnswer, "answer index out of range")
	}
	return nil
}

type AnswerResult struct {
	Correct bool `json:"correct"`
	Closed  bool `json:"closed,omitempty"` // question scored and the next one opened
	Over    bool `json:"over,omitempty"`
}

// Answer records playerID's answer and closes the question once everyone
// has answered. Callers must CheckAnswer first.
func (s *State) Answer(playerID string, index int) AnswerResult {
	q, _ := s.Current()
	s.Seq++
	s.Answers[playerID] = Answer{Index: index, Seq: s.Seq}
	res := AnswerResult{Correct: index == q.CorrectAnswerIndex}
	if len(s.Answers) == len(s.Players) {
		s.close()
		res.Closed = true
		res.Over = s.Finished
	}
	return res
}

// Expire closes question index if it is still open. It reports whether
// anything changed, so a late timer is a no-op.
func (s *State) Expire(index int) bool {
	if _, ok := s.Current(); !ok || s.CurrentIndex != index {
		return false
	}
	s.close()
	return true
}

// close scores the open question, missing answers counting as wrong, and
// moves to the next one.
func (s *State) close() {
	q := s.Questions[s.CurrentIndex]
	first, firstSeq := "", 0
	for _, id := range s.Players {
		a, ok := s.Answers[id]
		if !ok || a.Index != q.CorrectAnswerIndex {
			continue
		}
		s.Scores[id] += CorrectScore
		s.ReachedAt[id] = a.Seq
		if first == "" || a.Seq < firstSeq {
			first, firstSeq = id, a.Seq
		}
	}
	if s.Variant == game.QuizSpeed && first != "" {
		s.Scores[first] += SpeedBonus
	}
	s.Answers = map[string]Answer{}
	s.CurrentIndex++
	if s.CurrentIndex >= len(s.Questions) {
		s.Finished = true
		s.Deadline = time.Time{}
	}
}

// Terminal reports the highest score once the questions are exhausted. The
// player who reached a tied score first wins; a complete tie is a draw.
func (s *State) Terminal() (game.Outcome, bool) {
	if !s.Finished {
		return game.Outcome{}, false
	}
	best, tied := "", false
	for _, id := range s.Players {
		if best == "" {
			best = id
			continue
		}
		switch sc, bs := s.Scores[id], s.Scores[best]; {
		case sc > bs:
			best, tied = id, false
		case sc == bs:
			ra, rb := s.ReachedAt[id], s.ReachedAt[best]
			switch {
			case ra < rb:
				best, tied = id, false
			case ra == rb:
				tied = true
			}
		}
	}
	if best == "" || tied {
		return game.Outcome{Draw: true, Reason: "tie"}, true
	}
	return game.Outcome{WinnerID: best, Reason: "highest score"}, true
}
