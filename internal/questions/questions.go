// Package questions supplies quiz questions.
package questions

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"

	"gamerooms/internal/game"
	"gamerooms/internal/game/quiz"
)

// Supplier fetches up to count questions. It may return fewer than asked.
type Supplier interface {
	Fetch(ctx context.Context, topic, difficulty string, count int) ([]quiz.Question, error)
}

//go:embed bank.yaml
var bankYAML []byte

// DefaultTopic is used for rooms created without a topic.
const DefaultTopic = "general"

type entry struct {
	ID         string   `yaml:"id"`
	Topic      string   `yaml:"topic"`
	Difficulty string   `yaml:"difficulty"`
	Text       string   `yaml:"text"`
	Options    []string `yaml:"options"`
	Answer     int      `yaml:"answer"`
}

// Bank serves questions from a fixed list, shuffled per fetch.
type Bank struct {
	entries []entry
	rng     game.Random
}

// NewBank loads the built-in question bank.
func NewBank(rng game.Random) (*Bank, error) {
	return ParseBank(bankYAML, rng)
}

// ParseBank loads a question bank from YAML.
func ParseBank(data []byte, rng game.Random) (*Bank, error) {
	var entries []entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	for _, e := range entries {
		if e.Answer < 0 || e.Answer >= len(e.Options) {
			return nil, fmt.Errorf("question %s: answer %d out of range", e.ID, e.Answer)
		}
	}
	return &Bank{entries: entries, rng: rng}, nil
}

// Fetch picks questions matching topic and, when set, difficulty. A topic
// with no questions falls back to the default topic.
func (b *Bank) Fetch(ctx context.Context, topic, difficulty string, count int) ([]quiz.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topic == "" {
		topic = DefaultTopic
	}
	matches := b.match(topic, difficulty)
	if len(matches) == 0 && !strings.EqualFold(topic, DefaultTopic) {
		matches = b.match(DefaultTopic, difficulty)
	}
	b.rng.Shuffle(len(matches), func(i, j int) { matches[i], matches[j] = matches[j], matches[i] })
	if count < len(matches) {
		matches = matches[:count]
	}
	out := make([]quiz.Question, len(matches))
	for i, e := range matches {
		out[i] = quiz.Question{
			ID:                 e.ID,
			Text:               e.Text,
			Options:            append([]string(nil), e.Options...),
			CorrectAnswerIndex: e.Answer,
		}
	}
	return out, nil
}

func (b *Bank) match(topic, difficulty string) []entry {
	var out []entry
	for _, e := range b.entries {
		if !strings.EqualFold(e.Topic, topic) {
			continue
		}
		if difficulty != "" && !strings.EqualFold(e.Difficulty, difficulty) {
			continue
		}
		out = append(out, e)
	}
	return out
}
