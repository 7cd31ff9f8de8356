package cards

import (
	"fmt"
	"strconv"
)

type Color string

const (
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Blue   Color = "blue"
	Wild   Color = "wild"
)

// Colors lists the four playable colors.
var Colors = []Color{Red, Yellow, Green, Blue}

// ParseColor validates a color named by a player.
func ParseColor(s string) (Color, bool) {
	for _, c := range Colors {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

type Value string

const (
	Skip         Value = "skip"
	Reverse      Value = "reverse"
	DrawTwo      Value = "draw_two"
	WildCard     Value = "wild"
	WildDrawFour Value = "wild_draw_four"
)

// DeckSize is the standard composition: 4x25 colored cards and 8 wilds.
const DeckSize = 108

type Card struct {
	ID    string `json:"id"`
	Color Color  `json:"color"`
	Value Value  `json:"value"`
}

func (c Card) IsWild() bool {
	return c.Color == Wild
}

func (c Card) IsNumber() bool {
	_, err := strconv.Atoi(string(c.Value))
	return err == nil
}

// Points is the card's value when counted in a loser's hand.
func (c Card) Points() int {
	if n, err := strconv.Atoi(string(c.Value)); err == nil {
		return n
	}
	if c.IsWild() {
		return 50
	}
	return 20
}

// NewDeck returns the 108 cards in a fixed order.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, color := range Colors {
		deck = append(deck, Card{ID: fmt.Sprintf("%s-0-1", color), Color: color, Value: "0"})
		values := []Value{"1", "2", "3", "4", "5", "6", "7", "8", "9", Skip, Reverse, DrawTwo}
		for _, v := range values {
			for n := 1; n <= 2; n++ {
				deck = append(deck, Card{ID: fmt.Sprintf("%s-%s-%d", color, v, n), Color: color, Value: v})
			}
		}
	}
	for _, v := range []Value{WildCard, WildDrawFour} {
		for n := 1; n <= 4; n++ {
			deck = append(deck, Card{ID: fmt.Sprintf("%s-%d", v, n), Color: Wild, Value: v})
		}
	}
	return deck
}
