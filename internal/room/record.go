package room

import (
	"time"

	"gamerooms/internal/game"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// Record is the durable metadata of a room.
type Record struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	GameType     game.Type  `json:"gameType"`
	HostID       string     `json:"hostId"`
	MaxPlayers   int        `json:"maxPlayers"`
	Visibility   Visibility `json:"visibility"`
	PasswordHash []byte     `json:"-"`
	Status       Status     `json:"status"`
	Players      []Player   `json:"players"`
	ScheduledAt  time.Time  `json:"scheduledAt,omitzero"`
	Topic        string     `json:"topic,omitempty"`
	Difficulty   string     `json:"difficulty,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Archive is the permanent record of one completed game.
type Archive struct {
	ID        string         `json:"id"`
	RoomID    string         `json:"roomId"`
	GameType  game.Type      `json:"gameType"`
	Players   []Player       `json:"players"`
	WinnerID  string         `json:"winnerId"`
	Scores    map[string]int `json:"scores"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
}

// Event describes the action behind a state broadcast, e.g. the die value
// just rolled or the card a player drew.
type Event struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId,omitempty"`
	Data     any    `json:"data,omitempty"`
}
