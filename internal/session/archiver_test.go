package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamerooms/internal/game"
	"gamerooms/internal/room"
)

// flakyRecords fails the first failures archive writes.
type flakyRecords struct {
	RecordStore
	mu       sync.Mutex
	failures int
	calls    int
	archives map[string]*room.Archive
}

func (f *flakyRecords) AppendArchive(_ context.Context, a *room.Archive) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("disk full")
	}
	f.archives[a.ID] = a
	return nil
}

func finishedState() *room.State {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &room.State{
		RoomID:    "room-1",
		GameType:  game.Chess,
		Players:   []room.Player{{ID: "w", DisplayName: "W"}, {ID: "b", DisplayName: "B", Score: 1}},
		GameOver:  true,
		WinnerID:  "b",
		Status:    room.StatusCompleted,
		StartedAt: start,
		EndedAt:   start.Add(5 * time.Minute),
	}
}

func TestNewArchiveIsDeterministic(t *testing.T) {
	st := finishedState()
	a, b := NewArchive(st), NewArchive(st)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, map[string]int{"w": 0, "b": 1}, a.Scores)
	assert.Equal(t, "b", a.WinnerID)

	st.Players[0].Score = 7
	assert.Zero(t, a.Players[0].Score, "the archive keeps its own player list")

	replay := finishedState()
	replay.StartedAt = replay.StartedAt.Add(time.Hour)
	replay.EndedAt = replay.EndedAt.Add(time.Hour)
	assert.NotEqual(t, a.ID, NewArchive(replay).ID, "a restarted game is a new archive")
}

func TestArchiverRetries(t *testing.T) {
	records := &flakyRecords{failures: 2, archives: map[string]*room.Archive{}}
	a := NewArchiver(records, zerolog.Nop(), time.Second)
	a.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	a.Archive(finishedState())
	a.Wait()
	assert.Equal(t, 3, records.calls)
	require.Len(t, records.archives, 1)
}

func TestArchiverGivesUp(t *testing.T) {
	records := &flakyRecords{failures: 1 << 30, archives: map[string]*room.Archive{}}
	a := NewArchiver(records, zerolog.Nop(), time.Second)
	a.maxWait = 20 * time.Millisecond
	a.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	a.Archive(finishedState())
	a.Wait()
	assert.Empty(t, records.archives)
	assert.Greater(t, records.calls, 1)
}
