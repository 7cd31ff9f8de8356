package session

import (
	"bytes"
	"context"
	"crypto/sha256"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"gamerooms/internal/room"
)

// Archiver writes completed games to the record store in the background,
// retrying with backoff.
type Archiver struct {
	records    RecordStore
	log        zerolog.Logger
	timeout    time.Duration
	maxWait    time.Duration
	newBackOff func() backoff.BackOff
	wg         sync.WaitGroup
}

func NewArchiver(records RecordStore, log zerolog.Logger, timeout time.Duration) *Archiver {
	return &Archiver{
		records:    records,
		log:        log.With().Str("component", "archiver").Logger(),
		timeout:    timeout,
		maxWait:    time.Minute,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// NewArchive builds the archive of a finished game. The id is derived from
// the room and the game's start time, so archiving the same game twice
// yields the same id.
func NewArchive(st *room.State) *room.Archive {
	sum := sha256.Sum256([]byte(st.RoomID + "|" + strconv.FormatInt(st.StartedAt.UnixNano(), 10)))
	id := ulid.MustNew(ulid.Timestamp(st.EndedAt), bytes.NewReader(sum[:]))
	players := make([]room.Player, len(st.Players))
	copy(players, st.Players)
	return &room.Archive{
		ID:        id.String(),
		RoomID:    st.RoomID,
		GameType:  st.GameType,
		Players:   players,
		WinnerID:  st.WinnerID,
		Scores:    st.Scores(),
		StartedAt: st.StartedAt,
		EndedAt:   st.EndedAt,
	}
}

// Archive stores st's archive without blocking the caller.
func (a *Archiver) Archive(st *room.State) {
	arc := NewArchive(st)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.maxWait)
		defer cancel()
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			sctx, scancel := context.WithTimeout(ctx, a.timeout)
			defer scancel()
			return struct{}{}, a.records.AppendArchive(sctx, arc)
		}, backoff.WithBackOff(a.newBackOff()), backoff.WithMaxElapsedTime(a.maxWait))
		if err != nil {
			a.log.Error().Err(err).Str("room", arc.RoomID).Str("archive", arc.ID).Msg("archive failed")
			return
		}
		a.log.Info().Str("room", arc.RoomID).Str("archive", arc.ID).Str("winner", arc.WinnerID).Msg("game archived")
	}()
}

// Wait blocks until pending archives are written or given up.
func (a *Archiver) Wait() {
	a.wg.Wait()
}
