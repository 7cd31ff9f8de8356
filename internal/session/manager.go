// Package session coordinates play in game rooms: it serializes the actions
// of every room, applies the game rules, persists and broadcasts each new
// state, and drives AI seats and question timers.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
	"gamerooms/internal/game/quiz"
	"gamerooms/internal/questions"
	"gamerooms/internal/room"
	"gamerooms/internal/storage"
)

// RecordStore persists room records and game archives.
type RecordStore interface {
	SaveRoom(ctx context.Context, r *room.Record) error
	GetRoom(ctx context.Context, id string) (*room.Record, error)
	ListRooms(ctx context.Context, status room.Status) ([]room.Record, error)
	AppendArchive(ctx context.Context, a *room.Archive) error
}

// Broadcaster delivers room states to the room's subscribers.
type Broadcaster interface {
	Publish(st *room.State, ev *room.Event)
	CloseRoom(roomID string)
}

// Options tune a Manager. Zero values take the defaults below.
type Options struct {
	StoreTimeout     time.Duration
	AITurnDelay      time.Duration
	AIRetryDelay     time.Duration
	QuestionDuration time.Duration
	QuestionCount    int
	Random           game.Random
	Now              func() time.Time
	Logger           zerolog.Logger
}

func (o *Options) defaults() {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.AITurnDelay <= 0 {
		o.AITurnDelay = 700 * time.Millisecond
	}
	if o.AIRetryDelay <= 0 {
		o.AIRetryDelay = 2 * time.Second
	}
	if o.QuestionDuration <= 0 {
		o.QuestionDuration = 20 * time.Second
	}
	if o.QuestionCount <= 0 {
		o.QuestionCount = 10
	}
	if o.Random == nil {
		o.Random = game.NewRandom()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager is the turn coordinator. Every action on a room runs as one
// transaction under that room's lock: load, validate, apply, save,
// broadcast. Different rooms proceed in parallel.
type Manager struct {
	registry  *game.Registry
	records   RecordStore
	states    storage.StateStore
	hub       Broadcaster
	questions questions.Supplier
	archiver  *Archiver
	sched     *Scheduler
	locks     *lockTable
	opts      Options
	log       zerolog.Logger
}

// NewManager creates a room manager.
func NewManager(registry *game.Registry, records RecordStore, states storage.StateStore, hub Broadcaster, qs questions.Supplier, opts Options) *Manager {
	opts.defaults()
	log := opts.Logger.With().Str("component", "session").Logger()
	return &Manager{
		registry:  registry,
		records:   records,
		states:    states,
		hub:       hub,
		questions: qs,
		archiver:  NewArchiver(records, opts.Logger, opts.StoreTimeout),
		sched:     NewScheduler(),
		locks:     newLockTable(opts.Now),
		opts:      opts,
		log:       log,
	}
}

// Close stops scheduled work and waits for pending archives.
func (m *Manager) Close() {
	m.sched.Stop()
	m.archiver.Wait()
}

// errNoChange ends a transaction without saving or broadcasting.
var errNoChange = errors.New("no change")

// lockWait bounds how long an action waits for its room. A holder does at
// most a handful of store calls, each bounded by the store timeout.
func (m *Manager) lockWait() time.Duration {
	return 4 * m.opts.StoreTimeout
}

func persistence(op string, err error) error {
	return apperr.Wrap(apperr.CodePersistenceUnavailable, op, err)
}

// update runs fn against roomID's state as one transaction. fn works on a
// copy; when it fails nothing is saved or broadcast.
func (m *Manager) update(ctx context.Context, roomID string, fn func(st *room.State) (*room.Event, error)) (*room.State, error) {
	lctx, cancel := context.WithTimeout(ctx, m.lockWait())
	release, err := m.locks.acquire(lctx, roomID)
	cancel()
	if err != nil {
		return nil, persistence("room busy", err)
	}
	defer release()

	cur, materialized, err := m.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	ev, err := fn(next)
	if errors.Is(err, errNoChange) {
		if materialized {
			if err := m.save(ctx, cur); err != nil {
				return nil, err
			}
		}
		return cur, nil
	}
	if err != nil {
		return nil, err
	}

	now := m.opts.Now()
	if next.GameStarted && !next.GameOver {
		if out, over := next.Terminal(); over {
			next.Finish(out, now)
		}
	}
	next.Version++
	next.UpdatedAt = now
	if err := m.save(ctx, next); err != nil {
		return nil, err
	}
	m.hub.Publish(next, ev)
	m.syncRecord(ctx, cur, next)
	if next.GameOver && !cur.GameOver {
		m.log.Info().Str("room", roomID).Str("winner", next.WinnerID).Msg("game completed")
		m.archiver.Archive(next)
	}
	m.afterCommit(next)
	return next, nil
}

// load reads a room's state, materializing the default state from the room
// record when none was saved yet.
func (m *Manager) load(ctx context.Context, roomID string) (*room.State, bool, error) {
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	data, err := m.states.Get(sctx, room.Key(roomID))
	if errors.Is(err, storage.ErrNotFound) {
		rec, err := m.getRecord(ctx, roomID)
		if err != nil {
			return nil, false, err
		}
		st, err := room.FromRecord(rec, m.opts.Random, m.opts.Now())
		if err != nil {
			return nil, false, apperr.Wrap(apperr.CodeInternal, "materialize room state", err)
		}
		return st, true, nil
	}
	if err != nil {
		m.log.Error().Err(err).Str("room", roomID).Msg("load room state")
		return nil, false, persistence("load room state", err)
	}
	st, err := room.Decode(data)
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInternal, "decode room state", err)
	}
	return st, false, nil
}

func (m *Manager) save(ctx context.Context, st *room.State) error {
	data, err := room.Encode(st)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "encode room state", err)
	}
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	if err := m.states.Set(sctx, room.Key(st.RoomID), data); err != nil {
		m.log.Error().Err(err).Str("room", st.RoomID).Msg("save room state")
		return persistence("save room state", err)
	}
	return nil
}

func (m *Manager) getRecord(ctx context.Context, roomID string) (*room.Record, error) {
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	rec, err := m.records.GetRoom(sctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.ErrRoomNotFound
	}
	if err != nil {
		return nil, persistence("load room", err)
	}
	if rec.Status == room.StatusDeleted {
		return nil, apperr.ErrRoomNotFound
	}
	return rec, nil
}

// syncRecord mirrors status and players onto the room record. The state is
// authoritative, so a failure here is only logged.
func (m *Manager) syncRecord(ctx context.Context, prev, next *room.State) {
	if prev.Status == next.Status && len(prev.Players) == len(next.Players) {
		return
	}
	rec, err := m.getRecord(ctx, next.RoomID)
	if err != nil {
		m.log.Warn().Err(err).Str("room", next.RoomID).Msg("sync room record")
		return
	}
	rec.Status = next.Status
	rec.Players = next.Players
	rec.UpdatedAt = next.UpdatedAt
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	if err := m.records.SaveRoom(sctx, rec); err != nil {
		m.log.Warn().Err(err).Str("room", next.RoomID).Msg("sync room record")
	}
}

// CreateRoomRequest describes a new room.
type CreateRoomRequest struct {
	Name        string
	GameType    game.Type
	HostID      string
	HostName    string
	MaxPlayers  int
	Visibility  room.Visibility
	Password    string
	ScheduledAt string // RFC 3339, empty to start on demand
	Topic       string
	Difficulty  string
}

// CreateRoom stores a room record and its initial state with the host
// seated.
func (m *Manager) CreateRoom(ctx context.Context, req CreateRoomRequest) (*room.State, error) {
	g, ok := m.registry.Get(req.GameType)
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidGameType, fmt.Sprintf("unknown game type %q", req.GameType))
	}
	if req.HostID == "" {
		return nil, apperr.New(apperr.CodeInvalidPayload, "host id required")
	}
	info := g.Info()
	now := m.opts.Now()

	rec := &room.Record{
		ID:         uuid.NewString(),
		Name:       req.Name,
		GameType:   req.GameType,
		HostID:     req.HostID,
		MaxPlayers: info.MaxPlayers,
		Visibility: room.Public,
		Status:     room.StatusWaiting,
		Topic:      req.Topic,
		Difficulty: req.Difficulty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.MaxPlayers > 0 && req.MaxPlayers < info.MaxPlayers {
		rec.MaxPlayers = max(req.MaxPlayers, info.MinPlayers)
	}
	if req.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidSchedule, "unparseable scheduled start", err)
		}
		if !at.After(now) {
			return nil, apperr.New(apperr.CodeInvalidSchedule, "scheduled start is in the past")
		}
		rec.ScheduledAt = at
	}
	if req.Visibility == room.Private {
		if req.Password == "" {
			return nil, apperr.New(apperr.CodeInvalidPayload, "private rooms need a password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidPayload, "hash password", err)
		}
		rec.Visibility = room.Private
		rec.PasswordHash = hash
	}
	if rec.Name == "" {
		rec.Name = string(req.GameType) + " room"
	}

	host := room.Player{ID: req.HostID, DisplayName: displayName(req.HostName, req.HostID)}
	st, err := room.New(rec.ID, req.GameType, host, m.opts.Random, now)
	if err != nil {
		return nil, err
	}
	rec.Players = st.Players

	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	if err := m.records.SaveRoom(sctx, rec); err != nil {
		return nil, persistence("save room", err)
	}
	st.Version = 1
	if err := m.save(ctx, st); err != nil {
		return nil, err
	}
	m.log.Info().Str("room", rec.ID).Str("game", string(req.GameType)).Str("host", req.HostID).Msg("room created")
	return st, nil
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

// JoinRoom seats playerID. Joining a room one already sits in returns the
// current state unchanged.
func (m *Manager) JoinRoom(ctx context.Context, roomID, playerID, name, password string) (*room.State, error) {
	if playerID == "" {
		return nil, apperr.New(apperr.CodeInvalidPayload, "player id required")
	}
	rec, err := m.getRecord(ctx, roomID)
	if err != nil {
		return nil, err
	}
	seated := false
	for _, p := range rec.Players {
		seated = seated || p.ID == playerID
	}
	if rec.Visibility == room.Private && !seated {
		if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
			return nil, apperr.ErrBadPassword
		}
	}
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		if st.HasPlayer(playerID) {
			return nil, errNoChange
		}
		if st.GameStarted {
			return nil, apperr.ErrAlreadyStarted
		}
		if len(st.Players) >= rec.MaxPlayers {
			return nil, apperr.ErrRoomFull
		}
		p := room.Player{ID: playerID, DisplayName: displayName(name, playerID)}
		if err := st.AddPlayer(p, m.opts.Random); err != nil {
			return nil, err
		}
		return &room.Event{Type: "player_joined", PlayerID: playerID}, nil
	})
}

// StartGame moves a waiting room in progress. Only the host may start.
// Board race and card rooms fill up to aiSeats empty seats with AI players,
// and always enough to make two seats; quiz rooms load their questions.
func (m *Manager) StartGame(ctx context.Context, roomID, playerID string, aiSeats int) (*room.State, error) {
	rec, err := m.getRecord(ctx, roomID)
	if err != nil {
		return nil, err
	}
	now := m.opts.Now()
	if !rec.ScheduledAt.IsZero() && now.Before(rec.ScheduledAt) {
		return nil, apperr.New(apperr.CodeScheduledStartPending, "room starts at "+rec.ScheduledAt.Format(time.RFC3339))
	}
	g, ok := m.registry.Get(rec.GameType)
	if !ok {
		return nil, apperr.ErrInvalidGameType
	}
	info := g.Info()

	var qs []quiz.Question
	if rec.GameType.IsQuiz() {
		if rec.HostID != playerID {
			return nil, apperr.ErrNotHost
		}
		qs, err = m.fetchQuestions(ctx, rec)
		if err != nil {
			return nil, err
		}
	}

	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		if st.HostID != playerID {
			return nil, apperr.ErrNotHost
		}
		if st.GameStarted {
			return nil, apperr.ErrAlreadyStarted
		}
		capacity := min(rec.MaxPlayers, info.MaxPlayers)
		if info.AISeats {
			want := min(max(len(st.Players)+max(aiSeats, 0), 2), capacity)
			for n := 1; len(st.Players) < want; n++ {
				bot := room.Player{ID: "ai-" + uuid.NewString()[:8], DisplayName: fmt.Sprintf("Bot %d", n), IsAI: true}
				if err := st.AddPlayer(bot, m.opts.Random); err != nil {
					return nil, err
				}
			}
		}
		if len(st.Players) < info.MinPlayers {
			return nil, apperr.ErrNotEnoughPlayers
		}
		if err := startQuiz(st, qs, now.Add(m.opts.QuestionDuration)); err != nil {
			return nil, err
		}
		st.Start(m.opts.Now())
		m.log.Info().Str("room", roomID).Int("players", len(st.Players)).Msg("game started")
		return &room.Event{Type: "game_started", PlayerID: playerID}, nil
	})
}

// RestartGame puts a room back to waiting with the same players and a fresh
// game. Pending AI turns and timers are dropped.
func (m *Manager) RestartGame(ctx context.Context, roomID, playerID string) (*room.State, error) {
	return m.update(ctx, roomID, func(st *room.State) (*room.Event, error) {
		if st.HostID != playerID {
			return nil, apperr.ErrNotHost
		}
		if err := st.Reset(m.opts.Random, m.opts.Now()); err != nil {
			return nil, err
		}
		return &room.Event{Type: "game_restarted", PlayerID: playerID}, nil
	})
}

// DeleteRoom removes a room's state, marks its record deleted and
// disconnects its subscribers. Only the host may delete.
func (m *Manager) DeleteRoom(ctx context.Context, roomID, playerID string) error {
	lctx, cancel := context.WithTimeout(ctx, m.lockWait())
	release, err := m.locks.acquire(lctx, roomID)
	cancel()
	if err != nil {
		return persistence("room busy", err)
	}
	defer m.locks.forget(roomID)
	defer release()

	rec, err := m.getRecord(ctx, roomID)
	if err != nil {
		return err
	}
	if rec.HostID != playerID {
		return apperr.ErrNotHost
	}
	m.sched.Cancel(roomID)

	sctx, scancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer scancel()
	if err := m.states.Delete(sctx, room.Key(roomID)); err != nil {
		return persistence("delete room state", err)
	}
	rec.Status = room.StatusDeleted
	rec.UpdatedAt = m.opts.Now()
	if err := m.records.SaveRoom(sctx, rec); err != nil {
		return persistence("mark room deleted", err)
	}
	m.hub.CloseRoom(roomID)
	m.log.Info().Str("room", roomID).Msg("room deleted")
	return nil
}

// GetRoomState returns a room's current state, creating the default state
// of a room that has none yet.
func (m *Manager) GetRoomState(ctx context.Context, roomID string) (*room.State, error) {
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	data, err := m.states.Get(sctx, room.Key(roomID))
	cancel()
	switch {
	case err == nil:
		st, err := room.Decode(data)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "decode room state", err)
		}
		return st, nil
	case errors.Is(err, storage.ErrNotFound):
		return m.update(ctx, roomID, func(*room.State) (*room.Event, error) { return nil, errNoChange })
	default:
		return nil, persistence("load room state", err)
	}
}

// GetRoom returns a room's record.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*room.Record, error) {
	return m.getRecord(ctx, roomID)
}

// ListRooms returns the records of rooms with the given status, or every
// live room when status is empty.
func (m *Manager) ListRooms(ctx context.Context, status room.Status) ([]room.Record, error) {
	sctx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	recs, err := m.records.ListRooms(sctx, status)
	if err != nil {
		return nil, persistence("list rooms", err)
	}
	out := recs[:0]
	for _, r := range recs {
		if r.Status != room.StatusDeleted || status == room.StatusDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListGames returns the game catalogue.
func (m *Manager) ListGames() []game.Info {
	return m.registry.List()
}

// HandleDisconnect passes the turn on in every running room where playerID
// holds it, clearing any pending die or draw. It is best effort: failures
// are logged and returned joined, and never stop the other rooms.
func (m *Manager) HandleDisconnect(ctx context.Context, playerID string) error {
	recs, err := m.ListRooms(ctx, room.StatusInProgress)
	if err != nil {
		m.log.Warn().Err(err).Str("player", playerID).Msg("disconnect: list rooms")
		return err
	}
	var errs []error
	for _, rec := range recs {
		seated := false
		for _, p := range rec.Players {
			seated = seated || p.ID == playerID
		}
		if !seated {
			continue
		}
		if _, err := m.update(ctx, rec.ID, func(st *room.State) (*room.Event, error) {
			return forfeitTurn(st, playerID)
		}); err != nil {
			m.log.Warn().Err(err).Str("room", rec.ID).Str("player", playerID).Msg("disconnect: forfeit turn")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resume re-arms AI turns and question timers of every room in progress,
// as after a restart of the process.
func (m *Manager) Resume(ctx context.Context) error {
	recs, err := m.ListRooms(ctx, room.StatusInProgress)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		st, _, err := m.load(ctx, rec.ID)
		if err != nil {
			m.log.Warn().Err(err).Str("room", rec.ID).Msg("resume room")
			continue
		}
		m.afterCommit(st)
	}
	m.log.Info().Int("rooms", len(recs)).Msg("resumed rooms")
	return nil
}

// PruneLoop evicts idle room locks every interval until ctx ends.
func (m *Manager) PruneLoop(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.locks.prune(idle); n > 0 {
				m.log.Debug().Int("evicted", n).Msg("pruned room locks")
			}
		}
	}
}
