package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"gamerooms/internal/game"
	"gamerooms/internal/room"
)

// ErrNotFound is returned when a room, archive or state key does not exist.
var ErrNotFound = errors.New("not found")

// Store handles SQLite persistence: room records, game archives and, when
// selected as the state backend, the per-room state blobs.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and runs migrations.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	// WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			game_type     TEXT NOT NULL,
			host_id       TEXT NOT NULL,
			max_players   INTEGER NOT NULL,
			visibility    TEXT NOT NULL DEFAULT 'public',
			password_hash BLOB,
			status        TEXT NOT NULL DEFAULT 'waiting',
			players_json  TEXT NOT NULL DEFAULT '[]',
			scheduled_at  INTEGER NOT NULL DEFAULT 0,
			topic         TEXT NOT NULL DEFAULT '',
			difficulty    TEXT NOT NULL DEFAULT '',
			created_at    INTEGER NOT NULL,
			updated_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS rooms_status ON rooms(status);
		CREATE TABLE IF NOT EXISTS archives (
			id           TEXT PRIMARY KEY,
			room_id      TEXT NOT NULL,
			game_type    TEXT NOT NULL,
			players_json TEXT NOT NULL,
			winner_id    TEXT NOT NULL,
			scores_json  TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			ended_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS archives_room ON archives(room_id);
		CREATE TABLE IF NOT EXISTS room_state (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// SaveRoom upserts a room record.
func (s *Store) SaveRoom(ctx context.Context, r *room.Record) error {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name, game_type, host_id, max_players, visibility, password_hash,
			status, players_json, scheduled_at, topic, difficulty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, host_id = excluded.host_id, max_players = excluded.max_players,
			visibility = excluded.visibility, password_hash = excluded.password_hash,
			status = excluded.status, players_json = excluded.players_json,
			scheduled_at = excluded.scheduled_at, topic = excluded.topic,
			difficulty = excluded.difficulty, updated_at = excluded.updated_at
	`, r.ID, r.Name, string(r.GameType), r.HostID, r.MaxPlayers, string(r.Visibility), r.PasswordHash,
		string(r.Status), string(players), millis(r.ScheduledAt), r.Topic, r.Difficulty,
		millis(r.CreatedAt), millis(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save room %s: %w", r.ID, err)
	}
	return nil
}

const roomColumns = `id, name, game_type, host_id, max_players, visibility, password_hash,
	status, players_json, scheduled_at, topic, difficulty, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(sc scanner) (*room.Record, error) {
	var (
		r                            room.Record
		gameType, visibility, status string
		players                      string
		scheduled, created, updated  int64
	)
	if err := sc.Scan(&r.ID, &r.Name, &gameType, &r.HostID, &r.MaxPlayers, &visibility, &r.PasswordHash,
		&status, &players, &scheduled, &r.Topic, &r.Difficulty, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(players), &r.Players); err != nil {
		return nil, fmt.Errorf("unmarshal players of %s: %w", r.ID, err)
	}
	r.GameType = game.Type(gameType)
	r.Visibility = room.Visibility(visibility)
	r.Status = room.Status(status)
	r.ScheduledAt = fromMillis(scheduled)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

// GetRoom retrieves a room record by id.
func (s *Store) GetRoom(ctx context.Context, id string) (*room.Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)
	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	return r, nil
}

// ListRooms returns all rooms with the given status (or all if status is empty).
func (s *Store) ListRooms(ctx context.Context, status room.Status) ([]room.Record, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY created_at DESC, id")
	} else {
		rows, err = s.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE status = ? ORDER BY created_at DESC, id", string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()
	var result []room.Record
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// AppendArchive stores a completed game. Writing the same archive id twice
// is a no-op, so archiving may be retried.
func (s *Store) AppendArchive(ctx context.Context, a *room.Archive) error {
	players, err := json.Marshal(a.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	scores, err := json.Marshal(a.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO archives (id, room_id, game_type, players_json, winner_id, scores_json, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, a.ID, a.RoomID, string(a.GameType), string(players), a.WinnerID, string(scores),
		millis(a.StartedAt), millis(a.EndedAt))
	if err != nil {
		return fmt.Errorf("append archive %s: %w", a.ID, err)
	}
	return nil
}

// ListArchives returns a room's archives, oldest first.
func (s *Store) ListArchives(ctx context.Context, roomID string) ([]room.Archive, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, game_type, players_json, winner_id, scores_json, started_at, ended_at
		FROM archives WHERE room_id = ? ORDER BY ended_at, id
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()
	var result []room.Archive
	for rows.Next() {
		var (
			a               room.Archive
			gameType        string
			players, scores string
			started, ended  int64
		)
		if err := rows.Scan(&a.ID, &a.RoomID, &gameType, &players, &a.WinnerID, &scores, &started, &ended); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(players), &a.Players); err != nil {
			return nil, fmt.Errorf("unmarshal archive players: %w", err)
		}
		if err := json.Unmarshal([]byte(scores), &a.Scores); err != nil {
			return nil, fmt.Errorf("unmarshal archive scores: %w", err)
		}
		a.GameType = game.Type(gameType)
		a.StartedAt = fromMillis(started)
		a.EndedAt = fromMillis(ended)
		result = append(result, a)
	}
	return result, rows.Err()
}

// Get returns the state blob stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM room_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set upserts the state blob under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM room_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
