package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"gamerooms/internal/apperr"
	"gamerooms/internal/broadcast"
	"gamerooms/internal/game"
	"gamerooms/internal/game/boardrace"
	"gamerooms/internal/game/cards"
	"gamerooms/internal/game/chess"
	"gamerooms/internal/game/quiz"
	"gamerooms/internal/questions"
	"gamerooms/internal/room"
	"gamerooms/internal/session"
	"gamerooms/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- Test environment ---

type testEnv struct {
	ts  *httptest.Server
	mgr *session.Manager
	hub *broadcast.Hub
}

func setupTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := game.NewRegistry()
	reg.Register(boardrace.Rules{})
	reg.Register(cards.Rules{})
	reg.Register(chess.Rules{})
	reg.Register(quiz.Rules{Variant: game.QuizClassic})
	reg.Register(quiz.Rules{Variant: game.QuizSpeed})

	bank, err := questions.NewBank(game.NewRandom())
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	hub := broadcast.NewHub(zerolog.Nop())
	mgr := session.NewManager(reg, store, store, hub, bank, session.Options{
		AITurnDelay: time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	t.Cleanup(mgr.Close)

	opts.Logger = zerolog.Nop()
	ts := httptest.NewServer(New(mgr, hub, opts))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, mgr: mgr, hub: hub}
}

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

// doJSON sends body (if any) as JSON and decodes the response into out
// (if any). It returns the status code.
func doJSON(t *testing.T, method, url string, body, out any) int {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

type errorResponse struct {
	Error apperr.Error `json:"error"`
}

// createRoom creates a room hosted by hostID and returns its id.
func (env *testEnv) createRoom(t *testing.T, gameType game.Type, hostID string) string {
	t.Helper()
	var st room.State
	status := doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms",
		map[string]any{"gameType": gameType, "hostId": hostID, "hostName": hostID}, &st)
	if status != http.StatusCreated {
		t.Fatalf("create room: expected 201, got %d", status)
	}
	return st.RoomID
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/ws"
}

// wsConnect dials the websocket endpoint. The connection is closed when the
// test ends.
func wsConnect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// wsSend marshals and writes a typed message, calling t.Fatal on error.
func wsSend(ctx context.Context, t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, broadcast.Encode(msgType, payload)); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

// wsRead reads and unmarshals a message, calling t.Fatal on error.
func wsRead(ctx context.Context, t *testing.T, conn *websocket.Conn) broadcast.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	var msg broadcast.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal ws message: %v", err)
	}
	return msg
}

func joinMsg(roomID, playerID string) joinPayload {
	return joinPayload{RoomID: roomID, PlayerID: playerID, DisplayName: playerID}
}

// readStateWhere reads state messages until one satisfies ok. Intermediate
// states may be coalesced by the hub, so tests wait for the state they
// expect rather than counting messages.
func readStateWhere(ctx context.Context, t *testing.T, conn *websocket.Conn, ok func(*room.State) bool) *room.State {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type == "error" {
			t.Fatalf("unexpected error message: %s", string(msg.Payload))
		}
		if msg.Type != "state" {
			continue
		}
		var sp broadcast.StatePayload
		if err := json.Unmarshal(msg.Payload, &sp); err != nil {
			t.Fatalf("unmarshal state payload: %v", err)
		}
		if ok(sp.State) {
			return sp.State
		}
	}
}

// readError reads messages until an error message arrives.
func readError(ctx context.Context, t *testing.T, conn *websocket.Conn) errorPayload {
	t.Helper()
	for {
		msg := wsRead(ctx, t, conn)
		if msg.Type != "error" {
			continue
		}
		var ep errorPayload
		if err := json.Unmarshal(msg.Payload, &ep); err != nil {
			t.Fatalf("unmarshal error payload: %v", err)
		}
		return ep
	}
}
