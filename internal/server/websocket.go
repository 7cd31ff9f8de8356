package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"gamerooms/internal/apperr"
	"gamerooms/internal/broadcast"
	"gamerooms/internal/room"
)

const writeTimeout = 10 * time.Second

type joinPayload struct {
	RoomID      string `json:"roomId"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type watchPayload struct {
	RoomID string `json:"roomId"`
}

type actionPayload struct {
	RoomID  string `json:"roomId"`
	Action  string `json:"action"`
	Token   int    `json:"token"`
	CardID  string `json:"cardId"`
	Color   string `json:"color"`
	Move    string `json:"move"`
	Answer  int    `json:"answer"`
	AISeats int    `json:"aiSeats"`
}

type errorPayload struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
	RoomID  string      `json:"roomId,omitempty"`
}

// client is one websocket connection. It acts for a single player once
// that player has joined a room through it.
type client struct {
	conn     *broadcast.Conn
	limiter  *rate.Limiter
	playerID string
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cl := &client{
		conn:    s.hub.Register(uuid.NewString()),
		limiter: rate.NewLimiter(s.limit, s.burst),
	}
	log := s.log.With().Str("conn", cl.conn.ID).Logger()
	log.Debug().Msg("websocket connected")

	go func() {
		defer cancel()
		s.writeLoop(ctx, ws, cl.conn)
	}()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			break
		}
		if !cl.limiter.Allow() {
			s.sendError(cl, "", apperr.New(apperr.CodeRateLimited, "too many messages"))
			continue
		}
		var msg broadcast.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(cl, "", apperr.New(apperr.CodeInvalidPayload, "invalid message"))
			continue
		}
		s.handleMessage(ctx, cl, msg)
	}

	s.hub.Unregister(cl.conn)
	log.Debug().Str("player", cl.playerID).Msg("websocket disconnected")
	if cl.playerID != "" {
		s.playerGone(cl.playerID)
	}
}

// writeLoop sends direct frames as they come and room states whenever the
// hub signals new ones.
func (s *Server) writeLoop(ctx context.Context, ws *websocket.Conn, conn *broadcast.Conn) {
	write := func(frame []byte) bool {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		return ws.Write(wctx, websocket.MessageText, frame) == nil
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-conn.Direct():
			if !write(frame) {
				return
			}
		case <-conn.Notify():
			for _, frame := range conn.Pending() {
				if !write(frame) {
					return
				}
			}
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, cl *client, msg broadcast.Message) {
	switch msg.Type {
	case "join":
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" || p.PlayerID == "" {
			s.sendError(cl, p.RoomID, apperr.New(apperr.CodeInvalidPayload, "invalid join payload"))
			return
		}
		if cl.playerID != "" && cl.playerID != p.PlayerID {
			s.sendError(cl, p.RoomID, apperr.New(apperr.CodeInvalidPayload, "connection already acts for "+cl.playerID))
			return
		}
		leave := s.subscribe(cl, p.RoomID)
		st, err := s.manager.JoinRoom(ctx, p.RoomID, p.PlayerID, p.DisplayName, p.Password)
		if err != nil {
			leave()
			s.sendError(cl, p.RoomID, err)
			return
		}
		if cl.playerID == "" {
			cl.playerID = p.PlayerID
			s.players.Compute(p.PlayerID, func(n int, _ bool) (int, bool) { return n + 1, false })
		}
		s.hub.Deliver(cl.conn, st)

	case "watch":
		var p watchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			s.sendError(cl, "", apperr.New(apperr.CodeInvalidPayload, "invalid watch payload"))
			return
		}
		leave := s.subscribe(cl, p.RoomID)
		st, err := s.manager.GetRoomState(ctx, p.RoomID)
		if err != nil {
			leave()
			s.sendError(cl, p.RoomID, err)
			return
		}
		s.hub.Deliver(cl.conn, st)

	case "leave":
		var p watchPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.sendError(cl, "", apperr.New(apperr.CodeInvalidPayload, "invalid leave payload"))
			return
		}
		s.hub.Leave(cl.conn, p.RoomID)

	case "action":
		var p actionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.RoomID == "" {
			s.sendError(cl, p.RoomID, apperr.New(apperr.CodeInvalidPayload, "invalid action payload"))
			return
		}
		if cl.playerID == "" {
			s.sendError(cl, p.RoomID, apperr.ErrPlayerNotFound)
			return
		}
		if _, err := s.dispatch(ctx, cl.playerID, p); err != nil {
			s.sendError(cl, p.RoomID, err)
		}

	default:
		s.sendError(cl, "", apperr.New(apperr.CodeInvalidPayload, "unknown message type: "+msg.Type))
	}
}

// dispatch runs one game action. The resulting state reaches the client
// through the room broadcast like everyone else's.
func (s *Server) dispatch(ctx context.Context, playerID string, p actionPayload) (*room.State, error) {
	m := s.manager
	switch p.Action {
	case "roll_die":
		return m.RollDie(ctx, p.RoomID, playerID)
	case "move_token":
		return m.MoveToken(ctx, p.RoomID, playerID, p.Token)
	case "play_card":
		return m.PlayCard(ctx, p.RoomID, playerID, p.CardID, p.Color)
	case "choose_color":
		return m.ChooseColor(ctx, p.RoomID, playerID, p.Color)
	case "draw_card":
		return m.DrawCard(ctx, p.RoomID, playerID)
	case "make_move":
		return m.MakeMove(ctx, p.RoomID, playerID, p.Move)
	case "submit_answer":
		return m.SubmitAnswer(ctx, p.RoomID, playerID, p.Answer)
	case "start_game":
		return m.StartGame(ctx, p.RoomID, playerID, p.AISeats)
	case "restart_game":
		return m.RestartGame(ctx, p.RoomID, playerID)
	default:
		return nil, apperr.New(apperr.CodeInvalidPayload, "unknown action: "+p.Action)
	}
}

// subscribe joins roomID before its state is read, so a commit racing the
// read still reaches the connection and the older read is dropped by
// version. The returned func undoes a subscription this call created.
func (s *Server) subscribe(cl *client, roomID string) (leave func()) {
	if slices.Contains(cl.conn.Rooms(), roomID) {
		return func() {}
	}
	s.hub.Join(cl.conn, roomID)
	return func() { s.hub.Leave(cl.conn, roomID) }
}

func (s *Server) sendError(cl *client, roomID string, err error) {
	e := apperr.From(err)
	if e.Kind() == apperr.KindInternal || e.Kind() == apperr.KindPersistenceUnavailable {
		s.log.Error().Err(err).Str("conn", cl.conn.ID).Str("room", roomID).Msg("websocket request failed")
	}
	s.hub.SendTo(cl.conn.ID, broadcast.Encode("error", errorPayload{Code: e.Code, Message: e.Message, RoomID: roomID}))
}

// playerGone drops one connection of playerID and, when it was the last
// one, forfeits whatever turns the player holds.
func (s *Server) playerGone(playerID string) {
	_, connected := s.players.Compute(playerID, func(n int, _ bool) (int, bool) {
		return n - 1, n <= 1
	})
	if connected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.manager.HandleDisconnect(ctx, playerID); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("player", playerID).Msg("disconnect handling failed")
	}
}
