// Package server exposes the room manager over a gin REST API and a
// websocket transport.
package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gamerooms/internal/apperr"
	"gamerooms/internal/broadcast"
	"gamerooms/internal/game"
	"gamerooms/internal/room"
	"gamerooms/internal/session"
)

// Options tune the transport.
type Options struct {
	MessageRate       float64 // inbound websocket messages per second
	MessageBurst      int
	DisconnectTimeout time.Duration
	Logger            zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	engine  *gin.Engine
	manager *session.Manager
	hub     *broadcast.Hub
	log     zerolog.Logger
	limit   rate.Limit
	burst   int
	timeout time.Duration

	// open websocket connections per player id
	players *xsync.MapOf[string, int]
}

// New creates a server with all routes.
func New(manager *session.Manager, hub *broadcast.Hub, opts Options) *Server {
	registerValidators()
	if opts.MessageRate <= 0 {
		opts.MessageRate = 20
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 40
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = 10 * time.Second
	}
	s := &Server{
		engine:  gin.New(),
		manager: manager,
		hub:     hub,
		log:     opts.Logger.With().Str("component", "server").Logger(),
		limit:   rate.Limit(opts.MessageRate),
		burst:   opts.MessageBurst,
		timeout: opts.DisconnectTimeout,
		players: xsync.NewMapOf[string, int](),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger)
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/games", s.handleListGames)
	api.GET("/rooms", s.handleListRooms)
	api.POST("/rooms", s.handleCreateRoom)
	api.GET("/rooms/:id", s.handleGetRoom)
	api.POST("/rooms/:id/join", s.handleJoinRoom)
	api.POST("/rooms/:id/start", s.handleStartGame)
	api.POST("/rooms/:id/restart", s.handleRestartGame)
	api.DELETE("/rooms/:id", s.handleDeleteRoom)
}

// wsPath is served on the raw ResponseWriter. gin's writer cannot hand
// over the connection once it has been wrapped.
const wsPath = "/api/ws"

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == wsPath {
		s.serveWS(w, r)
		return
	}
	s.engine.ServeHTTP(w, r)
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	ev := s.log.Debug()
	if c.Writer.Status() >= http.StatusInternalServerError {
		ev = s.log.Warn()
	}
	ev.Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("request")
}

var validatorsOnce sync.Once

// registerValidators adds the custom binding tags to gin's validator.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("gametype", func(fl validator.FieldLevel) bool {
			return game.Type(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("playerid", func(fl validator.FieldLevel) bool {
			id := fl.Field().String()
			if id == "" || len(id) > 64 {
				return false
			}
			for _, r := range id {
				if r <= ' ' || r == 0x7f {
					return false
				}
			}
			return true
		})
	})
}

// bindError turns a binding failure into a domain error.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "gametype" {
				return apperr.New(apperr.CodeInvalidGameType, "unknown game type")
			}
		}
		fe := verrs[0]
		return apperr.New(apperr.CodeInvalidPayload, "invalid "+fe.Field()+": failed "+fe.Tag())
	}
	return apperr.Wrap(apperr.CodeInvalidPayload, "invalid request body", err)
}

func (s *Server) writeError(c *gin.Context, err error) {
	e := apperr.From(err)
	status := e.Kind().HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": e})
}

func (s *Server) handleListGames(c *gin.Context) {
	c.JSON(http.StatusOK, s.manager.ListGames())
}

type listRoomsQuery struct {
	Status room.Status `form:"status" binding:"omitempty,oneof=waiting in-progress completed"`
}

func (s *Server) handleListRooms(c *gin.Context) {
	var q listRoomsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	recs, err := s.manager.ListRooms(c.Request.Context(), q.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if recs == nil {
		recs = []room.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

type createRoomRequest struct {
	Name        string          `json:"name" binding:"max=64"`
	GameType    game.Type       `json:"gameType" binding:"required,gametype"`
	HostID      string          `json:"hostId" binding:"playerid"`
	HostName    string          `json:"hostName" binding:"max=64"`
	MaxPlayers  int             `json:"maxPlayers" binding:"omitempty,min=1,max=20"`
	Visibility  room.Visibility `json:"visibility" binding:"omitempty,oneof=public private"`
	Password    string          `json:"password" binding:"required_if=Visibility private,max=72"`
	ScheduledAt string          `json:"scheduledAt"`
	Topic       string          `json:"topic" binding:"max=64"`
	Difficulty  string          `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	st, err := s.manager.CreateRoom(c.Request.Context(), session.CreateRoomRequest{
		Name:        req.Name,
		GameType:    req.GameType,
		HostID:      req.HostID,
		HostName:    req.HostName,
		MaxPlayers:  req.MaxPlayers,
		Visibility:  req.Visibility,
		Password:    req.Password,
		ScheduledAt: req.ScheduledAt,
		Topic:       req.Topic,
		Difficulty:  req.Difficulty,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

type roomResponse struct {
	Room  *room.Record `json:"room"`
	State *room.State  `json:"state"`
}

func (s *Server) handleGetRoom(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.manager.GetRoom(ctx, c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	st, err := s.manager.GetRoomState(ctx, rec.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{Room: rec, State: st})
}

type joinRequest struct {
	PlayerID    string `json:"playerId" binding:"playerid"`
	DisplayName string `json:"displayName" binding:"max=64"`
	Password    string `json:"password" binding:"max=72"`
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	st, err := s.manager.JoinRoom(c.Request.Context(), c.Param("id"), req.PlayerID, req.DisplayName, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type startRequest struct {
	PlayerID string `json:"playerId" binding:"playerid"`
	AISeats  int    `json:"aiSeats" binding:"min=0,max=10"`
}

func (s *Server) handleStartGame(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	st, err := s.manager.StartGame(c.Request.Context(), c.Param("id"), req.PlayerID, req.AISeats)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

type hostRequest struct {
	PlayerID string `json:"playerId" form:"playerId" binding:"playerid"`
}

func (s *Server) handleRestartGame(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	st, err := s.manager.RestartGame(c.Request.Context(), c.Param("id"), req.PlayerID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleDeleteRoom(c *gin.Context) {
	var req hostRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}
	if err := s.manager.DeleteRoom(c.Request.Context(), c.Param("id"), req.PlayerID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
