package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamerooms/internal/apperr"
	"gamerooms/internal/game"
	"gamerooms/internal/room"
)

func TestListGames(t *testing.T) {
	env := setupTestEnv(t, Options{})

	var games []game.Info
	status := doJSON(t, http.MethodGet, env.ts.URL+"/api/games", nil, &games)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, games, 5)
	assert.Equal(t, game.BoardRace, games[0].Name)
}

func TestCreateRoom(t *testing.T) {
	env := setupTestEnv(t, Options{})

	var st room.State
	status := doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms",
		`{"gameType":"chess","hostId":"white","hostName":"White","name":"evening game"}`, &st)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, st.RoomID)
	assert.Equal(t, game.Chess, st.GameType)
	assert.Equal(t, "white", st.HostID)
	assert.Equal(t, room.StatusWaiting, st.Status)
	assert.Equal(t, int64(1), st.Version)
	require.Len(t, st.Players, 1)
	assert.Equal(t, "White", st.Players[0].DisplayName)
}

func TestCreateRoomValidation(t *testing.T) {
	env := setupTestEnv(t, Options{})

	tests := []struct {
		name string
		body string
		code apperr.Code
	}{
		{"unknown game", `{"gameType":"checkers","hostId":"h"}`, apperr.CodeInvalidGameType},
		{"missing host", `{"gameType":"chess"}`, apperr.CodeInvalidPayload},
		{"private without password", `{"gameType":"chess","hostId":"h","visibility":"private"}`, apperr.CodeInvalidPayload},
		{"bad visibility", `{"gameType":"chess","hostId":"h","visibility":"secret"}`, apperr.CodeInvalidPayload},
		{"bad difficulty", `{"gameType":"quiz-variant-A","hostId":"h","difficulty":"brutal"}`, apperr.CodeInvalidPayload},
		{"bad schedule", `{"gameType":"chess","hostId":"h","scheduledAt":"tomorrow"}`, apperr.CodeInvalidSchedule},
		{"past schedule", `{"gameType":"chess","hostId":"h","scheduledAt":"2001-01-01T00:00:00Z"}`, apperr.CodeInvalidSchedule},
		{"malformed json", `{"gameType":`, apperr.CodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms", tt.body, &resp)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestGetRoom(t *testing.T) {
	env := setupTestEnv(t, Options{})
	id := env.createRoom(t, game.BoardRace, "alice")

	var resp struct {
		Room  room.Record `json:"room"`
		State room.State  `json:"state"`
	}
	status := doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms/"+id, nil, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, resp.Room.ID)
	assert.Equal(t, 4, resp.Room.MaxPlayers)
	assert.Equal(t, id, resp.State.RoomID)
	assert.Equal(t, game.BoardRace, resp.State.GameType)

	var errResp errorResponse
	status = doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms/nope", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, apperr.CodeRoomNotFound, errResp.Error.Code)
}

func TestJoinAndStart(t *testing.T) {
	env := setupTestEnv(t, Options{})
	id := env.createRoom(t, game.Chess, "white")

	var st room.State
	status := doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+id+"/join",
		map[string]string{"playerId": "black", "displayName": "Black"}, &st)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, st.Players, 2)

	var errResp errorResponse
	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+id+"/start",
		map[string]any{"playerId": "black"}, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, apperr.CodeNotHost, errResp.Error.Code)

	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+id+"/start",
		map[string]any{"playerId": "white"}, &st)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, st.GameStarted)
	assert.Equal(t, room.StatusInProgress, st.Status)
	assert.Equal(t, "white", st.CurrentTurnPlayerID)

	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+id+"/start",
		map[string]any{"playerId": "white"}, &errResp)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, apperr.CodeAlreadyStarted, errResp.Error.Code)

	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+id+"/restart",
		map[string]any{"playerId": "white"}, &st)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, st.GameStarted)
	assert.Equal(t, room.StatusWaiting, st.Status)
}

func TestPrivateRoomJoin(t *testing.T) {
	env := setupTestEnv(t, Options{})

	var st room.State
	status := doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms",
		map[string]any{"gameType": "shedding-card", "hostId": "h", "visibility": "private", "password": "hunter2"}, &st)
	require.Equal(t, http.StatusCreated, status)

	var errResp errorResponse
	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+st.RoomID+"/join",
		map[string]string{"playerId": "p", "password": "guess"}, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, apperr.CodeBadPassword, errResp.Error.Code)

	status = doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+st.RoomID+"/join",
		map[string]string{"playerId": "p", "password": "hunter2"}, &st)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, st.HasPlayer("p"))
}

func TestDeleteRoom(t *testing.T) {
	env := setupTestEnv(t, Options{})
	id := env.createRoom(t, game.Chess, "white")

	var errResp errorResponse
	status := doJSON(t, http.MethodDelete, env.ts.URL+"/api/rooms/"+id+"?playerId=black", nil, &errResp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, apperr.CodeNotHost, errResp.Error.Code)

	status = doJSON(t, http.MethodDelete, env.ts.URL+"/api/rooms/"+id+"?playerId=white", nil, nil)
	require.Equal(t, http.StatusNoContent, status)

	status = doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms/"+id, nil, &errResp)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListRoomsByStatus(t *testing.T) {
	env := setupTestEnv(t, Options{})
	waiting := env.createRoom(t, game.Chess, "a")
	started := env.createRoom(t, game.Chess, "b")
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+started+"/join",
		map[string]string{"playerId": "c"}, nil))
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, env.ts.URL+"/api/rooms/"+started+"/start",
		map[string]string{"playerId": "b"}, nil))

	var recs []room.Record
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms", nil, &recs))
	assert.Len(t, recs, 2)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms?status=waiting", nil, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, waiting, recs[0].ID)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms?status=in-progress", nil, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, started, recs[0].ID)
	assert.Len(t, recs[0].Players, 2)

	var errResp errorResponse
	status := doJSON(t, http.MethodGet, env.ts.URL+"/api/rooms?status=sleeping", nil, &errResp)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, apperr.CodeInvalidPayload, errResp.Error.Code)
}
