package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/config"
	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

type fakeStore struct {
	mu      sync.Mutex
	games   map[string]*repository.Game
	players map[string][]repository.GamePlayer
	filter  repository.HighscoreFilter
}

func (f *fakeStore) FetchGame(_ context.Context, gameId string) (*repository.Game, error) {
	g, ok := f.games[gameId]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

func (f *fakeStore) FetchGamePlayers(_ context.Context, gameId string) ([]repository.GamePlayer, error) {
	return f.players[gameId], nil
}

func (f *fakeStore) GetHighscores(_ context.Context, filter repository.HighscoreFilter) ([]repository.Highscore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
	return []repository.Highscore{{GameId: "g1", Name: "kim", Rows: 9, Cols: 9, Mines: 10, Score: 71, Won: true}}, nil
}

func newTestServer(t *testing.T, store Store) (*httptest.Server, *manager.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := config.DefaultLimits()
	limits.SyncInterval = time.Hour
	m := manager.New(logger, limits, nil)

	ws, err := config.NewWebSocket()
	require.NoError(t, err)
	h := NewGameHandler(logger, m, store, ws)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /game", h.NewGame)
	mux.HandleFunc("GET /game/{id}", h.Fetch)
	mux.HandleFunc("GET /game/{id}/replay", h.Replay)
	mux.HandleFunc("GET /game/{id}/connect", h.ConnectWS)
	mux.HandleFunc("GET /highscores", h.Highscores)
	mux.HandleFunc("GET /healthz", h.Health)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		m.Close()
	})
	return server, m
}

func createGame(t *testing.T, server *httptest.Server, query string) string {
	t.Helper()
	resp, err := http.Post(server.URL+"/game?"+query, "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreatedGameDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.GameId)
	return created.GameId
}

func getJSON(t *testing.T, target string, v any) int {
	t.Helper()
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestNewGameAndFetch(t *testing.T) {
	server, _ := newTestServer(t, nil)
	gameId := createGame(t, server, "rows=9&cols=9&mines=10&max_players=2")

	var dto GameDTO
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/game/"+gameId, &dto))
	assert.True(t, dto.Live)
	assert.Equal(t, "not_started", dto.Status)
	assert.Equal(t, 2, dto.MaxPlayers)
	assert.Empty(t, dto.Players)
	assert.Equal(t, protocol.Verbose, dto.Board.Encoding)
	assert.Equal(t, 9, dto.Board.Cells.Rows())
}

func TestNewGameInvalid(t *testing.T) {
	server, _ := newTestServer(t, nil)
	for _, query := range []string{
		"rows=9&cols=9",
		"rows=nine&cols=9&mines=10",
		"rows=9&cols=9&mines=81",
		"rows=1000&cols=9&mines=10",
		"rows=9&cols=9&mines=10&max_players=99",
	} {
		t.Run(query, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/game?"+query, "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWithoutStore(t *testing.T) {
	server, _ := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/game/missing", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, server.URL+"/game/missing/replay", nil))
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, server.URL+"/highscores", nil))

	var health map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["persistence"])
}

func TestStoredGame(t *testing.T) {
	final, err := board.New(2, 2, mines.PlayerCell{Kind: mines.CellRevealed, Adjacent: 1})
	require.NoError(t, err)
	final.Set(board.Point{}, mines.PlayerCell{Kind: mines.CellFlagMine})

	started := time.Now().Add(-time.Minute)
	owner := "kim"
	store := &fakeStore{
		games: map[string]*repository.Game{
			"old": {
				GameId:     "old",
				Rows:       2,
				Cols:       2,
				Mines:      1,
				Status:     "won",
				OwnerName:  &owner,
				TopScore:   3,
				FinalBoard: protocol.CompactBytes(final),
				Moves:      []mines.Move{{Seq: 1, Action: mines.ActionReveal, Point: board.Point{Row: 1, Col: 1}, Result: mines.Victory, Revealed: 3}},
				StartedAt:  &started,
				EndedAt:    started.Add(42 * time.Second),
			},
			"broken": {GameId: "broken", Rows: 2, Cols: 2, FinalBoard: []byte{1}},
		},
		players: map[string][]repository.GamePlayer{
			"old": {{PlayerId: 0, Name: "kim", Score: 3, VictoryClick: true}},
		},
	}
	server, _ := newTestServer(t, store)

	var dto GameDTO
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/game/old", &dto))
	assert.False(t, dto.Live)
	assert.Equal(t, "won", dto.Status)
	assert.Equal(t, int64(42), dto.Elapsed)
	assert.Equal(t, "kim", *dto.Owner)
	require.Len(t, dto.Players, 1)
	assert.True(t, dto.Players[0].VictoryClick)

	assert.Equal(t, final.ToRows(), dto.Board.Cells.ToRows())

	var replay ReplayDTO
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/game/old/replay", &replay))
	assert.Equal(t, store.games["old"].Moves, replay.Moves)

	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/game/missing", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, server.URL+"/game/missing/replay", nil))
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, server.URL+"/game/broken", nil))
}

func TestLiveReplay(t *testing.T) {
	server, m := newTestServer(t, &fakeStore{})
	inProgress := createGame(t, server, "rows=9&cols=9&mines=10")
	assert.Equal(t, http.StatusConflict, getJSON(t, server.URL+"/game/"+inProgress+"/replay", nil))

	won := createGame(t, server, "rows=3&cols=3&mines=8")
	_, err := m.Join(won, manager.JoinRequest{})
	require.NoError(t, err)
	_, err = m.ApplyPlay(won, 0, mines.ActionReveal, board.Point{Row: 1, Col: 1})
	require.NoError(t, err)

	var replay ReplayDTO
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/game/"+won+"/replay", &replay))
	assert.Equal(t, "won", replay.Status)
	require.Len(t, replay.Moves, 1)
	assert.Equal(t, mines.Victory, replay.Moves[0].Result)
}

func TestHighscores(t *testing.T) {
	store := &fakeStore{}
	server, _ := newTestServer(t, store)

	var scores []repository.Highscore
	require.Equal(t, http.StatusOK, getJSON(t, server.URL+"/highscores?rows=9&cols=9&mines=10&username=kim", &scores))
	require.Len(t, scores, 1)
	assert.Equal(t, 71, scores[0].Score)
	store.mu.Lock()
	filter := store.filter
	store.mu.Unlock()
	assert.Equal(t, &mines.GameParams{Rows: 9, Cols: 9, Mines: 10}, filter.GameParams)
	assert.Equal(t, "kim", *filter.Username)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, server.URL+"/highscores?rows=9", nil))
}

func TestParseHighscoreFilter(t *testing.T) {
	testCases := []struct {
		query   string
		wantErr bool
		params  *mines.GameParams
		limit   int
	}{
		{"", false, nil, 0},
		{"limit=10", false, nil, 10},
		{"rows=16&cols=30&mines=99", false, &mines.GameParams{Rows: 16, Cols: 30, Mines: 99}, 0},
		{"rows=16&cols=30", true, nil, 0},
		{"limit=-1", true, nil, 0},
		{"limit=501", true, nil, 0},
		{"limit=many", true, nil, 0},
	}
	for _, test := range testCases {
		t.Run(test.query, func(t *testing.T) {
			q, err := url.ParseQuery(test.query)
			require.NoError(t, err)
			filter, err := ParseHighscoreFilter(q)
			if test.wantErr {
				assert.ErrorIs(t, err, mines.ErrInvalidParams)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.params, filter.GameParams)
			assert.Equal(t, test.limit, filter.Limit)
		})
	}
}

func dial(t *testing.T, server *httptest.Server, gameId string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/game/" + gameId + "/connect"
	c, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, m protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClientMessage(m)
	require.NoError(t, err)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, data))
}

func receive(t *testing.T, c *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.DecodeServerMessage(data)
	require.NoError(t, err)
	return msg
}

func receiveKinds(t *testing.T, c *websocket.Conn, n int) []protocol.ServerMessage {
	t.Helper()
	msgs := make([]protocol.ServerMessage, n)
	for i := range n {
		msgs[i] = receive(t, c)
	}
	return msgs
}

func messageKinds(msgs []protocol.ServerMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageKind()
	}
	return out
}

func TestConnectUnknownGame(t *testing.T) {
	server, _ := newTestServer(t, nil)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/game/missing/connect"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectAndPlay(t *testing.T) {
	server, _ := newTestServer(t, nil)
	gameId := createGame(t, server, "rows=3&cols=3&mines=8")

	player := dial(t, server, gameId)
	watcher := dial(t, server, gameId)

	// Nothing is accepted before Join.
	send(t, player, protocol.Play{Action: mines.ActionReveal, Point: board.Point{Row: 1, Col: 1}})
	assert.Equal(t, protocol.Error{Message: ErrNotJoined.Error()}, receive(t, player))

	// Malformed input is answered but does not close the connection.
	require.NoError(t, player.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "Error", receive(t, player).MessageKind())

	send(t, player, protocol.Join{Name: "kim"})
	msgs := receiveKinds(t, player, 6)
	require.Equal(t, []string{"PlayerId", "GameState", "PlayersState", "SyncTimer", "TopScore", "PlayerUpdate"}, messageKinds(msgs))
	assert.Equal(t, 0, msgs[0].(protocol.PlayerID).ID)
	assert.Equal(t, "kim", msgs[5].(protocol.PlayerUpdate).Name)

	send(t, player, protocol.Join{})
	assert.Equal(t, protocol.Error{Message: ErrAlreadyJoined.Error()}, receive(t, player))

	send(t, watcher, protocol.Join{Spectate: true})
	msgs = receiveKinds(t, watcher, 4)
	assert.Equal(t, []string{"GameState", "PlayersState", "SyncTimer", "TopScore"}, messageKinds(msgs))

	send(t, watcher, protocol.Play{Action: mines.ActionReveal, Point: board.Point{Row: 1, Col: 1}})
	assert.Equal(t, "Error", receive(t, watcher).MessageKind())

	send(t, player, protocol.Play{Action: mines.ActionReveal, Point: board.Point{Row: 1, Col: 1}})
	for _, c := range []*websocket.Conn{player, watcher} {
		msgs = receiveKinds(t, c, 5)
		require.Equal(t, []string{"GameStarted", "PlayOutcome", "PlayerUpdate", "TopScore", "SyncTimer"}, messageKinds(msgs))
		outcome := msgs[1].(protocol.PlayOutcome).Outcome.Outcome
		assert.Equal(t, mines.Victory, outcome.Kind)
		assert.NotNil(t, outcome.Final)
	}

	send(t, player, protocol.Play{Action: mines.ActionFlag, Point: board.Point{}})
	assert.Equal(t, protocol.Error{Message: mines.ErrGameOver.Error()}, receive(t, player))
}

func TestOversizedMessageKeepsConnection(t *testing.T) {
	server, _ := newTestServer(t, nil)
	gameId := createGame(t, server, "rows=9&cols=9&mines=10")
	player := dial(t, server, gameId)

	big := []byte(strings.Repeat("x", maxMessageSize+1))
	require.NoError(t, player.WriteMessage(websocket.TextMessage, big))
	assert.Equal(t, protocol.Error{Message: ErrTooLarge.Error()}, receive(t, player))

	send(t, player, protocol.Join{Name: "kim"})
	assert.Equal(t, "PlayerId", receive(t, player).MessageKind())
}

func TestDisconnectKeepsPlayer(t *testing.T) {
	server, m := newTestServer(t, nil)
	gameId := createGame(t, server, "rows=9&cols=9&mines=10")

	player := dial(t, server, gameId)
	send(t, player, protocol.Join{Name: "kim"})
	token := receive(t, player).(protocol.PlayerID).Token
	receiveKinds(t, player, 5)

	require.NoError(t, player.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	))
	player.Close()

	require.Eventually(t, func() bool {
		snap, err := m.Snapshot(gameId)
		return err == nil && len(snap.Players) == 1 && !snap.Players[0].Connected
	}, 5*time.Second, 10*time.Millisecond)

	again := dial(t, server, gameId)
	send(t, again, protocol.Join{Token: token})
	assert.Equal(t, protocol.PlayerID{ID: 0, Token: token}, receive(t, again))
}

func TestStatusCode(t *testing.T) {
	testCases := []struct {
		err  error
		code int
	}{
		{mines.ErrInvalidParams, http.StatusBadRequest},
		{manager.ErrGameNotFound, http.StatusNotFound},
		{repository.ErrNotFound, http.StatusNotFound},
		{manager.ErrGameFull, http.StatusConflict},
		{manager.ErrTooManyGames, http.StatusServiceUnavailable},
		{ErrNoStore, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", manager.ErrGameFull), http.StatusConflict},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, test := range testCases {
		t.Run(test.err.Error(), func(t *testing.T) {
			assert.Equal(t, test.code, statusCode(test.err))
		})
	}
}
