package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vancomm/minesweeper-arena/internal/config"
	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/middleware"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

var (
	ErrNoStore    = errors.New("persistence is not configured")
	ErrInProgress = errors.New("game is still in progress")
)

// Store is the read side of the game repository.
type Store interface {
	FetchGame(ctx context.Context, gameId string) (*repository.Game, error)
	FetchGamePlayers(ctx context.Context, gameId string) ([]repository.GamePlayer, error)
	GetHighscores(ctx context.Context, filter repository.HighscoreFilter) ([]repository.Highscore, error)
}

type GameHandler struct {
	logger  *slog.Logger
	manager *manager.Manager
	store   Store
	ws      *config.WebSocket
}

// NewGameHandler creates the game endpoints. store may be nil when the server
// runs without a database.
func NewGameHandler(
	logger *slog.Logger,
	m *manager.Manager,
	store Store,
	ws *config.WebSocket,
) *GameHandler {
	return &GameHandler{
		logger:  logger,
		manager: m,
		store:   store,
		ws:      ws,
	}
}

func identity(r *http.Request) (manager.Identity, bool) {
	claims, ok := r.Context().Value(middleware.CtxPlayerClaims).(*config.PlayerClaims)
	if !ok {
		return manager.Identity{}, false
	}
	id := claims.PlayerId
	return manager.Identity{AccountID: &id, Name: claims.Username}, true
}

func (g GameHandler) NewGame(w http.ResponseWriter, r *http.Request) {
	dto, err := ParseCreateGameDTO(r.URL.Query())
	if err != nil {
		sendErrorOrLog(w, g.logger, http.StatusBadRequest, err)
		return
	}

	var owner *manager.Identity
	if ident, ok := identity(r); ok {
		owner = &ident
	}
	gameId, err := g.manager.CreateGame(dto.GameParams(), dto.MaxPlayers, owner)
	if err != nil {
		sendErrorOrLog(w, g.logger, statusCode(err), err)
		return
	}

	w.Header().Set("Location", r.URL.Path+"/"+gameId)
	w.WriteHeader(http.StatusCreated)
	sendJSONOrLog(w, g.logger, CreatedGameDTO{GameId: gameId})
}

func (g GameHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	gameId := r.PathValue("id")

	snap, err := g.manager.Snapshot(gameId)
	if err == nil {
		sendJSONOrLog(w, g.logger, NewLiveGameDTO(snap))
		return
	}
	if !errors.Is(err, manager.ErrGameNotFound) || g.store == nil {
		sendErrorOrLog(w, g.logger, statusCode(err), err)
		return
	}

	stored, err := g.store.FetchGame(r.Context(), gameId)
	if err != nil {
		g.sendStoreError(w, err)
		return
	}
	players, err := g.store.FetchGamePlayers(r.Context(), gameId)
	if err != nil {
		g.sendStoreError(w, err)
		return
	}
	dto, err := NewStoredGameDTO(stored, players)
	if err != nil {
		g.logger.Error("db returned invalid game", slog.String("game_id", gameId), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	sendJSONOrLog(w, g.logger, dto)
}

func (g GameHandler) Replay(w http.ResponseWriter, r *http.Request) {
	gameId := r.PathValue("id")

	snap, err := g.manager.Snapshot(gameId)
	switch {
	case err == nil && !snap.Status.IsOver():
		sendErrorOrLog(w, g.logger, http.StatusConflict, ErrInProgress)
		return
	case err == nil:
		sendJSONOrLog(w, g.logger, ReplayDTO{
			GameId: snap.GameID,
			Rows:   snap.Params.Rows,
			Cols:   snap.Params.Cols,
			Mines:  snap.Params.Mines,
			Status: snap.Status.String(),
			Moves:  snap.Moves,
		})
		return
	case g.store == nil:
		sendErrorOrLog(w, g.logger, http.StatusServiceUnavailable, ErrNoStore)
		return
	}

	stored, err := g.store.FetchGame(r.Context(), gameId)
	if err != nil {
		g.sendStoreError(w, err)
		return
	}
	sendJSONOrLog(w, g.logger, ReplayDTO{
		GameId: stored.GameId,
		Rows:   stored.Rows,
		Cols:   stored.Cols,
		Mines:  stored.Mines,
		Status: stored.Status,
		Moves:  stored.Moves,
	})
}

func (g GameHandler) Highscores(w http.ResponseWriter, r *http.Request) {
	if g.store == nil {
		sendErrorOrLog(w, g.logger, http.StatusServiceUnavailable, ErrNoStore)
		return
	}
	filter, err := ParseHighscoreFilter(r.URL.Query())
	if err != nil {
		sendErrorOrLog(w, g.logger, http.StatusBadRequest, err)
		return
	}
	highscores, err := g.store.GetHighscores(r.Context(), filter)
	if err != nil {
		g.sendStoreError(w, err)
		return
	}
	if highscores == nil {
		highscores = []repository.Highscore{}
	}
	sendJSONOrLog(w, g.logger, highscores)
}

func (g GameHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSONOrLog(w, g.logger, map[string]any{
		"status":      "ok",
		"games":       g.manager.Len(),
		"persistence": g.store != nil,
	})
}

func (g GameHandler) sendStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		sendErrorOrLog(w, g.logger, http.StatusNotFound, manager.ErrGameNotFound)
		return
	}
	g.logger.Error("unable to query db", slog.Any("error", err))
	w.WriteHeader(http.StatusInternalServerError)
}
