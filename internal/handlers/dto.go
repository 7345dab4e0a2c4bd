package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/schema"

	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

const maxHighscoreLimit = 500

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	dec := schema.NewDecoder()
	dec.IgnoreUnknownKeys(true)
	return dec
}

type CreateGameDTO struct {
	Rows       int `schema:"rows,required"`
	Cols       int `schema:"cols,required"`
	Mines      int `schema:"mines,required"`
	MaxPlayers int `schema:"max_players"`
}

func (dto CreateGameDTO) GameParams() mines.GameParams {
	return mines.GameParams{Rows: dto.Rows, Cols: dto.Cols, Mines: dto.Mines}
}

func ParseCreateGameDTO(src url.Values) (CreateGameDTO, error) {
	var dto CreateGameDTO
	if err := decoder.Decode(&dto, src); err != nil {
		return dto, fmt.Errorf("%w: %w", mines.ErrInvalidParams, err)
	}
	return dto, nil
}

type HighscoreFilterDTO struct {
	Username *string `schema:"username"`
	Rows     *int    `schema:"rows"`
	Cols     *int    `schema:"cols"`
	Mines    *int    `schema:"mines"`
	Limit    int     `schema:"limit"`
}

func ParseHighscoreFilter(src url.Values) (repository.HighscoreFilter, error) {
	var dto HighscoreFilterDTO
	if err := decoder.Decode(&dto, src); err != nil {
		return repository.HighscoreFilter{}, fmt.Errorf("%w: %w", mines.ErrInvalidParams, err)
	}

	filter := repository.HighscoreFilter{Username: dto.Username, Limit: dto.Limit}
	switch {
	case dto.Rows != nil && dto.Cols != nil && dto.Mines != nil:
		filter.GameParams = &mines.GameParams{Rows: *dto.Rows, Cols: *dto.Cols, Mines: *dto.Mines}
	case dto.Rows != nil || dto.Cols != nil || dto.Mines != nil:
		return filter, fmt.Errorf("%w: rows, cols and mines go together", mines.ErrInvalidParams)
	}
	if filter.Limit < 0 || filter.Limit > maxHighscoreLimit {
		return filter, fmt.Errorf("%w: limit must be in [0, %d]", mines.ErrInvalidParams, maxHighscoreLimit)
	}
	return filter, nil
}

type CreatedGameDTO struct {
	GameId string `json:"game_id"`
}

// GameDTO describes either a live game or a persisted one.
type GameDTO struct {
	GameId     string            `json:"game_id"`
	Rows       int               `json:"rows"`
	Cols       int               `json:"cols"`
	Mines      int               `json:"mines"`
	Status     string            `json:"status"`
	Live       bool              `json:"live"`
	MaxPlayers int               `json:"max_players,omitempty"`
	Owner      *string           `json:"owner,omitempty"`
	Board      protocol.Board    `json:"board"`
	Players    []protocol.Player `json:"players"`
	TopScore   int               `json:"top_score"`
	Elapsed    int64             `json:"elapsed"`
	Viewers    int               `json:"viewers,omitempty"`
	EndedAt    *int64            `json:"ended_at,omitempty"`
}

func NewLiveGameDTO(s manager.Snapshot) GameDTO {
	var owner *string
	if s.Owner != nil {
		owner = &s.Owner.Name
	}
	return GameDTO{
		GameId:     s.GameID,
		Rows:       s.Params.Rows,
		Cols:       s.Params.Cols,
		Mines:      s.Params.Mines,
		Status:     s.Status.String(),
		Live:       true,
		MaxPlayers: s.MaxPlayers,
		Owner:      owner,
		Board:      protocol.Board{Encoding: protocol.Verbose, Cells: s.Board},
		Players:    s.Players,
		TopScore:   s.TopScore,
		Elapsed:    int64(s.Elapsed / time.Second),
		Viewers:    s.Viewers,
	}
}

var errCorruptRecord = errors.New("stored game is corrupt")

func NewStoredGameDTO(g *repository.Game, players []repository.GamePlayer) (GameDTO, error) {
	final, err := protocol.FromCompactBytes(g.Rows, g.Cols, g.FinalBoard)
	if err != nil {
		return GameDTO{}, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	roster := make([]protocol.Player, len(players))
	for i, p := range players {
		roster[i] = protocol.Player{
			ID:           p.PlayerId,
			Name:         p.Name,
			Score:        p.Score,
			VictoryClick: p.VictoryClick,
		}
	}
	var elapsed int64
	if g.StartedAt != nil {
		elapsed = int64(g.EndedAt.Sub(*g.StartedAt) / time.Second)
	}
	endedAt := g.EndedAt.UnixMilli()
	return GameDTO{
		GameId:   g.GameId,
		Rows:     g.Rows,
		Cols:     g.Cols,
		Mines:    g.Mines,
		Status:   g.Status,
		Owner:    g.OwnerName,
		Board:    protocol.Board{Encoding: protocol.Verbose, Cells: final},
		Players:  roster,
		TopScore: g.TopScore,
		Elapsed:  elapsed,
		EndedAt:  &endedAt,
	}, nil
}

type ReplayDTO struct {
	GameId string       `json:"game_id"`
	Rows   int          `json:"rows"`
	Cols   int          `json:"cols"`
	Mines  int          `json:"mines"`
	Status string       `json:"status"`
	Moves  []mines.Move `json:"moves"`
}
