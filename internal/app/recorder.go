package app

import (
	"context"
	"errors"

	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

type gameSaver interface {
	SaveGame(ctx context.Context, params repository.SaveGameParams) error
}

// recorder stores completed games in the repository.
type recorder struct {
	repo gameSaver
}

func newRecorder(repo gameSaver) *recorder {
	return &recorder{repo: repo}
}

func (r recorder) RecordGame(ctx context.Context, record manager.Record) error {
	err := r.repo.SaveGame(ctx, saveGameParams(record))
	if errors.Is(err, repository.ErrDuplicateGame) {
		return nil
	}
	return err
}

func saveGameParams(record manager.Record) repository.SaveGameParams {
	game := repository.Game{
		GameId:     record.GameID,
		Rows:       record.Params.Rows,
		Cols:       record.Params.Cols,
		Mines:      record.Params.Mines,
		Status:     record.StatusName(),
		TopScore:   record.TopScore,
		FinalBoard: protocol.CompactBytes(record.Final),
		Moves:      record.Moves,
		EndedAt:    record.EndedAt,
	}
	if record.Owner != nil {
		name := record.Owner.Name
		game.OwnerId = record.Owner.AccountID
		game.OwnerName = &name
	}
	if !record.StartedAt.IsZero() {
		started := record.StartedAt
		game.StartedAt = &started
	}

	players := make([]repository.GamePlayer, len(record.Players))
	for i, p := range record.Players {
		players[i] = repository.GamePlayer{
			GameId:       record.GameID,
			PlayerId:     p.ID,
			Name:         p.Name,
			AccountId:    p.AccountID,
			Score:        p.Score,
			VictoryClick: p.VictoryClick,
		}
	}
	return repository.SaveGameParams{Game: game, Players: players}
}
