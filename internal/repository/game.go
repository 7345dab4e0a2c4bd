package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vancomm/minesweeper-arena/internal/mines"
)

type Game struct {
	GameId     string       `db:"game_id"`
	Rows       int          `db:"num_rows"`
	Cols       int          `db:"num_cols"`
	Mines      int          `db:"num_mines"`
	Status     string       `db:"status"`
	OwnerId    *int64       `db:"owner_id"`
	OwnerName  *string      `db:"owner_name"`
	TopScore   int          `db:"top_score"`
	FinalBoard []byte       `db:"final_board"`
	Moves      []mines.Move `db:"moves"`
	StartedAt  *time.Time   `db:"started_at"`
	EndedAt    time.Time    `db:"ended_at"`
	CreatedAt  time.Time    `db:"created_at"`
}

type GamePlayer struct {
	GameId       string `db:"game_id"`
	PlayerId     int    `db:"player_id"`
	Name         string `db:"name"`
	AccountId    *int64 `db:"account_id"`
	Score        int    `db:"score"`
	VictoryClick bool   `db:"victory_click"`
}

type SaveGameParams struct {
	Game    Game
	Players []GamePlayer
}

// SaveGame stores a completed game with its roster in one transaction.
func (q Queries) SaveGame(ctx context.Context, params SaveGameParams) error {
	g := params.Game
	moves := g.Moves
	if moves == nil {
		moves = []mines.Move{}
	}
	err := pgx.BeginFunc(ctx, q.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(
			ctx,
			`INSERT INTO game (
				game_id, num_rows, num_cols, num_mines, status, owner_id,
				owner_name, top_score, final_board, moves, started_at, ended_at
			)
			VALUES (
				@game_id, @num_rows, @num_cols, @num_mines, @status, @owner_id,
				@owner_name, @top_score, @final_board, @moves, @started_at, @ended_at
			);`,
			pgx.NamedArgs{
				"game_id":     g.GameId,
				"num_rows":    g.Rows,
				"num_cols":    g.Cols,
				"num_mines":   g.Mines,
				"status":      g.Status,
				"owner_id":    g.OwnerId,
				"owner_name":  g.OwnerName,
				"top_score":   g.TopScore,
				"final_board": g.FinalBoard,
				"moves":       moves,
				"started_at":  g.StartedAt,
				"ended_at":    g.EndedAt,
			},
		)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, p := range params.Players {
			batch.Queue(
				`INSERT INTO game_player (
					game_id, player_id, name, account_id, score, victory_click
				)
				VALUES (
					@game_id, @player_id, @name, @account_id, @score, @victory_click
				);`,
				pgx.NamedArgs{
					"game_id":       g.GameId,
					"player_id":     p.PlayerId,
					"name":          p.Name,
					"account_id":    p.AccountId,
					"score":         p.Score,
					"victory_click": p.VictoryClick,
				},
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, g.GameId)
	}
	return err
}

func (q Queries) FetchGame(ctx context.Context, gameId string) (*Game, error) {
	rows, _ := q.db.Query(
		ctx,
		"SELECT * FROM game WHERE game_id = $1",
		gameId,
	)
	game, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[Game])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return game, err
}

func (q Queries) FetchGamePlayers(ctx context.Context, gameId string) ([]GamePlayer, error) {
	rows, _ := q.db.Query(
		ctx,
		"SELECT * FROM game_player WHERE game_id = $1 ORDER BY player_id",
		gameId,
	)
	return pgx.CollectRows(rows, pgx.RowToStructByName[GamePlayer])
}
