// custom query
package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vancomm/minesweeper-arena/internal/mines"
)

type Highscore struct {
	GameId   string    `db:"game_id" json:"game_id"`
	Name     string    `db:"name" json:"name"`
	Rows     int       `db:"num_rows" json:"rows"`
	Cols     int       `db:"num_cols" json:"cols"`
	Mines    int       `db:"num_mines" json:"mines"`
	Score    int       `db:"score" json:"score"`
	Won      bool      `db:"won" json:"won"`
	PlayedAt time.Time `db:"ended_at" json:"played_at"`
}

const DefaultHighscoreLimit = 50

type HighscoreFilter struct {
	Username   *string
	GameParams *mines.GameParams
	Limit      int
}

func (f HighscoreFilter) WhereClause() (string, pgx.NamedArgs) {
	clauses := make([]string, 0)
	args := pgx.NamedArgs{}
	if f.Username != nil {
		clauses = append(clauses, "p.name = @username")
		args["username"] = *f.Username
	}
	if f.GameParams != nil {
		clauses = append(
			clauses,
			"g.num_rows = @rows",
			"g.num_cols = @cols",
			"g.num_mines = @mines",
		)
		args["rows"] = f.GameParams.Rows
		args["cols"] = f.GameParams.Cols
		args["mines"] = f.GameParams.Mines
	}
	return strings.Join(clauses, " AND "), args
}

func (q Queries) GetHighscores(
	ctx context.Context, filter HighscoreFilter,
) ([]Highscore, error) {
	query := `
	SELECT
		g.game_id,
		p.name,
		g.num_rows,
		g.num_cols,
		g.num_mines,
		p.score,
		g.status = 'won' won,
		g.ended_at
	FROM game_player p
		JOIN game g USING (game_id)
	WHERE
		p.score > 0
	`

	whereClause, args := filter.WhereClause()
	if whereClause != "" {
		query += " AND " + whereClause
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultHighscoreLimit
	}
	args["limit"] = limit
	query += " ORDER BY p.score DESC, g.ended_at LIMIT @limit;"

	rows, err := q.db.Query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Highscore])
}
