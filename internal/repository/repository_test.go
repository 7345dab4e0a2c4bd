package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/database"
	"github.com/vancomm/minesweeper-arena/internal/mines"
)

func TestHighscoreFilterWhereClause(t *testing.T) {
	username := "zed"
	testCases := []struct {
		name   string
		filter HighscoreFilter
		clause string
		args   pgx.NamedArgs
	}{
		{"empty", HighscoreFilter{}, "", pgx.NamedArgs{}},
		{"username", HighscoreFilter{Username: &username}, "p.name = @username", pgx.NamedArgs{"username": "zed"}},
		{
			"mode",
			HighscoreFilter{GameParams: &mines.GameParams{Rows: 9, Cols: 9, Mines: 10}},
			"g.num_rows = @rows AND g.num_cols = @cols AND g.num_mines = @mines",
			pgx.NamedArgs{"rows": 9, "cols": 9, "mines": 10},
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			clause, args := test.filter.WhereClause()
			assert.Equal(t, test.clause, clause)
			assert.Equal(t, test.args, args)
		})
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	_, err := database.Migrate(url, database.Migrations)
	require.NoError(t, err)

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestSaveAndFetchGame(t *testing.T) {
	q := New(testPool(t))
	ctx := context.Background()

	owner := "kim"
	ownerId := int64(7)
	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	game := Game{
		GameId:     uuid.NewString(),
		Rows:       2,
		Cols:       2,
		Mines:      1,
		Status:     mines.Won.String(),
		OwnerId:    &ownerId,
		OwnerName:  &owner,
		TopScore:   3,
		FinalBoard: []byte{3, 4 + 1, 4 + 1, 4 + 1},
		Moves: []mines.Move{
			{Seq: 1, Player: 0, Action: mines.ActionReveal, Point: board.Point{Row: 1, Col: 1}, Result: mines.Victory, Revealed: 3},
		},
		StartedAt: &started,
		EndedAt:   started.Add(time.Minute),
	}
	players := []GamePlayer{
		{PlayerId: 0, Name: owner, AccountId: &ownerId, Score: 3, VictoryClick: true},
		{PlayerId: 1, Name: "guest"},
	}

	require.NoError(t, q.SaveGame(ctx, SaveGameParams{Game: game, Players: players}))
	assert.ErrorIs(t, q.SaveGame(ctx, SaveGameParams{Game: game}), ErrDuplicateGame)

	fetched, err := q.FetchGame(ctx, game.GameId)
	require.NoError(t, err)
	assert.Equal(t, game.FinalBoard, fetched.FinalBoard)
	assert.Equal(t, game.Moves, fetched.Moves)
	assert.Equal(t, owner, *fetched.OwnerName)
	assert.Equal(t, 3, fetched.TopScore)

	roster, err := q.FetchGamePlayers(ctx, game.GameId)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].VictoryClick)
	assert.Equal(t, "guest", roster[1].Name)

	scores, err := q.GetHighscores(ctx, HighscoreFilter{
		Username:   &owner,
		GameParams: &mines.GameParams{Rows: 2, Cols: 2, Mines: 1},
	})
	require.NoError(t, err)
	require.NotEmpty(t, scores)
	assert.Equal(t, 3, scores[0].Score)
	assert.True(t, scores[0].Won)

	_, err = q.FetchGame(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
