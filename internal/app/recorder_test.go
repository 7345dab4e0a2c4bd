package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

type fakeSaver struct {
	saved []repository.SaveGameParams
	err   error
}

func (f *fakeSaver) SaveGame(_ context.Context, params repository.SaveGameParams) error {
	f.saved = append(f.saved, params)
	return f.err
}

func wonRecord(t *testing.T) manager.Record {
	t.Helper()
	game, err := mines.NewGameWithLayout(1, 2, []board.Point{{Row: 0, Col: 0}})
	require.NoError(t, err)
	_, err = game.Reveal(0, board.Point{Row: 0, Col: 1})
	require.NoError(t, err)
	require.Equal(t, mines.Won, game.Status())

	account := int64(11)
	ended := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return manager.Record{
		GameID:   "g1",
		Params:   game.Params(),
		Status:   game.Status(),
		Owner:    &manager.Identity{AccountID: &account, Name: "kim"},
		TopScore: 1,
		Final:    game.View(),
		Moves:    game.Moves(),
		Players: []manager.PlayerRecord{
			{ID: 0, Name: "kim", AccountID: &account, Score: 1, VictoryClick: true},
			{ID: 1, Name: "Player 2"},
		},
		StartedAt: ended.Add(-3 * time.Second),
		EndedAt:   ended,
	}
}

func TestSaveGameParams(t *testing.T) {
	record := wonRecord(t)
	params := saveGameParams(record)

	g := params.Game
	assert.Equal(t, "g1", g.GameId)
	assert.Equal(t, "won", g.Status)
	assert.Equal(t, 1, g.Rows)
	assert.Equal(t, 2, g.Cols)
	assert.Equal(t, 1, g.Mines)
	assert.Equal(t, "kim", *g.OwnerName)
	assert.Equal(t, int64(11), *g.OwnerId)
	require.NotNil(t, g.StartedAt)
	assert.Equal(t, 3*time.Second, g.EndedAt.Sub(*g.StartedAt))
	assert.Len(t, g.Moves, 1)

	final, err := protocol.FromCompactBytes(g.Rows, g.Cols, g.FinalBoard)
	require.NoError(t, err)
	assert.Equal(t, record.Final.ToRows(), final.ToRows())

	require.Len(t, params.Players, 2)
	assert.True(t, params.Players[0].VictoryClick)
	assert.Equal(t, "g1", params.Players[1].GameId)
	assert.Nil(t, params.Players[1].AccountId)
}

func TestSaveGameParamsGuest(t *testing.T) {
	record := wonRecord(t)
	record.Owner = nil
	record.StartedAt = time.Time{}

	params := saveGameParams(record)
	assert.Nil(t, params.Game.OwnerId)
	assert.Nil(t, params.Game.OwnerName)
	assert.Nil(t, params.Game.StartedAt)
}

func TestSaveGameParamsAbandoned(t *testing.T) {
	record := wonRecord(t)
	record.Status = mines.Active
	record.Abandoned = true

	assert.Equal(t, manager.StatusAbandoned, saveGameParams(record).Game.Status)
}

func TestRecorder(t *testing.T) {
	saver := &fakeSaver{}
	rec := newRecorder(saver)
	require.NoError(t, rec.RecordGame(context.Background(), wonRecord(t)))
	require.Len(t, saver.saved, 1)

	saver.err = fmt.Errorf("%w: g1", repository.ErrDuplicateGame)
	assert.NoError(t, rec.RecordGame(context.Background(), wonRecord(t)))

	saver.err = context.DeadlineExceeded
	assert.ErrorIs(t, rec.RecordGame(context.Background(), wonRecord(t)), context.DeadlineExceeded)
}
