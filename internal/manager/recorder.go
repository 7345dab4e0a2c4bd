package manager

import (
	"context"
	"time"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/mines"
)

// Recorder persists completed games. It is called once per game, outside of
// the game lock. Started games that time out or outlive the server are
// recorded as abandoned.
type Recorder interface {
	RecordGame(ctx context.Context, record Record) error
}

const StatusAbandoned = "abandoned"

type Record struct {
	GameID    string
	Params    mines.GameParams
	Status    mines.Status
	Abandoned bool
	Owner     *Identity
	TopScore  int
	Final     *board.Board[mines.PlayerCell]
	Moves     []mines.Move
	Players   []PlayerRecord
	StartedAt time.Time
	EndedAt   time.Time
}

// StatusName is the final status of the game as stored.
func (r Record) StatusName() string {
	if r.Abandoned {
		return StatusAbandoned
	}
	return r.Status.String()
}

type PlayerRecord struct {
	ID           int
	Name         string
	AccountID    *int64
	Score        int
	VictoryClick bool
}

const recordTimeout = 10 * time.Second
