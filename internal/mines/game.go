package mines

import (
	"fmt"
	"math/rand/v2"

	"github.com/vancomm/minesweeper-arena/internal/board"
)

type Status uint8

const (
	NotStarted Status = iota
	Active
	Won
	Lost
)

func (s Status) IsOver() bool {
	return s == Won || s == Lost
}

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Won:
		return "won"
	case Lost:
		return "lost"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Game is the full state of one board. It is not safe for concurrent use;
// callers serialize access.
type Game struct {
	params     GameParams
	cells      *board.Board[cell]
	status     Status
	hiddenSafe int
	placed     bool
	rnd        *rand.Rand
	moves      []Move
}

// NewGame creates a game with no mines placed. Mines are placed on the first
// reveal so that the first click is always safe.
func NewGame(params GameParams, r *rand.Rand) (*Game, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	cells, err := board.New(params.Rows, params.Cols, cell{})
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	game := &Game{
		params:     params,
		cells:      cells,
		rnd:        r,
		hiddenSafe: params.Cells() - params.Mines,
	}
	return game, nil
}

// NewGameWithLayout creates a game with mines already at the given points.
// The first click is not protected.
func NewGameWithLayout(rows, cols int, layout []board.Point) (*Game, error) {
	g, err := NewGame(GameParams{Rows: rows, Cols: cols, Mines: len(layout)}, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range layout {
		if !g.cells.InBounds(p) {
			return nil, fmt.Errorf("%w: mine %v", ErrOutOfBounds, p)
		}
		c := g.cells.Ref(p)
		if c.mine {
			return nil, fmt.Errorf("%w: duplicate mine %v", ErrInvalidParams, p)
		}
		c.mine = true
	}
	g.countAdjacent()
	g.placed = true
	return g, nil
}

func (g *Game) Params() GameParams { return g.params }
func (g *Game) Status() Status     { return g.status }

// Moves returns a copy of the accepted move log.
func (g *Game) Moves() []Move {
	moves := make([]Move, len(g.moves))
	copy(moves, g.moves)
	return moves
}

// View projects the board to what players may see. Once the game is over the
// mines are shown as well.
func (g *Game) View() *board.Board[PlayerCell] {
	return board.Map(g.cells, func(_ board.Point, c cell) PlayerCell {
		return c.view(g.status)
	})
}

// Play validates and applies one action. Nothing is mutated when an error is
// returned.
func (g *Game) Play(player int, action Action, p board.Point) (Outcome, error) {
	if g.status.IsOver() {
		return Outcome{}, ErrGameOver
	}
	if !g.cells.InBounds(p) {
		return Outcome{}, fmt.Errorf("%w: %v on %dx%d board", ErrOutOfBounds, p, g.params.Rows, g.params.Cols)
	}

	var (
		outcome Outcome
		err     error
	)
	switch action {
	case ActionReveal:
		outcome, err = g.reveal(player, p)
	case ActionFlag:
		outcome = g.flag(p)
	case ActionChord:
		outcome = g.chord(player, p)
	default:
		return Outcome{}, fmt.Errorf("%w %d", ErrInvalidAction, action)
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome.Player = player
	if outcome.Kind.IsTerminal() {
		outcome.Final = g.View()
	}
	if outcome.Kind != NoChange {
		g.moves = append(g.moves, Move{
			Seq:      len(g.moves) + 1,
			Player:   player,
			Action:   action,
			Point:    p,
			Result:   outcome.Kind,
			Revealed: outcome.Revealed(),
		})
	}
	return outcome, nil
}

func (g *Game) Reveal(player int, p board.Point) (Outcome, error) {
	return g.Play(player, ActionReveal, p)
}

func (g *Game) Flag(player int, p board.Point) (Outcome, error) {
	return g.Play(player, ActionFlag, p)
}

func (g *Game) Chord(player int, p board.Point) (Outcome, error) {
	return g.Play(player, ActionChord, p)
}

func (g *Game) reveal(player int, p board.Point) (Outcome, error) {
	if g.cells.At(p).state != hidden {
		return Outcome{Kind: NoChange}, nil
	}
	if g.status == NotStarted {
		if !g.placed {
			if err := g.placeMines(p); err != nil {
				return Outcome{}, err
			}
		}
		g.status = Active
	}
	if g.cells.At(p).mine {
		return g.explode(player, p), nil
	}
	deltas := g.floodFill(player, p, nil)
	return g.settle(deltas), nil
}

func (g *Game) flag(p board.Point) Outcome {
	c := g.cells.Ref(p)
	switch c.state {
	case hidden:
		c.state = flagged
	case flagged:
		c.state = hidden
	default:
		return Outcome{Kind: NoChange}
	}
	return Outcome{
		Kind:  Success,
		Cells: []Delta{{Point: p, Cell: c.view(g.status)}},
	}
}

func (g *Game) chord(player int, p board.Point) Outcome {
	c := g.cells.At(p)
	if c.state != revealed || c.adjacent == 0 {
		return Outcome{Kind: NoChange}
	}

	var flags uint8
	targets := make([]board.Point, 0, 8)
	for _, q := range g.cells.Neighbors(p) {
		switch g.cells.At(q).state {
		case flagged:
			flags++
		case hidden:
			targets = append(targets, q)
		}
	}
	if flags != c.adjacent || len(targets) == 0 {
		return Outcome{Kind: NoChange}
	}

	for _, q := range targets {
		if g.cells.At(q).mine {
			return g.explode(player, q)
		}
	}
	var deltas []Delta
	for _, q := range targets {
		deltas = g.floodFill(player, q, deltas)
	}
	return g.settle(deltas)
}

func (g *Game) explode(player int, p board.Point) Outcome {
	c := g.cells.Ref(p)
	c.state, c.player = revealed, player
	g.status = Lost
	return Outcome{
		Kind:  Failure,
		Cells: []Delta{{Point: p, Cell: c.view(g.status)}},
		Mine:  p,
	}
}

func (g *Game) settle(deltas []Delta) Outcome {
	if len(deltas) == 0 {
		return Outcome{Kind: NoChange}
	}
	if g.hiddenSafe == 0 {
		g.status = Won
		return Outcome{Kind: Victory, Cells: deltas}
	}
	return Outcome{Kind: Success, Cells: deltas}
}

// floodFill reveals start and, breadth first, every hidden unflagged cell
// reachable through zero-count cells. start must be a hidden safe cell or a
// cell that is already revealed, in which case nothing happens.
func (g *Game) floodFill(player int, start board.Point, deltas []Delta) []Delta {
	if g.cells.At(start).state != hidden {
		return deltas
	}
	queue := []board.Point{start}
	g.markRevealed(player, start)
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		c := g.cells.At(p)
		deltas = append(deltas, Delta{Point: p, Cell: c.view(g.status)})
		if c.adjacent != 0 {
			continue
		}
		for _, q := range g.cells.Neighbors(p) {
			n := g.cells.At(q)
			if n.state != hidden || n.mine {
				continue
			}
			g.markRevealed(player, q)
			queue = append(queue, q)
		}
	}
	return deltas
}

func (g *Game) markRevealed(player int, p board.Point) {
	c := g.cells.Ref(p)
	c.state, c.player = revealed, player
	g.hiddenSafe--
}

// placeMines scatters the mines uniformly over every cell outside the 3x3
// block around first. If the board is too dense for that, the remainder goes
// to the block itself, but never to first.
func (g *Game) placeMines(first board.Point) error {
	far := make([]board.Point, 0, g.cells.Len())
	near := make([]board.Point, 0, 8)
	for p := range g.cells.All() {
		switch {
		case p == first:
		case abs(p.Row-first.Row) <= 1 && abs(p.Col-first.Col) <= 1:
			near = append(near, p)
		default:
			far = append(far, p)
		}
	}

	n := g.params.Mines
	if n > len(far)+len(near) {
		return AssertionError{fmt.Sprintf("cannot place %d mines on %v", n, g.params)}
	}
	chosen := g.sample(far, min(n, len(far)))
	if n > len(far) {
		chosen = append(chosen, g.sample(near, n-len(far))...)
	}
	for _, p := range chosen {
		g.cells.Ref(p).mine = true
	}
	g.countAdjacent()
	g.placed = true

	if g.cells.At(first).mine {
		return AssertionError{"mine in starting cell"}
	}
	return nil
}

func (g *Game) countAdjacent() {
	for p := range g.cells.All() {
		var count uint8
		for _, q := range g.cells.Neighbors(p) {
			if g.cells.At(q).mine {
				count++
			}
		}
		g.cells.Ref(p).adjacent = count
	}
}

// sample picks k points with a partial Fisher-Yates shuffle.
func (g *Game) sample(points []board.Point, k int) []board.Point {
	for i := range k {
		j := i + g.rnd.IntN(len(points)-i)
		points[i], points[j] = points[j], points[i]
	}
	return points[:k]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
