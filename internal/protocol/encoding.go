package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/mines"
)

// Encoding selects how board cells are put on the wire. Both encodings carry
// the same information.
type Encoding string

const (
	Verbose Encoding = "verbose"
	Compact Encoding = "compact"
)

// Cell is the verbose form of a player cell: "e", "m", "f" and "fm" for the
// hidden variants, an object for revealed ones.
type Cell mines.PlayerCell

type revealedCell struct {
	Player   int   `json:"p"`
	Adjacent uint8 `json:"n"`
	Mine     bool  `json:"mine,omitempty"`
}

func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case mines.CellHidden:
		return []byte(`"e"`), nil
	case mines.CellMine:
		return []byte(`"m"`), nil
	case mines.CellFlag:
		return []byte(`"f"`), nil
	case mines.CellFlagMine:
		return []byte(`"fm"`), nil
	case mines.CellRevealed:
		return json.Marshal(revealedCell{c.Player, c.Adjacent, c.Mine})
	}
	return nil, fmt.Errorf("unknown cell kind %d", c.Kind)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "e":
			*c = Cell{Kind: mines.CellHidden}
		case "m":
			*c = Cell{Kind: mines.CellMine}
		case "f":
			*c = Cell{Kind: mines.CellFlag}
		case "fm":
			*c = Cell{Kind: mines.CellFlagMine}
		default:
			return fmt.Errorf("unknown hidden cell %q", s)
		}
		return nil
	}
	var rc revealedCell
	if err := json.Unmarshal(data, &rc); err != nil {
		return err
	}
	*c = Cell{Kind: mines.CellRevealed, Player: rc.Player, Adjacent: rc.Adjacent, Mine: rc.Mine}
	return nil
}

// Board is a full board in either encoding. Compact boards are the row-major
// cell bytes, base64 encoded by encoding/json.
type Board struct {
	Encoding Encoding
	Cells    *board.Board[mines.PlayerCell]
}

type boardWire struct {
	Encoding Encoding        `json:"encoding"`
	Rows     int             `json:"rows"`
	Cols     int             `json:"cols"`
	Cells    json.RawMessage `json:"cells"`
}

func CompactBytes(b *board.Board[mines.PlayerCell]) []byte {
	out := make([]byte, 0, b.Len())
	for _, c := range b.All() {
		out = append(out, c.Byte())
	}
	return out
}

func FromCompactBytes(rows, cols int, data []byte) (*board.Board[mines.PlayerCell], error) {
	b, err := board.New(rows, cols, mines.PlayerCell{})
	if err != nil {
		return nil, err
	}
	if len(data) != b.Len() {
		return nil, fmt.Errorf("compact board has %d cells, want %d", len(data), b.Len())
	}
	for i, v := range data {
		c, err := mines.CellFromByte(v)
		if err != nil {
			return nil, err
		}
		b.Set(b.PointFromIndex(i), c)
	}
	return b, nil
}

func (b Board) MarshalJSON() ([]byte, error) {
	if b.Cells == nil {
		return []byte("null"), nil
	}
	var (
		cells []byte
		err   error
	)
	encoding := b.Encoding
	switch encoding {
	case Compact:
		cells, err = json.Marshal(CompactBytes(b.Cells))
	default:
		encoding = Verbose
		rows := board.Map(b.Cells, func(_ board.Point, c mines.PlayerCell) Cell {
			return Cell(c)
		}).ToRows()
		cells, err = json.Marshal(rows)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(boardWire{
		Encoding: encoding,
		Rows:     b.Cells.Rows(),
		Cols:     b.Cells.Cols(),
		Cells:    cells,
	})
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var wire boardWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Encoding {
	case Compact:
		var raw []byte
		if err := json.Unmarshal(wire.Cells, &raw); err != nil {
			return err
		}
		cells, err := FromCompactBytes(wire.Rows, wire.Cols, raw)
		if err != nil {
			return err
		}
		*b = Board{Encoding: Compact, Cells: cells}
	case Verbose:
		var rows [][]Cell
		if err := json.Unmarshal(wire.Cells, &rows); err != nil {
			return err
		}
		verbose, err := board.FromRows(rows)
		if err != nil {
			return err
		}
		if verbose.Rows() != wire.Rows || verbose.Cols() != wire.Cols {
			return fmt.Errorf(
				"board is %dx%d, header says %dx%d",
				verbose.Rows(), verbose.Cols(), wire.Rows, wire.Cols,
			)
		}
		cells := board.Map(verbose, func(_ board.Point, c Cell) mines.PlayerCell {
			return mines.PlayerCell(c)
		})
		*b = Board{Encoding: Verbose, Cells: cells}
	default:
		return fmt.Errorf("unknown encoding %q", wire.Encoding)
	}
	return nil
}

// Outcome is the wire form of a play outcome. Changed cells are
// {"point", "cell"} objects when verbose and [row, col, byte] triples when
// compact.
type Outcome struct {
	Encoding Encoding
	Outcome  mines.Outcome
}

type outcomeWire struct {
	Encoding Encoding          `json:"encoding"`
	Kind     mines.OutcomeKind `json:"kind"`
	Player   int               `json:"player"`
	Cells    json.RawMessage   `json:"cells"`
	Mine     *board.Point      `json:"mine,omitempty"`
	Final    *Board            `json:"final,omitempty"`
}

type verboseDelta struct {
	Point board.Point `json:"point"`
	Cell  Cell        `json:"cell"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	encoding := o.Encoding
	if encoding != Compact {
		encoding = Verbose
	}

	var cells any
	if encoding == Compact {
		triples := make([][3]int, len(o.Outcome.Cells))
		for i, d := range o.Outcome.Cells {
			triples[i] = [3]int{d.Point.Row, d.Point.Col, int(d.Cell.Byte())}
		}
		cells = triples
	} else {
		deltas := make([]verboseDelta, len(o.Outcome.Cells))
		for i, d := range o.Outcome.Cells {
			deltas[i] = verboseDelta{d.Point, Cell(d.Cell)}
		}
		cells = deltas
	}
	raw, err := json.Marshal(cells)
	if err != nil {
		return nil, err
	}

	wire := outcomeWire{
		Encoding: encoding,
		Kind:     o.Outcome.Kind,
		Player:   o.Outcome.Player,
		Cells:    raw,
	}
	if o.Outcome.Kind == mines.Failure {
		mine := o.Outcome.Mine
		wire.Mine = &mine
	}
	if o.Outcome.Final != nil {
		wire.Final = &Board{Encoding: encoding, Cells: o.Outcome.Final}
	}
	return json.Marshal(wire)
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var wire outcomeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := mines.Outcome{Kind: wire.Kind, Player: wire.Player}
	if wire.Mine != nil {
		out.Mine = *wire.Mine
	}
	if wire.Final != nil {
		out.Final = wire.Final.Cells
	}

	switch wire.Encoding {
	case Compact:
		var triples [][3]int
		if err := json.Unmarshal(wire.Cells, &triples); err != nil {
			return err
		}
		for _, t := range triples {
			if t[2] < 0 || t[2] > 0xFF {
				return fmt.Errorf("cell byte %d out of range", t[2])
			}
			c, err := mines.CellFromByte(byte(t[2]))
			if err != nil {
				return err
			}
			out.Cells = append(out.Cells, mines.Delta{
				Point: board.Point{Row: t[0], Col: t[1]}, Cell: c,
			})
		}
	case Verbose:
		var deltas []verboseDelta
		if err := json.Unmarshal(wire.Cells, &deltas); err != nil {
			return err
		}
		for _, d := range deltas {
			out.Cells = append(out.Cells, mines.Delta{Point: d.Point, Cell: mines.PlayerCell(d.Cell)})
		}
	default:
		return fmt.Errorf("unknown encoding %q", wire.Encoding)
	}

	*o = Outcome{Encoding: wire.Encoding, Outcome: out}
	return nil
}
