package mines

import (
	"fmt"
	"strconv"
)

type CellKind uint8

const (
	CellHidden CellKind = iota
	CellMine            // unflagged mine, shown only once the game is over
	CellFlag
	CellFlagMine // correctly flagged mine, shown only once the game is over
	CellRevealed
)

// MaxPlayerBits bounds player ids that fit into a compact cell byte.
const MaxPlayerBits = 0x0F

// PlayerCell is what a viewer is allowed to know about a cell.
type PlayerCell struct {
	Kind CellKind
	// Player who revealed the cell. Only meaningful for CellRevealed.
	Player int
	// Mine marks an exploded mine. Only meaningful for CellRevealed.
	Mine     bool
	Adjacent uint8
}

func (c PlayerCell) IsRevealed() bool {
	return c.Kind == CellRevealed
}

func (c PlayerCell) IsFlagged() bool {
	return c.Kind == CellFlag || c.Kind == CellFlagMine
}

// Byte packs the cell as 0..3 for hidden variants, or
// 4 + player<<4 + contents for revealed cells (contents 0..8, 9 for a mine).
func (c PlayerCell) Byte() byte {
	switch c.Kind {
	case CellHidden:
		return 0
	case CellMine:
		return 1
	case CellFlag:
		return 2
	case CellFlagMine:
		return 3
	}
	contents := min(c.Adjacent, 8)
	if c.Mine {
		contents = 9
	}
	return 4 + byte(c.Player&MaxPlayerBits)<<4 + contents
}

func CellFromByte(b byte) (PlayerCell, error) {
	switch b {
	case 0:
		return PlayerCell{Kind: CellHidden}, nil
	case 1:
		return PlayerCell{Kind: CellMine}, nil
	case 2:
		return PlayerCell{Kind: CellFlag}, nil
	case 3:
		return PlayerCell{Kind: CellFlagMine}, nil
	}
	v := b - 4
	player, contents := int(v>>4), v&0x0F
	switch {
	case contents == 9:
		return PlayerCell{Kind: CellRevealed, Player: player, Mine: true}, nil
	case contents <= 8:
		return PlayerCell{Kind: CellRevealed, Player: player, Adjacent: contents}, nil
	default:
		return PlayerCell{}, fmt.Errorf("invalid compact cell byte %d", b)
	}
}

func (c PlayerCell) String() string {
	switch c.Kind {
	case CellHidden:
		return "-"
	case CellMine:
		return "*"
	case CellFlag:
		return "f"
	case CellFlagMine:
		return "F"
	}
	if c.Mine {
		return "X"
	}
	return strconv.Itoa(int(c.Adjacent))
}

type cellState uint8

const (
	hidden cellState = iota
	flagged
	revealed
)

// cell is the authoritative state, never sent to clients as is.
type cell struct {
	mine     bool
	adjacent uint8
	state    cellState
	player   int
}

func (c cell) view(status Status) PlayerCell {
	switch c.state {
	case revealed:
		if c.mine {
			return PlayerCell{Kind: CellRevealed, Player: c.player, Mine: true}
		}
		return PlayerCell{Kind: CellRevealed, Player: c.player, Adjacent: c.adjacent}
	case flagged:
		if c.mine && status.IsOver() {
			return PlayerCell{Kind: CellFlagMine}
		}
		return PlayerCell{Kind: CellFlag}
	}
	switch {
	case c.mine && status == Won:
		return PlayerCell{Kind: CellFlagMine}
	case c.mine && status == Lost:
		return PlayerCell{Kind: CellMine}
	}
	return PlayerCell{Kind: CellHidden}
}
