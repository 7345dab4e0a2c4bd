package mines

import "fmt"

type GameParams struct {
	Rows  int `json:"rows"`
	Cols  int `json:"cols"`
	Mines int `json:"mines"`
}

func (p GameParams) Validate() error {
	if p.Rows < 1 || p.Cols < 1 {
		return fmt.Errorf("%w: board must be at least 1x1", ErrInvalidParams)
	}
	if p.Mines < 0 || p.Mines >= p.Rows*p.Cols {
		return fmt.Errorf(
			"%w: mine count must be in [0, %d)", ErrInvalidParams, p.Rows*p.Cols,
		)
	}
	return nil
}

func (p GameParams) Cells() int {
	return p.Rows * p.Cols
}

func (p GameParams) String() string {
	return fmt.Sprintf("%dx%d(%d)", p.Rows, p.Cols, p.Mines)
}
