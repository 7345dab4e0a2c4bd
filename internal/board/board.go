package board

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

var ErrInvalidDimensions = errors.New("board dimensions must be positive")

// Point is a zero-based {row, col} coordinate.
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.Row, p.Col)
}

// Board is a rows × cols grid stored in row-major order. It knows nothing
// about the game played on it.
type Board[T any] struct {
	rows, cols int
	cells      []T
}

func New[T any](rows, cols int, fill T) (*Board[T], error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w (rows = %d, cols = %d)", ErrInvalidDimensions, rows, cols)
	}
	cells := make([]T, rows*cols)
	for i := range cells {
		cells[i] = fill
	}
	return &Board[T]{rows: rows, cols: cols, cells: cells}, nil
}

// FromRows builds a board from a rectangular slice of rows.
func FromRows[T any](rows [][]T) (*Board[T], error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrInvalidDimensions
	}
	b := &Board[T]{
		rows:  len(rows),
		cols:  len(rows[0]),
		cells: make([]T, 0, len(rows)*len(rows[0])),
	}
	for i, row := range rows {
		if len(row) != b.cols {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), b.cols)
		}
		b.cells = append(b.cells, row...)
	}
	return b, nil
}

func (b *Board[T]) Rows() int { return b.rows }
func (b *Board[T]) Cols() int { return b.cols }
func (b *Board[T]) Len() int  { return len(b.cells) }

func (b *Board[T]) InBounds(p Point) bool {
	return 0 <= p.Row && p.Row < b.rows && 0 <= p.Col && p.Col < b.cols
}

// Index maps a valid point to its row-major index. Callers check InBounds first.
func (b *Board[T]) Index(p Point) int {
	return p.Row*b.cols + p.Col
}

func (b *Board[T]) PointFromIndex(i int) Point {
	return Point{Row: i / b.cols, Col: i % b.cols}
}

func (b *Board[T]) At(p Point) T {
	return b.cells[b.Index(p)]
}

func (b *Board[T]) Set(p Point, v T) {
	b.cells[b.Index(p)] = v
}

// Ref returns a pointer to the cell at p for in-place updates.
func (b *Board[T]) Ref(p Point) *T {
	return &b.cells[b.Index(p)]
}

// Neighbors returns the up to 8 in-range points around p. There is no
// wraparound at the edges.
func (b *Board[T]) Neighbors(p Point) []Point {
	neighbors := make([]Point, 0, 8)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			q := Point{Row: p.Row + dr, Col: p.Col + dc}
			if b.InBounds(q) {
				neighbors = append(neighbors, q)
			}
		}
	}
	return neighbors
}

// All iterates over every cell in row-major order.
func (b *Board[T]) All() iter.Seq2[Point, T] {
	return func(yield func(Point, T) bool) {
		for i, v := range b.cells {
			if !yield(b.PointFromIndex(i), v) {
				return
			}
		}
	}
}

// ToRows copies the board into a slice of rows.
func (b *Board[T]) ToRows() [][]T {
	rows := make([][]T, b.rows)
	for r := range b.rows {
		rows[r] = make([]T, b.cols)
		copy(rows[r], b.cells[r*b.cols:(r+1)*b.cols])
	}
	return rows
}

// Map projects every cell of b through f into a new board of the same shape.
func Map[T, U any](b *Board[T], f func(Point, T) U) *Board[U] {
	out := &Board[U]{rows: b.rows, cols: b.cols, cells: make([]U, len(b.cells))}
	for i, v := range b.cells {
		out.cells[i] = f(b.PointFromIndex(i), v)
	}
	return out
}

func (b *Board[T]) ToString(cell func(T) string) string {
	var s strings.Builder
	for r := range b.rows {
		for c := range b.cols {
			if c > 0 {
				s.WriteByte(' ')
			}
			s.WriteString(cell(b.cells[r*b.cols+c]))
		}
		s.WriteByte('\n')
	}
	return s.String()
}
