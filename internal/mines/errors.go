package mines

import "errors"

var (
	ErrInvalidParams = errors.New("invalid game parameters")
	ErrOutOfBounds   = errors.New("point is out of bounds")
	ErrGameOver      = errors.New("game is over")
	ErrInvalidAction = errors.New("unknown action")
)

// AssertionError reports a broken engine invariant. A game that returns one
// can no longer be trusted.
type AssertionError struct {
	message string
}

// [AssertionError] implements [error]
func (e AssertionError) Error() string {
	return e.message
}
