package manager

import "errors"

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrPlayerNotFound = errors.New("player not found")
	ErrGameFull       = errors.New("game is full")
	ErrTooManyGames   = errors.New("too many active games")
	ErrNotPlayer      = errors.New("spectators cannot play, send PlayGame first")
	ErrAlreadyPlaying = errors.New("already playing")
	ErrUnsubscribed   = errors.New("connection is no longer subscribed to the game")
	ErrCorrupted      = errors.New("game state is corrupted")
)

var ErrClosed = errors.New("manager is shutting down")
