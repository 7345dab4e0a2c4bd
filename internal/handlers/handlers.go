package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

func SendJSON(w http.ResponseWriter, v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	w.Header().Add("Content-Type", "application/json")
	return w.Write(payload)
}

func sendJSONOrLog(w http.ResponseWriter, logger *slog.Logger, v any) {
	_, err := SendJSON(w, v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		logger.Error(
			"unable to send response",
			slog.Any("response", v),
			slog.Any("error", err),
		)
	}
}

func sendErrorOrLog(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	payload, _ := json.Marshal(wrapError(err))
	if _, err := w.Write(payload); err != nil {
		logger.Error("unable to send error response", slog.Any("error", err))
	}
}

func wrapError(err error) map[string]string {
	return map[string]string{
		"error": err.Error(),
	}
}

// statusCode maps domain errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, mines.ErrInvalidParams),
		errors.Is(err, mines.ErrOutOfBounds),
		errors.Is(err, mines.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrGameNotFound),
		errors.Is(err, manager.ErrPlayerNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrGameFull),
		errors.Is(err, mines.ErrGameOver),
		errors.Is(err, manager.ErrAlreadyPlaying):
		return http.StatusConflict
	case errors.Is(err, manager.ErrTooManyGames),
		errors.Is(err, manager.ErrClosed),
		errors.Is(err, ErrNoStore):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
