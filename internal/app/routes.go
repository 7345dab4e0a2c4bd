package app

import (
	"github.com/vancomm/minesweeper-arena/internal/config"
	"github.com/vancomm/minesweeper-arena/internal/handlers"
)

func (a *App) loadRoutes(store handlers.Store) {
	game := handlers.NewGameHandler(a.logger, a.manager, store, a.ws)

	base := config.BasePath()
	a.router.HandleFunc("POST "+base+"/game", game.NewGame)
	a.router.HandleFunc("GET "+base+"/game/{id}", game.Fetch)
	a.router.HandleFunc("GET "+base+"/game/{id}/replay", game.Replay)
	a.router.HandleFunc("GET "+base+"/game/{id}/connect", game.ConnectWS)
	a.router.HandleFunc("GET "+base+"/highscores", game.Highscores)
	a.router.HandleFunc("GET "+base+"/healthz", game.Health)
}
