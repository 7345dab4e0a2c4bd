package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/vancomm/minesweeper-arena/internal/config"
	"github.com/vancomm/minesweeper-arena/internal/database"
	"github.com/vancomm/minesweeper-arena/internal/handlers"
	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/middleware"
	"github.com/vancomm/minesweeper-arena/internal/repository"
)

const shutdownTimeout = 30 * time.Second

type App struct {
	logger     *slog.Logger
	router     *http.ServeMux
	db         *pgxpool.Pool
	cookies    *config.Cookies
	ws         *config.WebSocket
	manager    *manager.Manager
	migrations fs.FS
}

func New(logger *slog.Logger, migrations fs.FS) *App {
	router := http.NewServeMux()

	app := &App{
		logger:     logger,
		router:     router,
		migrations: migrations,
	}

	return app
}

// Start serves until ctx is done. Without database settings the server runs
// with in-memory games only.
func (a *App) Start(ctx context.Context) error {
	limits, err := config.NewLimits()
	if err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}

	db, migrator, err := database.ConnectAndMigrate(ctx, a.migrations)
	switch {
	case errors.Is(err, config.ErrNoDatabase):
		a.logger.Warn("no database configured, completed games will not be persisted")
	case err != nil:
		return fmt.Errorf("unable to connect to db: %w", err)
	default:
		if srcErr, dbErr := migrator.Close(); srcErr != nil || dbErr != nil {
			a.logger.Warn("unable to close migrator", slog.Any("error", errors.Join(srcErr, dbErr)))
		}
		a.db = db
		defer db.Close()
	}

	verifier, err := config.NewJWT()
	switch {
	case errors.Is(err, config.ErrNoPublicKey):
		a.logger.Warn("no JWT public key configured, every player is a guest")
	case err != nil:
		return fmt.Errorf("unable to load JWT public key: %w", err)
	}

	cookies, err := config.NewCookies(verifier)
	if err != nil {
		return err
	}
	a.cookies = cookies

	ws, err := config.NewWebSocket()
	if err != nil {
		return err
	}
	a.ws = ws

	var store handlers.Store
	var rec manager.Recorder
	if a.db != nil {
		repo := repository.New(a.db)
		store, rec = repo, newRecorder(repo)
	}
	a.manager = manager.New(a.logger, *limits, rec)
	defer a.manager.Close()

	a.loadRoutes(store)

	server := &http.Server{
		Addr:              config.Port(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		Handler: middleware.Wrap(
			a.router,
			middleware.Auth(a.logger, cookies),
			middleware.Cors(config.CorsOrigins()),
			middleware.Logging(a.logger),
		),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server listening", slog.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("unable to listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.manager.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	})
	return g.Wait()
}
