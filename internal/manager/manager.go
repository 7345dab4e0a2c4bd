package manager

import (
	"context"
	"errors"
	"fmt"
	"hash/maphash"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/config"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
)

// Manager owns every live game. Actions on one game are applied one at a
// time; distinct games share nothing but the registry.
//
// Lock order: the registry lock is never held while taking a game lock.
type Manager struct {
	logger   *slog.Logger
	limits   config.Limits
	recorder Recorder

	now     func() time.Time
	newRand func() *rand.Rand

	mu     sync.RWMutex
	games  map[string]*Game
	closed bool

	wg sync.WaitGroup
}

// New creates a manager. recorder may be nil, in which case completed games
// are only kept in memory until evicted.
func New(logger *slog.Logger, limits config.Limits, recorder Recorder) *Manager {
	return &Manager{
		logger:   logger,
		limits:   limits,
		recorder: recorder,
		now:      time.Now,
		newRand:  createRand,
		games:    make(map[string]*Game),
	}
}

func createRand() *rand.Rand {
	return rand.New(rand.NewPCG(
		new(maphash.Hash).Sum64(), new(maphash.Hash).Sum64(),
	))
}

func (m *Manager) Limits() config.Limits {
	return m.limits
}

// Len returns the number of live games.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

// CreateGame allocates a new game that has not started yet. A maxPlayers of
// zero means the configured default.
func (m *Manager) CreateGame(params mines.GameParams, maxPlayers int, owner *Identity) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if params.Rows > m.limits.MaxRows || params.Cols > m.limits.MaxCols {
		return "", fmt.Errorf(
			"%w: board is limited to %dx%d",
			mines.ErrInvalidParams, m.limits.MaxRows, m.limits.MaxCols,
		)
	}
	engine, err := mines.NewGame(params, m.newRand())
	if err != nil {
		return "", err
	}
	return m.addGame(engine, maxPlayers, owner)
}

func (m *Manager) addGame(engine *mines.Game, maxPlayers int, owner *Identity) (string, error) {
	if maxPlayers == 0 {
		maxPlayers = m.limits.MaxPlayers
	}
	if maxPlayers < 1 || maxPlayers > m.limits.MaxPlayers {
		return "", fmt.Errorf(
			"%w: max_players must be in [1, %d]",
			mines.ErrInvalidParams, m.limits.MaxPlayers,
		)
	}

	id := uuid.NewString()
	now := m.now()
	g := &Game{
		m:            m,
		logger:       m.logger.With(slog.String("game_id", id)),
		id:           id,
		params:       engine.Params(),
		maxPlayers:   maxPlayers,
		owner:        owner,
		createdAt:    now,
		engine:       engine,
		subs:         make(map[*Subscription]struct{}),
		lastActivity: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	if len(m.games) >= m.limits.MaxGames {
		return "", fmt.Errorf("%w (%d)", ErrTooManyGames, m.limits.MaxGames)
	}
	m.games[id] = g
	g.logger.Info("game created", slog.String("params", g.params.String()), slog.Int("max_players", maxPlayers))
	return id, nil
}

func (m *Manager) lookup(gameID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return g, nil
}

func (m *Manager) remove(g *Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.games[g.id] == g {
		delete(m.games, g.id)
	}
}

type JoinRequest struct {
	Identity Identity
	// Token resumes a disconnected player.
	Token    string
	Spectate bool
}

// Join subscribes a new connection to a game. Unless the request is to
// spectate, the connection is also bound to a player, either the one owning
// the token or a fresh one. The subscription starts with the full game state
// already queued.
func (m *Manager) Join(gameID string, req JoinRequest) (*Subscription, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return nil, err
	}
	sub := newSubscription(gameID, req.Identity, m.limits.OutboxSize)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.join(sub, req.Token, req.Spectate); err != nil {
		return nil, err
	}
	return sub, nil
}

// PlayGame turns a spectating subscription into a player.
func (m *Manager) PlayGame(sub *Subscription) error {
	g, err := m.lookup(sub.gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.promote(sub)
}

// Play applies an action on behalf of the player bound to sub. It fails with
// ErrUnsubscribed once sub no longer owns the player, for instance after the
// player resumed on another connection.
func (m *Manager) Play(sub *Subscription, action mines.Action, p board.Point) (mines.Outcome, error) {
	id, ok := sub.PlayerID()
	if !ok {
		return mines.Outcome{}, ErrNotPlayer
	}
	return m.applyPlay(sub.gameID, sub, id, action, p)
}

// ApplyPlay is the serialization point of a game: the engine update, the
// score update and the resulting broadcasts happen under the game lock.
func (m *Manager) ApplyPlay(gameID string, playerID int, action mines.Action, p board.Point) (mines.Outcome, error) {
	return m.applyPlay(gameID, nil, playerID, action, p)
}

func (m *Manager) applyPlay(
	gameID string, sub *Subscription, playerID int, action mines.Action, p board.Point,
) (mines.Outcome, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return mines.Outcome{}, err
	}

	g.mu.Lock()
	outcome, record, err := g.apply(sub, playerID, action, p)
	save := m.track(record)
	removed := g.removed
	g.mu.Unlock()

	if removed {
		m.remove(g)
	}
	if save {
		go m.save(*record)
	}
	return outcome, err
}

// track reserves a save of record on the wait group. It is called under the
// game lock so that Close cannot miss it.
func (m *Manager) track(record *Record) bool {
	if record == nil || m.recorder == nil {
		return false
	}
	m.wg.Add(1)
	return true
}

// Leave detaches a connection from its game. The player, if any, stays in
// the roster as disconnected.
func (m *Manager) Leave(sub *Subscription) {
	g, err := m.lookup(sub.gameID)
	if err != nil {
		sub.close()
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detach(sub)
}

// Disconnect marks a player as disconnected and drops its connection.
func (m *Manager) Disconnect(gameID string, playerID int) error {
	g, err := m.lookup(gameID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnect(playerID)
}

// Exists reports whether gameID is a live game.
func (m *Manager) Exists(gameID string) bool {
	g, err := m.lookup(gameID)
	if err != nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.removed
}

func (m *Manager) Snapshot(gameID string) (Snapshot, error) {
	g, err := m.lookup(gameID)
	if err != nil {
		return Snapshot{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.removed {
		return Snapshot{}, ErrGameNotFound
	}
	return g.snapshot(m.now()), nil
}

// Run evicts expired games until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.limits.EvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.evict(m.now()); n > 0 {
				m.logger.Info("evicted games", slog.Int("count", n), slog.Int("live", m.Len()))
			}
		}
	}
}

func (m *Manager) evict(now time.Time) int {
	m.mu.RLock()
	games := make([]*Game, 0, len(m.games))
	for _, g := range m.games {
		games = append(games, g)
	}
	m.mu.RUnlock()

	var evicted int
	for _, g := range games {
		var record *Record
		g.mu.Lock()
		reason := g.expired(now)
		if reason != "" {
			record = g.abandon(now)
			g.shutdown(reason)
		}
		save := m.track(record)
		g.mu.Unlock()
		if save {
			go m.save(*record)
		}
		if reason != "" {
			m.remove(g)
			evicted++
		}
	}
	return evicted
}

// Close drops every game and waits for timers and pending records. Games in
// progress are recorded as abandoned.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	games := m.games
	m.games = make(map[string]*Game)
	m.mu.Unlock()

	now := m.now()
	for _, g := range games {
		g.mu.Lock()
		var record *Record
		if !g.removed {
			record = g.abandon(now)
		}
		g.shutdown("server is shutting down")
		save := m.track(record)
		g.mu.Unlock()
		if save {
			go m.save(*record)
		}
	}
	m.wg.Wait()
}

func (m *Manager) runTimer(g *Game, stop <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.limits.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		g.mu.Lock()
		select {
		case <-stop:
			g.mu.Unlock()
			return
		default:
		}
		g.broadcast(protocol.SyncTimer(g.elapsed(m.now()) / time.Second))
		g.mu.Unlock()
	}
}

func (m *Manager) save(record Record) {
	defer m.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	logger := m.logger.With(slog.String("game_id", record.GameID))
	if err := m.recorder.RecordGame(ctx, record); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Error("recording game timed out", slog.Any("error", err))
			return
		}
		logger.Error("unable to record game", slog.Any("error", err))
		return
	}
	logger.Debug("game recorded")
}
