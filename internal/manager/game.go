package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vancomm/minesweeper-arena/internal/board"
	"github.com/vancomm/minesweeper-arena/internal/mines"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
)

type player struct {
	id           int
	name         string
	token        string
	accountID    *int64
	score        int
	victoryClick bool
	// sub is the live connection of the player, nil when disconnected.
	sub *Subscription
}

func (p *player) info() protocol.Player {
	return protocol.Player{
		ID:           p.id,
		Name:         p.name,
		Score:        p.score,
		Connected:    p.sub != nil,
		VictoryClick: p.victoryClick,
	}
}

// Game is one live game. Every field below mu is guarded by it, and every
// message of the game is enqueued while holding it, which gives all viewers
// the same order of events.
type Game struct {
	m          *Manager
	logger     *slog.Logger
	id         string
	params     mines.GameParams
	maxPlayers int
	owner      *Identity
	createdAt  time.Time

	mu           sync.Mutex
	engine       *mines.Game
	players      []*player
	subs         map[*Subscription]struct{}
	startedAt    time.Time
	endedAt      time.Time
	lastActivity time.Time
	topScore     int
	stop         chan struct{}
	removed      bool
}

// Snapshot is the full state of a game at one point in its history.
type Snapshot struct {
	GameID     string
	Params     mines.GameParams
	MaxPlayers int
	Owner      *Identity
	Status     mines.Status
	Board      *board.Board[mines.PlayerCell]
	Players    []protocol.Player
	Moves      []mines.Move
	Elapsed    time.Duration
	TopScore   int
	Viewers    int
	CreatedAt  time.Time
}

func (g *Game) snapshot(now time.Time) Snapshot {
	return Snapshot{
		GameID:     g.id,
		Params:     g.params,
		MaxPlayers: g.maxPlayers,
		Owner:      g.owner,
		Status:     g.engine.Status(),
		Board:      g.engine.View(),
		Players:    g.roster(),
		Moves:      g.engine.Moves(),
		Elapsed:    g.elapsed(now),
		TopScore:   g.topScore,
		Viewers:    len(g.subs),
		CreatedAt:  g.createdAt,
	}
}

func (g *Game) roster() []protocol.Player {
	roster := make([]protocol.Player, len(g.players))
	for i, p := range g.players {
		roster[i] = p.info()
	}
	return roster
}

func (g *Game) elapsed(now time.Time) time.Duration {
	switch {
	case g.startedAt.IsZero():
		return 0
	case !g.endedAt.IsZero():
		return g.endedAt.Sub(g.startedAt)
	default:
		return now.Sub(g.startedAt)
	}
}

func (g *Game) encoding() protocol.Encoding {
	if g.params.Cells() >= g.m.limits.CompactMinCells ||
		len(g.subs) >= g.m.limits.CompactMinViewers {
		return protocol.Compact
	}
	return protocol.Verbose
}

func (g *Game) join(sub *Subscription, token string, spectate bool) error {
	if g.removed {
		return ErrGameNotFound
	}
	var p *player
	if !spectate {
		var err error
		if p, err = g.claimPlayer(sub, token); err != nil {
			return err
		}
	}
	g.subs[sub] = struct{}{}
	g.lastActivity = g.m.now()

	if p != nil {
		g.unicast(sub, protocol.PlayerID{ID: p.id, Token: p.token})
	}
	g.sendSnapshot(sub)
	if p != nil {
		g.broadcast(protocol.PlayerUpdate{Player: p.info()})
	}
	g.logger.Debug(
		"subscriber joined",
		slog.Bool("spectator", p == nil),
		slog.Int("viewers", len(g.subs)),
	)
	return nil
}

func (g *Game) promote(sub *Subscription) error {
	if g.removed {
		return ErrGameNotFound
	}
	if _, ok := g.subs[sub]; !ok {
		return ErrUnsubscribed
	}
	if _, ok := sub.PlayerID(); ok {
		return ErrAlreadyPlaying
	}
	p, err := g.claimPlayer(sub, "")
	if err != nil {
		return err
	}
	g.lastActivity = g.m.now()
	g.unicast(sub, protocol.PlayerID{ID: p.id, Token: p.token})
	g.broadcast(protocol.PlayerUpdate{Player: p.info()})
	return nil
}

// claimPlayer resumes the player owning token if it has no live connection,
// otherwise assigns the next player id.
func (g *Game) claimPlayer(sub *Subscription, token string) (*player, error) {
	if token != "" {
		for _, p := range g.players {
			if p.token == token && p.sub == nil {
				p.sub = sub
				sub.player.Store(int64(p.id))
				return p, nil
			}
		}
	}
	if g.engine.Status().IsOver() {
		return nil, mines.ErrGameOver
	}
	if len(g.players) >= g.maxPlayers {
		return nil, fmt.Errorf("%w (%d players)", ErrGameFull, g.maxPlayers)
	}

	id := len(g.players)
	name := sub.identity.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", id+1)
	}
	p := &player{
		id:        id,
		name:      name,
		token:     uuid.NewString(),
		accountID: sub.identity.AccountID,
		sub:       sub,
	}
	g.players = append(g.players, p)
	sub.player.Store(int64(id))
	return p, nil
}

func (g *Game) detach(sub *Subscription) {
	sub.close()
	if _, ok := g.subs[sub]; !ok {
		return
	}
	delete(g.subs, sub)
	if id, ok := sub.PlayerID(); ok {
		p := g.players[id]
		if p.sub == sub {
			p.sub = nil
			g.broadcast(protocol.PlayerUpdate{Player: p.info()})
		}
	}
	g.logger.Debug("subscriber left", slog.Int("viewers", len(g.subs)))
}

func (g *Game) disconnect(playerID int) error {
	if playerID < 0 || playerID >= len(g.players) {
		return ErrPlayerNotFound
	}
	if sub := g.players[playerID].sub; sub != nil {
		g.detach(sub)
	}
	return nil
}

// apply runs one action through the engine and emits its messages. The
// returned record is non-nil when the action completed the game. A non-nil
// sub must still be the live connection of the player.
func (g *Game) apply(sub *Subscription, playerID int, action mines.Action, p board.Point) (mines.Outcome, *Record, error) {
	if g.removed {
		return mines.Outcome{}, nil, ErrGameNotFound
	}
	if playerID < 0 || playerID >= len(g.players) {
		return mines.Outcome{}, nil, ErrPlayerNotFound
	}
	if sub != nil && g.players[playerID].sub != sub {
		return mines.Outcome{}, nil, ErrUnsubscribed
	}

	before := g.engine.Status()
	outcome, err := g.engine.Play(playerID, action, p)
	var assertion mines.AssertionError
	if errors.As(err, &assertion) {
		g.logger.Error("engine invariant violated", slog.Any("error", err))
		g.shutdown(ErrCorrupted.Error())
		return mines.Outcome{}, nil, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	if err != nil {
		return mines.Outcome{}, nil, err
	}

	now := g.m.now()
	g.lastActivity = now
	if outcome.Kind == mines.NoChange {
		return outcome, nil, nil
	}

	status := g.engine.Status()
	if before == mines.NotStarted && status != mines.NotStarted {
		g.startedAt = now
		g.broadcast(protocol.GameStarted{StartedAt: now.UnixMilli()})
		if status == mines.Active {
			g.startTimer()
		}
	}

	pl := g.players[playerID]
	revealed := outcome.Revealed()
	pl.score += revealed
	if outcome.Kind == mines.Victory {
		pl.victoryClick = true
	}
	if outcome.Kind.IsTerminal() {
		g.endedAt = now
		g.stopTimer()
	}

	g.broadcast(protocol.PlayOutcome{Outcome: protocol.Outcome{
		Encoding: g.encoding(),
		Outcome:  outcome,
	}})
	if revealed > 0 || outcome.Kind == mines.Victory {
		g.broadcast(protocol.PlayerUpdate{Player: pl.info()})
	}
	if pl.score > g.topScore {
		g.topScore = pl.score
		g.broadcast(protocol.TopScore(g.topScore))
	}

	if !outcome.Kind.IsTerminal() {
		return outcome, nil, nil
	}
	g.broadcast(protocol.SyncTimer(g.elapsed(now) / time.Second))
	g.logger.Info(
		"game over",
		slog.String("status", status.String()),
		slog.Int("player_id", playerID),
		slog.Int("top_score", g.topScore),
	)
	record := g.record()
	return outcome, &record, nil
}

func (g *Game) record() Record {
	players := make([]PlayerRecord, len(g.players))
	for i, p := range g.players {
		players[i] = PlayerRecord{
			ID:           p.id,
			Name:         p.name,
			AccountID:    p.accountID,
			Score:        p.score,
			VictoryClick: p.victoryClick,
		}
	}
	return Record{
		GameID:    g.id,
		Params:    g.params,
		Status:    g.engine.Status(),
		Owner:     g.owner,
		TopScore:  g.topScore,
		Final:     g.engine.View(),
		Moves:     g.engine.Moves(),
		Players:   players,
		StartedAt: g.startedAt,
		EndedAt:   g.endedAt,
	}
}

// abandon ends a started game that will not be finished and returns its
// record. Games nobody played are not worth keeping.
func (g *Game) abandon(now time.Time) *Record {
	if g.startedAt.IsZero() || g.engine.Status().IsOver() {
		return nil
	}
	g.endedAt = now
	record := g.record()
	record.Abandoned = true
	return &record
}

// expired returns why the game should be evicted at now, or "" if it should
// stay.
func (g *Game) expired(now time.Time) string {
	limits := g.m.limits
	if g.engine.Status().IsOver() {
		if now.Sub(g.endedAt) >= limits.CompletedGameTTL {
			return "game expired"
		}
		return ""
	}
	if now.Sub(g.lastActivity) >= limits.IdleGameTTL {
		return "game closed after inactivity"
	}
	return ""
}

// shutdown tells every viewer why the game is going away and drops them.
func (g *Game) shutdown(reason string) {
	if g.removed {
		return
	}
	g.removed = true
	g.stopTimer()
	g.broadcast(protocol.Error{Message: reason})
	for sub := range g.subs {
		sub.close()
	}
	clear(g.subs)
}

func (g *Game) sendSnapshot(sub *Subscription) {
	now := g.m.now()
	g.unicast(sub, protocol.GameState{Board: protocol.Board{
		Encoding: g.encoding(),
		Cells:    g.engine.View(),
	}})
	g.unicast(sub, protocol.PlayersState(g.roster()))
	g.unicast(sub, protocol.SyncTimer(g.elapsed(now)/time.Second))
	g.unicast(sub, protocol.TopScore(g.topScore))
}

func (g *Game) unicast(sub *Subscription, msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		g.logger.Error("unable to encode message", slog.Any("error", err))
		return
	}
	if !sub.send(data) {
		g.logger.Warn("dropping slow subscriber", slog.String("message", msg.MessageKind()))
		g.detach(sub)
	}
}

func (g *Game) broadcast(msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		g.logger.Error("unable to encode message", slog.Any("error", err))
		return
	}
	var dropped []*Subscription
	for sub := range g.subs {
		if !sub.send(data) {
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		g.logger.Warn("dropping slow subscriber", slog.String("message", msg.MessageKind()))
		g.detach(sub)
	}
}

func (g *Game) startTimer() {
	g.stop = make(chan struct{})
	g.m.wg.Add(1)
	go g.m.runTimer(g, g.stop)
}

func (g *Game) stopTimer() {
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}
