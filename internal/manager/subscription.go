package manager

import (
	"sync"
	"sync/atomic"
)

// Identity is who stands behind a connection as told by the identity
// provider. The zero value is a guest.
type Identity struct {
	AccountID *int64
	Name      string
}

// Subscription is one viewer of a game. Messages are delivered in the order
// the game produced them. A subscriber that falls OutboxSize messages behind
// is dropped and its channel closed; it has to join again to resync.
type Subscription struct {
	gameID   string
	identity Identity
	out      chan []byte
	player   atomic.Int64

	mu     sync.Mutex
	closed bool
}

func newSubscription(gameID string, identity Identity, size int) *Subscription {
	sub := &Subscription{
		gameID:   gameID,
		identity: identity,
		out:      make(chan []byte, size),
	}
	sub.player.Store(-1)
	return sub
}

func (s *Subscription) GameID() string {
	return s.gameID
}

// Messages yields encoded server messages until the subscription is closed.
func (s *Subscription) Messages() <-chan []byte {
	return s.out
}

// PlayerID reports the player id of the connection, if it is a player.
func (s *Subscription) PlayerID() (int, bool) {
	id := s.player.Load()
	return int(id), id >= 0
}

func (s *Subscription) send(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- data:
		return true
	default:
		s.closed = true
		close(s.out)
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
