package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vancomm/minesweeper-arena/internal/manager"
	"github.com/vancomm/minesweeper-arena/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	// Frames past maxFrameSize end the connection. Anything between the two
	// limits is answered with ErrTooLarge.
	maxFrameSize = 64 * 1024
)

var (
	ErrNotJoined     = errors.New("send Join first")
	ErrAlreadyJoined = errors.New("already joined")
	ErrRateLimited   = errors.New("too many messages")
	ErrNotText       = errors.New("only text messages are accepted")
	ErrTooLarge      = errors.New("message is too large")
)

func (g GameHandler) ConnectWS(w http.ResponseWriter, r *http.Request) {
	gameId := r.PathValue("id")
	if !g.manager.Exists(gameId) {
		sendErrorOrLog(w, g.logger, http.StatusNotFound, manager.ErrGameNotFound)
		return
	}

	c, err := g.ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("unable to upgrade", slog.Any("error", err))
		return
	}
	defer c.Close()
	c.SetReadLimit(maxFrameSize)

	ident, _ := identity(r)
	limits := g.manager.Limits()
	conn := &connection{
		logger:  g.logger.With(slog.String("game_id", gameId), slog.String("remote", r.RemoteAddr)),
		manager: g.manager,
		conn:    c,
		gameId:  gameId,
		ident:   ident,
		limiter: rate.NewLimiter(rate.Limit(limits.MessageRate), limits.MessageBurst),
	}
	conn.serve()
}

// connection adapts one websocket to the manager. Reads happen on the
// serving goroutine, game messages are written by a pump goroutine started on
// Join. Writes from both are serialized by writeMu.
type connection struct {
	logger  *slog.Logger
	manager *manager.Manager
	conn    *websocket.Conn
	gameId  string
	ident   manager.Identity
	limiter *rate.Limiter

	writeMu  sync.Mutex
	sub      *manager.Subscription
	pumpDone chan struct{}
}

func (c *connection) serve() {
	defer func() {
		if c.sub != nil {
			c.manager.Leave(c.sub)
			<-c.pumpDone
		}
	}()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("abnormal ws break", slog.Any("error", err))
			}
			return
		}
		if mt != websocket.TextMessage {
			c.reply(ErrNotText)
			continue
		}
		if len(data) > maxMessageSize {
			c.reply(ErrTooLarge)
			continue
		}
		if !c.limiter.Allow() {
			c.reply(ErrRateLimited)
			continue
		}
		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			c.reply(err)
			continue
		}
		if err := c.handle(msg); err != nil {
			c.reply(err)
		}
	}
}

func (c *connection) handle(msg protocol.ClientMessage) error {
	switch m := msg.(type) {
	case protocol.Join:
		if c.sub != nil {
			return ErrAlreadyJoined
		}
		ident := c.ident
		if ident.AccountID == nil && m.Name != "" {
			ident.Name = m.Name
		}
		sub, err := c.manager.Join(c.gameId, manager.JoinRequest{
			Identity: ident,
			Token:    m.Token,
			Spectate: m.Spectate,
		})
		if err != nil {
			return err
		}
		c.sub = sub
		c.pumpDone = make(chan struct{})
		go c.pump(sub)
		return nil
	case protocol.PlayGame:
		if c.sub == nil {
			return ErrNotJoined
		}
		return c.manager.PlayGame(c.sub)
	case protocol.Play:
		if c.sub == nil {
			return ErrNotJoined
		}
		_, err := c.manager.Play(c.sub, m.Action, m.Point)
		return err
	}
	return ErrNotJoined
}

// pump relays game messages until the subscription ends. A subscription the
// manager dropped cannot be resumed on this connection, so it is closed and
// the client has to reconnect.
func (c *connection) pump(sub *manager.Subscription) {
	defer close(c.pumpDone)
	for data := range sub.Messages() {
		if err := c.write(data); err != nil {
			c.logger.Warn("unable to write message", slog.Any("error", err))
			c.conn.Close()
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription ended"),
		time.Now().Add(writeWait),
	)
	c.conn.Close()
}

func (c *connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// reply sends an Error to this connection only.
func (c *connection) reply(err error) {
	c.logger.Debug("rejecting client message", slog.Any("error", err))
	data, encErr := protocol.Encode(protocol.NewError(err))
	if encErr != nil {
		c.logger.Error("unable to encode error", slog.Any("error", encErr))
		return
	}
	if err := c.write(data); err != nil {
		c.logger.Warn("unable to write error", slog.Any("error", err))
	}
}
