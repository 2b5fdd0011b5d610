package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/registry"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsMaxMessageBytes = 64 * 1024
	wsWriteWait       = 10 * time.Second

	// HelloChannel carries the connection handle right after the upgrade.
	HelloChannel = "connected"
	AckChannel   = "ack"
	ErrorChannel = "error"
)

var (
	errChannelClosed = errors.New("channel closed")
	errSlowConsumer  = errors.New("send queue full")
)

// makeUpgrader creates a websocket upgrader with origin checking.
func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // non-browser clients
			}
			return originSet[origin]
		},
	}
}

// inboundFrame is a client request on the live channel.
type inboundFrame struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Text string `json:"text"`
}

// wsChannel is a registry.Channel backed by a websocket. Events are queued
// and written by a single writer goroutine.
type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan registry.Event

	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
	writerDone  chan struct{}
}

func newWSChannel(conn *websocket.Conn, buffer int) *wsChannel {
	if buffer < 1 {
		buffer = 1
	}
	return &wsChannel{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan registry.Event, buffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (c *wsChannel) ID() string {
	return c.id
}

// Push queues ev without blocking.
func (c *wsChannel) Push(ev registry.Event) error {
	select {
	case <-c.done:
		return errChannelClosed
	default:
	}

	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return errChannelClosed
	default:
		return errSlowConsumer
	}
}

func (c *wsChannel) Close() {
	c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *wsChannel) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// writePump owns every write to the connection: queued events and pings.
// It closes the connection once the channel is closed.
func (c *wsChannel) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
			return
		}
	}
}

// handshakeCredential reads the credential from the cookie, then a bearer
// Authorization header, then the token query parameter.
func handshakeCredential(r *http.Request) string {
	if tok := credentialCookie(r); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// serveWS verifies the credential, upgrades and binds the connection to the
// identity until the client leaves, the credential expires or the server
// drops the channel.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, err := s.verifier.Verify(handshakeCredential(r))
	if err != nil {
		s.logger.Debug(ctx, "websocket handshake rejected", "error", err)
		writeAuthError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(ctx, "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(wsMaxMessageBytes)

	ch := newWSChannel(conn, s.config.WSSendBuffer)

	// the hello frame is queued before the channel is visible to fan-out
	if err := ch.Push(registry.Event{Channel: HelloChannel, ConnectionID: ch.id}); err != nil {
		s.logger.Warn(ctx, "hello frame not queued", "handle", ch.id, "error", err)
		_ = conn.Close()
		return
	}
	s.registry.Bind(claims.UserID, ch)
	s.logger.Info(ctx, "channel bound", "user_id", claims.UserID, "handle", ch.id)

	if s.config.WSEnforceExpiry {
		timer := time.AfterFunc(time.Until(claims.Expiry()), func() {
			ch.closeWith(websocket.ClosePolicyViolation, "credential expired")
		})
		defer timer.Stop()
	}

	go ch.writePump(s.config.WSPingPeriod)

	s.readPump(r, ch, claims)

	s.registry.Unbind(ch.id)
	ch.Close()
	<-ch.writerDone
	s.logger.Info(ctx, "channel unbound", "user_id", claims.UserID, "handle", ch.id)
}

func (s *Server) readPump(r *http.Request, ch *wsChannel, claims *auth.Claims) {
	ctx := r.Context()
	conn := ch.conn

	_ = conn.SetReadDeadline(time.Now().Add(s.config.WSPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.WSPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug(ctx, "websocket read ended", "handle", ch.id, "error", err)
			return
		}
		// any message resets the read deadline
		_ = conn.SetReadDeadline(time.Now().Add(s.config.WSPongWait))

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			s.reply(ch, registry.Event{Channel: ErrorChannel, Error: codeInvalidFrame})
			continue
		}

		switch in.Type {
		case "send":
			msg, err := s.chat.Send(ctx, claims, in.To, in.Text, ch.id)
			if err != nil {
				if !errors.Is(err, common.ErrEmptyMessage) && !errors.Is(err, common.ErrorNotFound) {
					s.logger.Warn(ctx, "websocket send failed", "handle", ch.id, "error", err)
				}
				s.reply(ch, registry.Event{Channel: ErrorChannel, Error: errorCode(err)})
				continue
			}
			s.reply(ch, registry.Event{Channel: AckChannel, Message: msg})
		default:
			s.reply(ch, registry.Event{Channel: ErrorChannel, Error: codeUnsupportedFrame})
		}
	}
}

// reply queues a response frame; a client that cannot keep up is dropped.
func (s *Server) reply(ch *wsChannel, ev registry.Event) {
	if err := ch.Push(ev); err != nil {
		s.registry.Unbind(ch.id)
		ch.Close()
	}
}
