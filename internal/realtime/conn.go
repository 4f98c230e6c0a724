package realtime

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Conn is one subscriber connection. All subscription state lives in the
// registry; the connection only owns its socket, its outbound queue and its
// liveness timestamp.
type Conn struct {
	id       uuid.UUID
	ws       *websocket.Conn
	registry *Registry
	logger   *zap.Logger
	send     chan []byte
	lastSeen atomic.Int64

	mu     sync.Mutex
	closed bool
}

// ID returns the connection's identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// Touch records proof of liveness. Called on every client message and pong.
func (c *Conn) Touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// lastSeenTime returns when the connection last proved liveness.
func (c *Conn) lastSeenTime() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// enqueue offers a payload to the outbound queue without blocking. A full
// queue or closed connection reports false; the caller decides what to do
// with the connection.
func (c *Conn) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// close shuts the outbound queue and the socket. Safe to call repeatedly;
// only the registry calls it, after detaching the connection.
func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)

	if c.ws != nil {
		_ = c.ws.Close()
	}
}

// Run drives the connection until the socket drops or the registry removes
// it. Blocks; callers run it on the connection's own goroutine.
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

// readPump consumes client messages and answers the subscribe protocol.
// Exiting the loop for any reason detaches the connection.
func (c *Conn) readPump() {
	defer c.registry.Remove(c)

	pongWait := c.registry.clientTimeout()

	c.ws.SetReadLimit(c.registry.maxMessageSize())
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.Touch()
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Connection read failed",
					zap.String("connID", c.id.String()), zap.Error(err))
			}

			return
		}

		c.Touch()
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		c.handleMessage(payload)
	}
}

// handleMessage dispatches one inbound client message. Protocol errors are
// answered on this connection only and never terminate it.
func (c *Conn) handleMessage(payload []byte) {
	var msg clientMessage
	if err := sonic.Unmarshal(payload, &msg); err != nil {
		c.reply(serverMessage{Type: msgError, Message: "invalid JSON"})
		return
	}

	switch msg.Type {
	case msgPing:
		c.reply(serverMessage{Type: msgPong})
	case msgSubscribe:
		if !ValidChannel(msg.Channel) {
			c.reply(serverMessage{Type: msgError, Channel: msg.Channel, Message: "unknown channel"})
			return
		}

		c.registry.Subscribe(c, msg.Channel)
		c.reply(serverMessage{Type: msgSubscribed, Channel: msg.Channel})
	case msgUnsubscribe:
		c.registry.Unsubscribe(c, msg.Channel)
		c.reply(serverMessage{Type: msgUnsubscribed, Channel: msg.Channel})
	default:
		c.reply(serverMessage{Type: msgError, Message: "unknown message type"})
	}
}

// reply enqueues a protocol message for this connection.
func (c *Conn) reply(msg serverMessage) {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal protocol reply", zap.Error(err))
		return
	}

	c.enqueue(payload)
}

// writePump drains the outbound queue onto the socket and keeps the peer
// alive with server pings. A closed queue means the registry detached us.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.registry.pingInterval())
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					c.logger.Debug("Connection write failed",
						zap.String("connID", c.id.String()), zap.Error(err))
				}

				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
