package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 16
)

// NewUpgrader accepts browser origins from allowed. Requests without an
// Origin header (non-browser clients) are always accepted, and an empty
// list accepts everything.
func NewUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || slices.Contains(allowed, origin)
		},
	}
}

// WSChannel is a Channel over a gorilla websocket connection. Outbound
// frames go through a buffered queue drained by a single writer goroutine.
type WSChannel struct {
	id   string
	conn *websocket.Conn
	log  logging.Logger

	send      chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once
}

func NewWSChannel(conn *websocket.Conn, log logging.Logger) *WSChannel {
	c := &WSChannel{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	c.log = log.With("channel", c.id)
	c.open.Store(true)
	return c
}

func (c *WSChannel) ID() string { return c.id }

func (c *WSChannel) IsOpen() bool { return c.open.Load() }

func (c *WSChannel) Send(payload any) error {
	if !c.IsOpen() {
		return ErrChannelClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrChannelClosed
	default:
		// a slow reader never stalls the sender
		return ErrBufferFull
	}
}

// Close marks the channel closed and tears down the connection.
func (c *WSChannel) Close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.conn.Close()
	})
}

// Serve runs the connection until the peer goes away or ctx is cancelled.
// Every inbound text frame is handed to onMessage on the calling goroutine.
func (c *WSChannel) Serve(ctx context.Context, onMessage func(ctx context.Context, data []byte)) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.readLoop(ctx, onMessage)
	c.Close()
	wg.Wait()
}

func (c *WSChannel) readLoop(ctx context.Context, onMessage func(ctx context.Context, data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug(ctx, "websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		onMessage(ctx, data)
	}
}

func (c *WSChannel) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
