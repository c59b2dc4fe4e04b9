// Package wsclient is the client side of the signaling relay: one
// websocket per logged-in user, reconnected with capped backoff.
package wsclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/YinkaFoster/fostertours-sub001/internal/core/domain"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
	handshakeTimeout = 5 * time.Second

	DefaultReconnectBase = 3 * time.Second
	DefaultReconnectMax  = 30 * time.Second
)

type Options struct {
	// URL is the relay base, e.g. ws://localhost:8080.
	URL           string
	Token         string
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	Clock         clock.Clock
}

// Channel implements port.SignalingChannel.
type Channel struct {
	opts   Options
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	state   domain.ConnectionState
	handler func(domain.Message)
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

func New(opts Options) *Channel {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = DefaultReconnectBase
	}
	if opts.ReconnectMax < opts.ReconnectBase {
		opts.ReconnectMax = DefaultReconnectMax
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Channel{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
}

// Backoff returns the wait before reconnect attempt n (counting from zero).
func Backoff(n int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Connect replaces any previous connection with one for userID. The first
// dial error is returned, but the channel keeps retrying in the background
// until Close.
func (c *Channel) Connect(ctx context.Context, userID domain.UserID) error {
	c.stop()

	superCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.state = domain.ConnectionState{UserID: userID}
	c.mu.Unlock()

	conn, err := c.dial(ctx, userID)
	go c.supervise(superCtx, userID, conn, done)
	return err
}

func (c *Channel) dial(ctx context.Context, userID domain.UserID) (*websocket.Conn, error) {
	target := strings.TrimRight(c.opts.URL, "/") + "/ws/calls/" + url.PathEscape(userID.String())
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: dial %s: %v (status %s)", domain.ErrChannelDisconnected, target, err, resp.Status)
		}
		return nil, fmt.Errorf("%w: dial %s: %v", domain.ErrChannelDisconnected, target, err)
	}
	return conn, nil
}

func (c *Channel) supervise(ctx context.Context, userID domain.UserID, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	l := log.With().Str("user_id", userID.String()).Logger()

	attempt := 0
	for {
		if conn != nil {
			attempt = 0
			c.setConn(conn, 0)
			l.Info().Msg("Signaling connected")
			c.read(ctx, conn)
			c.clearConn(conn)
			if ctx.Err() != nil {
				return
			}
			l.Warn().Msg("Signaling connection lost")
		}

		wait := Backoff(attempt, c.opts.ReconnectBase, c.opts.ReconnectMax)
		timer := c.opts.Clock.Timer(wait)
		attempt++
		c.setAttempt(attempt)
		l.Info().Int("attempt", attempt).Dur("wait", wait).Msg("Reconnecting")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		var err error
		conn, err = c.dial(ctx, userID)
		if err != nil {
			l.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			conn = nil
		}
	}
}

// read delivers frames until the connection drops or ctx ends.
func (c *Channel) read(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := c.opts.Clock.Ticker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-stop:
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Signaling read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := domain.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("Dropped malformed signaling frame")
			continue
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(msg)
		}
	}
}

func (c *Channel) setConn(conn *websocket.Conn, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.state.Connected = true
	c.state.ReconnectAttempt = attempt
}

func (c *Channel) clearConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.state.Connected = false
	}
}

func (c *Channel) setAttempt(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.ReconnectAttempt = n
}

// Send writes msg if connected. There is no outbox: a message sent while
// disconnected is lost.
func (c *Channel) Send(ctx context.Context, msg domain.Message) error {
	data, err := domain.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrChannelDisconnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrChannelDisconnected, err)
	}
	return nil
}

func (c *Channel) OnMessage(handler func(domain.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

func (c *Channel) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops reconnecting and closes the connection.
func (c *Channel) Close() error {
	c.stop()
	return nil
}

func (c *Channel) stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	c.mu.Lock()
	c.conn = nil
	c.state.Connected = false
	c.state.ReconnectAttempt = 0
	c.mu.Unlock()
}
