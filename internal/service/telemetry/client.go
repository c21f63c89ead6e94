package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"AeroTrend/internal/domain/models"
	drepo "AeroTrend/internal/domain/repository"
	applogger "AeroTrend/pkg/logger"
)

var errNotConnected = errors.New("telemetry: not connected")

// Client implements a TelemetryStream backed by a WebSocket tick feed.
// The feed sends {"type":"tick","data":[frame,...]} messages; other types
// are ignored.
type Client struct {
	feedURL        string
	token          string
	sessions       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	bufferSize     int
	log            *applogger.Logger

	mu        sync.Mutex // guards conn and writes
	conn      *websocket.Conn
	connected atomic.Bool
}

type Option func(*Client)

func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithSessions limits the feed to the given session ids.
func WithSessions(ids ...string) Option {
	return func(c *Client) { c.sessions = append(c.sessions, ids...) }
}

func WithReconnectDelay(d time.Duration) Option { return func(c *Client) { c.reconnectDelay = d } }

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

func WithBufferSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.log = l } }

// New creates a new telemetry stream client.
func New(feedURL string, opts ...Option) *Client {
	c := &Client{
		feedURL:        feedURL,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		bufferSize:     1024,
		log:            applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ drepo.TelemetryStream = (*Client)(nil)

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := c.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("telemetry connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("telemetry connected", applogger.String("url", c.feedURL))
	return nil
}

// Subscribe asks the feed for the configured sessions. With no sessions
// configured the feed's default stream is used.
func (c *Client) Subscribe(ctx context.Context) error {
	if !c.connected.Load() {
		return errNotConnected
	}
	for _, id := range c.sessions {
		msg := map[string]string{"type": "subscribe", "session": id}
		if err := c.writeJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
		c.log.Debug("telemetry subscribed", applogger.String("session_id", id))
	}
	return nil
}

type feedMessage struct {
	Type string             `json:"type"`
	Data []models.TickFrame `json:"data"`
}

// Read streams tick frames and errors until ctx ends or the connection fails.
func (c *Client) Read(ctx context.Context) (<-chan *models.TickFrame, <-chan error) {
	frames := make(chan *models.TickFrame, c.bufferSize)
	errs := make(chan error, 1)

	readCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					c.log.Warn("telemetry ping failed", applogger.Error(err))
				}
			}
		}
	}()

	go func() {
		defer cancel()
		defer close(frames)
		defer close(errs)

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			errs <- errNotConnected
			return
		}
		// unblock ReadMessage on cancellation
		stop := context.AfterFunc(readCtx, func() { _ = conn.Close() })
		defer stop()

		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if readCtx.Err() == nil {
					errs <- fmt.Errorf("telemetry read: %w", err)
				}
				return
			}
			var m feedMessage
			if err := json.Unmarshal(b, &m); err != nil {
				c.log.Debug("telemetry non-json frame", applogger.Int("bytes", len(b)))
				continue
			}
			if m.Type != "tick" {
				continue
			}
			for i := range m.Data {
				frame := m.Data[i]
				select {
				case frames <- &frame:
				case <-readCtx.Done():
					return
				}
			}
		}
	}()

	return frames, errs
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return "", fmt.Errorf("telemetry url: %w", err)
	}
	if c.token != "" {
		q := u.Query()
		q.Set("token", c.token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) writeJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, b)
}

func (c *Client) write(kind int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConnected
	}
	return c.conn.WriteMessage(kind, b)
}
