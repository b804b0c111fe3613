// Package ws fans decoded records out to websocket clients, one JSON frame
// per record.
package ws

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/aleksandr-gorokhov/komprender/internal/decode"
	"github.com/aleksandr-gorokhov/komprender/internal/logging"
	"github.com/aleksandr-gorokhov/komprender/sink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrTooManyConnections = errors.New("too many websocket connections")

type Config struct {
	AllowedOrigins []string `koanf:"allowed_origins" yaml:"allowed_origins"`
	MaxConnections int      `koanf:"max_connections" yaml:"max_connections"` // 0 = unlimited
	SendBuffer     int      `koanf:"send_buffer" yaml:"send_buffer"`
}

// Frame is what a client receives for every emitted record.
type Frame struct {
	Event   string        `json:"event"`
	Payload decode.Record `json:"payload"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcaster is both the sink and the http.Handler serving /ws.
type Broadcaster struct {
	cfg            Config
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func New(cfg Config) *Broadcaster {
	b := &Broadcaster{clients: make(map[*client]struct{})}
	_ = b.Configure(cfg)
	return b
}

func (b *Broadcaster) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("ws-sink: expected Config, got %T", raw)
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	b.cfg = cfg
	b.allowedOrigins = make(map[string]bool)
	b.allowedHosts = make(map[string]bool)
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		b.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			b.allowedHosts[parsed.Host] = true
		}
	}
	return nil
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: b.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Component("sink.ws").Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c, err := b.AddClient(conn)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		_ = conn.Close()
		return
	}
	logging.Component("sink.ws").Debug("client connected", "remote", r.RemoteAddr)

	// Reads only detect the client going away.
	go func() {
		defer b.RemoveClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("ws-sink: closed")
	}
	if b.cfg.MaxConnections > 0 && len(b.clients) >= b.cfg.MaxConnections {
		return nil, ErrTooManyConnections
	}
	c := &client{conn: conn, send: make(chan []byte, b.cfg.SendBuffer)}
	b.clients[c] = struct{}{}
	go c.writePump()
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Emit never blocks on a client: one that cannot keep up is disconnected.
func (b *Broadcaster) Emit(event string, rec decode.Record) error {
	data, err := json.Marshal(Frame{Event: event, Payload: rec})
	if err != nil {
		return fmt.Errorf("ws-sink: %w", err)
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			logging.Component("sink.ws").Warn("client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
	return nil
}

// trySend holds the read lock so c.send cannot be closed underneath it.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for c := range b.clients {
		delete(b.clients, c)
		close(c.send)
	}
	return nil
}

func (b *Broadcaster) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(b.allowedOrigins) > 0 {
		if b.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return b.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func init() {
	sink.Register("ws", func() sink.Adapter { return New(Config{}) })
}
