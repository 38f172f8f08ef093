// Package relay keeps one long-lived websocket per relay endpoint and
// reconnects dropped endpoints after a fixed delay, forever.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nostr-feed/internal/nostr"
)

// ErrNotOpen is returned by Send when the endpoint has no open connection
var ErrNotOpen = errors.New("relay not open")

// State is the connection state of one endpoint
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Handler receives connection events. Calls for one endpoint are made from
// that endpoint's goroutine, in order.
type Handler interface {
	OnOpen(url string)
	OnFrame(url string, data []byte)
	OnClose(url string, err error)
}

// Options tunes connection behavior. Zero values take defaults.
type Options struct {
	ReconnectDelay   time.Duration // default 5s
	WriteTimeout     time.Duration // default 10s
	HandshakeTimeout time.Duration // default 10s
	ReadTimeout      time.Duration // 0 = no read deadline
}

func (o *Options) setDefaults() {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
}

type endpoint struct {
	url     string
	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	state   State
}

func (ep *endpoint) setState(s State, conn *websocket.Conn) {
	ep.mu.Lock()
	ep.state = s
	ep.conn = conn
	ep.mu.Unlock()
}

func (ep *endpoint) openConn() *websocket.Conn {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.state != StateOpen {
		return nil
	}
	return ep.conn
}

// Manager owns the relay connections
type Manager struct {
	handler Handler
	opts    Options
	dialer  websocket.Dialer
	logger  *slog.Logger

	mu        sync.RWMutex
	endpoints map[string]*endpoint
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup
}

// NewManager creates a manager that reports to handler
func NewManager(handler Handler, opts Options) *Manager {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		handler:   handler,
		opts:      opts,
		dialer:    websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		logger:    slog.Default().With("component", "relay"),
		endpoints: make(map[string]*endpoint),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect starts one connection loop per endpoint. Invalid or duplicate
// endpoints are skipped and logged. Returns the normalized endpoints that
// were started. Loops stop when ctx is done or Close is called.
func (m *Manager) Connect(ctx context.Context, urls []string) []string {
	var started []string
	for _, raw := range urls {
		url := nostr.NormalizeRelayURL(raw)
		if url == "" {
			m.logger.Warn("rejecting invalid relay endpoint", "url", raw)
			continue
		}

		m.mu.Lock()
		if _, exists := m.endpoints[url]; exists {
			m.mu.Unlock()
			continue
		}
		ep := &endpoint{url: url, state: StateConnecting}
		m.endpoints[url] = ep
		m.mu.Unlock()

		m.wg.Add(1)
		go m.connectLoop(ctx, ep)
		started = append(started, url)
	}
	return started
}

func (m *Manager) connectLoop(ctx context.Context, ep *endpoint) {
	defer m.wg.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			ep.setState(StateClosed, nil)
			return
		default:
		}

		err := m.connectRelay(ctx, ep)
		if ctx.Err() != nil {
			ep.setState(StateClosed, nil)
			return
		}
		m.logger.Debug("relay connection lost", "url", ep.url, "error", err)

		// Reconnect after delay
		select {
		case <-ctx.Done():
			ep.setState(StateClosed, nil)
			return
		case <-time.After(m.opts.ReconnectDelay):
			m.logger.Debug("reconnecting", "url", ep.url)
			ep.setState(StateConnecting, nil)
		}
	}
}

// connectRelay dials, reports the open, then reads until the connection
// fails or ctx is done.
func (m *Manager) connectRelay(ctx context.Context, ep *endpoint) error {
	ep.setState(StateConnecting, nil)
	conn, _, err := m.dialer.DialContext(ctx, ep.url, nil)
	if err != nil {
		ep.setState(StateClosed, nil)
		return fmt.Errorf("dial failed: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ep.setState(StateOpen, conn)
	m.logger.Info("relay connected", "url", ep.url)
	m.handler.OnOpen(ep.url)

	err = m.readLoop(conn, ep)

	ep.setState(StateClosed, nil)
	conn.Close()
	m.handler.OnClose(ep.url, err)
	return err
}

func (m *Manager) readLoop(conn *websocket.Conn, ep *endpoint) error {
	for {
		if m.opts.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
		m.handler.OnFrame(ep.url, data)
	}
}

func (m *Manager) write(ep *endpoint, msg []byte) error {
	conn := ep.openConn()
	if conn == nil {
		return ErrNotOpen
	}
	ep.writeMu.Lock()
	defer ep.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// Broadcast writes msg to every open endpoint and returns how many accepted
// it. Endpoints that are not open are skipped; nothing is queued.
func (m *Manager) Broadcast(msg []byte) int {
	m.mu.RLock()
	eps := make([]*endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		eps = append(eps, ep)
	}
	m.mu.RUnlock()

	sent := 0
	for _, ep := range eps {
		if err := m.write(ep, msg); err != nil {
			if !errors.Is(err, ErrNotOpen) {
				m.logger.Debug("broadcast write failed", "url", ep.url, "error", err)
			}
			continue
		}
		sent++
	}
	return sent
}

// Send writes msg to a single endpoint
func (m *Manager) Send(url string, msg []byte) error {
	m.mu.RLock()
	ep := m.endpoints[url]
	m.mu.RUnlock()
	if ep == nil {
		return fmt.Errorf("unknown relay %s: %w", url, ErrNotOpen)
	}
	return m.write(ep, msg)
}

// States returns a snapshot of every endpoint's state
func (m *Manager) States() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	states := make(map[string]State, len(m.endpoints))
	for url, ep := range m.endpoints {
		ep.mu.Lock()
		states[url] = ep.state
		ep.mu.Unlock()
	}
	return states
}

// OpenCount returns the number of endpoints currently open
func (m *Manager) OpenCount() int {
	n := 0
	for _, s := range m.States() {
		if s == StateOpen {
			n++
		}
	}
	return n
}

// URLs returns the managed endpoints, sorted
func (m *Manager) URLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	urls := make([]string, 0, len(m.endpoints))
	for url := range m.endpoints {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Close stops every connection loop and waits for them to exit
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}
