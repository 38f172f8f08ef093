package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"
)

// fakeRelay accepts websocket clients, records what they send and can push
// frames or drop every connection.
type fakeRelay struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received [][]byte
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{}
	fr.srv = httptest.NewServer(http.HandlerFunc(fr.handle))
	return fr
}

// close drops clients and stops the server; call before leak checks run.
func (fr *fakeRelay) close() {
	fr.dropAll()
	fr.srv.Close()
}

func (fr *fakeRelay) url() string {
	return "ws" + strings.TrimPrefix(fr.srv.URL, "http")
}

func (fr *fakeRelay) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fr.mu.Lock()
	fr.conns = append(fr.conns, conn)
	fr.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fr.mu.Lock()
		fr.received = append(fr.received, data)
		fr.mu.Unlock()
	}
}

func (fr *fakeRelay) push(msg string) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for _, c := range fr.conns {
		c.WriteMessage(websocket.TextMessage, []byte(msg))
	}
}

func (fr *fakeRelay) dropAll() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for _, c := range fr.conns {
		c.Close()
	}
	fr.conns = nil
}

func (fr *fakeRelay) messages() []string {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make([]string, len(fr.received))
	for i, m := range fr.received {
		out[i] = string(m)
	}
	return out
}

type recorder struct {
	opens  chan string
	frames chan string
	closes chan string
}

func newRecorder() *recorder {
	return &recorder{
		opens:  make(chan string, 16),
		frames: make(chan string, 16),
		closes: make(chan string, 16),
	}
}

func (r *recorder) OnOpen(url string)               { r.opens <- url }
func (r *recorder) OnFrame(url string, data []byte) { r.frames <- string(data) }
func (r *recorder) OnClose(url string, err error)   { r.closes <- url }

func wait(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerBroadcastAndFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fr := newFakeRelay(t)
	defer fr.close()
	rec := newRecorder()
	m := NewManager(rec, Options{ReconnectDelay: 50 * time.Millisecond})
	defer m.Close()

	started := m.Connect(t.Context(), []string{fr.url(), "http://not-a-relay.example", "wss://printer.local"})
	if len(started) != 1 {
		t.Fatalf("started %v, want only the fake relay", started)
	}
	url := wait(t, rec.opens, "open")

	if n := m.Broadcast([]byte(`["CLOSE","x"]`)); n != 1 {
		t.Errorf("broadcast reached %d relays, want 1", n)
	}
	if err := m.Send(url, []byte(`["CLOSE","y"]`)); err != nil {
		t.Errorf("Send: %v", err)
	}
	waitFor(t, func() bool { return len(fr.messages()) == 2 }, "relay to receive both frames")

	fr.push(`["EOSE","x"]`)
	if got := wait(t, rec.frames, "frame"); got != `["EOSE","x"]` {
		t.Errorf("frame = %s", got)
	}

	if states := m.States(); states[url] != StateOpen {
		t.Errorf("state = %v, want open", states[url])
	}
}

func TestManagerReconnects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fr := newFakeRelay(t)
	defer fr.close()
	rec := newRecorder()
	m := NewManager(rec, Options{ReconnectDelay: 50 * time.Millisecond})
	defer m.Close()

	m.Connect(t.Context(), []string{fr.url()})
	url := wait(t, rec.opens, "first open")

	fr.dropAll()
	wait(t, rec.closes, "close")
	if got := wait(t, rec.opens, "reopen"); got != url {
		t.Errorf("reopened %s, want %s", got, url)
	}
}

func TestBroadcastSkipsClosedEndpoints(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	m := NewManager(rec, Options{ReconnectDelay: time.Hour})

	// Nothing listens on this port, so the endpoint never opens
	m.Connect(t.Context(), []string{"ws://127.0.0.1:1"})
	if n := m.Broadcast([]byte(`["CLOSE","x"]`)); n != 0 {
		t.Errorf("broadcast reached %d relays, want 0", n)
	}
	if err := m.Send("ws://127.0.0.1:1", []byte("x")); err == nil {
		t.Error("Send to unopened relay should fail")
	}
	m.Close()
	if m.OpenCount() != 0 {
		t.Error("open endpoints after Close")
	}
}

func TestConnectSkipsDuplicates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	m := NewManager(rec, Options{ReconnectDelay: time.Hour})
	defer m.Close()

	started := m.Connect(t.Context(), []string{"ws://127.0.0.1:1", "WS://127.0.0.1:1/"})
	if len(started) != 1 {
		t.Errorf("started %v, want one endpoint", started)
	}
	if urls := m.URLs(); len(urls) != 1 {
		t.Errorf("URLs() = %v", urls)
	}
}
