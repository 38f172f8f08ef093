package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"nostr-feed/internal/signer"
	"nostr-feed/internal/types"
)

const (
	testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"
	selfKey    = "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"
	relayURL   = "wss://relay.example.com"
)

// testKeys holds a signer per test pubkey so makeEvent can sign
var testKeys = map[string]*signer.Local{}

// testKey registers a local signer and returns its pubkey
func testKey(secret string) string {
	s, err := signer.NewLocal(secret)
	if err != nil {
		panic(err)
	}
	pk, _ := s.PublicKey(context.Background())
	testKeys[pk] = s
	return pk
}

// k1 < k2 < k3 < selfKey in hex order
var (
	k1 = testKey(strings.Repeat("44", 32))
	k2 = testKey(strings.Repeat("33", 32))
	k3 = testKey(strings.Repeat("22", 32))
	_  = testKey(testSecret)
)

// sentReq is a decoded REQ frame
type sentReq struct {
	id      string
	filters []types.Filter
}

func (r sentReq) class() string {
	return r.id[:strings.IndexByte(r.id, '-')]
}

// fakeTransport records outbound frames; every relay counts as open
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	sends  map[string][][]byte
}

func (f *fakeTransport) Broadcast(msg []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, msg)
	return 1
}

func (f *fakeTransport) Send(url string, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sends == nil {
		f.sends = make(map[string][][]byte)
	}
	f.sends[url] = append(f.sends[url], msg)
	return nil
}

func decodeFrame(t *testing.T, msg []byte) []json.RawMessage {
	t.Helper()
	var parts []json.RawMessage
	if err := json.Unmarshal(msg, &parts); err != nil {
		t.Fatalf("bad outbound frame %s: %v", msg, err)
	}
	return parts
}

func frameType(t *testing.T, parts []json.RawMessage) string {
	var typ string
	json.Unmarshal(parts[0], &typ)
	return typ
}

// reqs returns every REQ broadcast so far, optionally only of one class
func (f *fakeTransport) reqs(t *testing.T, class string) []sentReq {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentReq
	for _, msg := range f.frames {
		parts := decodeFrame(t, msg)
		if frameType(t, parts) != "REQ" {
			continue
		}
		var r sentReq
		json.Unmarshal(parts[1], &r.id)
		for _, raw := range parts[2:] {
			var flt types.Filter
			if err := json.Unmarshal(raw, &flt); err != nil {
				t.Fatalf("bad filter %s: %v", raw, err)
			}
			r.filters = append(r.filters, flt)
		}
		if class == "" || r.class() == class {
			out = append(out, r)
		}
	}
	return out
}

// closes returns the ids of every CLOSE broadcast so far
func (f *fakeTransport) closes(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, msg := range f.frames {
		parts := decodeFrame(t, msg)
		if frameType(t, parts) != "CLOSE" {
			continue
		}
		var id string
		json.Unmarshal(parts[1], &id)
		out = append(out, id)
	}
	return out
}

// published returns every EVENT frame broadcast so far
func (f *fakeTransport) published(t *testing.T) []types.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Event
	for _, msg := range f.frames {
		parts := decodeFrame(t, msg)
		if frameType(t, parts) != "EVENT" {
			continue
		}
		var evt types.Event
		json.Unmarshal(parts[1], &evt)
		out = append(out, evt)
	}
	return out
}

type accepted struct {
	id     string
	parent string
}

// recordingSink captures notifications
type recordingSink struct {
	mu         sync.Mutex
	accepted   []accepted
	evicted    []string
	unrendered []string
	profiles   map[string]types.Profile
	loading    []types.LoadingState
	exhausted  []types.FeedView
	reactions  map[string]types.ReactionsSummary
	quotes     []types.Event
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		profiles:  make(map[string]types.Profile),
		reactions: make(map[string]types.ReactionsSummary),
	}
}

func (s *recordingSink) OnPostAccepted(evt types.Event, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accepted = append(s.accepted, accepted{evt.ID, parentID})
}

func (s *recordingSink) OnPostEvicted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evicted = append(s.evicted, id)
}

func (s *recordingSink) OnPostUnrendered(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unrendered = append(s.unrendered, id)
}

func (s *recordingSink) OnProfileUpdated(pubkey string, p types.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[pubkey] = p
}

func (s *recordingSink) OnLoadingStateChanged(_ types.FeedView, state types.LoadingState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = append(s.loading, state)
}

func (s *recordingSink) OnFeedExhausted(view types.FeedView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exhausted = append(s.exhausted, view)
}

func (s *recordingSink) OnReactionsUpdated(id string, summary types.ReactionsSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reactions[id] = summary
}

func (s *recordingSink) OnQuoteResolved(evt types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, evt)
}

func (s *recordingSink) acceptedList() []accepted {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]accepted(nil), s.accepted...)
}

func (s *recordingSink) lastLoading() types.LoadingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.loading) == 0 {
		return types.LoadingIdle
	}
	return s.loading[len(s.loading)-1]
}

type harness struct {
	t     *testing.T
	e     *Engine
	clock *ManualClock
	tr    *fakeTransport
	sink  *recordingSink
}

// newHarness runs an engine with the test identity, a manual clock, a
// recording transport and sink.
func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := NewManualClock(time.Unix(1700000000, 0))
	opts.Clock = clock
	sgn, err := signer.NewLocal(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{t: t, clock: clock, tr: &fakeTransport{}, sink: newRecordingSink()}
	h.e = New(opts, h.tr, h.sink, sgn)
	clock.Settle = func() { h.e.Sync() }

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.e.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	h.sync()
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	if err := h.e.Sync(); err != nil {
		h.t.Fatalf("Sync: %v", err)
	}
}

// advance moves the clock and waits for the fired callbacks to run
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.sync()
}

// open simulates the first relay connecting
func (h *harness) open() {
	h.e.OnOpen(relayURL)
	h.sync()
}

// deliver feeds an EVENT frame for subID
func (h *harness) deliver(subID string, evt types.Event) {
	h.t.Helper()
	raw, _ := json.Marshal([]interface{}{"EVENT", subID, evt})
	h.e.OnFrame(relayURL, raw)
	h.sync()
}

func (h *harness) raw(frame string) {
	h.e.OnFrame(relayURL, []byte(frame))
	h.sync()
}

func (h *harness) eose(subID string) {
	h.raw(`["EOSE","` + subID + `"]`)
}

// makeEvent builds an event signed by pubkey's test key
func makeEvent(pubkey string, kind int, createdAt int64, tags [][]string, content string) types.Event {
	if tags == nil {
		tags = [][]string{}
	}
	s, ok := testKeys[pubkey]
	if !ok {
		panic("no test key for " + pubkey)
	}
	evt, err := s.Sign(context.Background(), types.UnsignedEvent{CreatedAt: createdAt, Kind: kind, Tags: tags, Content: content})
	if err != nil {
		panic(err)
	}
	return evt
}

// unsigned strips the signature, keeping a valid id
func unsigned(evt types.Event) types.Event {
	evt.Sig = ""
	return evt
}

func note(pubkey string, createdAt int64, content string, tags ...[]string) types.Event {
	return makeEvent(pubkey, types.KindNote, createdAt, tags, content)
}

func contactList(createdAt int64, follows ...string) types.Event {
	var tags [][]string
	for _, pk := range follows {
		tags = append(tags, []string{"p", pk})
	}
	return makeEvent(selfKey, types.KindContactList, createdAt, tags, "")
}

func metadata(pubkey string, createdAt int64, name string) types.Event {
	content, _ := json.Marshal(types.ProfileInfo{Name: name})
	return makeEvent(pubkey, types.KindProfile, createdAt, nil, string(content))
}

// feedHistIDs returns the historical post subscriptions (kind 1)
func (h *harness) feedHistIDs() []string {
	var ids []string
	for _, r := range h.tr.reqs(h.t, "hist") {
		if len(r.filters[0].Kinds) == 1 && r.filters[0].Kinds[0] == types.KindNote {
			ids = append(ids, r.id)
		}
	}
	return ids
}

// follow loads the following view and delivers a contact list for keys
func (h *harness) follow(keys ...string) {
	h.open()
	h.deliver("hist-1", contactList(1700000000, keys...))
}
