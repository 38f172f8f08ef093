package signer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
)

const (
	testSecret = "edc90d06fee17615229c8526dc005d959e4af3bdc0b48c5776c951bcafedec85"
	testPubKey = "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"
)

func TestLocalPublicKey(t *testing.T) {
	s, err := NewLocal(testSecret)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	pk, _ := s.PublicKey(context.Background())
	if pk != testPubKey {
		t.Errorf("pubkey = %s, want %s", pk, testPubKey)
	}
}

func TestNewLocalErrors(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"short", "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLocal(tt.secret); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := NewLocal(""); !errors.Is(err, ErrNoKey) {
		t.Errorf("empty secret error = %v, want ErrNoKey", err)
	}
}

func TestLocalSignProducesValidEvent(t *testing.T) {
	s, _ := NewLocal(testSecret)
	evt, err := s.Sign(context.Background(), types.UnsignedEvent{
		CreatedAt: 1700000000,
		Kind:      types.KindNote,
		Content:   "hello <world> & friends",
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if evt.PubKey != testPubKey {
		t.Errorf("pubkey = %s", evt.PubKey)
	}
	if evt.Tags == nil {
		t.Error("tags should be an empty list, not nil")
	}
	if want := nostr.ComputeEventID(evt.PubKey, evt.CreatedAt, evt.Kind, evt.Tags, evt.Content); evt.ID != want {
		t.Errorf("id = %s, want %s", evt.ID, want)
	}
	if !nostr.ValidateEventSignature(&evt) {
		t.Error("signature does not verify")
	}
}

func TestLocalSignCancelled(t *testing.T) {
	s, _ := NewLocal(testSecret)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Sign(ctx, types.UnsignedEvent{Kind: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type countingSigner struct {
	Signer
	calls atomic.Int32
	fail  error
	gate  chan struct{}
}

func (c *countingSigner) Sign(ctx context.Context, u types.UnsignedEvent) (types.Event, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	if c.fail != nil {
		return types.Event{}, c.fail
	}
	return c.Signer.Sign(ctx, u)
}

func TestBridgeRemembersCompletedRequests(t *testing.T) {
	local, _ := NewLocal(testSecret)
	next := &countingSigner{Signer: local}
	b := NewBridge(next, 16, time.Minute)
	u := types.UnsignedEvent{CreatedAt: 1, Kind: 1, Content: "x"}

	first, err := b.Sign(context.Background(), u)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, _ := b.Sign(context.Background(), u)
	if first.ID != second.ID || next.calls.Load() != 1 {
		t.Errorf("resubmitted request signed again: calls=%d", next.calls.Load())
	}

	b.Forget(u)
	b.Sign(context.Background(), u)
	if next.calls.Load() != 2 {
		t.Errorf("after Forget calls = %d, want 2", next.calls.Load())
	}

	other := u
	other.Content = "y"
	b.Sign(context.Background(), other)
	if next.calls.Load() != 3 {
		t.Errorf("distinct request calls = %d, want 3", next.calls.Load())
	}
}

func TestBridgeSharesInFlightRequest(t *testing.T) {
	local, _ := NewLocal(testSecret)
	next := &countingSigner{Signer: local, gate: make(chan struct{})}
	b := NewBridge(next, 16, time.Minute)
	u := types.UnsignedEvent{CreatedAt: 2, Kind: 1, Content: "shared"}

	var wg sync.WaitGroup
	ids := make([]string, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			evt, _ := b.Sign(context.Background(), u)
			ids[i] = evt.ID
		}(i)
	}
	// Let the first caller reach the signer, then release it
	for next.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(next.gate)
	wg.Wait()

	if next.calls.Load() != 1 {
		t.Errorf("signer called %d times, want 1", next.calls.Load())
	}
	for _, id := range ids {
		if id != ids[0] || id == "" {
			t.Errorf("callers got different events: %v", ids)
			break
		}
	}
}

func TestBridgeDoesNotRememberFailures(t *testing.T) {
	local, _ := NewLocal(testSecret)
	next := &countingSigner{Signer: local, fail: errors.New("user declined")}
	b := NewBridge(next, 16, time.Minute)
	u := types.UnsignedEvent{CreatedAt: 3, Kind: 1}

	if _, err := b.Sign(context.Background(), u); err == nil {
		t.Fatal("expected failure")
	}
	next.fail = nil
	if _, err := b.Sign(context.Background(), u); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if next.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", next.calls.Load())
	}
}

func TestReadOnly(t *testing.T) {
	ro := ReadOnly{PubKey: "bbde6a0e8847e1cdb2ba5ec021cc949eb3cef125b8304a748fe11c0407990eec"}
	pk, err := ro.PublicKey(context.Background())
	if err != nil || pk != ro.PubKey {
		t.Errorf("PublicKey = %q, %v", pk, err)
	}
	if _, err := ro.Sign(context.Background(), types.UnsignedEvent{Kind: 1}); !errors.Is(err, ErrNoKey) {
		t.Errorf("Sign error = %v, want ErrNoKey", err)
	}
	if _, err := (ReadOnly{}).PublicKey(context.Background()); !errors.Is(err, ErrNoKey) {
		t.Errorf("empty PublicKey error = %v, want ErrNoKey", err)
	}
}
