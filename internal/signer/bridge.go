package signer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/decred/dcrd/container/lru"
	"golang.org/x/sync/singleflight"

	"nostr-feed/internal/types"
)

// Bridge fronts a Signer with a request table. Identical requests in flight
// share one signing call; completed requests are remembered until their TTL
// lapses so a resubmitted request returns the same signed event.
type Bridge struct {
	next      Signer
	group     singleflight.Group
	completed *lru.Map[string, types.Event]
}

// NewBridge wraps next. limit bounds the request table, ttl expires entries.
func NewBridge(next Signer, limit uint32, ttl time.Duration) *Bridge {
	return &Bridge{
		next:      next,
		completed: lru.NewMapWithDefaultTTL[string, types.Event](limit, ttl),
	}
}

// RequestID derives the request key from the unsigned event's canonical form.
func RequestID(u types.UnsignedEvent) string {
	data, _ := json.Marshal([]interface{}{u.CreatedAt, u.Kind, u.Tags, u.Content})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (b *Bridge) PublicKey(ctx context.Context) (string, error) {
	v, err, _ := b.group.Do("pubkey", func() (interface{}, error) {
		return b.next.PublicKey(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *Bridge) Sign(ctx context.Context, u types.UnsignedEvent) (types.Event, error) {
	reqID := RequestID(u)
	if evt, ok := b.completed.Get(reqID); ok {
		slog.Debug("signer: request already completed", "request_id", reqID[:12])
		return evt, nil
	}

	v, err, shared := b.group.Do(reqID, func() (interface{}, error) {
		evt, err := b.next.Sign(ctx, u)
		if err != nil {
			return nil, err
		}
		b.completed.Put(reqID, evt)
		return evt, nil
	})
	if err != nil {
		return types.Event{}, err
	}
	if shared {
		slog.Debug("signer: shared in-flight request", "request_id", reqID[:12])
	}
	return v.(types.Event), nil
}

// Forget drops a completed request so the next identical one is signed again.
func (b *Bridge) Forget(u types.UnsignedEvent) {
	b.completed.Delete(RequestID(u))
}
