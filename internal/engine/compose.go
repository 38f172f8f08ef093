package engine

import (
	"context"
	"fmt"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/thread"
	"nostr-feed/internal/types"
)

// Publish signs and broadcasts a root note
func (e *Engine) Publish(ctx context.Context, content string) (types.Event, error) {
	return e.publish(ctx, types.UnsignedEvent{
		CreatedAt: e.now(),
		Kind:      types.KindNote,
		Tags:      [][]string{},
		Content:   content,
	})
}

// Reply signs and broadcasts a reply to a cached post
func (e *Engine) Reply(ctx context.Context, targetID, content string) (types.Event, error) {
	target, err := e.lookup(targetID)
	if err != nil {
		return types.Event{}, err
	}
	return e.publish(ctx, types.UnsignedEvent{
		CreatedAt: e.now(),
		Kind:      types.KindNote,
		Tags:      thread.ReplyTags(target, e.opts.RelayHint),
		Content:   content,
	})
}

// React signs and broadcasts a reaction to a cached post. An empty
// reaction means "+".
func (e *Engine) React(ctx context.Context, targetID, reaction string) (types.Event, error) {
	target, err := e.lookup(targetID)
	if err != nil {
		return types.Event{}, err
	}
	if reaction == "" {
		reaction = "+"
	}
	return e.publish(ctx, types.UnsignedEvent{
		CreatedAt: e.now(),
		Kind:      types.KindReaction,
		Tags:      thread.ReactionTags(target, e.opts.RelayHint),
		Content:   reaction,
	})
}

// lookup fetches a post (or resolved quote) from the loop
func (e *Engine) lookup(id string) (types.Event, error) {
	var (
		evt   types.Event
		found bool
	)
	err := e.do(func() {
		if evt, found = e.posts.Get(id); !found {
			evt, found = e.quotes.Get(id)
		}
	})
	if err != nil {
		return types.Event{}, err
	}
	if !found {
		return types.Event{}, fmt.Errorf("%s: %w", nostr.ShortID(id), ErrUnknownTarget)
	}
	return evt, nil
}

// publish signs on the caller's goroutine, broadcasts the signed event and
// feeds it back through ingestion so it shows up without a relay echo.
func (e *Engine) publish(ctx context.Context, u types.UnsignedEvent) (types.Event, error) {
	if e.signer == nil {
		return types.Event{}, ErrIdentityUnavailable
	}
	if _, err := e.signer.PublicKey(ctx); err != nil {
		return types.Event{}, fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}
	signed, err := e.signer.Sign(ctx, u)
	if err != nil {
		return types.Event{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	msg, err := nostr.EncodeEvent(signed)
	if err != nil {
		return types.Event{}, fmt.Errorf("encode event: %w", err)
	}
	sent := e.transport.Broadcast(msg)
	e.counters.published.Add(1)
	e.logger.Info("event published", "id", nostr.ShortID(signed.ID), "kind", signed.Kind, "relays", sent)

	e.post(func() { e.ingestEvent(signed) })
	return signed, nil
}
