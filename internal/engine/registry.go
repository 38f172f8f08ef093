package engine

import (
	"fmt"
	"sort"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
	"nostr-feed/internal/util"
)

// open records a subscription and broadcasts its REQ. Relays that are not
// open yet receive it from resend when they connect.
func (e *Engine) open(filters []types.Filter, class types.SubClass) string {
	e.nextSub++
	id := fmt.Sprintf("%s-%d", class, e.nextSub)
	sub := &types.Subscription{ID: id, Filters: filters, Class: class}

	msg, err := nostr.EncodeReq(id, filters...)
	if err != nil {
		e.logger.Warn("failed to encode REQ", "sub", id, "error", err)
		return ""
	}
	e.subs[id] = sub
	sent := e.transport.Broadcast(msg)
	e.counters.subsOpened.Add(1)
	e.logger.Debug("subscription opened", "sub", id, "relays", sent)
	return id
}

// shard splits a filter whose author list exceeds the shard size into
// consecutive author chunks, dividing the limit across them rounded up.
func (e *Engine) shard(f types.Filter) []types.Filter {
	chunks := util.Chunk(f.Authors, e.opts.AuthorShardSize)
	if len(chunks) <= 1 {
		return []types.Filter{f}
	}
	limit := f.Limit
	if limit > 0 {
		limit = (limit + len(chunks) - 1) / len(chunks)
	}
	shards := make([]types.Filter, len(chunks))
	for i, authors := range chunks {
		s := f.Clone()
		s.Authors = authors
		s.Limit = limit
		shards[i] = s
	}
	return shards
}

// openHistorical issues the (sharded) filter under class and returns the
// subscription ids.
func (e *Engine) openHistorical(f types.Filter, class types.SubClass) []string {
	var ids []string
	for _, s := range e.shard(f) {
		if id := e.open([]types.Filter{s}, class); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// openPair issues each shard as a historical filter plus its realtime twin:
// the same filter with since=now and no limit or upper bound. Returns the
// historical subscription ids.
func (e *Engine) openPair(f types.Filter, class types.SubClass) []string {
	now := e.now()
	var hist []string
	for _, s := range e.shard(f) {
		if id := e.open([]types.Filter{s}, class); id != "" {
			hist = append(hist, id)
		}
		live := s.Clone()
		live.Since = types.Int64Ptr(now)
		live.Until = nil
		live.Limit = 0
		e.open([]types.Filter{live}, types.SubRealtime)
	}
	return hist
}

// closeOne broadcasts CLOSE for id and forgets it. Closing a profile batch
// releases its authors' pending markers.
func (e *Engine) closeOne(id string) {
	sub, ok := e.subs[id]
	if !ok {
		return
	}
	e.transport.Broadcast(nostr.EncodeClose(id))
	e.forget(sub)
}

// forget drops local bookkeeping for sub without telling the relays
func (e *Engine) forget(sub *types.Subscription) {
	delete(e.subs, sub.ID)
	delete(e.histPending, sub.ID)
	if sub.Class == types.SubProfileBatch {
		e.releasePending(sub)
	}
}

// closeAll closes every tracked subscription
func (e *Engine) closeAll() {
	ids := util.MapKeys(e.subs)
	sort.Strings(ids)
	for _, id := range ids {
		e.closeOne(id)
	}
}

// resend re-issues every tracked subscription to a relay that just opened
func (e *Engine) resend(url string) {
	ids := util.MapKeys(e.subs)
	sort.Strings(ids)
	for _, id := range ids {
		msg, err := nostr.EncodeReq(id, e.subs[id].Filters...)
		if err != nil {
			continue
		}
		if err := e.transport.Send(url, msg); err != nil {
			e.logger.Debug("resend failed", "url", url, "sub", id, "error", err)
			return
		}
	}
	e.logger.Debug("subscriptions re-sent", "url", url, "count", len(ids))
}
