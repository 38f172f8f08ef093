package engine

import (
	"math"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/thread"
	"nostr-feed/internal/types"
	"nostr-feed/internal/util"
)

func (e *Engine) handleFrame(url string, f nostr.Frame) {
	switch f.Type {
	case nostr.FrameEvent:
		e.ingestEvent(f.Event)

	case nostr.FrameEOSE:
		e.handleEOSE(f.SubID)

	case nostr.FrameClosed:
		sub, ok := e.subs[f.SubID]
		if !ok {
			return
		}
		e.logger.Debug("subscription closed by relay", "url", url, "sub", f.SubID, "reason", f.Message)
		// A refused shard counts as finished so loading and paging can complete
		e.handleEOSE(f.SubID)
		if sub.Class == types.SubProfileBatch {
			e.releasePending(sub)
		}

	case nostr.FrameNotice:
		e.counters.notices.Add(1)
		e.logger.Debug("relay notice", "url", url, "message", f.Message)

	case nostr.FrameOK:
		if f.OK {
			e.counters.publishAcked.Add(1)
		} else {
			e.counters.publishRejected.Add(1)
			e.logger.Warn("relay rejected event", "url", url, "id", nostr.ShortID(f.EventID), "message", f.Message)
		}
	}
}

func (e *Engine) handleEOSE(subID string) {
	if e.histPending[subID] {
		delete(e.histPending, subID)
		if len(e.histPending) == 0 {
			e.setLoading(types.LoadingIdle)
		}
	}
	if p := e.pager.page; p != nil && p.pending[subID] {
		delete(p.pending, subID)
		if len(p.pending) == 0 {
			e.completePage(p)
		}
	}
}

// ingestEvent routes a verified event by kind. Events are deduplicated by id:
// posts by post cache presence, everything else through the seen set.
func (e *Engine) ingestEvent(evt types.Event) {
	if evt.Kind == types.KindNote {
		e.ingestPost(evt)
		return
	}

	switch evt.Kind {
	case types.KindProfile, types.KindContactList, types.KindReaction:
	default:
		e.counters.ignored.Add(1)
		return
	}
	if e.metaSeen.Contains(evt.ID) {
		e.counters.duplicates.Add(1)
		return
	}
	e.metaSeen.Put(evt.ID)

	switch evt.Kind {
	case types.KindProfile:
		e.ingestProfile(evt)
	case types.KindContactList:
		e.ingestContactList(evt)
	case types.KindReaction:
		e.ingestReaction(evt)
	}
}

// displayed reports whether a post has been placed in the feed
func (e *Engine) displayed(id string) bool {
	return e.placed[id]
}

func (e *Engine) ingestPost(evt types.Event) {
	if e.posts.Has(evt.ID) {
		e.counters.duplicates.Add(1)
		return
	}

	if e.quoteWanted[evt.ID] {
		delete(e.quoteWanted, evt.ID)
		e.quotes.Put(evt.ID, evt)
		e.sink.OnQuoteResolved(evt)
	}

	// Fetched parents are classified like any other post: an out-of-view
	// parent is dropped and its replies stay orphaned.
	delete(e.parentWanted, evt.ID)
	if !e.acceptsAuthor(evt.PubKey) {
		e.counters.rejected.Add(1)
		return
	}

	e.posts.Add(evt.ID, evt, evt.CreatedAt)
	e.counters.accepted.Add(1)
	e.observeCursor(evt.CreatedAt)
	e.requestProfile(evt.PubKey)

	parentID := thread.ParentID(evt.Tags)
	placements, newBucket := e.threads.Attach(evt.ID, parentID, e.displayed)
	if placements == nil {
		e.counters.orphaned.Add(1)
		if newBucket && !e.posts.Has(parentID) {
			e.requestParent(parentID)
		}
	}
	for _, p := range placements {
		e.place(p)
	}

	if e.posts.Len() > e.reactiveLimit() {
		e.logger.Debug("post cache over reactive limit", "posts", e.posts.Len())
		e.sweep()
	}
}

func (e *Engine) reactiveLimit() int {
	return int(math.Round(float64(e.opts.PostCeiling) * e.opts.ReactiveRatio))
}

// place hands a post to the sink and marks it rendered
func (e *Engine) place(p thread.Placement) {
	evt, ok := e.posts.Get(p.ID)
	if !ok {
		return
	}
	e.placed[p.ID] = true
	e.renderSeq++
	e.rendered[p.ID] = e.renderSeq
	e.sink.OnPostAccepted(evt, p.ParentID)
	e.reactionQueue.Add(p.ID)
}

func (e *Engine) ingestReaction(evt types.Event) {
	target := util.GetLastTagValue(evt.Tags, "e")
	if target == "" || !e.posts.Has(target) {
		return
	}
	summary := e.reactions[target]
	if summary == nil {
		summary = &types.ReactionsSummary{ByType: make(map[string]int)}
		e.reactions[target] = summary
	}
	reaction := evt.Content
	if reaction == "" {
		reaction = "+"
	}
	summary.Total++
	summary.ByType[reaction]++

	snapshot := types.ReactionsSummary{Total: summary.Total, ByType: make(map[string]int, len(summary.ByType))}
	for k, v := range summary.ByType {
		snapshot.ByType[k] = v
	}
	e.sink.OnReactionsUpdated(target, snapshot)
}

// requestParent queues a missing parent for a thread fetch. The fetched
// post still has to pass the view filter to unlock its orphans.
func (e *Engine) requestParent(id string) {
	if id == "" || e.parentWanted[id] || e.posts.Has(id) {
		return
	}
	e.parentWanted[id] = true
	e.parentQueue.Add(id)
}

func (e *Engine) flushParents(ids []string) {
	subID := e.open([]types.Filter{{IDs: ids, Kinds: []int{types.KindNote}}}, types.SubThreadFetch)
	e.after(e.opts.FetchGrace, func() {
		e.closeOne(subID)
		for _, id := range ids {
			delete(e.parentWanted, id)
		}
	})
}

func (e *Engine) flushReactions(ids []string) {
	var live []string
	for _, id := range ids {
		if e.posts.Has(id) {
			live = append(live, id)
		}
	}
	if len(live) == 0 {
		return
	}
	subID := e.open([]types.Filter{{Kinds: []int{types.KindReaction}, ETags: live}}, types.SubThreadFetch)
	e.after(e.opts.FetchGrace, func() { e.closeOne(subID) })
}

// FetchQuoted resolves a quoted note. The result arrives via OnQuoteResolved,
// immediately if the note is already known.
func (e *Engine) FetchQuoted(id string) error {
	return e.do(func() {
		if evt, ok := e.quotes.Get(id); ok {
			e.sink.OnQuoteResolved(evt)
			return
		}
		if evt, ok := e.posts.Get(id); ok {
			e.quotes.Put(id, evt)
			e.sink.OnQuoteResolved(evt)
			return
		}
		if e.quoteWanted[id] {
			return
		}
		e.quoteWanted[id] = true
		subID := e.open([]types.Filter{{IDs: []string{id}}}, types.SubThreadFetch)
		e.after(e.opts.FetchGrace, func() {
			e.closeOne(subID)
			delete(e.quoteWanted, id)
		})
	})
}
