package engine

import (
	"sort"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
	"nostr-feed/internal/util"
)

// viewFilter returns the post filter for the active view, or ok=false when
// the view has nobody to ask for (no follows yet, or no local identity).
func (e *Engine) viewFilter() (f types.Filter, ok bool) {
	f = types.Filter{Kinds: []int{types.KindNote}, Limit: e.opts.PageLimit}
	switch e.view.Kind {
	case types.FeedFollowing:
		if len(e.follows) == 0 {
			return f, false
		}
		f.Authors = util.SortedCopy(util.MapKeys(e.follows))
	case types.FeedMine:
		if e.self == "" {
			return f, false
		}
		f.Authors = []string{e.self}
	case types.FeedAuthor:
		if e.view.Author == "" {
			return f, false
		}
		f.Authors = []string{e.view.Author}
	}
	return f, true
}

// acceptsAuthor applies the active view's filter to a post author
func (e *Engine) acceptsAuthor(pubkey string) bool {
	switch e.view.Kind {
	case types.FeedFollowing:
		return e.follows[pubkey]
	case types.FeedMine:
		return e.self != "" && pubkey == e.self
	case types.FeedAuthor:
		return pubkey == e.view.Author
	case types.FeedGlobal:
		return true
	}
	return false
}

func (e *Engine) setLoading(state types.LoadingState) {
	if e.loading == state {
		return
	}
	e.loading = state
	e.sink.OnLoadingStateChanged(e.view, state)
}

// loadFeed issues the active view's subscriptions: the local contact list
// and the feed's historical/realtime pairs. Loading stays active until
// every historical shard reports EOSE or the fallback fires.
func (e *Engine) loadFeed() {
	e.feedLoaded = true
	e.viewGen++
	gen := e.viewGen
	e.histPending = make(map[string]bool)
	e.setLoading(types.LoadingActive)

	if e.self != "" {
		e.openPair(types.Filter{
			Kinds:   []int{types.KindContactList},
			Authors: []string{e.self},
			Limit:   1,
		}, types.SubHistorical)
	}

	if f, ok := e.viewFilter(); ok {
		for _, id := range e.openPair(f, types.SubHistorical) {
			e.histPending[id] = true
		}
	}

	e.after(e.opts.LoadingFallback, func() {
		if e.viewGen == gen && e.loading == types.LoadingActive {
			e.logger.Debug("loading fallback fired", "view", e.view.String())
			e.setLoading(types.LoadingIdle)
		}
	})
}

// reloadFeed drops every subscription and pagination state and loads the
// active view again. Cached posts are kept; they are not reclassified.
func (e *Engine) reloadFeed() {
	e.closeAll()
	e.resetPager()
	e.loadFeed()
}

// SetView switches the active feed view
func (e *Engine) SetView(view types.FeedView) error {
	return e.do(func() {
		e.logger.Info("switching view", "from", e.view.String(), "to", view.String())
		if e.loading == types.LoadingActive {
			e.setLoading(types.LoadingIdle)
		}
		e.view = view
		e.reloadFeed()
	})
}

// View returns the active view
func (e *Engine) View() (types.FeedView, error) {
	var v types.FeedView
	err := e.do(func() { v = e.view })
	return v, err
}

// Follows returns the current follow set, sorted
func (e *Engine) Follows() ([]string, error) {
	var out []string
	err := e.do(func() { out = util.SortedCopy(util.MapKeys(e.follows)) })
	return out, err
}

// ingestContactList replaces the follow set from the local identity's
// newest contact list. Contact lists of other authors are ignored.
func (e *Engine) ingestContactList(evt types.Event) {
	if e.self == "" || evt.PubKey != e.self {
		return
	}
	if evt.CreatedAt <= e.followsUpdatedAt {
		e.counters.stale.Add(1)
		return
	}

	next := make(map[string]bool)
	for _, pk := range util.GetTagValues(evt.Tags, "p") {
		if nostr.IsHex64(pk) {
			next[pk] = true
		}
	}
	changed := !sameSet(e.follows, next)
	e.follows = next
	e.followsUpdatedAt = evt.CreatedAt
	e.logger.Info("follow set replaced", "follows", len(next), "changed", changed)

	if e.store != nil {
		e.store.SaveFollows(e.self, types.FollowSet{
			Pubkeys:   util.SortedCopy(util.MapKeys(next)),
			UpdatedAt: evt.CreatedAt,
		})
	}
	if changed && e.view.Kind == types.FeedFollowing && e.feedLoaded {
		e.reloadFeed()
	}
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Seed warms the follow set and profile cache from persisted snapshots.
// Newer data already in the engine wins.
func (e *Engine) Seed(follows types.FollowSet, profiles []types.Profile) error {
	return e.do(func() {
		if follows.UpdatedAt > e.followsUpdatedAt {
			next := make(map[string]bool, len(follows.Pubkeys))
			for _, pk := range follows.Pubkeys {
				next[pk] = true
			}
			changed := !sameSet(e.follows, next)
			e.follows = next
			e.followsUpdatedAt = follows.UpdatedAt
			if changed && e.view.Kind == types.FeedFollowing && e.feedLoaded {
				e.reloadFeed()
			}
		}
		sort.Slice(profiles, func(i, j int) bool { return profiles[i].UpdatedAt < profiles[j].UpdatedAt })
		for _, p := range profiles {
			e.applyProfile(p)
		}
		e.logger.Info("seeded from store", "follows", len(e.follows), "profiles", len(profiles))
	})
}
