package engine

import (
	"sort"
	"time"
)

// armSweep schedules the periodic sweep; each run re-arms it
func (e *Engine) armSweep() {
	e.sweepTimer = e.after(e.opts.SweepInterval, func() {
		e.sweep()
		e.armSweep()
	})
}

// SetVisible reports the post ids the sink currently shows. They are
// protected from eviction, and so are their authors' profiles.
func (e *Engine) SetVisible(ids []string) error {
	return e.do(func() {
		e.visible = make(map[string]bool, len(ids))
		for _, id := range ids {
			e.visible[id] = true
		}
	})
}

// SetPageVisible reports host visibility. Becoming visible after being
// hidden for longer than the sweep interval runs a sweep immediately.
func (e *Engine) SetPageVisible(visible bool) error {
	return e.do(func() {
		if !visible {
			if !e.pageHidden {
				e.pageHidden = true
				e.hiddenSince = e.clock.Now()
			}
			return
		}
		if !e.pageHidden {
			return
		}
		e.pageHidden = false
		if hidden := e.clock.Now().Sub(e.hiddenSince); hidden > e.opts.SweepInterval {
			e.logger.Debug("visible after long hide, sweeping", "hidden", hidden.Round(time.Second))
			e.sweep()
		}
	})
}

// Sweep runs an eviction pass now
func (e *Engine) Sweep() error {
	return e.do(e.sweep)
}

// sweep trims the post cache, the profile cache and the rendered set back
// to their ceilings.
func (e *Engine) sweep() {
	e.counters.sweeps.Add(1)

	evictedPosts := e.posts.Evict(e.opts.PostCeiling, func(id string) bool { return e.visible[id] })
	for _, id := range evictedPosts {
		e.removePost(id)
	}

	protectedAuthors := make(map[string]bool, len(e.visible))
	for id := range e.visible {
		if evt, ok := e.posts.Get(id); ok {
			protectedAuthors[evt.PubKey] = true
		}
	}
	evictedProfiles := e.profiles.Evict(e.opts.ProfileCeiling, func(pk string) bool {
		return pk == e.self || e.follows[pk] || protectedAuthors[pk]
	})
	for _, pk := range evictedProfiles {
		delete(e.profilePending, pk)
	}

	unrendered := e.trimRendered()

	e.counters.postsEvicted.Add(int64(len(evictedPosts)))
	e.counters.profilesEvicted.Add(int64(len(evictedProfiles)))
	if len(evictedPosts)+len(evictedProfiles)+unrendered > 0 {
		e.logger.Debug("sweep",
			"posts_evicted", len(evictedPosts),
			"profiles_evicted", len(evictedProfiles),
			"unrendered", unrendered,
			"posts", e.posts.Len(),
			"profiles", e.profiles.Len())
	}
}

// removePost drops everything hanging off an evicted post. Orphans waiting
// on it can never be displayed, so they are discarded too.
func (e *Engine) removePost(id string) {
	wasDisplayed := e.placed[id]
	delete(e.placed, id)
	e.discardOrphans(id)
	e.threads.Remove(id)
	delete(e.reactions, id)
	delete(e.rendered, id)
	if wasDisplayed {
		e.sink.OnPostEvicted(id)
	}
}

func (e *Engine) discardOrphans(parentID string) {
	for _, child := range e.threads.Orphans(parentID) {
		e.discardOrphans(child)
		e.threads.Remove(child)
		if e.posts.Has(child) {
			e.posts.Delete(child)
			e.counters.postsEvicted.Add(1)
		}
	}
}

// trimRendered unrenders the oldest-displayed posts beyond the rendered
// ceiling. Visible posts stay.
func (e *Engine) trimRendered() int {
	excess := len(e.rendered) - e.opts.RenderedCeiling
	if excess <= 0 {
		return 0
	}
	ids := make([]string, 0, len(e.rendered))
	for id := range e.rendered {
		if !e.visible[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return e.rendered[ids[i]] < e.rendered[ids[j]] })
	if excess > len(ids) {
		excess = len(ids)
	}
	for _, id := range ids[:excess] {
		delete(e.rendered, id)
		e.sink.OnPostUnrendered(id)
	}
	return excess
}
