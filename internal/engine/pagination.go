package engine

import "nostr-feed/internal/types"

// pager is the pagination state of the active view
type pager struct {
	oldest    int64 // oldest accepted created_at; 0 = unset
	exhausted bool
	page      *page
}

// page is one in-flight LoadOlder request
type page struct {
	start    int64 // cursor when the page was issued
	until    int64
	subIDs   []string
	pending  map[string]bool // shards still waiting for EOSE
	gotOlder bool
	timer    Timer
}

func (e *Engine) observeCursor(createdAt int64) {
	if e.pager.oldest == 0 || createdAt < e.pager.oldest {
		e.pager.oldest = createdAt
	}
	if p := e.pager.page; p != nil && createdAt < p.start {
		p.gotOlder = true
	}
}

func (e *Engine) resetPager() {
	if p := e.pager.page; p != nil && p.timer != nil {
		p.timer.Stop()
	}
	e.pager = pager{}
}

// LoadOlder requests the page of posts older than the oldest one seen. It
// returns false when nothing was issued: a page is in flight, the view is
// exhausted, or no post has been seen yet.
func (e *Engine) LoadOlder() (bool, error) {
	var issued bool
	err := e.do(func() { issued = e.loadOlder() })
	return issued, err
}

func (e *Engine) loadOlder() bool {
	if e.pager.page != nil || e.pager.exhausted || e.pager.oldest == 0 {
		return false
	}
	f, ok := e.viewFilter()
	if !ok {
		return false
	}
	f.Until = types.Int64Ptr(e.pager.oldest - 1)

	p := &page{
		start:   e.pager.oldest,
		until:   e.pager.oldest - 1,
		pending: make(map[string]bool),
	}
	p.subIDs = e.openHistorical(f, types.SubPagination)
	for _, id := range p.subIDs {
		p.pending[id] = true
	}
	e.pager.page = p
	e.counters.pages.Add(1)
	e.logger.Debug("loading older posts", "view", e.view.String(), "until", p.until, "shards", len(p.subIDs))

	p.timer = e.after(e.opts.PageGrace, func() {
		if e.pager.page == p {
			e.logger.Debug("page grace period elapsed", "until", p.until, "waiting", len(p.pending))
			e.endPage(p)
		}
	})
	return true
}

// endPage clears the in-flight page and closes its shards. The view stays
// pageable.
func (e *Engine) endPage(p *page) {
	if e.pager.page != p {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	e.pager.page = nil
	for _, id := range p.subIDs {
		e.closeOne(id)
	}
}

// completePage ends a page every shard has answered. If none of them
// delivered anything older than the starting cursor the view is exhausted.
func (e *Engine) completePage(p *page) {
	if e.pager.page != p {
		return
	}
	e.endPage(p)
	if !p.gotOlder {
		e.pager.exhausted = true
		e.logger.Info("feed exhausted", "view", e.view.String())
		e.sink.OnFeedExhausted(e.view)
	}
}

// Cursor returns the active view's oldest-seen timestamp (0 when unset)
// and whether the view is exhausted.
func (e *Engine) Cursor() (oldest int64, exhausted bool, err error) {
	err = e.do(func() {
		oldest = e.pager.oldest
		exhausted = e.pager.exhausted
	})
	return oldest, exhausted, err
}
