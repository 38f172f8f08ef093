package engine

import "sync/atomic"

// counters are updated from relay goroutines and the loop
type counters struct {
	frames          atomic.Int64
	malformed       atomic.Int64
	duplicates      atomic.Int64
	rejected        atomic.Int64
	accepted        atomic.Int64
	orphaned        atomic.Int64
	ignored         atomic.Int64
	stale           atomic.Int64
	notices         atomic.Int64
	disconnects     atomic.Int64
	subsOpened      atomic.Int64
	profileBatches  atomic.Int64
	pages           atomic.Int64
	sweeps          atomic.Int64
	postsEvicted    atomic.Int64
	profilesEvicted atomic.Int64
	published       atomic.Int64
	publishAcked    atomic.Int64
	publishRejected atomic.Int64
}

// Stats is a point-in-time view of engine counters and cache sizes
type Stats struct {
	Frames          int64 `json:"frames"`
	Malformed       int64 `json:"malformed"`
	Duplicates      int64 `json:"duplicates"`
	Rejected        int64 `json:"rejected"`
	Accepted        int64 `json:"accepted"`
	Orphaned        int64 `json:"orphaned"`
	Ignored         int64 `json:"ignored"`
	Stale           int64 `json:"stale"`
	Notices         int64 `json:"notices"`
	Disconnects     int64 `json:"disconnects"`
	SubsOpened      int64 `json:"subs_opened"`
	ProfileBatches  int64 `json:"profile_batches"`
	Pages           int64 `json:"pages"`
	Sweeps          int64 `json:"sweeps"`
	PostsEvicted    int64 `json:"posts_evicted"`
	ProfilesEvicted int64 `json:"profiles_evicted"`
	Published       int64 `json:"published"`
	PublishAcked    int64 `json:"publish_acked"`
	PublishRejected int64 `json:"publish_rejected"`

	Posts           int    `json:"posts"`
	Profiles        int    `json:"profiles"`
	Rendered        int    `json:"rendered"`
	Subscriptions   int    `json:"subscriptions"`
	ThreadEdges     int    `json:"thread_edges"`
	OrphanBuckets   int    `json:"orphan_buckets"`
	OrphansWaiting  int    `json:"orphans_waiting"`
	PendingProfiles int    `json:"pending_profiles"`
	QueuedProfiles  int    `json:"queued_profiles"`
	Follows         int    `json:"follows"`
	View            string `json:"view"`
	Loading         string `json:"loading"`
}

// Stats returns counters and cache sizes
func (e *Engine) Stats() (Stats, error) {
	c := &e.counters
	s := Stats{
		Frames:          c.frames.Load(),
		Malformed:       c.malformed.Load(),
		Duplicates:      c.duplicates.Load(),
		Rejected:        c.rejected.Load(),
		Accepted:        c.accepted.Load(),
		Orphaned:        c.orphaned.Load(),
		Ignored:         c.ignored.Load(),
		Stale:           c.stale.Load(),
		Notices:         c.notices.Load(),
		Disconnects:     c.disconnects.Load(),
		SubsOpened:      c.subsOpened.Load(),
		ProfileBatches:  c.profileBatches.Load(),
		Pages:           c.pages.Load(),
		Sweeps:          c.sweeps.Load(),
		PostsEvicted:    c.postsEvicted.Load(),
		ProfilesEvicted: c.profilesEvicted.Load(),
		Published:       c.published.Load(),
		PublishAcked:    c.publishAcked.Load(),
		PublishRejected: c.publishRejected.Load(),
	}
	err := e.do(func() {
		s.Posts = e.posts.Len()
		s.Profiles = e.profiles.Len()
		s.Rendered = len(e.rendered)
		s.Subscriptions = len(e.subs)
		s.ThreadEdges, s.OrphanBuckets, s.OrphansWaiting = e.threads.Stats()
		s.PendingProfiles = len(e.profilePending)
		s.QueuedProfiles = e.profileQueue.Len()
		s.Follows = len(e.follows)
		s.View = e.view.String()
		s.Loading = e.loading.String()
	})
	return s, err
}
