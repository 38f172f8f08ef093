// Package engine is the feed engine: it turns relay frames into a
// deduplicated, threaded, bounded feed. All state is owned by one goroutine
// (Run); relay frames, timer callbacks and caller commands are posted to its
// inbox and run to completion in order.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/decred/dcrd/container/lru"

	"nostr-feed/internal/cache"
	"nostr-feed/internal/nostr"
	"nostr-feed/internal/signer"
	"nostr-feed/internal/thread"
	"nostr-feed/internal/types"
)

var (
	ErrStopped             = errors.New("engine stopped")
	ErrSigningFailed       = errors.New("signing failed")
	ErrIdentityUnavailable = errors.New("local identity unavailable")
	ErrUnknownTarget       = errors.New("target event not cached")
)

// Transport sends frames to relays. relay.Manager implements it.
type Transport interface {
	Broadcast(msg []byte) int
	Send(url string, msg []byte) error
}

// Snapshotter persists profiles and follow sets. store.Snapshots implements it.
type Snapshotter interface {
	SaveProfile(p types.Profile)
	SaveFollows(owner string, fs types.FollowSet)
}

// Options configures an Engine. Zero values take the defaults below.
type Options struct {
	View            types.FeedView
	PageLimit       int // historical result budget per feed query
	AuthorShardSize int

	PostCeiling     int
	ProfileCeiling  int
	RenderedCeiling int
	ReactiveRatio   float64 // reactive sweep once posts exceed ceiling*ratio

	SweepInterval     time.Duration
	ProfileDebounce   time.Duration
	ProfilePendingTTL time.Duration
	LoadingFallback   time.Duration
	FetchGrace        time.Duration
	PageGrace         time.Duration

	SeenSetSize    uint32
	QuoteCacheSize uint32
	QuoteTTL       time.Duration
	RelayHint      string // relay url placed in reply e-tags

	Clock Clock
	Store Snapshotter
}

// DefaultOptions returns the stock engine settings
func DefaultOptions() Options {
	return Options{
		View:              types.FeedView{Kind: types.FeedFollowing},
		PageLimit:         50,
		AuthorShardSize:   100,
		PostCeiling:       500,
		ProfileCeiling:    1000,
		RenderedCeiling:   300,
		ReactiveRatio:     1.2,
		SweepInterval:     60 * time.Second,
		ProfileDebounce:   100 * time.Millisecond,
		ProfilePendingTTL: 5000 * time.Millisecond,
		LoadingFallback:   8 * time.Second,
		FetchGrace:        10 * time.Second,
		PageGrace:         15 * time.Second,
		SeenSetSize:       10000,
		QuoteCacheSize:    256,
		QuoteTTL:          30 * time.Minute,
	}
}

func (o *Options) setDefaults() {
	d := DefaultOptions()
	if o.PageLimit <= 0 {
		o.PageLimit = d.PageLimit
	}
	if o.AuthorShardSize <= 0 {
		o.AuthorShardSize = d.AuthorShardSize
	}
	if o.PostCeiling <= 0 {
		o.PostCeiling = d.PostCeiling
	}
	if o.ProfileCeiling <= 0 {
		o.ProfileCeiling = d.ProfileCeiling
	}
	if o.RenderedCeiling <= 0 {
		o.RenderedCeiling = d.RenderedCeiling
	}
	if o.ReactiveRatio < 1 {
		o.ReactiveRatio = d.ReactiveRatio
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.ProfileDebounce <= 0 {
		o.ProfileDebounce = d.ProfileDebounce
	}
	if o.ProfilePendingTTL <= 0 {
		o.ProfilePendingTTL = d.ProfilePendingTTL
	}
	if o.LoadingFallback <= 0 {
		o.LoadingFallback = d.LoadingFallback
	}
	if o.FetchGrace <= 0 {
		o.FetchGrace = d.FetchGrace
	}
	if o.PageGrace <= 0 {
		o.PageGrace = d.PageGrace
	}
	if o.SeenSetSize == 0 {
		o.SeenSetSize = d.SeenSetSize
	}
	if o.QuoteCacheSize == 0 {
		o.QuoteCacheSize = d.QuoteCacheSize
	}
	if o.QuoteTTL <= 0 {
		o.QuoteTTL = d.QuoteTTL
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
}

// Engine is the feed engine. Create with New, start with Run.
type Engine struct {
	opts      Options
	transport Transport
	sink      Sink
	signer    signer.Signer
	clock     Clock
	store     Snapshotter
	logger    *slog.Logger
	counters  counters

	inbox chan func()
	done  chan struct{}

	// Everything below is owned by the loop goroutine.
	self string

	subs    map[string]*types.Subscription
	nextSub uint64

	view        types.FeedView
	viewGen     int
	loading     types.LoadingState
	histPending map[string]bool
	feedLoaded  bool

	follows          map[string]bool
	followsUpdatedAt int64

	posts     *cache.Bounded[string, types.Event]
	threads   *thread.Builder
	placed    map[string]bool  // ids handed to the sink, until evicted
	rendered  map[string]int64 // id -> display sequence
	renderSeq int64
	visible   map[string]bool
	reactions map[string]*types.ReactionsSummary
	metaSeen  *lru.Set[string]

	profiles       *cache.Bounded[string, types.Profile]
	profilePending map[string]string // pubkey -> profile-batch subscription id
	profileQueue   *coalescer
	parentQueue    *coalescer
	parentWanted   map[string]bool
	reactionQueue  *coalescer
	quotes         *lru.Map[string, types.Event]
	quoteWanted    map[string]bool
	pager          pager
	pageHidden     bool
	hiddenSince    time.Time
	sweepTimer     Timer
}

// New creates an engine. sgn may be nil, in which case commands that need
// the local identity fail with ErrIdentityUnavailable.
func New(opts Options, transport Transport, sink Sink, sgn signer.Signer) *Engine {
	opts.setDefaults()
	if sink == nil {
		sink = NopSink{}
	}
	e := &Engine{
		opts:           opts,
		transport:      transport,
		sink:           sink,
		signer:         sgn,
		clock:          opts.Clock,
		store:          opts.Store,
		logger:         slog.Default().With("component", "engine"),
		inbox:          make(chan func(), 1024),
		done:           make(chan struct{}),
		subs:           make(map[string]*types.Subscription),
		view:           opts.View,
		histPending:    make(map[string]bool),
		follows:        make(map[string]bool),
		posts:          cache.NewBounded[string, types.Event](),
		threads:        thread.NewBuilder(),
		placed:         make(map[string]bool),
		rendered:       make(map[string]int64),
		visible:        make(map[string]bool),
		reactions:      make(map[string]*types.ReactionsSummary),
		metaSeen:       lru.NewSet[string](opts.SeenSetSize),
		profiles:       cache.NewBounded[string, types.Profile](),
		profilePending: make(map[string]string),
		parentWanted:   make(map[string]bool),
		quotes:         lru.NewMapWithDefaultTTL[string, types.Event](opts.QuoteCacheSize, opts.QuoteTTL),
		quoteWanted:    make(map[string]bool),
	}
	e.profileQueue = newCoalescer("profiles", e.logger, opts.ProfileDebounce, e.after, e.flushProfiles)
	e.parentQueue = newCoalescer("parents", e.logger, opts.ProfileDebounce, e.after, e.flushParents)
	e.reactionQueue = newCoalescer("reactions", e.logger, opts.ProfileDebounce, e.after, e.flushReactions)
	return e
}

// Run resolves the local identity and then processes the inbox until ctx is
// done. It returns ctx.Err().
func (e *Engine) Run(ctx context.Context) error {
	if e.signer != nil {
		pk, err := e.signer.PublicKey(ctx)
		if err != nil {
			e.logger.Warn("local identity unavailable", "error", err)
		} else {
			e.self = pk
		}
	}
	e.armSweep()

	defer close(e.done)
	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-ctx.Done():
			if e.sweepTimer != nil {
				e.sweepTimer.Stop()
			}
			e.logger.Debug("engine stopping", "subscriptions", len(e.subs))
			return ctx.Err()
		}
	}
}

// post queues fn onto the loop. Returns false once the engine has stopped.
func (e *Engine) post(fn func()) bool {
	select {
	case e.inbox <- fn:
		return true
	case <-e.done:
		return false
	}
}

// do runs fn on the loop and waits for it to finish
func (e *Engine) do(fn func()) error {
	finished := make(chan struct{})
	if !e.post(func() {
		fn()
		close(finished)
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

// Sync waits until everything posted before it has been processed
func (e *Engine) Sync() error {
	return e.do(func() {})
}

// after schedules fn on the loop once d has elapsed
func (e *Engine) after(d time.Duration, fn func()) Timer {
	return e.clock.AfterFunc(d, func() { e.post(fn) })
}

func (e *Engine) now() int64 {
	return e.clock.Now().Unix()
}

// OnOpen implements relay.Handler
func (e *Engine) OnOpen(url string) {
	e.post(func() { e.handleOpen(url) })
}

// OnFrame implements relay.Handler. Frames are decoded and their events
// verified on the calling goroutine before being queued.
func (e *Engine) OnFrame(url string, data []byte) {
	e.counters.frames.Add(1)
	frame, err := nostr.DecodeFrame(data)
	if err != nil {
		e.counters.malformed.Add(1)
		e.logger.Debug("dropping malformed frame", "url", url, "error", err)
		return
	}
	e.post(func() { e.handleFrame(url, frame) })
}

// OnClose implements relay.Handler
func (e *Engine) OnClose(url string, err error) {
	e.counters.disconnects.Add(1)
	e.logger.Debug("relay closed", "url", url, "error", err)
}

func (e *Engine) handleOpen(url string) {
	if !e.feedLoaded {
		e.logger.Info("first relay open, loading feed", "url", url, "view", e.view.String())
		e.loadFeed()
		return
	}
	e.resend(url)
}
