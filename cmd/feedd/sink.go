package main

import (
	"log/slog"
	"sync/atomic"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
)

// logSink reports engine notifications to the log and keeps counts for /metrics
type logSink struct {
	logger *slog.Logger

	accepted  atomic.Int64
	evicted   atomic.Int64
	profiles  atomic.Int64
	exhausted atomic.Bool
	loading   atomic.Bool
}

func newLogSink() *logSink {
	return &logSink{logger: slog.Default().With("component", "sink")}
}

func (s *logSink) OnPostAccepted(evt types.Event, parentID string) {
	s.accepted.Add(1)
	if parentID != "" {
		s.logger.Debug("reply", "id", nostr.ShortID(evt.ID), "parent", nostr.ShortID(parentID), "author", nostr.ShortID(evt.PubKey))
		return
	}
	s.logger.Debug("post", "id", nostr.ShortID(evt.ID), "author", nostr.ShortID(evt.PubKey), "created_at", evt.CreatedAt)
}

func (s *logSink) OnPostEvicted(id string) {
	s.evicted.Add(1)
	s.logger.Debug("post evicted", "id", nostr.ShortID(id))
}

func (s *logSink) OnPostUnrendered(id string) {
	s.logger.Debug("post unrendered", "id", nostr.ShortID(id))
}

func (s *logSink) OnProfileUpdated(pubkey string, p types.Profile) {
	s.profiles.Add(1)
	name := p.Info.DisplayName
	if name == "" {
		name = p.Info.Name
	}
	s.logger.Debug("profile", "pubkey", nostr.ShortID(pubkey), "name", name)
}

func (s *logSink) OnLoadingStateChanged(view types.FeedView, state types.LoadingState) {
	s.loading.Store(state == types.LoadingActive)
	if state == types.LoadingActive {
		s.exhausted.Store(false)
	}
	s.logger.Info("feed loading state", "view", view.String(), "state", state.String())
}

func (s *logSink) OnFeedExhausted(view types.FeedView) {
	s.exhausted.Store(true)
	s.logger.Info("feed exhausted", "view", view.String())
}

func (s *logSink) OnReactionsUpdated(id string, summary types.ReactionsSummary) {
	s.logger.Debug("reactions", "id", nostr.ShortID(id), "total", summary.Total)
}

func (s *logSink) OnQuoteResolved(evt types.Event) {
	s.logger.Debug("quote resolved", "id", nostr.ShortID(evt.ID))
}
