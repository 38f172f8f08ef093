package engine

import "nostr-feed/internal/types"

// Sink receives engine notifications. Calls are made from the engine loop,
// one at a time; a Sink must not call back into the Engine synchronously.
type Sink interface {
	OnPostAccepted(evt types.Event, parentID string)
	OnPostEvicted(id string)
	OnPostUnrendered(id string)
	OnProfileUpdated(pubkey string, profile types.Profile)
	OnLoadingStateChanged(view types.FeedView, state types.LoadingState)
	OnFeedExhausted(view types.FeedView)
	OnReactionsUpdated(id string, summary types.ReactionsSummary)
	OnQuoteResolved(evt types.Event)
}

// NopSink ignores every notification. Embed it to implement part of Sink.
type NopSink struct{}

func (NopSink) OnPostAccepted(types.Event, string)                       {}
func (NopSink) OnPostEvicted(string)                                     {}
func (NopSink) OnPostUnrendered(string)                                  {}
func (NopSink) OnProfileUpdated(string, types.Profile)                   {}
func (NopSink) OnLoadingStateChanged(types.FeedView, types.LoadingState) {}
func (NopSink) OnFeedExhausted(types.FeedView)                           {}
func (NopSink) OnReactionsUpdated(string, types.ReactionsSummary)        {}
func (NopSink) OnQuoteResolved(types.Event)                              {}
