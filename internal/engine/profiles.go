package engine

import (
	"encoding/json"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
)

// RequestProfile asks for an author's metadata. It is a no-op when the
// profile is cached, queued or already in flight.
func (e *Engine) RequestProfile(pubkey string) error {
	return e.do(func() { e.requestProfile(pubkey) })
}

func (e *Engine) requestProfile(pubkey string) {
	if pubkey == "" || e.profiles.Has(pubkey) {
		return
	}
	if _, pending := e.profilePending[pubkey]; pending {
		return
	}
	e.profileQueue.Add(pubkey)
}

// flushProfiles issues one profile-batch subscription for the queued keys,
// marks them pending and schedules the batch's expiry.
func (e *Engine) flushProfiles(keys []string) {
	subID := e.open([]types.Filter{{
		Kinds:   []int{types.KindProfile},
		Authors: keys,
		Limit:   len(keys),
	}}, types.SubProfileBatch)
	if subID == "" {
		return
	}
	for _, k := range keys {
		e.profilePending[k] = subID
	}
	e.counters.profileBatches.Add(1)

	e.after(e.opts.ProfilePendingTTL, func() {
		for _, k := range keys {
			if e.profilePending[k] == subID {
				delete(e.profilePending, k)
			}
		}
		e.closeOne(subID)
	})
}

// releasePending clears the pending markers a profile batch still holds
func (e *Engine) releasePending(sub *types.Subscription) {
	for _, f := range sub.Filters {
		for _, pk := range f.Authors {
			if e.profilePending[pk] == sub.ID {
				delete(e.profilePending, pk)
			}
		}
	}
}

func (e *Engine) ingestProfile(evt types.Event) {
	delete(e.profilePending, evt.PubKey)

	var info types.ProfileInfo
	if err := json.Unmarshal([]byte(evt.Content), &info); err != nil {
		e.counters.malformed.Add(1)
		e.logger.Debug("bad profile content", "pubkey", nostr.ShortID(evt.PubKey), "error", err)
		return
	}

	p := types.Profile{PubKey: evt.PubKey, Info: info, UpdatedAt: evt.CreatedAt}
	if !e.applyProfile(p) {
		e.counters.stale.Add(1)
		return
	}
	if e.store != nil {
		e.store.SaveProfile(p)
	}
}

// applyProfile stores p unless the cached profile is newer. Equal
// timestamps replace.
func (e *Engine) applyProfile(p types.Profile) bool {
	if cur, ok := e.profiles.Get(p.PubKey); ok && p.UpdatedAt < cur.UpdatedAt {
		return false
	}
	e.profiles.Put(p.PubKey, p, p.UpdatedAt)
	e.profileQueue.Remove(p.PubKey)
	e.sink.OnProfileUpdated(p.PubKey, p)
	return true
}

// Profile returns a cached profile
func (e *Engine) Profile(pubkey string) (types.Profile, bool, error) {
	var (
		p  types.Profile
		ok bool
	)
	err := e.do(func() { p, ok = e.profiles.Get(pubkey) })
	return p, ok, err
}
