// Package thread derives reply edges from NIP-10 e-tags and reconstructs
// threads from replies that arrive before their parents.
package thread

import (
	"nostr-feed/internal/types"
	"nostr-feed/internal/util"
)

// NIP-10 e-tag markers
const (
	MarkerRoot    = "root"
	MarkerReply   = "reply"
	MarkerMention = "mention"
)

func marker(tag []string) string {
	if len(tag) >= 4 {
		return tag[3]
	}
	return ""
}

// ParentID resolves the event an event replies to. An e-tag marked "reply"
// wins; otherwise the last e-tag not marked "mention" is used. Returns "" for
// a root post.
func ParentID(tags [][]string) string {
	var fallback string
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "e" || tag[1] == "" {
			continue
		}
		switch marker(tag) {
		case MarkerReply:
			return tag[1]
		case MarkerMention:
			continue
		}
		fallback = tag[1]
	}
	return fallback
}

// RootID returns the root-marked e-tag, or "" if none is marked.
func RootID(tags [][]string) string {
	for _, tag := range tags {
		if len(tag) >= 4 && tag[0] == "e" && tag[3] == MarkerRoot {
			return tag[1]
		}
	}
	return ""
}

// ReplyTags builds the tags for a reply to target: a root reference (the
// target's own root marker, else the target), a reply reference when the
// target is not the root, and p-tags for the target's author plus every
// participant already on the target, deduplicated in first-occurrence order.
func ReplyTags(target types.Event, relayHint string) [][]string {
	root := RootID(target.Tags)
	if root == "" {
		root = target.ID
	}

	tags := [][]string{{"e", root, relayHint, MarkerRoot}}
	if target.ID != root {
		tags = append(tags, []string{"e", target.ID, relayHint, MarkerReply})
	}

	participants := append([]string{target.PubKey}, util.GetTagValues(target.Tags, "p")...)
	for _, pk := range util.DedupStrings(participants) {
		tags = append(tags, []string{"p", pk})
	}
	return tags
}

// ReactionTags builds NIP-25 tags for a reaction to target
func ReactionTags(target types.Event, relayHint string) [][]string {
	return [][]string{
		{"e", target.ID, relayHint},
		{"p", target.PubKey},
		{"k", "1"},
	}
}
