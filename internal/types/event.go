// Package types provides shared type definitions used across internal packages.
package types

import (
	"bytes"
	"encoding/json"
)

// Event kinds the engine routes on (NIP-01, NIP-02, NIP-25)
const (
	KindProfile     = 0
	KindNote        = 1
	KindContactList = 3
	KindReaction    = 7
)

// Event represents a Nostr event (NIP-01)
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// UnsignedEvent is an event before the signing capability assigned id, pubkey and sig
type UnsignedEvent struct {
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
}

// Filter represents a Nostr subscription filter (NIP-01)
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Limit   int
	Since   *int64
	Until   *int64
	ETags   []string // #e tag filter (replies/reactions to events)
	PTags   []string // #p tag filter (mentions)
	DTags   []string // #d tag filter (d-tag for addressable events)
}

// MarshalJSON encodes the filter in wire form, omitting empty fields.
// Limit 0 means "no limit" and is omitted.
func (f Filter) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, 8)
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.IDs) > 0 {
		m["ids"] = f.IDs
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit > 0 {
		m["limit"] = f.Limit
	}
	if len(f.ETags) > 0 {
		m["#e"] = f.ETags
	}
	if len(f.PTags) > 0 {
		m["#p"] = f.PTags
	}
	if len(f.DTags) > 0 {
		m["#d"] = f.DTags
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON decodes a wire filter. Used by tests and fake relays.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDs     []string `json:"ids"`
		Authors []string `json:"authors"`
		Kinds   []int    `json:"kinds"`
		Limit   int      `json:"limit"`
		Since   *int64   `json:"since"`
		Until   *int64   `json:"until"`
		ETags   []string `json:"#e"`
		PTags   []string `json:"#p"`
		DTags   []string `json:"#d"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Filter{
		IDs:     raw.IDs,
		Authors: raw.Authors,
		Kinds:   raw.Kinds,
		Limit:   raw.Limit,
		Since:   raw.Since,
		Until:   raw.Until,
		ETags:   raw.ETags,
		PTags:   raw.PTags,
		DTags:   raw.DTags,
	}
	return nil
}

// Clone returns a copy whose slices and bounds can be modified independently.
func (f Filter) Clone() Filter {
	c := f
	c.IDs = append([]string(nil), f.IDs...)
	c.Authors = append([]string(nil), f.Authors...)
	c.Kinds = append([]int(nil), f.Kinds...)
	c.ETags = append([]string(nil), f.ETags...)
	c.PTags = append([]string(nil), f.PTags...)
	c.DTags = append([]string(nil), f.DTags...)
	if f.Since != nil {
		v := *f.Since
		c.Since = &v
	}
	if f.Until != nil {
		v := *f.Until
		c.Until = &v
	}
	return c
}

// Int64Ptr returns a pointer to v, for filter bounds
func Int64Ptr(v int64) *int64 {
	return &v
}
