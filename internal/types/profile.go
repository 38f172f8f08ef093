package types

// ProfileInfo contains user profile metadata (kind 0)
type ProfileInfo struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Nip05       string `json:"nip05,omitempty"`
	About       string `json:"about,omitempty"`
	Banner      string `json:"banner,omitempty"`
	Lud16       string `json:"lud16,omitempty"`
	Website     string `json:"website,omitempty"`
}

// Profile is a cached kind-0 entry. UpdatedAt is the created_at of the
// metadata event it was built from and only ever moves forward.
type Profile struct {
	PubKey    string      `json:"pubkey"`
	Info      ProfileInfo `json:"info"`
	UpdatedAt int64       `json:"updated_at"`
}

// ReactionsSummary contains aggregated reaction counts for an event
type ReactionsSummary struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}

// FollowSet is the local identity's contact list (kind 3)
type FollowSet struct {
	Pubkeys   []string `json:"pubkeys"`
	UpdatedAt int64    `json:"updated_at"`
}
