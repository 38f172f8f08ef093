package types

import "fmt"

// FeedKind selects which authors a feed view accepts
type FeedKind int

const (
	FeedFollowing FeedKind = iota
	FeedMine
	FeedAuthor
	FeedGlobal
)

// FeedView is the active feed. Author is only used by FeedAuthor.
type FeedView struct {
	Kind   FeedKind
	Author string
}

func (v FeedView) String() string {
	switch v.Kind {
	case FeedFollowing:
		return "following"
	case FeedMine:
		return "mine"
	case FeedAuthor:
		return fmt.Sprintf("author:%s", v.Author)
	case FeedGlobal:
		return "global"
	}
	return "unknown"
}

// ParseFeedKind maps a config/CLI name to a FeedKind
func ParseFeedKind(name string) (FeedKind, error) {
	switch name {
	case "following", "":
		return FeedFollowing, nil
	case "mine":
		return FeedMine, nil
	case "author":
		return FeedAuthor, nil
	case "global":
		return FeedGlobal, nil
	}
	return FeedFollowing, fmt.Errorf("unknown feed view %q", name)
}

// LoadingState is the feed's loading indicator
type LoadingState int

const (
	LoadingIdle LoadingState = iota
	LoadingActive
)

func (s LoadingState) String() string {
	if s == LoadingActive {
		return "loading"
	}
	return "idle"
}
