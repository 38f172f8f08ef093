package thread

import (
	"reflect"
	"testing"

	"nostr-feed/internal/types"
)

func TestParentID(t *testing.T) {
	tests := []struct {
		name string
		tags [][]string
		want string
	}{
		{"no tags", nil, ""},
		{"only p tags", [][]string{{"p", "pk"}}, ""},
		{"single positional", [][]string{{"e", "root"}}, "root"},
		{"last positional wins", [][]string{{"e", "root"}, {"e", "mid"}, {"e", "last"}}, "last"},
		{"reply marker", [][]string{{"e", "root", "", "root"}, {"e", "parent", "", "reply"}}, "parent"},
		{"reply marker before positional", [][]string{{"e", "parent", "", "reply"}, {"e", "other"}}, "parent"},
		{"root marker only", [][]string{{"e", "root", "wss://r.example", "root"}}, "root"},
		{"mention skipped", [][]string{{"e", "root", "", "root"}, {"e", "quoted", "", "mention"}}, "root"},
		{"only mention", [][]string{{"e", "quoted", "", "mention"}}, ""},
		{"empty id ignored", [][]string{{"e", "a"}, {"e", ""}}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParentID(tt.tags); got != tt.want {
				t.Errorf("ParentID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReplyTags(t *testing.T) {
	tests := []struct {
		name   string
		target types.Event
		want   [][]string
	}{
		{
			name:   "reply to root post",
			target: types.Event{ID: "r", PubKey: "alice"},
			want: [][]string{
				{"e", "r", "wss://hint", "root"},
				{"p", "alice"},
			},
		},
		{
			name: "reply to a reply keeps root",
			target: types.Event{ID: "a", PubKey: "bob", Tags: [][]string{
				{"e", "r", "", "root"},
				{"p", "alice"},
				{"p", "bob"},
				{"p", "carol"},
			}},
			want: [][]string{
				{"e", "r", "wss://hint", "root"},
				{"e", "a", "wss://hint", "reply"},
				{"p", "bob"},
				{"p", "alice"},
				{"p", "carol"},
			},
		},
		{
			name: "legacy target without root marker",
			target: types.Event{ID: "a", PubKey: "bob", Tags: [][]string{
				{"e", "r"},
				{"p", "alice"},
			}},
			want: [][]string{
				{"e", "a", "wss://hint", "root"},
				{"p", "bob"},
				{"p", "alice"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplyTags(tt.target, "wss://hint")
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReplyTags() =\n %v\nwant\n %v", got, tt.want)
			}
			if ParentID(got) != tt.target.ID {
				t.Errorf("composed reply resolves to parent %q, want %q", ParentID(got), tt.target.ID)
			}
		})
	}
}
