package nostr

import "testing"

func TestNormalizeRelayURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wss://relay.damus.io", "wss://relay.damus.io"},
		{"wss://relay.damus.io/", "wss://relay.damus.io"},
		{"WSS://Relay.Example.COM", "wss://relay.example.com"},
		{"  wss://nos.lol  ", "wss://nos.lol"},
		{"ws://127.0.0.1:7777", "ws://127.0.0.1:7777"},
		{"ws://localhost:8080/path", "ws://localhost:8080/path"},
		{"https://relay.damus.io", ""},
		{"relay.damus.io", ""},
		{"wss://https://relay.damus.io", ""},
		{"wss://relay", ""},
		{"wss://printer.local", ""},
		{"wss://hidden.onion", ""},
		{"wss://bad%20host.com", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRelayURL(tt.in); got != tt.want {
			t.Errorf("NormalizeRelayURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
