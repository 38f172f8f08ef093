package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-feed/internal/types"
)

var (
	ErrInvalidEvent     = errors.New("invalid event")
	ErrIDMismatch       = errors.New("event id does not match content hash")
	ErrInvalidSignature = errors.New("event signature validation failed")
)

// ComputeEventID returns the NIP-01 id: sha256 of [0, pubkey, created_at, kind, tags, content].
// HTML characters must not be escaped or relays compute a different hash.
func ComputeEventID(pubkey string, createdAt int64, kind int, tags [][]string, content string) string {
	if tags == nil {
		tags = [][]string{}
	}
	serialized := []interface{}{0, pubkey, createdAt, kind, tags, content}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.Encode(serialized)

	hash := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(hash[:])
}

// ValidateEventSignature verifies Schnorr signature for a Nostr event
func ValidateEventSignature(evt *types.Event) bool {
	if len(evt.Sig) != 128 || len(evt.PubKey) != 64 {
		return false
	}

	sigBytes, err := hex.DecodeString(evt.Sig)
	if err != nil {
		return false
	}
	pubKeyBytes, err := hex.DecodeString(evt.PubKey)
	if err != nil {
		return false
	}
	idBytes, err := hex.DecodeString(evt.ID)
	if err != nil {
		return false
	}

	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	pubKey, err := schnorr.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pubKey)
}

// ParseEvent decodes and checks a raw event object from an EVENT frame.
// The id must match the content hash and the signature must verify against
// the author's key.
func ParseEvent(raw json.RawMessage) (types.Event, error) {
	var evt types.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return types.Event{}, errors.Join(ErrInvalidEvent, err)
	}
	if len(evt.ID) != 64 || !IsHex64(evt.PubKey) {
		return types.Event{}, ErrInvalidEvent
	}
	if ComputeEventID(evt.PubKey, evt.CreatedAt, evt.Kind, evt.Tags, evt.Content) != evt.ID {
		return types.Event{}, ErrIDMismatch
	}
	if !ValidateEventSignature(&evt) {
		return types.Event{}, ErrInvalidSignature
	}
	return evt, nil
}

// IsHex64 reports whether s is a 32-byte lowercase-or-uppercase hex string (ids, pubkeys)
func IsHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// ShortID truncates ID/pubkey to 12 chars for logging
func ShortID(id string) string {
	if len(id) >= 12 {
		return id[:12]
	}
	return id
}
