// Package signer implements the signing capability the engine calls: a local
// schnorr key and a bridge that suppresses duplicate signing requests.
package signer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nostr-feed/internal/nostr"
	"nostr-feed/internal/types"
)

var ErrNoKey = errors.New("no secret key configured")

// Signer is the capability: sign(event) and getPublicKey()
type Signer interface {
	PublicKey(ctx context.Context) (string, error)
	Sign(ctx context.Context, evt types.UnsignedEvent) (types.Event, error)
}

// Local signs with an in-process secp256k1 key
type Local struct {
	privateKey *btcec.PrivateKey
	publicKey  string
}

// NewLocal creates a signer from a 32-byte hex secret key
func NewLocal(secretHex string) (*Local, error) {
	if secretHex == "" {
		return nil, ErrNoKey
	}
	privKeyBytes, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(privKeyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(privKeyBytes))
	}

	privateKey, _ := btcec.PrivKeyFromBytes(privKeyBytes)
	return &Local{
		privateKey: privateKey,
		publicKey:  hex.EncodeToString(schnorr.SerializePubKey(privateKey.PubKey())),
	}, nil
}

func (s *Local) PublicKey(ctx context.Context) (string, error) {
	return s.publicKey, nil
}

func (s *Local) Sign(ctx context.Context, u types.UnsignedEvent) (types.Event, error) {
	if err := ctx.Err(); err != nil {
		return types.Event{}, err
	}
	tags := u.Tags
	if tags == nil {
		tags = [][]string{}
	}
	evt := types.Event{
		PubKey:    s.publicKey,
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      tags,
		Content:   u.Content,
	}
	evt.ID = nostr.ComputeEventID(evt.PubKey, evt.CreatedAt, evt.Kind, evt.Tags, evt.Content)

	idBytes, _ := hex.DecodeString(evt.ID)
	sig, err := schnorr.Sign(s.privateKey, idBytes)
	if err != nil {
		return types.Event{}, fmt.Errorf("schnorr sign: %w", err)
	}
	evt.Sig = hex.EncodeToString(sig.Serialize())
	return evt, nil
}

// ReadOnly knows the local identity but cannot sign
type ReadOnly struct {
	PubKey string
}

func (s ReadOnly) PublicKey(ctx context.Context) (string, error) {
	if s.PubKey == "" {
		return "", ErrNoKey
	}
	return s.PubKey, nil
}

func (s ReadOnly) Sign(ctx context.Context, u types.UnsignedEvent) (types.Event, error) {
	return types.Event{}, ErrNoKey
}
