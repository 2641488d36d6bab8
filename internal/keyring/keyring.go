// Package keyring loads and generates the Ed25519 identity a subnet
// node uses for its overlay peer-id and on-chain coldkey/hotkey.
//
// Grounded on the teacher's Oasys.Authorize/SignerFn pattern
// (consensus/oasys/oasys.go): the signing key never leaves this
// package as raw bytes — callers receive a SignerFn closure instead.
package keyring

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/vedhavyas/go-subkey/v2/ss58"
)

// SignerFn hashes and signs a message with the identity's private key.
// Mirrors the teacher's consensus/oasys.SignerFn shape.
type SignerFn func(message []byte) ([]byte, error)

// Identity wraps an Ed25519 keypair usable as a subnet peer-id and,
// via SS58 encoding, an on-chain account address.
type Identity struct {
	priv libp2pcrypto.PrivKey
	pub  libp2pcrypto.PubKey
}

// ErrUnsupportedKeyType is returned when a loaded key file does not
// carry an Ed25519 key. The type is checked as a typed protobuf enum
// comparison, never as a string (see DESIGN.md Open Question decisions).
var ErrUnsupportedKeyType = errors.New("keyring: unsupported key type, only Ed25519 is accepted")

// Generate creates a fresh Ed25519 identity.
func Generate() (*Identity, error) {
	priv, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyring: generate: %w", err)
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// Load reads a protobuf-serialized {key_type, data} identity file,
// as described in spec §6: data is the 32-byte Ed25519 seed
// concatenated with the 32-byte public key.
func Load(path string) (*Identity, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: stat %s: %w", path, err)
	}
	if perm := info.Mode().Perm(); perm != 0o400 {
		return nil, fmt.Errorf("keyring: %s has permission %o, want 0400", path, perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read %s: %w", path, err)
	}

	priv, err := libp2pcrypto.UnmarshalPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("keyring: unmarshal %s: %w", path, err)
	}
	if priv.Type() != libp2pcrypto.Ed25519 {
		return nil, ErrUnsupportedKeyType
	}
	return &Identity{priv: priv, pub: priv.GetPublic()}, nil
}

// Save writes the identity to path in the protobuf {key_type, data}
// format, with file permission 0400 per spec §6.
func Save(id *Identity, path string) error {
	raw, err := libp2pcrypto.MarshalPrivateKey(id.priv)
	if err != nil {
		return fmt.Errorf("keyring: marshal: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o400); err != nil {
		return fmt.Errorf("keyring: write %s: %w", path, err)
	}
	return nil
}

// PeerID derives the overlay peer-id from the public key.
func (id *Identity) PeerID() (peer.ID, error) {
	return peer.IDFromPublicKey(id.pub)
}

// PublicKeyBytes returns the raw 32-byte Ed25519 public key.
func (id *Identity) PublicKeyBytes() ([]byte, error) {
	return id.pub.Raw()
}

// SS58 derives the SS58-encoded account address for the given network
// prefix (42, per spec §6).
func (id *Identity) SS58(prefix uint8) (string, error) {
	pub, err := id.pub.Raw()
	if err != nil {
		return "", fmt.Errorf("keyring: raw public key: %w", err)
	}
	return ss58.Encode(pub, prefix), nil
}

// SignerFn returns a closure that signs messages with this identity's
// private key, mirroring the teacher's Oasys.signFn injection.
func (id *Identity) SignerFn() SignerFn {
	return func(message []byte) ([]byte, error) {
		return id.priv.Sign(message)
	}
}

// PrivKey exposes the underlying libp2p private key for constructing
// a libp2p host (the DHT handle's transport identity).
func (id *Identity) PrivKey() libp2pcrypto.PrivKey {
	return id.priv
}
