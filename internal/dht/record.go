package dht

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// subkeyDiscipline embeds "[owner:<peer-id>]" into a subkey string, per
// spec §6, where peer-id is derived from the writer's public key (for
// Ed25519 the peer-id inlines the key), so a record's writer peer-id
// can be extracted on read and checked against the signing key.
func subkeyDiscipline(pub crypto.PubKey) (string, error) {
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[owner:%s]", id.String()), nil
}

// writerFromSubkey extracts the provenance peer-id a subkey encodes.
func writerFromSubkey(subkey string) (peer.ID, error) {
	if !strings.HasPrefix(subkey, "[owner:") || !strings.HasSuffix(subkey, "]") {
		return "", fmt.Errorf("dht: malformed subkey %q", subkey)
	}
	encoded := strings.TrimSuffix(strings.TrimPrefix(subkey, "[owner:"), "]")
	return peer.Decode(encoded)
}

type recordEntry struct {
	value    []byte
	sig      []byte
	pub      crypto.PubKey
	expireAt time.Time
}

// recordStore is a keyed, authenticated, subkey-per-writer value
// store with per-entry TTL. It implements the "keyed authenticated
// record store with subkey-per-writer semantics and expirations"
// abstraction spec §1 treats as an external collaborator; kept here
// only because the retrieved corpus has no Kademlia-DHT package to
// stand in for it (see DESIGN.md).
type recordStore struct {
	mu   sync.Mutex
	data map[string]map[string]recordEntry
}

func newRecordStore() *recordStore {
	return &recordStore{data: make(map[string]map[string]recordEntry)}
}

// Put signs value with priv and stores it under key/subkey(priv's
// public key), expiring after ttl.
func (s *recordStore) Put(key string, priv crypto.PrivKey, value []byte, ttl time.Duration) error {
	sig, err := priv.Sign(value)
	if err != nil {
		return fmt.Errorf("dht: sign record: %w", err)
	}
	subkey, err := subkeyDiscipline(priv.GetPublic())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[key]
	if !ok {
		bucket = make(map[string]recordEntry)
		s.data[key] = bucket
	}
	bucket[subkey] = recordEntry{
		value:    value,
		sig:      sig,
		pub:      priv.GetPublic(),
		expireAt: time.Now().Add(ttl),
	}
	return nil
}

// entry is a verified, non-expired record plus its writer's peer-id.
type entry struct {
	Writer peer.ID
	Value  []byte
}

// Get returns every non-expired, signature-valid record at key,
// keyed by the writer peer-id extracted from its subkey.
func (s *recordStore) Get(key string) ([]entry, error) {
	s.mu.Lock()
	bucket := s.data[key]
	// Copy entries under the lock, verify outside it.
	snapshot := make(map[string]recordEntry, len(bucket))
	for k, v := range bucket {
		snapshot[k] = v
	}
	s.mu.Unlock()

	now := time.Now()
	out := make([]entry, 0, len(snapshot))
	for subkey, rec := range snapshot {
		if now.After(rec.expireAt) {
			continue
		}
		ok, err := rec.pub.Verify(rec.value, rec.sig)
		if err != nil || !ok {
			continue
		}
		writer, err := writerFromSubkey(subkey)
		if err != nil || !writer.MatchesPublicKey(rec.pub) {
			continue
		}
		out = append(out, entry{Writer: writer, Value: rec.value})
	}
	return out, nil
}

// adoptRemote stores a record fetched (and already signature-verified)
// from a remote peer, keyed by the subkey it arrived under. Whichever
// record under the subkey expires later is kept; on equal expiry the
// incoming record replaces the existing one, whether that one was
// written locally or adopted earlier.
func (s *recordStore) adoptRemote(key, subkey string, value, sig []byte, pub crypto.PubKey, expireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[key]
	if !ok {
		bucket = make(map[string]recordEntry)
		s.data[key] = bucket
	}
	if existing, ok := bucket[subkey]; ok && existing.expireAt.After(expireAt) {
		return
	}
	bucket[subkey] = recordEntry{value: value, sig: sig, pub: pub, expireAt: expireAt}
}

// sweepExpired removes expired entries; called opportunistically so
// the store doesn't grow unbounded between reads.
func (s *recordStore) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, bucket := range s.data {
		for subkey, rec := range bucket {
			if now.After(rec.expireAt) {
				delete(bucket, subkey)
			}
		}
		if len(bucket) == 0 {
			delete(s.data, key)
		}
	}
}
