package dht

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) crypto.PrivKey {
	t.Helper()
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	return priv
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newRecordStore()
	priv := newTestKey(t)

	require.NoError(t, store.Put("blk.0", priv, []byte("span=0-4"), time.Minute))

	entries, err := store.Get("blk.0")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("span=0-4"), entries[0].Value)

	wantWriter, err := subkeyDiscipline(priv.GetPublic())
	require.NoError(t, err)
	gotWriter, err := writerFromSubkey(wantWriter)
	require.NoError(t, err)
	assert.Equal(t, gotWriter, entries[0].Writer)
}

func TestGetExcludesExpiredEntries(t *testing.T) {
	store := newRecordStore()
	priv := newTestKey(t)

	require.NoError(t, store.Put("blk.0", priv, []byte("stale"), -time.Second))

	entries, err := store.Get("blk.0")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTwoWritersKeepDistinctSubkeys(t *testing.T) {
	store := newRecordStore()
	a, b := newTestKey(t), newTestKey(t)

	require.NoError(t, store.Put("rps.3", a, []byte("from-a"), time.Minute))
	require.NoError(t, store.Put("rps.3", b, []byte("from-b"), time.Minute))

	entries, err := store.Get("rps.3")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSweepExpiredRemovesStaleEntriesAndEmptyBuckets(t *testing.T) {
	store := newRecordStore()
	priv := newTestKey(t)
	require.NoError(t, store.Put("blk.0", priv, []byte("stale"), -time.Second))

	store.sweepExpired()

	store.mu.Lock()
	_, exists := store.data["blk.0"]
	store.mu.Unlock()
	assert.False(t, exists)
}

func TestAdoptRemoteKeepsLaterExpiry(t *testing.T) {
	store := newRecordStore()
	priv := newTestKey(t)
	pub := priv.GetPublic()
	subkey, err := subkeyDiscipline(pub)
	require.NoError(t, err)

	now := time.Now()
	store.adoptRemote("blk.0", subkey, []byte("old"), []byte("sig1"), pub, now.Add(time.Minute))
	store.adoptRemote("blk.0", subkey, []byte("stale-write"), []byte("sig2"), pub, now.Add(30*time.Second))

	store.mu.Lock()
	got := store.data["blk.0"][subkey]
	store.mu.Unlock()
	assert.Equal(t, []byte("old"), got.value)
}

func TestWriterFromSubkeyRejectsMalformed(t *testing.T) {
	_, err := writerFromSubkey("not-a-subkey")
	assert.Error(t, err)
}
