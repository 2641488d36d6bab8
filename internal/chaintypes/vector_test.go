package chaintypes

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPeer(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	pid, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return pid
}

func TestSortByPeerIDIsByteLexAndStable(t *testing.T) {
	a, b, c := newPeer(t), newPeer(t), newPeer(t)
	v := IncentivesVector{
		{PeerID: c, Score: big.NewInt(3)},
		{PeerID: a, Score: big.NewInt(1)},
		{PeerID: b, Score: big.NewInt(2)},
	}
	sorted := v.SortByPeerID()
	require.Len(t, sorted, 3)
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, bytes.Compare([]byte(sorted[i-1].PeerID), []byte(sorted[i].PeerID)), 0)
	}
	// original is untouched
	assert.Equal(t, c, v[0].PeerID)
}

func TestEqualIgnoresOrder(t *testing.T) {
	a, b := newPeer(t), newPeer(t)
	v1 := IncentivesVector{{PeerID: a, Score: big.NewInt(1)}, {PeerID: b, Score: big.NewInt(2)}}
	v2 := IncentivesVector{{PeerID: b, Score: big.NewInt(2)}, {PeerID: a, Score: big.NewInt(1)}}
	assert.True(t, Equal(v1, v2))
}

func TestEqualDetectsScoreDifference(t *testing.T) {
	a := newPeer(t)
	v1 := IncentivesVector{{PeerID: a, Score: big.NewInt(1)}}
	v2 := IncentivesVector{{PeerID: a, Score: big.NewInt(2)}}
	assert.False(t, Equal(v1, v2))
}

func TestSubsetAndSymmetricDifference(t *testing.T) {
	a, b, c := newPeer(t), newPeer(t), newPeer(t)
	super := IncentivesVector{
		{PeerID: a, Score: big.NewInt(1)},
		{PeerID: b, Score: big.NewInt(2)},
	}
	sub := IncentivesVector{{PeerID: a, Score: big.NewInt(1)}}
	assert.True(t, Subset(sub, super))

	notSub := IncentivesVector{{PeerID: c, Score: big.NewInt(9)}}
	assert.False(t, Subset(notSub, super))

	diff := SymmetricDifference(sub, super)
	require.Len(t, diff, 1)
	assert.Equal(t, b, diff[0].PeerID)
}

func TestContainsPeerID(t *testing.T) {
	a, b := newPeer(t), newPeer(t)
	v := IncentivesVector{{PeerID: a, Score: big.NewInt(1)}}
	assert.True(t, ContainsPeerID(v, a.String()))
	assert.False(t, ContainsPeerID(v, b.String()))
}
