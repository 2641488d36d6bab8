package incentives

import (
	"crypto/rand"
	"math/big"
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
)

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	pid, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return pid
}

func TestScoreBlockWeightFullSpanScoresHighest(t *testing.T) {
	full := newTestPeerID(t)
	half := newTestPeerID(t)

	rows := []overlay.ServerRow{
		{PeerID: full, Start: 0, End: 100, NumBlocks: 100, BlocksServedRatio: 1.0},
		{PeerID: half, Start: 0, End: 50, NumBlocks: 100, BlocksServedRatio: 0.5},
	}

	vec := ScoreBlockWeight(rows, 10, 100)
	require.Len(t, vec, 2)

	var fullScore, halfScore string
	for _, sp := range vec {
		if sp.PeerID == full {
			fullScore = sp.Score.String()
		}
		if sp.PeerID == half {
			halfScore = sp.Score.String()
		}
	}
	assert.NotEqual(t, fullScore, halfScore)
}

func TestScoreBlockWeightEmptyRows(t *testing.T) {
	vec := ScoreBlockWeight(nil, 10, 100)
	assert.Empty(t, vec)
}

func TestScoreBlockWeightZeroTotalBlocks(t *testing.T) {
	vec := ScoreBlockWeight(nil, 10, 0)
	assert.Nil(t, vec)
}

func TestScoreBlockWeightAppliesRelayPenalty(t *testing.T) {
	direct := newTestPeerID(t)
	relayed := newTestPeerID(t)

	rows := []overlay.ServerRow{
		{PeerID: direct, Start: 0, End: 100, NumBlocks: 100, BlocksServedRatio: 1.0},
		{PeerID: relayed, Start: 0, End: 100, NumBlocks: 100, BlocksServedRatio: 1.0, UsingRelay: true},
	}

	vec := ScoreBlockWeight(rows, 10, 100)
	require.Len(t, vec, 2)

	var directScore, relayedScore *big.Int
	for _, sp := range vec {
		if sp.PeerID == direct {
			directScore = sp.Score
		}
		if sp.PeerID == relayed {
			relayedScore = sp.Score
		}
	}

	// k = 100*(10/100) = 10, share = 1.0, base = k*share^2+share = 11;
	// relayed score = floor(0.67*11*1e18).
	want := floorFixedPoint(0.67 * 11)
	assert.Equal(t, want, relayedScore)
	assert.True(t, relayedScore.Cmp(directScore) < 0)
}

func TestScoreBlockAndRPSNoSamplesStillWeightsByBlockShare(t *testing.T) {
	a := newTestPeerID(t)
	b := newTestPeerID(t)
	rows := []overlay.ServerRow{
		{PeerID: a, Start: 0, End: 80, NumBlocks: 100},
		{PeerID: b, Start: 0, End: 20, NumBlocks: 100},
	}
	vec := ScoreBlockAndRPS(rows, nil)
	require.Len(t, vec, 2)
	for _, sp := range vec {
		assert.NotNil(t, sp.Score)
	}
}
