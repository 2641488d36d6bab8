package equivalence

import (
	"crypto/rand"
	"math/big"
	"testing"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

func newPeer(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := libp2pcrypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	pid, err := peer.IDFromPublicKey(pub)
	require.NoError(t, err)
	return pid
}

func sp(p peer.ID, score int64) chaintypes.ScoredPeer {
	return chaintypes.ScoredPeer{PeerID: p, Score: big.NewInt(score)}
}

func TestDecideBothEmpty(t *testing.T) {
	d := Decide(Input{})
	assert.True(t, d.Attest)
	assert.Equal(t, "both-empty", d.Rule)
}

func TestDecideExactMatch(t *testing.T) {
	a, b := newPeer(t), newPeer(t)
	v := chaintypes.IncentivesVector{sp(a, 10), sp(b, 20)}
	m := chaintypes.IncentivesVector{sp(b, 20), sp(a, 10)}
	d := Decide(Input{Validator: v, Mine: m})
	assert.True(t, d.Attest)
	assert.Equal(t, "exact-match", d.Rule)
}

func TestDecideSubsetOfPreviousEpoch(t *testing.T) {
	a, b, c := newPeer(t), newPeer(t), newPeer(t)
	validator := chaintypes.IncentivesVector{sp(a, 10), sp(b, 20)}
	mine := chaintypes.IncentivesVector{sp(a, 10), sp(b, 20), sp(c, 5)}
	// D = {c}; previous epoch data contains c, so D ⊆ P.
	d := Decide(Input{
		Validator:            validator,
		Mine:                 mine,
		HasPreviousEpochData: true,
		PreviousEpochData:    chaintypes.IncentivesVector{sp(c, 5)},
	})
	assert.True(t, d.Attest)
	assert.Equal(t, "subset-of-previous-epoch", d.Rule)
}

func TestDecideNotSubsetOfPreviousEpoch(t *testing.T) {
	a, b, c := newPeer(t), newPeer(t), newPeer(t)
	validator := chaintypes.IncentivesVector{sp(a, 10)}
	mine := chaintypes.IncentivesVector{sp(a, 10), sp(b, 1), sp(c, 1)}
	d := Decide(Input{
		Validator:            validator,
		Mine:                 mine,
		HasPreviousEpochData: true,
		PreviousEpochData:    chaintypes.IncentivesVector{sp(b, 1)}, // missing c
	})
	assert.False(t, d.Attest)
	assert.Equal(t, "not-subset-of-previous-epoch", d.Rule)
}

func TestDecideFirstEpochRatifiedPreviousValidator(t *testing.T) {
	a, b := newPeer(t), newPeer(t)
	validator := chaintypes.IncentivesVector{sp(a, 10)}
	mine := chaintypes.IncentivesVector{sp(a, 10), sp(b, 1)}
	d := Decide(Input{
		Validator:                 validator,
		Mine:                      mine,
		HasPreviousEpochData:      false,
		PreviousValidatorRatified: true,
		PreviousValidatorVector:   chaintypes.IncentivesVector{sp(b, 1)},
	})
	assert.True(t, d.Attest)
	assert.Equal(t, "subset-of-ratified-previous-validator", d.Rule)
}

func TestDecideNoBasisForEquivalence(t *testing.T) {
	a, b := newPeer(t), newPeer(t)
	validator := chaintypes.IncentivesVector{sp(a, 10)}
	mine := chaintypes.IncentivesVector{sp(a, 10), sp(b, 1)}
	d := Decide(Input{Validator: validator, Mine: mine})
	assert.False(t, d.Attest)
	assert.Equal(t, "no-basis-for-equivalence", d.Rule)
}

func TestQuorum(t *testing.T) {
	assert.True(t, Quorum(7, 8, 0.875))
	assert.False(t, Quorum(6, 8, 0.875))
	assert.False(t, Quorum(0, 0, 0.875))
}
