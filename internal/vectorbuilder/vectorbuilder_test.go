package vectorbuilder

import (
	"context"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/nodeconfig"
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

type fakeGateway struct {
	nodes []chaintypes.SubnetNodeRecord
	ok    bool
}

func (f *fakeGateway) GetIncludedNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool) {
	return f.nodes, f.ok
}

type fakeHandle struct {
	records map[string]map[peer.ID]dht.ServerInfo
	samples map[peer.ID][]dht.RPSSample
}

func (f *fakeHandle) GetModuleInfo(ctx context.Context, blockUID string) (map[peer.ID]dht.ServerInfo, error) {
	return f.records[blockUID], nil
}
func (f *fakeHandle) PutModuleInfo(ctx context.Context, blockUID string, info dht.ServerInfo, ttl time.Duration) error {
	return nil
}
func (f *fakeHandle) Ping(ctx context.Context, p peer.ID) error { return nil }
func (f *fakeHandle) GetRPSSamples(ctx context.Context, epoch uint64) (map[peer.ID][]dht.RPSSample, error) {
	return f.samples, nil
}
func (f *fakeHandle) PutRPSSamples(ctx context.Context, epoch uint64, samples []dht.RPSSample, ttl time.Duration) error {
	return nil
}
func (f *fakeHandle) BootstrapPeers() []peer.ID { return nil }
func (f *fakeHandle) Close() error              { return nil }

func TestBuildBlockWeightModeScoresBySpan(t *testing.T) {
	a := newTestPeerID(t)
	b := newTestPeerID(t)

	records := map[string]map[peer.ID]dht.ServerInfo{
		"subnet-7.0": {a: {PeerID: a, State: dht.StateOnline}, b: {PeerID: b, State: dht.StateOnline}},
		"subnet-7.1": {a: {PeerID: a, State: dht.StateOnline}},
	}
	handle := &fakeHandle{records: records}
	gw := &fakeGateway{nodes: []chaintypes.SubnetNodeRecord{{PeerID: a}, {PeerID: b}}, ok: true}

	b1 := &Builder{
		Gateway:        gw,
		Handle:         handle,
		View:           overlay.New(handle, "subnet-7"),
		SubnetID:       7,
		NumBlocks:      2,
		BlocksPerLayer: 1,
		Mode:           nodeconfig.ScoringBlockWeight,
	}

	vec, err := b1.Build(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, vec, 2)

	var scoreA, scoreB *big.Int
	for _, sp := range vec {
		if sp.PeerID == a {
			scoreA = sp.Score
		}
		if sp.PeerID == b {
			scoreB = sp.Score
		}
	}
	require.Equal(t, 1, scoreA.Cmp(scoreB), "a spans both blocks and should outscore b")
}

func TestBuildFailsWhenIncludedNodesUnavailable(t *testing.T) {
	gw := &fakeGateway{ok: false}
	b1 := &Builder{Gateway: gw, Handle: &fakeHandle{}, SubnetID: 7, NumBlocks: 1}

	_, err := b1.Build(context.Background(), 1)
	require.Error(t, err)
}

func TestBuildBlockAndRPSModeUsesPublishedSamples(t *testing.T) {
	a := newTestPeerID(t)

	records := map[string]map[peer.ID]dht.ServerInfo{
		"subnet-9.0": {a: {PeerID: a, State: dht.StateOnline}},
	}
	samples := map[peer.ID][]dht.RPSSample{
		a: {{PeerID: a, DeviceRPS: 12.5, BlocksServedRatio: 1.0}},
	}
	handle := &fakeHandle{records: records, samples: samples}
	gw := &fakeGateway{nodes: []chaintypes.SubnetNodeRecord{{PeerID: a}}, ok: true}

	b1 := &Builder{
		Gateway:        gw,
		Handle:         handle,
		View:           overlay.New(handle, "subnet-9"),
		Prober:         nil, // no local inference session wired; rely on already-published samples
		SubnetID:       9,
		NumBlocks:      1,
		BlocksPerLayer: 1,
		Mode:           nodeconfig.ScoringBlockAndRPS,
	}

	vec, err := b1.Build(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, vec, 1)
	require.True(t, vec[0].Score.Sign() > 0)
}
