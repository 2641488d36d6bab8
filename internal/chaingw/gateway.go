// Package chaingw is the Chain Gateway (spec §4.1): typed,
// retry-wrapped access to the external Substrate-style chain that
// records subnet membership, stake, and per-epoch consensus data.
//
// Grounded on go-substrate-rpc-client/v4 (gsrpc), a real SCALE/SS58
// Substrate client — see other_examples/6c944c18_...: sequencer.go
// which imports the same library's signature and types packages for
// an Avail/Substrate chain. The retry combinator itself is hand-
// written per spec §9 (see retry.go) rather than imported, since the
// teacher's go-retryablehttp dependency is HTTP-specific.
package chaingw

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	lru "github.com/hashicorp/golang-lru"
	"github.com/ethereum/go-ethereum/log"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// errExhausted signals that every retry attempt failed; callers
// convert this into the spec's "None"/missing semantics (see retry in
// retry.go), never into a propagated error.
var errExhausted = errors.New("chaingw: rpc retries exhausted")

// SS58Prefix is the network prefix the spec requires, §6.
const SS58Prefix = 42

// Gateway is the Chain Gateway: process-wide, stateless beyond its
// connection handle and a small constant cache (spec §3 "Ownership").
type Gateway struct {
	api    *gsrpc.SubstrateAPI
	policy retryPolicy

	// signer is the identity used for validate/attest/activate_subnet
	// extrinsics: whichever key pair the caller passes to New
	// (cmd/subnetnode passes the one derived from its --phrase-env
	// variable). The gateway has no separate hotkey.
	signer signature.KeyringPair

	epochLengthMu   sync.Mutex
	epochLength     uint64
	haveEpochLength bool

	validatorCache *lru.Cache // (subnetID,epoch) -> coldkey SS58, safe since a chain-assigned validator never changes once set
}

// New connects to endpoint (LOCAL_RPC or DEV_RPC per spec §6) and
// returns a ready Gateway. signer is the coldkey or hotkey whose
// seed/URI authorizes state-changing extrinsics.
func New(endpoint string, signer signature.KeyringPair) (*Gateway, error) {
	api, err := gsrpc.NewSubstrateAPI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("chaingw: connect %s: %w", endpoint, err)
	}
	cache, _ := lru.New(256)
	return &Gateway{
		api:            api,
		policy:         defaultRetryPolicy(),
		signer:         signer,
		validatorCache: cache,
	}, nil
}

// GetBlockNumber returns the current chain height.
func (g *Gateway) GetBlockNumber(ctx context.Context) (uint64, bool) {
	n, err := retry(ctx, g.policy, "get_block_number", func(ctx context.Context) (uint64, error) {
		header, err := g.api.RPC.Chain.GetHeaderLatest()
		if err != nil {
			return 0, err
		}
		return uint64(header.Number), nil
	})
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetEpochLength returns the chain constant EpochLength, caching it
// safely since chain constants never change mid-run (spec §4.1). Only
// a successful read is cached, so a transient RPC failure on the
// first call doesn't wedge every later call into permanent failure.
// Grounded on the teacher's schedulerCache/environment-value caching
// idiom in consensus/oasys/oasys.go.
func (g *Gateway) GetEpochLength(ctx context.Context) (uint64, bool) {
	g.epochLengthMu.Lock()
	defer g.epochLengthMu.Unlock()

	if g.haveEpochLength {
		return g.epochLength, true
	}

	length, err := retry(ctx, g.policy, "get_epoch_length", func(ctx context.Context) (uint64, error) {
		meta, err := g.api.RPC.State.GetMetadataLatest()
		if err != nil {
			return 0, err
		}
		var length types.U64
		ok, err := meta.FindConstantValue("Network", "EpochLength", &length)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, errors.New("chaingw: EpochLength constant not found")
		}
		return uint64(length), nil
	})
	if err != nil {
		return 0, false
	}
	g.epochLength = length
	g.haveEpochLength = true
	return g.epochLength, true
}

// GetSubnetIDByPath resolves a subnet's numeric id from its path.
func (g *Gateway) GetSubnetIDByPath(ctx context.Context, path string) (uint32, bool) {
	id, err := retry(ctx, g.policy, "get_subnet_id_by_path", func(ctx context.Context) (uint32, error) {
		return g.queryU32(ctx, "Network", "SubnetPaths", []byte(path))
	})
	if err != nil {
		return 0, false
	}
	return id, true
}

// GetSubnetData reads the subnet descriptor, spec §3.
func (g *Gateway) GetSubnetData(ctx context.Context, subnetID uint32) (*chaintypes.SubnetDescriptor, bool) {
	desc, err := retry(ctx, g.policy, "get_subnet_data", func(ctx context.Context) (*chaintypes.SubnetDescriptor, error) {
		return g.queryStorage(ctx, "Network", "SubnetsData", subnetID, decodeSubnetDescriptor)
	})
	if err != nil || desc == nil {
		return nil, false
	}
	return desc, true
}

// GetIncludedNodes returns every node whose classification is at
// least Included, spec §4.1.
func (g *Gateway) GetIncludedNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool) {
	nodes, err := retry(ctx, g.policy, "get_included_nodes", func(ctx context.Context) ([]chaintypes.SubnetNodeRecord, error) {
		return g.queryNodeClass(ctx, subnetID, chaintypes.Included)
	})
	if err != nil {
		return nil, false
	}
	return nodes, true
}

// GetSubmittableNodes returns every Submittable node, spec §4.1.
func (g *Gateway) GetSubmittableNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool) {
	nodes, err := retry(ctx, g.policy, "get_submittable_nodes", func(ctx context.Context) ([]chaintypes.SubnetNodeRecord, error) {
		return g.queryNodeClass(ctx, subnetID, chaintypes.Submittable)
	})
	if err != nil {
		return nil, false
	}
	return nodes, true
}

// GetRewardsValidator returns the chain-assigned validator for
// (subnetID, epoch). ok=false means "not yet assigned" per spec §4.1
// ("None means the chain has not yet assigned one") — callers must
// re-poll, not treat this as a permanent failure.
func (g *Gateway) GetRewardsValidator(ctx context.Context, subnetID uint32, epoch uint64) (coldkey string, ok bool) {
	if cached, found := g.validatorCache.Get(cacheKeyValidator{subnetID, epoch}); found {
		return cached.(string), true
	}
	addr, err := retry(ctx, g.policy, "get_rewards_validator", func(ctx context.Context) (string, error) {
		return g.queryValidator(ctx, subnetID, epoch)
	})
	if err != nil || addr == "" {
		return "", false
	}
	g.validatorCache.Add(cacheKeyValidator{subnetID, epoch}, addr)
	return addr, true
}

type cacheKeyValidator struct {
	subnetID uint32
	epoch    uint64
}

// GetRewardsSubmission returns the validator's submission for an
// epoch, if any, spec §4.1.
func (g *Gateway) GetRewardsSubmission(ctx context.Context, subnetID uint32, epoch uint64) (*chaintypes.RewardsSubmission, bool) {
	sub, err := retry(ctx, g.policy, "get_rewards_submission", func(ctx context.Context) (*chaintypes.RewardsSubmission, error) {
		return g.queryRewardsSubmission(ctx, subnetID, epoch)
	})
	if err != nil || sub == nil {
		return nil, false
	}
	return sub, true
}

// GetRewardResult returns the chain's reward-result attestation
// percentage for (subnetID, epoch), scaled parts-per-1e9 to match the
// chain's own fixed-point event payload, spec §4.6 rule 4's "chain
// reward-result event". ok=false means the event is not yet emitted.
func (g *Gateway) GetRewardResult(ctx context.Context, subnetID uint32, epoch uint64) (uint64, bool) {
	pct, err := retry(ctx, g.policy, "get_reward_result", func(ctx context.Context) (uint64, error) {
		return g.queryRewardResult(ctx, subnetID, epoch)
	})
	if err != nil {
		return 0, false
	}
	return pct, true
}

// SubmitValidate submits an incentives vector as the epoch validator,
// spec §4.1. The gateway never retries a state-changing extrinsic
// within a single logical call — idempotency is the caller's
// responsibility via GetRewardsSubmission re-check, per spec §4.1.
func (g *Gateway) SubmitValidate(ctx context.Context, subnetID uint32, vector chaintypes.IncentivesVector) chaintypes.Receipt {
	return g.submitExtrinsic(ctx, "Network", "validate", subnetID, vector)
}

// SubmitAttest submits an attestation for the current epoch's
// validator submission, spec §4.1.
func (g *Gateway) SubmitAttest(ctx context.Context, subnetID uint32) chaintypes.Receipt {
	return g.submitExtrinsic(ctx, "Network", "attest", subnetID)
}

// ActivateSubnet submits the activation extrinsic, spec §4.1/§4.5.a.
// Success requires both receipt.IsSuccess and a SubnetActivated event.
func (g *Gateway) ActivateSubnet(ctx context.Context, subnetID uint32) chaintypes.Receipt {
	return g.submitExtrinsic(ctx, "Network", "activate_subnet", subnetID)
}

// Close logs that the gateway is shutting down. It does not close the
// underlying RPC connection.
func (g *Gateway) Close() {
	log.Info("chaingw: closing gateway")
}
