package chaingw

import (
	"context"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// queryU32 reads a single u32 storage value keyed by an arbitrary
// SCALE-encodable map key, used for SubnetPaths lookups.
func (g *Gateway) queryU32(ctx context.Context, module, item string, mapKey []byte) (uint32, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return 0, err
	}
	key, err := types.CreateStorageKey(meta, module, item, mapKey)
	if err != nil {
		return 0, err
	}
	var out types.U32
	ok, err := g.api.RPC.State.GetStorageLatest(key, &out)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("chaingw: %s.%s not set", module, item)
	}
	return uint32(out), nil
}

// queryStorage reads and decodes one storage item of subnetID into
// a *chaintypes.SubnetDescriptor using decode, returning (nil, nil)
// when the key is unset.
func (g *Gateway) queryStorage(ctx context.Context, module, item string, subnetID uint32, decode func(raw types.StorageDataRaw) (*chaintypes.SubnetDescriptor, error)) (*chaintypes.SubnetDescriptor, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, err
	}
	key, err := types.CreateStorageKey(meta, module, item, types.NewU32(subnetID).Encode)
	if err != nil {
		return nil, err
	}
	raw, err := g.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return nil, err
	}
	if raw == nil || len(*raw) == 0 {
		return nil, nil
	}
	return decode(*raw)
}

// decodeSubnetDescriptor decodes the SCALE-encoded subnet descriptor,
// spec §3's SubnetDescriptor shape.
func decodeSubnetDescriptor(raw types.StorageDataRaw) (*chaintypes.SubnetDescriptor, error) {
	decoder := types.ScaleDecoder{}
	decoder.Init(types.ScaleBytes{Data: raw})

	var d chaintypes.SubnetDescriptor
	d.SubnetID = uint32(decoder.ProcessAndUpdateData("U32").(uint32))
	d.Path = decoder.ProcessAndUpdateData("string").(string)
	d.MemoryMB = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	d.NumBlocks = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	d.InitializedBlock = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	d.RegistrationBlocks = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	d.ActivatedBlock = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	return &d, nil
}

// queryNodeClass returns every subnet-node record at or above min,
// spec §4.1's get_included_nodes/get_submittable_nodes. Both read
// the same SubnetNodes double-map and filter client-side since
// Classification is a monotonic ladder (spec §3).
func (g *Gateway) queryNodeClass(ctx context.Context, subnetID uint32, min chaintypes.Classification) ([]chaintypes.SubnetNodeRecord, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, err
	}
	prefix, err := types.CreateStorageKey(meta, "Network", "SubnetNodes", types.NewU32(subnetID).Encode)
	if err != nil {
		return nil, err
	}
	keys, err := g.api.RPC.State.GetKeysLatest(prefix)
	if err != nil {
		return nil, err
	}

	var out []chaintypes.SubnetNodeRecord
	for _, k := range keys {
		raw, err := g.api.RPC.State.GetStorageRawLatest(k)
		if err != nil || raw == nil {
			continue
		}
		rec, err := decodeSubnetNodeRecord(*raw)
		if err != nil {
			continue
		}
		if rec.Classification >= min {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func decodeSubnetNodeRecord(raw types.StorageDataRaw) (*chaintypes.SubnetNodeRecord, error) {
	decoder := types.ScaleDecoder{}
	decoder.Init(types.ScaleBytes{Data: raw})

	var rec chaintypes.SubnetNodeRecord
	rec.Coldkey = decoder.ProcessAndUpdateData("string").(string)
	rec.Hotkey = decoder.ProcessAndUpdateData("string").(string)
	peerBytes := decoder.ProcessAndUpdateData("[38]U8").([]byte)
	pid, err := peer.IDFromBytes(peerBytes)
	if err != nil {
		return nil, fmt.Errorf("chaingw: decode peer id: %w", err)
	}
	rec.PeerID = pid
	rec.InitializedEpoch = uint64(decoder.ProcessAndUpdateData("U64").(uint64))
	rec.Classification = chaintypes.Classification(decoder.ProcessAndUpdateData("U8").(uint8))
	var err128 error
	if rec.A, err128 = decodeU128(decoder.ProcessAndUpdateData("U128")); err128 != nil {
		return nil, fmt.Errorf("chaingw: decode A: %w", err128)
	}
	if rec.B, err128 = decodeU128(decoder.ProcessAndUpdateData("U128")); err128 != nil {
		return nil, fmt.Errorf("chaingw: decode B: %w", err128)
	}
	if rec.C, err128 = decodeU128(decoder.ProcessAndUpdateData("U128")); err128 != nil {
		return nil, fmt.Errorf("chaingw: decode C: %w", err128)
	}
	return &rec, nil
}

// decodeU128 converts a decoded U128 value into a *big.Int. The scale
// decoder returns 128-bit integers as a decimal string rather than a
// Go numeric type, since they don't fit uint64, spec §3's A/B/C and
// score fields being 1e18-scaled fixed-point amounts that routinely
// exceed 2^64-1.
func decodeU128(v interface{}) (*big.Int, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("chaingw: unexpected U128 representation %T", v)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("chaingw: invalid U128 decimal %q", s)
	}
	return n, nil
}

// queryValidator reads the chain-assigned validator coldkey for
// (subnetID, epoch); "" means not yet assigned.
func (g *Gateway) queryValidator(ctx context.Context, subnetID uint32, epoch uint64) (string, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return "", err
	}
	key, err := types.CreateStorageKey(meta, "Network", "RewardsValidator",
		types.NewU32(subnetID).Encode, types.NewU64(epoch).Encode)
	if err != nil {
		return "", err
	}
	var out types.Text
	ok, err := g.api.RPC.State.GetStorageLatest(key, &out)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return string(out), nil
}

// queryRewardResult reads the chain's reward-result event payload for
// (subnetID, epoch): the percentage of submittable nodes that attested
// the epoch's validator submission, scaled parts-per-1e9. Returns an
// error (never a bare zero) when the event has not been emitted yet,
// so the retry wrapper's "missing" semantics apply.
func (g *Gateway) queryRewardResult(ctx context.Context, subnetID uint32, epoch uint64) (uint64, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return 0, err
	}
	key, err := types.CreateStorageKey(meta, "Network", "RewardResult",
		types.NewU32(subnetID).Encode, types.NewU64(epoch).Encode)
	if err != nil {
		return 0, err
	}
	var out types.U64
	ok, err := g.api.RPC.State.GetStorageLatest(key, &out)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("chaingw: reward result for subnet %d epoch %d not yet available", subnetID, epoch)
	}
	return uint64(out), nil
}

// queryRewardsSubmission reads the validator's submitted incentives
// vector and the coldkeys that have attested it so far, spec §4.1.
func (g *Gateway) queryRewardsSubmission(ctx context.Context, subnetID uint32, epoch uint64) (*chaintypes.RewardsSubmission, error) {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return nil, err
	}
	key, err := types.CreateStorageKey(meta, "Network", "RewardsSubmission",
		types.NewU32(subnetID).Encode, types.NewU64(epoch).Encode)
	if err != nil {
		return nil, err
	}
	raw, err := g.api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return nil, err
	}
	if raw == nil || len(*raw) == 0 {
		return nil, nil
	}

	decoder := types.ScaleDecoder{}
	decoder.Init(types.ScaleBytes{Data: *raw})

	n := decoder.ProcessAndUpdateData("Compact<u32>").(uint64)
	sub := &chaintypes.RewardsSubmission{Data: make(chaintypes.IncentivesVector, 0, n)}
	for i := uint64(0); i < n; i++ {
		peerBytes := decoder.ProcessAndUpdateData("[38]U8").([]byte)
		pid, err := peer.IDFromBytes(peerBytes)
		if err != nil {
			return nil, err
		}
		score, err := decodeU128(decoder.ProcessAndUpdateData("U128"))
		if err != nil {
			return nil, fmt.Errorf("chaingw: decode score: %w", err)
		}
		sub.Data = append(sub.Data, chaintypes.ScoredPeer{PeerID: pid, Score: score})
	}
	m := decoder.ProcessAndUpdateData("Compact<u32>").(uint64)
	for i := uint64(0); i < m; i++ {
		sub.Attests = append(sub.Attests, decoder.ProcessAndUpdateData("string").(string))
	}
	return sub, nil
}
