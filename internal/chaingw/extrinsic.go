package chaingw

import (
	"context"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// submitExtrinsic builds, signs and submits a call, waiting for
// inclusion in a block before returning. Grounded on the gsrpc
// sign-and-submit pattern used for Avail/Substrate extrinsics in
// other_examples/6c944c18_...: sequencer.go.
func (g *Gateway) submitExtrinsic(ctx context.Context, module, call string, args ...interface{}) chaintypes.Receipt {
	meta, err := g.api.RPC.State.GetMetadataLatest()
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: metadata: %w", err)}
	}

	c, err := types.NewCall(meta, module+"."+call, args...)
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: build call %s.%s: %w", module, call, err)}
	}

	ext := types.NewExtrinsic(c)

	genesisHash, err := g.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: genesis hash: %w", err)}
	}
	rv, err := g.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: runtime version: %w", err)}
	}

	key, err := types.CreateStorageKey(meta, "System", "Account", g.signer.PublicKey)
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: account key: %w", err)}
	}
	var accountInfo types.AccountInfo
	if ok, err := g.api.RPC.State.GetStorageLatest(key, &accountInfo); err != nil || !ok {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: account info: %w", err)}
	}

	nonce := uint32(accountInfo.Nonce)
	opts := types.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		GenesisHash:        genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}

	if err := ext.Sign(g.signer, opts); err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: sign: %w", err)}
	}

	sub, err := g.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return chaintypes.Receipt{Err: fmt.Errorf("chaingw: submit: %w", err)}
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return chaintypes.Receipt{Err: ctx.Err()}
		case status := <-sub.Chan():
			if status.IsInBlock {
				return chaintypes.Receipt{Success: true, Events: []string{status.AsInBlock.Hex()}}
			}
			if status.IsDropped || status.IsInvalid || status.IsUsurped {
				return chaintypes.Receipt{Success: false, Err: fmt.Errorf("chaingw: extrinsic %s.%s rejected", module, call)}
			}
		}
	}
}
