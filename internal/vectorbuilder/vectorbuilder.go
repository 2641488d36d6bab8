// Package vectorbuilder wires the Overlay View (C2), RPS Probe (C3)
// and Incentives Engine (C4) behind the single epoch.VectorBuilder
// call the Epoch Loop uses, spec §4.4/§5: "The RPS Probe is called
// synchronously from within the validator's build-vector step."
package vectorbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/incentives"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/nodeconfig"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/rps"
)

// IncludedNodesGateway is the one chaingw.Gateway method Build needs,
// narrowed at point of use so this package is unit-testable without a
// live chain connection.
type IncludedNodesGateway interface {
	GetIncludedNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool)
}

// Builder implements epoch.VectorBuilder.
type Builder struct {
	Gateway        IncludedNodesGateway
	Handle         dht.Handle
	View           *overlay.View
	Prober         *rps.Prober
	SubnetID       uint32
	NumBlocks      int
	BlocksPerLayer uint64
	Mode           nodeconfig.ScoringMode
	RPSTTL         time.Duration
}

// Build implements spec §4.2-§4.4 end to end for one epoch.
func (b *Builder) Build(ctx context.Context, epoch uint64) (chaintypes.IncentivesVector, error) {
	included, ok := b.Gateway.GetIncludedNodes(ctx, b.SubnetID)
	if !ok {
		return nil, fmt.Errorf("vectorbuilder: included nodes unavailable")
	}

	rows, err := b.View.Compute(ctx, b.NumBlocks, included)
	if err != nil {
		return nil, fmt.Errorf("vectorbuilder: overlay view: %w", err)
	}

	if b.Mode != nodeconfig.ScoringBlockAndRPS {
		return incentives.ScoreBlockWeight(rows, b.BlocksPerLayer, uint64(b.NumBlocks)), nil
	}

	if b.Prober != nil {
		if _, err := b.Prober.ProbeAll(ctx, epoch, rows, b.RPSTTL); err != nil {
			// A probe publish failure degrades to block-weight-only for
			// this peer's own contribution but must not abort the
			// vector: other peers' previously published samples may
			// still be usable.
			_ = err
		}
	}

	samples, err := b.Handle.GetRPSSamples(ctx, epoch)
	if err != nil {
		return nil, fmt.Errorf("vectorbuilder: rps samples: %w", err)
	}

	perPeerRPS := incentives.AggregateRPS(rows, samples)
	return incentives.ScoreBlockAndRPS(rows, perPeerRPS), nil
}
