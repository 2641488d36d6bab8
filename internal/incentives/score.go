// Package incentives is the Incentives Engine (spec §4.4): combines
// the Overlay View and, optionally, RPS samples into a deterministic
// per-peer incentives vector.
//
// Grounded on the teacher's pervasive use of math/big for on-chain
// amounts (environment_value.go, scheduler.go) rather than floats, so
// the final scores this engine emits match the 18-decimal fixed-point
// convention the teacher uses everywhere a reward amount crosses a
// package boundary.
package incentives

import (
	"math"
	"math/big"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
)

// fixedPointScale is 10^18, the fixed-point precision spec §4.4 uses
// for both scoring modes.
var fixedPointScale = new(big.Float).SetFloat64(1e18)

// relayPenalty is spec §8 scenario S4's using_relay multiplier: a peer
// reachable only through a relayed connection has its base score cut
// to 0.67 of what a direct connection would earn.
const relayPenalty = 0.67

func relayAdjusted(val float64, usingRelay bool) float64 {
	if usingRelay {
		return val * relayPenalty
	}
	return val
}

// blockWeightScore computes spec §4.4's block-weight-only score:
//
//	share = (e-s)/num_blocks
//	k     = 100 * (num_blocks_per_layer/total_blocks)
//	score = floor((k*share^2 + share) * 10^18)
//
// usingRelay applies spec §8 scenario S4's 0.67 relay penalty.
func blockWeightScore(share, k float64, usingRelay bool) *big.Int {
	val := k*share*share + share
	return floorFixedPoint(relayAdjusted(val, usingRelay))
}

func floorFixedPoint(val float64) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(val), fixedPointScale)
	i, _ := scaled.Int(nil)
	return i
}

// ScoreBlockWeight implements spec §4.4's default mode across every
// ServerRow, with k derived from numBlocksPerLayer/totalBlocks.
func ScoreBlockWeight(rows []overlay.ServerRow, numBlocksPerLayer, totalBlocks uint64) chaintypes.IncentivesVector {
	if totalBlocks == 0 {
		return nil
	}
	k := 100.0 * float64(numBlocksPerLayer) / float64(totalBlocks)

	vec := make(chaintypes.IncentivesVector, 0, len(rows))
	for _, row := range rows {
		share := row.BlocksServedRatio
		vec = append(vec, chaintypes.ScoredPeer{
			PeerID: row.PeerID,
			Score:  blockWeightScore(share, k, row.UsingRelay),
		})
	}
	return vec.SortByPeerID()
}

const (
	blockWeight = 0.5
	rpsWeight   = 0.5
)

// ScoreBlockAndRPS implements spec §4.4's block+RPS-weighted mode.
// perPeerRPS must already be aggregated and outlier-filtered (see
// aggregate.go); a peer with no entry is treated as rps=0.
func ScoreBlockAndRPS(rows []overlay.ServerRow, perPeerRPS map[string]float64) chaintypes.IncentivesVector {
	var totalSpan, totalRPS float64
	for _, row := range rows {
		totalSpan += float64(row.Span())
		totalRPS += perPeerRPS[row.PeerID.String()]
	}

	vec := make(chaintypes.IncentivesVector, 0, len(rows))
	for _, row := range rows {
		rpsShare := 0.0
		if totalRPS > 0 {
			rpsShare = perPeerRPS[row.PeerID.String()] / totalRPS
		}
		spanShare := 0.0
		if totalSpan > 0 {
			spanShare = float64(row.Span()) / totalSpan
		}

		rpsScore := math.Round(rpsShare*1e4) * rpsWeight
		spanScore := math.Round(spanShare*1e4) * blockWeight
		final := rpsScore + spanScore

		vec = append(vec, chaintypes.ScoredPeer{
			PeerID: row.PeerID,
			Score:  floorFixedPoint(relayAdjusted(final, row.UsingRelay)),
		})
	}
	return vec.SortByPeerID()
}
