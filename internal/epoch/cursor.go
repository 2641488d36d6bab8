// Package epoch is the Epoch Loop (C5): the state machine that
// drives one node's per-block/per-epoch participation, spec §4.5.
//
// Grounded on the teacher's environment_value.go epoch arithmetic
// (Epoch/IsEpochStartBlock/EpochStartBlock) adapted from a fixed
// block-period chain config to numbers read live from the Chain
// Gateway, and on Oasys.snapshot()'s "walk forward until a terminal
// state, cache progress" shape for the loop body itself.
package epoch

import (
	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// Arithmetic wraps the block/epoch conversions spec §4.5.b step 1
// needs, mirroring environmentValue.Epoch/EpochStartBlock/
// IsEpochStartBlock but driven by a chain-reported epoch length
// instead of a fixed chain-config constant.
type Arithmetic struct {
	EpochLength uint64
}

// Epoch returns block/epochLength, the epoch number containing block.
func (a Arithmetic) Epoch(block uint64) uint64 {
	if a.EpochLength == 0 {
		return 0
	}
	return block / a.EpochLength
}

// IsEpochStartBlock reports whether block is the first block of its epoch.
func (a Arithmetic) IsEpochStartBlock(block uint64) bool {
	if a.EpochLength == 0 {
		return false
	}
	return block%a.EpochLength == 0
}

// EpochStartBlock returns the first block number of block's epoch.
func (a Arithmetic) EpochStartBlock(block uint64) uint64 {
	return a.Epoch(block) * a.EpochLength
}

// IsLatterHalf reports whether block falls in the second half of its
// epoch, spec §4.5.c step 7's "latter half of this epoch".
func (a Arithmetic) IsLatterHalf(block uint64) bool {
	if a.EpochLength == 0 {
		return false
	}
	return block-a.EpochStartBlock(block) >= a.EpochLength/2
}

// Cursor is the non-persistent per-node state spec §4.5/§5 describes:
// reset on restart, strictly serialized by the loop, never shared.
type Cursor struct {
	LastValidatedOrAttestedEpoch uint64
	HasLastEpoch                 bool

	// PreviousEpochData is the attestor's own recomputed vector from
	// the previous epoch, spec §4.6 rule 3's "P".
	PreviousEpochData    chaintypes.IncentivesVector
	HasPreviousEpochData bool
}

// Advance records epoch as the last one this node validated or
// attested, spec §4.5.b step 4/§4.5.c step 6.
func (c *Cursor) Advance(epoch uint64) {
	c.LastValidatedOrAttestedEpoch = epoch
	c.HasLastEpoch = true
}

// AlreadyHandled reports spec §4.5.b step 2's guard: epoch already
// validated or attested and we are "already accepting consensus."
func (c *Cursor) AlreadyHandled(epoch uint64) bool {
	return c.HasLastEpoch && epoch <= c.LastValidatedOrAttestedEpoch
}

// SetPreviousEpochData unconditionally records M, spec §4.6's closing
// instruction: "After the decision, unconditionally set
// previous_epoch_data := M."
func (c *Cursor) SetPreviousEpochData(vec chaintypes.IncentivesVector) {
	c.PreviousEpochData = vec
	c.HasPreviousEpochData = true
}
