// Package chaintypes holds the on-chain data model shared by the
// Chain Gateway, Overlay View, Incentives Engine, Epoch Loop and
// Attestation Equivalence components, spec §3: the shapes every other
// internal package agrees on, a few accessors on them, and the
// incentives-vector ordering and set operations (vector.go). Keeping
// them here keeps those packages free of import cycles.
package chaintypes

import (
	"math/big"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Classification is a subnet-node's monotonic on-chain lifecycle
// stage, spec §3 "Subnet-node record".
type Classification int

const (
	Registered Classification = iota
	Idle
	Included
	Submittable
	Accountant
)

func (c Classification) String() string {
	switch c {
	case Idle:
		return "Idle"
	case Included:
		return "Included"
	case Submittable:
		return "Submittable"
	case Accountant:
		return "Accountant"
	default:
		return "Registered"
	}
}

// SubnetDescriptor is the on-chain, read-mostly subnet record, spec §3.
type SubnetDescriptor struct {
	SubnetID           uint32
	Path               string
	MemoryMB           uint64
	NumBlocks          uint64 // the model's layer-block count, spec §4.2/§4.4's "num_blocks"
	InitializedBlock   uint64
	RegistrationBlocks uint64
	ActivatedBlock     uint64 // 0 means not yet activated
}

// Activated reports whether the subnet has left its registration window.
func (d *SubnetDescriptor) Activated() bool { return d.ActivatedBlock > 0 }

// ActivationBlock is the earliest block at which activation may occur.
func (d *SubnetDescriptor) ActivationBlock() uint64 {
	return d.InitializedBlock + d.RegistrationBlocks
}

// SubnetNodeRecord is a subnet participant's on-chain record, spec §3.
type SubnetNodeRecord struct {
	Coldkey          string // SS58 address
	Hotkey           string // SS58 address, may equal Coldkey
	PeerID           peer.ID
	InitializedEpoch uint64
	Classification   Classification
	A, B, C          *big.Int // opaque chain-defined scalars, unused by this core
}

// ScoredPeer is one (peer_id, score) pair in an incentives vector,
// spec §3 "Incentives vector".
type ScoredPeer struct {
	PeerID peer.ID
	Score  *big.Int
}

// IncentivesVector is the ordered sequence submitted on-chain by the
// epoch validator. Ordering is stable by peer-id byte-lex (spec §4.4)
// so two honest nodes produce byte-identical vectors.
type IncentivesVector []ScoredPeer

// RewardsSubmission is a validator's on-chain submission for an
// epoch, plus whichever coldkeys have attested it so far, spec §4.1.
type RewardsSubmission struct {
	Data    IncentivesVector
	Attests []string // attesting coldkeys, SS58
}

// Receipt is the result of a state-changing extrinsic, spec §4.1.
type Receipt struct {
	Success bool
	Events  []string
	Err     error
}
