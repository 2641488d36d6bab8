package epoch

import (
	"context"
	"sort"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// ActivationOutcome is the result of one pass through spec §4.5.a.
type ActivationOutcome int

const (
	// ActivationPending means the window has not opened yet, or it is
	// open but this iteration made no submission; sleep one block and
	// retry.
	ActivationPending ActivationOutcome = iota
	// ActivationComplete means activated_block is now set; transition
	// to Eligible.
	ActivationComplete
	// ActivationSubnetNotFound is fatal: the configured subnet does not
	// exist on chain; transition to Stopped.
	ActivationSubnetNotFound
)

// runActivation implements spec §4.5.a for one block tick.
func (l *Loop) runActivation(ctx context.Context) ActivationOutcome {
	desc, ok := l.gateway.GetSubnetData(ctx, l.subnetID)
	if !ok || desc == nil {
		return ActivationSubnetNotFound
	}
	if desc.Activated() {
		return ActivationComplete
	}

	submittable, ok := l.gateway.GetSubmittableNodes(ctx, l.subnetID)
	if !ok {
		return ActivationPending
	}
	position := activationPosition(submittable, l.coldkey)
	if position < 0 {
		// Not yet a submittable node ourselves; nothing to do this tick.
		return ActivationPending
	}

	block, ok := l.gateway.GetBlockNumber(ctx)
	if !ok {
		return ActivationPending
	}

	activationBlock := desc.ActivationBlock()
	windowBlocks := uint64(2 * l.blockSecs.Seconds())
	windowStart := activationBlock + windowBlocks*uint64(position)
	windowEnd := activationBlock + windowBlocks*uint64(position+1)

	if block < windowStart {
		return ActivationPending
	}
	if block >= windowEnd {
		// Our window passed without activation; another node's turn may
		// still succeed, or we loop and get a fresh descriptor.
		return ActivationPending
	}

	// Re-check inside the window: another node may have already activated.
	desc, ok = l.gateway.GetSubnetData(ctx, l.subnetID)
	if !ok || desc == nil {
		return ActivationSubnetNotFound
	}
	if desc.Activated() {
		return ActivationComplete
	}

	receipt := l.gateway.ActivateSubnet(ctx, l.subnetID)
	if receipt.Success && hasEvent(receipt, "SubnetActivated") {
		return ActivationComplete
	}
	return ActivationPending
}

// activationPosition returns this node's 0-indexed position within
// submittable ordered by coldkey byte-lex, or -1 if absent. Ordering
// by coldkey keeps the position identical on every observer even
// though RPC responses may arrive in different slice orders.
func activationPosition(submittable []chaintypes.SubnetNodeRecord, coldkey string) int {
	ordered := append([]chaintypes.SubnetNodeRecord(nil), submittable...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Coldkey < ordered[j].Coldkey })
	for i, n := range ordered {
		if n.Coldkey == coldkey {
			return i
		}
	}
	return -1
}

func hasEvent(r chaintypes.Receipt, name string) bool {
	for _, e := range r.Events {
		if e == name {
			return true
		}
	}
	return false
}
