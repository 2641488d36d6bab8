package epoch

import (
	"context"

	"github.com/ethereum/go-ethereum/log"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/equivalence"
)

// AttestReason is the attest sub-loop's exit reason, spec §4.5.c.
type AttestReason string

const (
	ReasonAttested        AttestReason = "ATTESTED"
	ReasonWaiting         AttestReason = "WAITING"
	ReasonAttestFailed    AttestReason = "ATTEST_FAILED"
	ReasonShouldNotAttest AttestReason = "SHOULD_NOT_ATTEST"
	ReasonValidatorNoShow AttestReason = "VALIDATOR_NEVER_SUBMITTED"
	ReasonDemoted         AttestReason = "DEMOTED"
)

// runAttestSubLoop implements spec §4.5.c, bounded by MAX_ATTEST_CHECKS
// cycles and end-of-epoch. dryRun seeds previous_epoch_data (spec
// §4.5's Eligible branch) without ever submitting an attestation.
func (l *Loop) runAttestSubLoop(ctx context.Context, epoch uint64, dryRun bool) AttestReason {
	for check := 0; check < l.maxAttestChecks; check++ {
		if err := l.clock.SleepOneBlock(ctx); err != nil {
			return ReasonWaiting
		}

		block, ok := l.gateway.GetBlockNumber(ctx)
		if !ok {
			continue
		}
		if l.arithmetic().Epoch(block) != epoch {
			log.Warn("epoch: validator never submitted", "epoch", epoch)
			return ReasonValidatorNoShow
		}

		submission, ok := l.gateway.GetRewardsSubmission(ctx, l.subnetID, epoch)
		if !ok || submission == nil {
			continue
		}

		if !dryRun && containsColdkey(submission.Attests, l.coldkey) {
			return ReasonAttested
		}

		mine, err := l.vectors.Build(ctx, epoch)
		if err != nil {
			log.Warn("epoch: failed to build own vector", "epoch", epoch, "err", err)
			continue
		}

		if !dryRun && !chaintypes.ContainsPeerID(submission.Data, l.peerID.String()) {
			submittable, ok := l.gateway.GetSubmittableNodes(ctx, l.subnetID)
			if ok && !containsPeerID(submittable, l.peerID.String()) {
				return ReasonDemoted
			}
		}

		prevVector, prevRatified := l.previousValidatorBasis(ctx, epoch)
		decision := equivalence.Decide(equivalence.Input{
			Validator:                 submission.Data,
			Mine:                      mine,
			PreviousEpochData:         l.cursor.PreviousEpochData,
			HasPreviousEpochData:      l.cursor.HasPreviousEpochData,
			PreviousValidatorVector:   prevVector,
			PreviousValidatorRatified: prevRatified,
		})
		log.Info("epoch: attestation decision", "epoch", epoch, "attest", decision.Attest, "rule", decision.Rule)

		if dryRun {
			l.cursor.SetPreviousEpochData(mine)
			return ReasonWaiting
		}

		if !decision.Attest {
			l.cursor.SetPreviousEpochData(mine)
			if !l.arithmetic().IsLatterHalf(block) {
				continue
			}
			return ReasonShouldNotAttest
		}

		receipt := l.gateway.SubmitAttest(ctx, l.subnetID)
		l.cursor.SetPreviousEpochData(mine)
		if receipt.Success {
			l.cursor.Advance(epoch)
			return ReasonAttested
		}
		log.Warn("epoch: attest submission failed", "epoch", epoch, "err", receipt.Err)
		if check == l.maxAttestChecks-1 {
			return ReasonAttestFailed
		}
	}
	return ReasonWaiting
}

// previousValidatorBasis implements spec §4.6 rule 4's "first epoch
// after restart" fallback: when this node has no in-memory
// previous_epoch_data (l.cursor.HasPreviousEpochData is false), it
// consults the chain for epoch-1's validator submission and the
// chain's reward-result event for the current epoch, gating
// ratification on attestation_percentage >= the configured quorum,
// grounded on original_source's _get_reward_result/attestation_percentage
// check. Returns a zero vector and ratified=false whenever any lookup
// is unavailable, which Decide treats as "no basis for equivalence".
func (l *Loop) previousValidatorBasis(ctx context.Context, epoch uint64) (chaintypes.IncentivesVector, bool) {
	if l.cursor.HasPreviousEpochData || epoch == 0 {
		return nil, false
	}

	prevSubmission, ok := l.gateway.GetRewardsSubmission(ctx, l.subnetID, epoch-1)
	if !ok || prevSubmission == nil {
		return nil, false
	}

	pct, ok := l.gateway.GetRewardResult(ctx, l.subnetID, epoch)
	if !ok {
		return nil, false
	}
	ratified := float64(pct)/1e9 >= l.attestationQuorum

	return prevSubmission.Data, ratified
}

func containsColdkey(attests []string, coldkey string) bool {
	for _, a := range attests {
		if a == coldkey {
			return true
		}
	}
	return false
}

func containsPeerID(nodes []chaintypes.SubnetNodeRecord, peerID string) bool {
	for _, n := range nodes {
		if n.PeerID.String() == peerID {
			return true
		}
	}
	return false
}
