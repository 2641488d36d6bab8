// Package equivalence is the Attestation Equivalence component (C6,
// spec §4.6): the five-rule ladder an attestor uses to decide whether
// a validator's submitted incentives vector is close enough to its
// own to attest.
//
// Grounded on environmentValue.Equals()'s style in the teacher
// (consensus/oasys/environment_value.go): direct field/value
// comparison, no reflection, returning a Decision that carries the
// attest verdict and the rule that produced it.
package equivalence

import (
	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// Decision is the ladder's outcome plus the rule that produced it,
// useful for logging per spec §4.5.c's reason codes.
type Decision struct {
	Attest bool
	Rule   string
}

// Input bundles everything the ladder's rules 3-4 need beyond V and M.
type Input struct {
	Validator chaintypes.IncentivesVector // V
	Mine      chaintypes.IncentivesVector // M

	PreviousEpochData    chaintypes.IncentivesVector // P
	HasPreviousEpochData bool

	// PreviousValidatorVector and its ratification are only consulted
	// when HasPreviousEpochData is false (rule 4).
	PreviousValidatorVector   chaintypes.IncentivesVector
	PreviousValidatorRatified bool
}

// Decide runs spec §4.6's five-rule ladder.
func Decide(in Input) Decision {
	if len(in.Validator) == 0 && len(in.Mine) == 0 {
		return Decision{Attest: true, Rule: "both-empty"}
	}
	if chaintypes.Equal(in.Validator, in.Mine) {
		return Decision{Attest: true, Rule: "exact-match"}
	}

	d := chaintypes.SymmetricDifference(in.Validator, in.Mine)

	if in.HasPreviousEpochData {
		if chaintypes.Subset(d, in.PreviousEpochData) {
			return Decision{Attest: true, Rule: "subset-of-previous-epoch"}
		}
		return Decision{Attest: false, Rule: "not-subset-of-previous-epoch"}
	}

	if in.PreviousValidatorRatified && chaintypes.Subset(d, in.PreviousValidatorVector) {
		return Decision{Attest: true, Rule: "subset-of-ratified-previous-validator"}
	}

	return Decision{Attest: false, Rule: "no-basis-for-equivalence"}
}

// Quorum reports whether attestCount out of totalSubmittable meets or
// exceeds threshold (default 0.875 per spec §4.6's "must be
// configurable").
func Quorum(attestCount, totalSubmittable int, threshold float64) bool {
	if totalSubmittable == 0 {
		return false
	}
	return float64(attestCount)/float64(totalSubmittable) >= threshold
}
