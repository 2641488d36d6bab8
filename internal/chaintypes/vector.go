package chaintypes

import (
	"bytes"
	"sort"
)

// SortByPeerID returns a copy of v ordered by peer-id byte-lex, spec
// §4.4's determinism requirement. Grounded on the teacher's
// validatorsAscending sort.Interface idiom (consensus/oasys/scheduler.go).
func (v IncentivesVector) SortByPeerID() IncentivesVector {
	cpy := make(IncentivesVector, len(v))
	copy(cpy, v)
	sort.Sort(byPeerID(cpy))
	return cpy
}

type byPeerID IncentivesVector

func (s byPeerID) Len() int      { return len(s) }
func (s byPeerID) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byPeerID) Less(i, j int) bool {
	return bytes.Compare([]byte(s[i].PeerID), []byte(s[j].PeerID)) < 0
}

// vectorKey is a (peer_id, score) pair reduced to a comparable form,
// replacing the source's "frozenset(asdict(...).items())" equality
// (spec §9 design note) with set membership over these keys.
type vectorKey struct {
	peerID string
	score  string
}

func toSet(v IncentivesVector) map[vectorKey]struct{} {
	set := make(map[vectorKey]struct{}, len(v))
	for _, sp := range v {
		score := "0"
		if sp.Score != nil {
			score = sp.Score.String()
		}
		set[vectorKey{peerID: sp.PeerID.String(), score: score}] = struct{}{}
	}
	return set
}

// Equal reports whether a and b contain the same (peer_id, score)
// pairs, ignoring order — spec §4.6 rule "V = M".
func Equal(a, b IncentivesVector) bool {
	sa, sb := toSet(a), toSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if _, ok := sb[k]; !ok {
			return false
		}
	}
	return true
}

// SymmetricDifference returns D = V △ M, spec §4.6 rule 3: the pairs
// present in exactly one of a, b.
func SymmetricDifference(a, b IncentivesVector) IncentivesVector {
	sa, sb := toSet(a), toSet(b)
	byKey := make(map[vectorKey]ScoredPeer, len(a)+len(b))
	for _, sp := range a {
		byKey[keyOf(sp)] = sp
	}
	for _, sp := range b {
		if _, ok := byKey[keyOf(sp)]; !ok {
			byKey[keyOf(sp)] = sp
		}
	}

	var diff IncentivesVector
	for k, sp := range byKey {
		_, inA := sa[k]
		_, inB := sb[k]
		if inA != inB {
			diff = append(diff, sp)
		}
	}
	return diff.SortByPeerID()
}

func keyOf(sp ScoredPeer) vectorKey {
	score := "0"
	if sp.Score != nil {
		score = sp.Score.String()
	}
	return vectorKey{peerID: sp.PeerID.String(), score: score}
}

// Subset reports whether every pair in sub also appears in super,
// spec §4.6 rule 3/4 "D ⊆ P".
func Subset(sub, super IncentivesVector) bool {
	superSet := toSet(super)
	for _, sp := range sub {
		if _, ok := superSet[keyOf(sp)]; !ok {
			return false
		}
	}
	return true
}

// ContainsPeerID reports whether v has an entry for id, regardless of
// score — spec §4.5.c step 5.
func ContainsPeerID(v IncentivesVector, id string) bool {
	for _, sp := range v {
		if sp.PeerID.String() == id {
			return true
		}
	}
	return false
}
