// Package overlay is the Overlay View (spec §4.2): derives the set of
// currently reachable peers and each one's served block-span from the
// DHT's module-info records plus a reachability probe, then narrows
// that set to the chain's Included membership.
//
// Grounded on the teacher's snapshot.go shape: walk a sequence of
// positions, fold them into per-validator state, return a stable
// deterministic view. Here the "sequence of positions" is block-uid
// indices instead of block headers.
package overlay

import (
	"context"
	"fmt"
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
)

// ServerRow is one peer's final, chain-intersected span, spec §3/§4.2
// step 5.
type ServerRow struct {
	PeerID            peer.ID
	Start             int
	End               int
	NumBlocks         int
	BlocksServedRatio float64
	UsingRelay        bool
}

// Span returns end-start, the count of blocks this row covers.
func (r ServerRow) Span() int { return r.End - r.Start }

// View computes ServerRows for one subnet snapshot.
type View struct {
	handle      dht.Handle
	blockPrefix string
}

func New(handle dht.Handle, blockPrefix string) *View {
	return &View{handle: handle, blockPrefix: blockPrefix}
}

type peerSpan struct {
	start, end int
}

func (s peerSpan) length() int { return s.end - s.start }

// Compute runs spec §4.2 steps 1-5 for a subnet with numBlocks block
// indices and includedNodes as returned by the Chain Gateway.
func (v *View) Compute(ctx context.Context, numBlocks int, includedNodes []chaintypes.SubnetNodeRecord) ([]ServerRow, error) {
	if numBlocks <= 0 {
		return nil, fmt.Errorf("overlay: invalid numBlocks %d", numBlocks)
	}

	spans, onlineAtEnd, relayAtEnd, err := v.collectSpans(ctx, numBlocks)
	if err != nil {
		return nil, err
	}

	probeTargets := make([]peer.ID, 0, len(onlineAtEnd))
	for p := range onlineAtEnd {
		probeTargets = append(probeTargets, p)
	}
	reachable := v.probeReachability(ctx, probeTargets)

	included := make(map[peer.ID]bool, len(includedNodes))
	for _, n := range includedNodes {
		included[n.PeerID] = true
	}

	rows := make([]ServerRow, 0, len(spans))
	for p, sp := range spans {
		if !reachable[p] {
			continue
		}
		if !included[p] {
			continue
		}
		rows = append(rows, ServerRow{
			PeerID:            p,
			Start:             sp.start,
			End:               sp.end,
			NumBlocks:         numBlocks,
			BlocksServedRatio: float64(sp.length()) / float64(numBlocks),
			UsingRelay:        relayAtEnd[p],
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].PeerID < rows[j].PeerID })
	return rows, nil
}

// collectSpans implements spec §4.2 steps 1-2: fetch each block-uid's
// module-info record and fold into the maximal contiguous [start, end)
// run where the peer is JOINING or ONLINE. onlineAtEnd collects every
// peer that was ever observed in state ONLINE, which step 3 probes
// alongside the bootstrap set. relayAtEnd tracks each peer's most
// recently published using_relay flag, spec §3's Module-info record.
func (v *View) collectSpans(ctx context.Context, numBlocks int) (map[peer.ID]peerSpan, map[peer.ID]bool, map[peer.ID]bool, error) {
	open := make(map[peer.ID]int)
	best := make(map[peer.ID]peerSpan)
	onlineAtEnd := make(map[peer.ID]bool)
	relayAtEnd := make(map[peer.ID]bool)

	closeRun := func(p peer.ID, end int) {
		start, ok := open[p]
		if !ok {
			return
		}
		delete(open, p)
		cand := peerSpan{start: start, end: end}
		if prev, ok := best[p]; !ok || cand.length() > prev.length() {
			best[p] = cand
		}
	}

	for i := 0; i < numBlocks; i++ {
		uid := fmt.Sprintf("%s.%d", v.blockPrefix, i)
		info, err := v.handle.GetModuleInfo(ctx, uid)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("overlay: module info at %s: %w", uid, err)
		}

		present := make(map[peer.ID]bool, len(info))
		for p, si := range info {
			present[p] = true
			relayAtEnd[p] = si.UsingRelay
			if si.State == dht.StateOnline {
				onlineAtEnd[p] = true
			}
			if si.State == dht.StateJoining || si.State == dht.StateOnline {
				if _, ok := open[p]; !ok {
					open[p] = i
				}
			} else {
				closeRun(p, i)
			}
		}
		for p := range open {
			if !present[p] {
				closeRun(p, i)
			}
		}
	}
	for p := range open {
		closeRun(p, numBlocks)
	}
	return best, onlineAtEnd, relayAtEnd, nil
}

// probeReachability implements spec §4.2 step 3: a parallel
// reachability probe against bootstrap peers and every ONLINE-span
// peer. Probe failures mark the peer unreachable; they never abort
// the overall computation.
func (v *View) probeReachability(ctx context.Context, onlinePeers []peer.ID) map[peer.ID]bool {
	targets := make(map[peer.ID]bool)
	for _, p := range v.handle.BootstrapPeers() {
		targets[p] = true
	}
	for _, p := range onlinePeers {
		targets[p] = true
	}

	type result struct {
		p  peer.ID
		ok bool
	}
	results := make(chan result, len(targets))
	for p := range targets {
		go func(p peer.ID) {
			err := v.handle.Ping(ctx, p)
			results <- result{p: p, ok: err == nil}
		}(p)
	}

	reachable := make(map[peer.ID]bool, len(targets))
	for i := 0; i < len(targets); i++ {
		r := <-results
		reachable[r.p] = r.ok
	}
	return reachable
}
