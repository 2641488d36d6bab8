// Package dht models the overlay's authenticated record store — the
// DHT itself is an external collaborator (spec §1); this package only
// defines the contract C2 (Overlay View) and C3 (RPS Probe) consume,
// plus one concrete implementation built on libp2p since no
// Kademlia-DHT package appears anywhere in the reference corpus.
package dht

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerState is a module-info record's liveness state, spec §3.
type PeerState int

const (
	StateOffline PeerState = iota
	StateJoining
	StateOnline
)

func (s PeerState) String() string {
	switch s {
	case StateJoining:
		return "JOINING"
	case StateOnline:
		return "ONLINE"
	default:
		return "OFFLINE"
	}
}

// ServerInfo is one peer's published span over a single block-uid,
// spec §3 "Module-info record".
type ServerInfo struct {
	PeerID     peer.ID
	State      PeerState
	SpanStart  int
	SpanEnd    int
	UsingRelay bool
	Metadata   string // opaque vendor metadata, unused by this core
}

// RPSSample is one peer's signed latency measurement, spec §3.
type RPSSample struct {
	PeerID            peer.ID
	Start             time.Time
	End               time.Time
	Elapsed           time.Duration
	DeviceRPS         float64
	BlocksServedRatio float64
	Steps             int
}

// Handle is the contract this core needs from the overlay's
// authenticated record store. A "block-uid" is "{dht_prefix}.{i}" per
// spec §3; an "rps key" is "rps" || epoch per spec §3/§6.
type Handle interface {
	// GetModuleInfo returns the map of peers publishing at blockUID,
	// or an empty map if none are reachable.
	GetModuleInfo(ctx context.Context, blockUID string) (map[peer.ID]ServerInfo, error)

	// PutModuleInfo publishes this node's own span for blockUID.
	PutModuleInfo(ctx context.Context, blockUID string, info ServerInfo, ttl time.Duration) error

	// Ping probes reachability of p; a non-nil error means unreachable.
	Ping(ctx context.Context, p peer.ID) error

	// GetRPSSamples merges every writer's subkey under ("rps", epoch).
	GetRPSSamples(ctx context.Context, epoch uint64) (map[peer.ID][]RPSSample, error)

	// PutRPSSamples writes this node's own RPS samples under its own
	// subkey at ("rps", epoch); other writers' records are untouched.
	PutRPSSamples(ctx context.Context, epoch uint64, samples []RPSSample, ttl time.Duration) error

	// BootstrapPeers returns the configured/fallback bootstrap set.
	BootstrapPeers() []peer.ID

	Close() error
}
