package dht

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	ma "github.com/multiformats/go-multiaddr"
)

// recordProtocolID is the libp2p stream protocol this node's
// record-store peers use to pull each other's records, replacing the
// Kademlia routing the real DHT would otherwise provide.
const recordProtocolID = "/subnet-consensus/dht-record/1.0.0"

const moduleInfoPrefix = "moduleinfo:"
const rpsPrefix = "rps:"

// wireRecord is the over-the-wire envelope for a signed record.
type wireRecord struct {
	Subkey   string `json:"subkey"`
	Value    []byte `json:"value"`
	Sig      []byte `json:"sig"`
	PubKey   []byte `json:"pub"`
	ExpireAt int64  `json:"expire_at"` // unix seconds
}

type fetchRequest struct {
	Key string `json:"key"`
}

type fetchResponse struct {
	Records []wireRecord `json:"records"`
}

// LibP2PHandle is the concrete Handle built on go-libp2p, since no
// Kademlia-DHT package appears in the reference corpus (see
// DESIGN.md). It is an explicit, intentional external-collaborator
// boundary: correctness of overlay routing is out of scope for this
// core, only the contract C2/C3 consume is.
type LibP2PHandle struct {
	host  host.Host
	priv  crypto.PrivKey
	store *recordStore
	pingS *ping.PingService

	mu          sync.RWMutex
	bootstraps  []peer.ID
	pingTimeout time.Duration
}

// NewLibP2PHandle starts a libp2p host listening on listenAddr, seeded
// with the identity's private key, and joins the given bootstrap
// peers. If bootstrapAddrs is empty, it falls back to reading
// bootstrapFile (spec §6's "tmp/subnet-initial-peers").
func NewLibP2PHandle(ctx context.Context, priv crypto.PrivKey, listenAddr string, bootstrapAddrs []string, bootstrapFile string) (*LibP2PHandle, error) {
	opts := []libp2p.Option{libp2p.Identity(priv)}
	if listenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("dht: create libp2p host: %w", err)
	}

	handle := &LibP2PHandle{
		host:        h,
		priv:        priv,
		store:       newRecordStore(),
		pingS:       ping.NewPingService(h),
		pingTimeout: 5 * time.Second,
	}
	h.SetStreamHandler(recordProtocolID, handle.serveStream)

	if len(bootstrapAddrs) == 0 {
		bootstrapAddrs = readBootstrapFile(bootstrapFile)
	}
	for _, addr := range bootstrapAddrs {
		info, err := peerAddrInfo(addr)
		if err != nil {
			log.Warn("dht: skipping malformed bootstrap addr", "addr", addr, "err", err)
			continue
		}
		h.Peerstore().AddAddrs(info.ID, info.Addrs, peerstore.PermanentAddrTTL)
		if err := h.Connect(ctx, *info); err != nil {
			log.Warn("dht: bootstrap connect failed", "peer", info.ID, "err", err)
			continue
		}
		handle.bootstraps = append(handle.bootstraps, info.ID)
	}

	return handle, nil
}

func peerAddrInfo(addr string) (*peer.AddrInfo, error) {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	return peer.AddrInfoFromP2pAddr(maddr)
}

// readBootstrapFile is the spec §6 fallback: a literal list of
// multiaddrs, one per line, used when no bootstrap peers are configured.
func readBootstrapFile(path string) []string {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (h *LibP2PHandle) BootstrapPeers() []peer.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]peer.ID, len(h.bootstraps))
	copy(out, h.bootstraps)
	return out
}

func (h *LibP2PHandle) Close() error {
	return h.host.Close()
}

// Ping probes reachability, spec §4.2 step 3.
func (h *LibP2PHandle) Ping(ctx context.Context, p peer.ID) error {
	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()

	results := h.pingS.Ping(ctx, p)
	select {
	case res := <-results:
		return res.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}

func moduleInfoKey(blockUID string) string { return moduleInfoPrefix + blockUID }
func rpsKey(epoch uint64) string           { return rpsPrefix + strconv.FormatUint(epoch, 10) }

// PutModuleInfo publishes this node's span at blockUID, spec §3.
func (h *LibP2PHandle) PutModuleInfo(ctx context.Context, blockUID string, info ServerInfo, ttl time.Duration) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return h.store.Put(moduleInfoKey(blockUID), h.priv, payload, ttl)
}

// GetModuleInfo returns the merged view at blockUID: this node's own
// records plus whatever its connected peers are willing to share.
func (h *LibP2PHandle) GetModuleInfo(ctx context.Context, blockUID string) (map[peer.ID]ServerInfo, error) {
	key := moduleInfoKey(blockUID)
	h.fetchFromPeers(ctx, key)

	entries, err := h.store.Get(key)
	if err != nil {
		return nil, err
	}
	out := make(map[peer.ID]ServerInfo, len(entries))
	for _, e := range entries {
		var info ServerInfo
		if err := json.Unmarshal(e.Value, &info); err != nil {
			continue
		}
		info.PeerID = e.Writer
		out[e.Writer] = info
	}
	return out, nil
}

// PutRPSSamples writes this node's own samples under its own subkey
// at ("rps", epoch), spec §3/§4.3.
func (h *LibP2PHandle) PutRPSSamples(ctx context.Context, epoch uint64, samples []RPSSample, ttl time.Duration) error {
	payload, err := json.Marshal(samples)
	if err != nil {
		return err
	}
	return h.store.Put(rpsKey(epoch), h.priv, payload, ttl)
}

// GetRPSSamples merges every writer's subkey at ("rps", epoch).
func (h *LibP2PHandle) GetRPSSamples(ctx context.Context, epoch uint64) (map[peer.ID][]RPSSample, error) {
	key := rpsKey(epoch)
	h.fetchFromPeers(ctx, key)

	entries, err := h.store.Get(key)
	if err != nil {
		return nil, err
	}
	out := make(map[peer.ID][]RPSSample, len(entries))
	for _, e := range entries {
		var samples []RPSSample
		if err := json.Unmarshal(e.Value, &samples); err != nil {
			continue
		}
		out[e.Writer] = samples
	}
	return out, nil
}

// fetchFromPeers pulls key's records from every currently-connected
// peer into the local store, best-effort. A peer that doesn't answer
// (or answers with a bad signature) is silently skipped, per spec §7
// "transient overlay error".
func (h *LibP2PHandle) fetchFromPeers(ctx context.Context, key string) {
	for _, p := range h.host.Network().Peers() {
		if err := h.fetchFromPeer(ctx, p, key); err != nil {
			log.Debug("dht: fetch from peer failed", "peer", p, "key", key, "err", err)
		}
	}
	h.store.sweepExpired()
}

func (h *LibP2PHandle) fetchFromPeer(ctx context.Context, p peer.ID, key string) error {
	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()

	s, err := h.host.NewStream(ctx, p, recordProtocolID)
	if err != nil {
		return err
	}
	defer s.Close()

	enc := json.NewEncoder(s)
	if err := enc.Encode(fetchRequest{Key: key}); err != nil {
		return err
	}

	var resp fetchResponse
	dec := json.NewDecoder(bufio.NewReader(s))
	if err := dec.Decode(&resp); err != nil {
		return err
	}

	for _, rec := range resp.Records {
		pub, err := crypto.UnmarshalPublicKey(rec.PubKey)
		if err != nil {
			continue
		}
		ok, err := pub.Verify(rec.Value, rec.Sig)
		if err != nil || !ok {
			continue
		}
		h.store.adoptRemote(key, rec.Subkey, rec.Value, rec.Sig, pub, time.Unix(rec.ExpireAt, 0))
	}
	return nil
}

// serveStream answers a peer's fetchRequest with our local records at
// the requested key.
func (h *LibP2PHandle) serveStream(s network.Stream) {
	defer s.Close()

	var req fetchRequest
	dec := json.NewDecoder(bufio.NewReader(s))
	if err := dec.Decode(&req); err != nil {
		return
	}

	h.store.mu.Lock()
	bucket := h.store.data[req.Key]
	records := make([]wireRecord, 0, len(bucket))
	for subkey, rec := range bucket {
		if time.Now().After(rec.expireAt) {
			continue
		}
		pubBytes, err := crypto.MarshalPublicKey(rec.pub)
		if err != nil {
			continue
		}
		records = append(records, wireRecord{
			Subkey:   subkey,
			Value:    rec.value,
			Sig:      rec.sig,
			PubKey:   pubBytes,
			ExpireAt: rec.expireAt.Unix(),
		})
	}
	h.store.mu.Unlock()

	enc := json.NewEncoder(s)
	_ = enc.Encode(fetchResponse{Records: records})
}
