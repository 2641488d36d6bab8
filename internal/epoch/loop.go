package epoch

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// State is one of the Epoch Loop's state machine states, spec §4.5.
type State int

const (
	Booting State = iota
	WaitingForActivation
	Eligible
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case WaitingForActivation:
		return "WaitingForActivation"
	case Eligible:
		return "Eligible"
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	default:
		return "Booting"
	}
}

// Loop drives one node's epoch state machine, spec §4.5. It owns the
// non-persistent Cursor and nothing else; the Chain Gateway and DHT
// handle it depends on are shared read-mostly singletons (spec §5).
type Loop struct {
	gateway ChainGateway
	vectors VectorBuilder
	clock   Clock

	subnetID          uint32
	coldkey           string
	peerID            peer.ID
	blockSecs         time.Duration
	maxAttestChecks   int
	attestationQuorum float64

	cursor Cursor
	state  State

	stop chan struct{}
}

// Config bundles the wiring Loop needs at construction.
type Config struct {
	Gateway           ChainGateway
	Vectors           VectorBuilder
	Clock             Clock
	SubnetID          uint32
	Coldkey           string
	PeerID            peer.ID
	BlockSecs         time.Duration
	MaxAttestChecks   int
	AttestationQuorum float64
}

func New(cfg Config) *Loop {
	maxChecks := cfg.MaxAttestChecks
	if maxChecks <= 0 {
		maxChecks = 3
	}
	quorum := cfg.AttestationQuorum
	if quorum <= 0 {
		quorum = 0.875
	}
	return &Loop{
		gateway:           cfg.Gateway,
		vectors:           cfg.Vectors,
		clock:             cfg.Clock,
		subnetID:          cfg.SubnetID,
		coldkey:           cfg.Coldkey,
		peerID:            cfg.PeerID,
		blockSecs:         cfg.BlockSecs,
		maxAttestChecks:   maxChecks,
		attestationQuorum: quorum,
		state:             Booting,
		stop:              make(chan struct{}),
	}
}

// State returns the loop's current state, for health reporting.
func (l *Loop) State() State { return l.state }

// Shutdown is the cooperative stop signal of spec §5: sets a flag the
// loop checks at every block boundary.
func (l *Loop) Shutdown() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

func (l *Loop) shuttingDown() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Loop) arithmetic() Arithmetic {
	length, ok := l.gateway.GetEpochLength(context.Background())
	if !ok {
		length = 1
	}
	return Arithmetic{EpochLength: length}
}

// Run drives the state machine until Stopped or ctx is cancelled.
// Booting is entered immediately; the caller is expected to have
// already confirmed the module container is healthy before calling.
func (l *Loop) Run(ctx context.Context) {
	l.state = WaitingForActivation
	log.Info("epoch: booted", "state", l.state)

	for {
		if l.shuttingDown() {
			l.state = Stopped
			log.Info("epoch: shutdown requested", "state", l.state)
			return
		}
		select {
		case <-ctx.Done():
			l.state = Stopped
			return
		default:
		}

		switch l.state {
		case WaitingForActivation:
			l.stepWaitingForActivation(ctx)
		case Eligible:
			l.stepEligible(ctx)
		case Running:
			l.stepRunning(ctx)
		case Stopped:
			return
		}
	}
}

func (l *Loop) stepWaitingForActivation(ctx context.Context) {
	switch l.runActivation(ctx) {
	case ActivationComplete:
		l.state = Eligible
		log.Info("epoch: subnet activated", "subnet", l.subnetID)
	case ActivationSubnetNotFound:
		l.state = Stopped
		log.Error("epoch: configured subnet not found", "subnet", l.subnetID)
	case ActivationPending:
		_ = l.clock.SleepOneBlock(ctx)
	}
}

func (l *Loop) stepEligible(ctx context.Context) {
	submittable, ok := l.gateway.GetSubmittableNodes(ctx, l.subnetID)
	if ok && containsColdkeyRecord(submittable, l.coldkey) {
		l.state = Running
		return
	}

	included, ok := l.gateway.GetIncludedNodes(ctx, l.subnetID)
	if ok && containsColdkeyRecord(included, l.coldkey) {
		block, ok := l.gateway.GetBlockNumber(ctx)
		if ok {
			epoch := l.arithmetic().Epoch(block)
			l.runAttestSubLoop(ctx, epoch, true)
		}
	}
	l.sleepToNextEpoch(ctx)
}

func (l *Loop) stepRunning(ctx context.Context) {
	reason := l.dispatchEpoch(ctx)
	if reason == dispatchShutdown {
		l.state = Stopped
	}
}

type dispatchOutcome int

const (
	dispatchContinue dispatchOutcome = iota
	dispatchShutdown
)

// dispatchEpoch implements spec §4.5.b.
func (l *Loop) dispatchEpoch(ctx context.Context) dispatchOutcome {
	block, ok := l.gateway.GetBlockNumber(ctx)
	if !ok {
		_ = l.clock.SleepOneBlock(ctx)
		return dispatchContinue
	}
	epoch := l.arithmetic().Epoch(block)

	if l.cursor.AlreadyHandled(epoch) {
		l.sleepToNextEpoch(ctx)
		return dispatchContinue
	}

	validator, ok := l.gateway.GetRewardsValidator(ctx, l.subnetID, epoch)
	if !ok {
		_ = l.clock.SleepOneBlock(ctx)
		return dispatchContinue
	}

	if validator == l.coldkey {
		l.runValidatorStep(ctx, epoch)
		return dispatchContinue
	}

	reason := l.runAttestSubLoop(ctx, epoch, false)
	if reason == ReasonDemoted {
		return dispatchShutdown
	}
	return dispatchContinue
}

// runValidatorStep implements spec §4.5.b step 4.
func (l *Loop) runValidatorStep(ctx context.Context, epoch uint64) {
	existing, ok := l.gateway.GetRewardsSubmission(ctx, l.subnetID, epoch)
	if ok && existing != nil {
		l.cursor.Advance(epoch)
		return
	}

	vector, err := l.vectors.Build(ctx, epoch)
	if err != nil {
		log.Warn("epoch: failed to build incentives vector", "epoch", epoch, "err", err)
		_ = l.clock.SleepOneBlock(ctx)
		return
	}

	receipt := l.gateway.SubmitValidate(ctx, l.subnetID, vector)
	if receipt.Success {
		l.cursor.Advance(epoch)
		return
	}
	log.Warn("epoch: submit_validate failed", "epoch", epoch, "err", receipt.Err)
	_ = l.clock.SleepOneBlock(ctx)
}

func (l *Loop) sleepToNextEpoch(ctx context.Context) {
	block, ok := l.gateway.GetBlockNumber(ctx)
	if !ok {
		_ = l.clock.SleepOneBlock(ctx)
		return
	}
	arith := l.arithmetic()
	next := arith.EpochStartBlock(block) + arith.EpochLength
	for b := block; b < next; b++ {
		if l.shuttingDown() {
			return
		}
		if err := l.clock.SleepOneBlock(ctx); err != nil {
			return
		}
	}
}

func containsColdkeyRecord(nodes []chaintypes.SubnetNodeRecord, coldkey string) bool {
	for _, n := range nodes {
		if n.Coldkey == coldkey {
			return true
		}
	}
	return false
}
