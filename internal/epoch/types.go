package epoch

import (
	"context"
	"time"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/chaintypes"
)

// ChainGateway is the subset of chaingw.Gateway the Epoch Loop needs.
// Kept as a narrow interface at the point of use so the loop can be
// driven by a fake in tests without touching a live chain.
type ChainGateway interface {
	GetBlockNumber(ctx context.Context) (uint64, bool)
	GetEpochLength(ctx context.Context) (uint64, bool)
	GetSubnetData(ctx context.Context, subnetID uint32) (*chaintypes.SubnetDescriptor, bool)
	GetIncludedNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool)
	GetSubmittableNodes(ctx context.Context, subnetID uint32) ([]chaintypes.SubnetNodeRecord, bool)
	GetRewardsValidator(ctx context.Context, subnetID uint32, epoch uint64) (string, bool)
	GetRewardsSubmission(ctx context.Context, subnetID uint32, epoch uint64) (*chaintypes.RewardsSubmission, bool)
	GetRewardResult(ctx context.Context, subnetID uint32, epoch uint64) (uint64, bool)
	SubmitValidate(ctx context.Context, subnetID uint32, vector chaintypes.IncentivesVector) chaintypes.Receipt
	SubmitAttest(ctx context.Context, subnetID uint32) chaintypes.Receipt
	ActivateSubnet(ctx context.Context, subnetID uint32) chaintypes.Receipt
}

// VectorBuilder builds this node's incentives vector for an epoch,
// wiring together C2's Overlay View, C3's RPS Probe and C4's
// Incentives Engine behind one call the loop can treat atomically.
type VectorBuilder interface {
	Build(ctx context.Context, epoch uint64) (chaintypes.IncentivesVector, error)
}

// Clock abstracts the wall-clock waits spec §4.5/§5 names as
// suspension points ("sleep one block", "sleep to next epoch"). No
// clock-mocking library appears in the corpus, so this stays a small
// hand-written interface rather than importing one.
type Clock interface {
	SleepOneBlock(ctx context.Context) error
	Now() time.Time
}

// realClock sleeps for the configured block period.
type realClock struct {
	blockPeriod time.Duration
}

func NewRealClock(blockPeriod time.Duration) Clock {
	return &realClock{blockPeriod: blockPeriod}
}

func (c *realClock) Now() time.Time { return time.Now() }

func (c *realClock) SleepOneBlock(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.blockPeriod):
		return nil
	}
}
