package rps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
)

func TestDeriveParamsFullSpan(t *testing.T) {
	p := DeriveParams(1.0)
	assert.Equal(t, 24, p.NSteps)
	assert.Equal(t, 5, p.WarmupSteps)
	assert.Equal(t, 100, p.MaxLength)
	assert.InDelta(t, 1.0, p.ScalingFactor, 1e-9)
}

func TestDeriveParamsPartialSpan(t *testing.T) {
	p := DeriveParams(0.5)
	assert.Equal(t, 48, p.NSteps) // ceil(24/0.5)
	assert.Equal(t, 100, p.MaxLength)
	assert.Less(t, p.ScalingFactor, 1.0)
	assert.Greater(t, p.ScalingFactor, 0.0)
}

type fakeSession struct {
	steps []time.Duration
	i     int
	err   error
}

func (f *fakeSession) Step(ctx context.Context) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	d := f.steps[f.i%len(f.steps)]
	f.i++
	return d, nil
}
func (f *fakeSession) Close() error { return nil }

func TestProbeOneComputesDeviceRPS(t *testing.T) {
	sess := &fakeSession{steps: []time.Duration{10 * time.Millisecond}}
	pr := New(nil, func(ctx context.Context, row overlay.ServerRow) (InferenceSession, error) {
		return sess, nil
	}, 1)

	row := overlay.ServerRow{Start: 0, End: 10, NumBlocks: 10, BlocksServedRatio: 1.0}
	sample, ok := pr.ProbeOne(context.Background(), row)
	require.True(t, ok)
	assert.Equal(t, 19, sample.Steps) // 24 steps - 5 warmup
	assert.Greater(t, sample.DeviceRPS, 0.0)
}

func TestProbeOneAbortsOnStepError(t *testing.T) {
	sess := &fakeSession{err: assert.AnError}
	pr := New(nil, func(ctx context.Context, row overlay.ServerRow) (InferenceSession, error) {
		return sess, nil
	}, 1)

	_, ok := pr.ProbeOne(context.Background(), overlay.ServerRow{BlocksServedRatio: 1.0})
	assert.False(t, ok)
}
