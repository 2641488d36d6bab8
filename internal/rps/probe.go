// Package rps is the RPS Probe (spec §4.3): drives a bounded number
// of single-token inference steps against one peer's served span and
// measures device throughput, discarding warmup steps and outliers.
//
// Grounded on the teacher's dependency github.com/panjf2000/ants/v2,
// present in its go.mod for bounded-concurrency fan-out but unused by
// teacher source; this is the one domain-stack component built to
// exercise it (cap ≈ 4 per spec §5's concurrency model).
package rps

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/statutil"
)

// InferenceSession drives single-token inference calls against a
// peer restricted to its served block span. Implementations talk to
// whatever transport serves the subnet's actual model shards; this
// core only consumes timing and error signals.
type InferenceSession interface {
	// Step runs one single-token inference call and returns its
	// wall-clock elapsed time, or an error if the pipe failed.
	Step(ctx context.Context) (time.Duration, error)
	Close() error
}

// SessionFactory opens an InferenceSession against row's peer,
// restricted to [row.Start, row.End).
type SessionFactory func(ctx context.Context, row overlay.ServerRow) (InferenceSession, error)

// Params are the derived per-row probe parameters, spec §4.3.
type Params struct {
	NSteps        int
	WarmupSteps   int
	MaxLength     int
	ScalingFactor float64
}

// DeriveParams computes spec §4.3's n_steps/warmup_steps/max_length/
// scaling_factor from a row's blocks-served ratio.
func DeriveParams(blocksServedRatio float64) Params {
	nSteps := int(math.Ceil(24.0 / blocksServedRatio))
	if nSteps < 24 {
		nSteps = 24
	}
	maxLength := nSteps
	if maxLength < 100 {
		maxLength = 100
	}

	scaling := 1.0
	if blocksServedRatio < 1.0 && blocksServedRatio > 0 {
		scaling = blocksServedRatio / math.Pow(blocksServedRatio, 1-math.Sqrt(blocksServedRatio))
	}

	return Params{NSteps: nSteps, WarmupSteps: 5, MaxLength: maxLength, ScalingFactor: scaling}
}

// Prober runs RPS probes across a set of ServerRows with a bounded
// parallel executor and publishes the resulting samples to the DHT.
type Prober struct {
	handle     dht.Handle
	newSession SessionFactory
	nTokens    int
}

func New(handle dht.Handle, newSession SessionFactory, nTokens int) *Prober {
	if nTokens <= 0 {
		nTokens = 1
	}
	return &Prober{handle: handle, newSession: newSession, nTokens: nTokens}
}

// ProbeOne runs the full per-row procedure of spec §4.3 and returns
// the resulting sample, or ok=false if the inference pipe errored at
// any point (the probe aborts that peer and publishes nothing).
func (pr *Prober) ProbeOne(ctx context.Context, row overlay.ServerRow) (dht.RPSSample, bool) {
	if pr.newSession == nil {
		return dht.RPSSample{}, false
	}
	params := DeriveParams(row.BlocksServedRatio)

	sess, err := pr.newSession(ctx, row)
	if err != nil {
		return dht.RPSSample{}, false
	}
	defer sess.Close()

	start := time.Now()
	timings := make([]float64, 0, params.NSteps-params.WarmupSteps)
	for i := 0; i < params.NSteps; i++ {
		d, err := sess.Step(ctx)
		if err != nil {
			return dht.RPSSample{}, false
		}
		if i < params.WarmupSteps {
			continue
		}
		timings = append(timings, d.Seconds())
	}
	end := time.Now()

	survivors := statutil.IQRFilterAdaptive(timings)
	var elapsedSecs float64
	for _, s := range survivors {
		elapsedSecs += s
	}
	if len(survivors) == 0 || elapsedSecs <= 0 {
		return dht.RPSSample{}, false
	}
	deviceRPS := float64(len(survivors)) * float64(pr.nTokens) / elapsedSecs * params.ScalingFactor

	return dht.RPSSample{
		PeerID:            row.PeerID,
		Start:             start,
		End:               end,
		Elapsed:           time.Duration(elapsedSecs * float64(time.Second)),
		DeviceRPS:         deviceRPS,
		BlocksServedRatio: row.BlocksServedRatio,
		Steps:             len(survivors),
	}, true
}

// ProbeAll fans out ProbeOne across rows on a bounded pool (cap ≈ 4,
// spec §5) and publishes every successful sample under this node's
// subkey at ("rps", epoch), ttl ≈ one epoch.
func (pr *Prober) ProbeAll(ctx context.Context, epoch uint64, rows []overlay.ServerRow, ttl time.Duration) ([]dht.RPSSample, error) {
	pool, err := ants.NewPool(4)
	if err != nil {
		return nil, fmt.Errorf("rps: new pool: %w", err)
	}
	defer pool.Release()

	type result struct {
		sample dht.RPSSample
		ok     bool
	}
	results := make(chan result, len(rows))

	for _, row := range rows {
		row := row
		err := pool.Submit(func() {
			sample, ok := pr.ProbeOne(ctx, row)
			results <- result{sample: sample, ok: ok}
		})
		if err != nil {
			results <- result{ok: false}
		}
	}

	samples := make([]dht.RPSSample, 0, len(rows))
	for i := 0; i < len(rows); i++ {
		r := <-results
		if r.ok {
			samples = append(samples, r.sample)
		}
	}

	if len(samples) > 0 {
		if err := pr.handle.PutRPSSamples(ctx, epoch, samples, ttl); err != nil {
			return samples, fmt.Errorf("rps: publish samples: %w", err)
		}
	}
	return samples, nil
}
