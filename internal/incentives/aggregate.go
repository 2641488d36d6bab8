package incentives

import (
	"math"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/hypertensor-blockchain/subnet-consensus/internal/dht"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/overlay"
	"github.com/hypertensor-blockchain/subnet-consensus/internal/statutil"
)

// AggregateRPS implements spec §4.4's block+RPS mode sample handling:
// partition every sample by subject peer, keeping only samples from
// writers present in rows, remove outliers adaptively (MAD for <10
// samples, z-score for <30, IQR otherwise), and mean the survivors.
func AggregateRPS(rows []overlay.ServerRow, samplesByWriter map[peer.ID][]dht.RPSSample) map[string]float64 {
	inRows := make(map[peer.ID]bool, len(rows))
	for _, row := range rows {
		inRows[row.PeerID] = true
	}

	bySubject := make(map[peer.ID][]float64)
	for writer, samples := range samplesByWriter {
		if !inRows[writer] {
			continue
		}
		for _, s := range samples {
			bySubject[s.PeerID] = append(bySubject[s.PeerID], s.DeviceRPS)
		}
	}

	out := make(map[string]float64, len(bySubject))
	for subject, xs := range bySubject {
		out[subject.String()] = statutil.Mean(filterOutliers(xs))
	}
	return out
}

// filterOutliers picks the filter spec §4.4 names by sample count.
func filterOutliers(xs []float64) []float64 {
	switch {
	case len(xs) < 10:
		return madFilter(xs)
	case len(xs) < 30:
		return zScoreFilter(xs)
	default:
		return statutil.IQRFilterFixed(xs)
	}
}

// madFilter keeps samples within 3 scaled MADs of the median, the
// conventional robust-z threshold (1.4826 is the consistency
// constant for a normal distribution).
func madFilter(xs []float64) []float64 {
	if len(xs) < 3 {
		return xs
	}
	median, mad := statutil.MedianAbsoluteDeviation(xs)
	if mad == 0 {
		return xs
	}
	const consistencyConstant = 1.4826
	const threshold = 3.0

	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		z := math.Abs(x-median) / (consistencyConstant * mad)
		if z <= threshold {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return xs
	}
	return out
}

// zScoreFilter keeps samples within 3 standard deviations of the mean.
func zScoreFilter(xs []float64) []float64 {
	if len(xs) < 3 {
		return xs
	}
	m := statutil.Mean(xs)
	sd := statutil.StdDev(xs, m)
	if sd == 0 {
		return xs
	}
	const threshold = 3.0

	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		z := math.Abs(x-m) / sd
		if z <= threshold {
			out = append(out, x)
		}
	}
	if len(out) == 0 {
		return xs
	}
	return out
}
