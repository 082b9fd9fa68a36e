// Package sampler provides the rolling sample collector behind the one-way
// telemetry digests. Samples pushed over time are compacted into a bounded
// list of period means; when the list fills up, adjacent means are folded
// together and the period length doubles, so the digest covers an ever
// longer window at coarser resolution.
package sampler

import "github.com/CYBAI/substrate-telemetry/internal/telemetry"

const (
	meanCapacity = 20
	maxTicks     = 32
)

// MeanList is a fixed-capacity rolling mean digest. It is not safe for
// concurrent use; the owning registry serializes pushes and snapshots.
type MeanList[T telemetry.Float] struct {
	means        []T
	periodSum    T
	periodCount  int
	ticksPerMean int
}

// NewMeanList returns an empty digest collecting one sample per mean.
func NewMeanList[T telemetry.Float]() *MeanList[T] {
	return &MeanList[T]{
		means:        make([]T, 0, meanCapacity),
		ticksPerMean: 1,
	}
}

// Push records one observation. Once enough observations have accumulated
// for the current period, their mean is appended to the digest.
func (m *MeanList[T]) Push(sample T) {
	m.periodSum += sample
	m.periodCount++
	if m.periodCount == m.ticksPerMean {
		m.pushMean()
	}
}

// Snapshot returns a copy of the current digest, oldest mean first. The
// original samples cannot be recovered from it.
func (m *MeanList[T]) Snapshot() []T {
	out := make([]T, len(m.means))
	copy(out, m.means)
	return out
}

func (m *MeanList[T]) pushMean() {
	mean := m.periodSum / T(m.periodCount)
	m.periodSum = 0
	m.periodCount = 0

	if len(m.means) == meanCapacity {
		if m.ticksPerMean < maxTicks {
			m.squash()
		} else {
			// At the coarsest resolution the digest becomes a sliding
			// window: drop the oldest mean.
			copy(m.means, m.means[1:])
			m.means = m.means[:meanCapacity-1]
		}
	}
	m.means = append(m.means, mean)
}

// squash halves the digest by averaging adjacent pairs and doubles the
// period length, so each retained mean covers twice the samples.
func (m *MeanList[T]) squash() {
	half := len(m.means) / 2
	for i := 0; i < half; i++ {
		m.means[i] = (m.means[2*i] + m.means[2*i+1]) / 2
	}
	m.means = m.means[:half]
	m.ticksPerMean *= 2
}
