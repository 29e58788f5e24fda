// Package score implements the validator's multi-factor scoring engine:
// availability, reliability, latency, performance and distribution
// sub-scores combined into a single weighted final score per miner.
package score

import (
	"math"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
)

// Failure rewards returned when a sub-score's precondition is not met.
const (
	AvailabilityFailureReward = 0.0
	ReliabilityFailureReward  = 0.0
	LatencyFailureReward      = 0.0
	PerformanceFailureReward  = 0.0
	DistributionFailureReward = 0.0
)

// wilsonZ is the z-score for a 95% confidence interval.
const wilsonZ = 1.96

// Engine computes sub-scores and the final composite score for a round's
// miner set. It holds only the configured weights; all per-round state
// lives on the Miner snapshots it is given.
type Engine struct {
	cfg config.ScoreConfig
}

// NewEngine builds a scoring engine from the configured weights.
func NewEngine(cfg config.ScoreConfig) *Engine {
	return &Engine{cfg: cfg}
}

// CountSameIP returns how many miners in the set share m's IP.
func CountSameIP(m *neuron.Miner, miners []*neuron.Miner) int {
	count := 0
	for _, other := range miners {
		if other.IP == m.IP {
			count++
		}
	}
	return count
}

func canComputeAvailability(m *neuron.Miner) bool {
	return m.Verified && !m.HasIPConflicts
}

// Availability returns 1.0 if the miner is verified and IP-conflict-free,
// the failure reward otherwise.
func (e *Engine) Availability(m *neuron.Miner) float64 {
	if canComputeAvailability(m) {
		return 1.0
	}
	return AvailabilityFailureReward
}

func canComputeReliability(m *neuron.Miner) bool {
	return true
}

// Reliability increments the miner's attempt/success counters and
// returns the Wilson lower bound of the resulting success ratio.
func (e *Engine) Reliability(m *neuron.Miner) float64 {
	if !canComputeReliability(m) {
		return ReliabilityFailureReward
	}

	successful := m.Verified && !m.HasIPConflicts
	m.ChallengeAttempts++
	if successful {
		m.ChallengeSuccesses++
	}

	return WilsonLowerBound(m.ChallengeSuccesses, m.ChallengeAttempts)
}

// WilsonLowerBound returns the lower bound of the Wilson score interval
// for `successes` out of `attempts` trials at 95% confidence. No pack
// library implements this narrow statistic; it is hand-derived from the
// standard closed-form formula (Wilson, 1927).
func WilsonLowerBound(successes, attempts int) float64 {
	if attempts == 0 {
		return 0
	}

	n := float64(attempts)
	p := float64(successes) / n
	z := wilsonZ
	z2 := z * z

	denominator := 1 + z2/n
	center := p + z2/(2*n)
	margin := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n))

	return (center - margin) / denominator
}

func canComputeLatency(m *neuron.Miner) bool {
	return m.Verified && !m.HasIPConflicts
}

// Latency computes the four-component latency score described in the
// component design: intra-country routing-time rank, country population
// within the miner's subregion, cross-country average routing time
// within the subregion, and subregion population globally. The first
// pair is weighted as an individual score, the second pair as a team
// score.
func (e *Engine) Latency(m *neuron.Miner, miners []*neuron.Miner) float64 {
	if !canComputeLatency(m) {
		return LatencyFailureReward
	}

	// countrySet is the set of countries represented among miners
	// sharing m's subregion.
	countrySet := map[string]bool{}
	for _, other := range miners {
		if other.Subregion == m.Subregion {
			countrySet[other.Country] = true
		}
	}

	// First: rank against other miners in the same country.
	var routingTimes []float64
	for _, other := range miners {
		if other.Country == m.Country {
			routingTimes = append(routingTimes, other.RoutingTime)
		}
	}
	minTime, maxTime := minMax(routingTimes)
	firstScore := 1.0
	if maxTime-minTime != 0 {
		firstScore = (maxTime - m.RoutingTime) / (maxTime - minTime)
	}

	// Second: population of the miner's country among subregion peers.
	counts := map[string]int{}
	for _, x := range miners {
		if countrySet[x.Country] {
			counts[x.Country]++
		}
	}
	minCount, maxCount := minMaxInt(counts)
	secondScore := 1.0
	if maxCount-minCount != 0 {
		secondScore = float64(counts[m.Country]-minCount) / float64(maxCount-minCount)
	}

	// Third: average routing time of the miner's country against other
	// countries present in the same subregion.
	avgByCountry := map[string]float64{}
	var avgTimes []float64
	for c := range countrySet {
		var times []float64
		for _, x := range miners {
			if x.Country == c {
				times = append(times, x.RoutingTime)
			}
		}
		avg := mean(times)
		avgByCountry[c] = avg
		avgTimes = append(avgTimes, avg)
	}
	minAvg, maxAvg := minMax(avgTimes)
	thirdScore := 1.0
	if maxAvg-minAvg != 0 {
		thirdScore = (maxAvg - avgByCountry[m.Country]) / (maxAvg - minAvg)
	}

	// Fourth: population of the miner's subregion among all subregions.
	subregionCounts := countBy(miners, func(x *neuron.Miner) (string, bool) {
		return x.Subregion, true
	})
	minSub, maxSub := minMaxInt(subregionCounts)
	fourthScore := 1.0
	if maxSub-minSub != 0 {
		fourthScore = float64(subregionCounts[m.Subregion]-minSub) / float64(maxSub-minSub)
	}

	individual := ((firstScore + secondScore) / 2) * e.cfg.IndividualWeight
	team := ((thirdScore + fourthScore) / 2) * e.cfg.TeamWeight
	return individual + team
}

func canComputePerformance(m *neuron.Miner) bool {
	return m.Verified && !m.HasIPConflicts
}

// Performance scores the miner's process time against the round's
// fastest and slowest responders. A single-responder round degenerates
// to a perfect score.
func (e *Engine) Performance(m *neuron.Miner, miners []*neuron.Miner) float64 {
	if !canComputePerformance(m) {
		return PerformanceFailureReward
	}

	var times []float64
	for _, x := range miners {
		times = append(times, x.ProcessTime)
	}
	minTime, maxTime := minMax(times)

	if maxTime == minTime && minTime == m.ProcessTime {
		return 1.0
	}

	return (maxTime - m.ProcessTime) / (maxTime - minTime)
}

func canComputeDistribution(m *neuron.Miner) bool {
	return m.Verified && !m.HasIPConflicts
}

// Distribution rewards miners in under-represented countries: score is
// the reciprocal of the count of conforming (verified, conflict-free)
// miners sharing the miner's country.
func (e *Engine) Distribution(m *neuron.Miner, miners []*neuron.Miner) float64 {
	if !canComputeDistribution(m) {
		return DistributionFailureReward
	}

	count := 0
	for _, x := range miners {
		if x.Verified && !x.HasIPConflicts && x.Country == m.Country {
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return 1.0 / float64(count)
}

// Final combines the five sub-scores into the weighted composite, using
// the reduced availability weight when the miner is verified-but-desync,
// and applying the suspicion multiplier last.
func (e *Engine) Final(m *neuron.Miner) float64 {
	availabilityWeight := e.cfg.AvailabilityWeight
	if m.Verified && !m.Sync {
		availabilityWeight = e.cfg.AvailabilityDesyncWeight
	}

	numerator := availabilityWeight*m.AvailabilityScore +
		e.cfg.LatencyWeight*m.LatencyScore +
		e.cfg.PerformanceWeight*m.PerformanceScore +
		e.cfg.ReliabilityWeight*m.ReliabilityScore +
		e.cfg.DistributionWeight*m.DistributionScore

	denominator := availabilityWeight +
		e.cfg.LatencyWeight +
		e.cfg.PerformanceWeight +
		e.cfg.ReliabilityWeight +
		e.cfg.DistributionWeight

	result := 0.0
	if denominator != 0 {
		result = numerator / denominator
	}

	if m.Suspicious {
		result = m.PenaltyFactor * result
	}

	return result
}

// Score runs the full sub-score pipeline for one miner against the
// round's full miner set and writes every field on m, returning the
// final composite.
func (e *Engine) Score(m *neuron.Miner, miners []*neuron.Miner) float64 {
	m.AvailabilityScore = e.Availability(m)
	m.ReliabilityScore = e.Reliability(m)
	m.LatencyScore = e.Latency(m, miners)
	m.PerformanceScore = e.Performance(m, miners)
	m.DistributionScore = e.Distribution(m, miners)
	m.FinalScore = e.Final(m)
	return m.FinalScore
}

func minMax(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

func minMaxInt(counts map[string]int) (int, int) {
	first := true
	var min, max int
	for _, c := range counts {
		if first {
			min, max = c, c
			first = false
			continue
		}
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return min, max
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
