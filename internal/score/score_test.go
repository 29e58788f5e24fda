package score

import (
	"math"
	"testing"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
)

func testConfig() config.ScoreConfig {
	return config.ScoreConfig{
		AvailabilityWeight:       8,
		AvailabilityDesyncWeight: 3,
		LatencyWeight:            7,
		PerformanceWeight:        7,
		ReliabilityWeight:        3,
		DistributionWeight:       2,
		IndividualWeight:         0.6,
		TeamWeight:               0.4,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFinal_NotVerifiedReturnsZero(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{
		Verified:          false,
		AvailabilityScore: 0,
		LatencyScore:      0,
		PerformanceScore:  0,
		ReliabilityScore:  0,
		DistributionScore: 0,
	}
	got := e.Final(m)
	if !almostEqual(got, 0) {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestFinal_DesyncMinerUsesReducedWeight(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{
		Verified:          true,
		Sync:              false,
		AvailabilityScore: 0.10,
		LatencyScore:      0.20,
		PerformanceScore:  0.30,
		ReliabilityScore:  0.40,
		DistributionScore: 0.50,
	}
	want := (0.10*3 + 0.20*7 + 0.30*7 + 0.40*3 + 0.50*2) / 22
	got := e.Final(m)
	if !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFinal_SuspiciousWithNoPenaltyFactorIsZero(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{
		Verified:          true,
		Sync:              true,
		Suspicious:        true,
		AvailabilityScore: 0.10,
		LatencyScore:      0.20,
		PerformanceScore:  0.30,
		ReliabilityScore:  0.40,
		DistributionScore: 0.50,
	}
	got := e.Final(m)
	if !almostEqual(got, 0) {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestFinal_SuspiciousWithPenaltyFactorIsScaled(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{
		Verified:          true,
		Sync:              false,
		Suspicious:        true,
		PenaltyFactor:     0.4,
		AvailabilityScore: 0.10,
		LatencyScore:      0.20,
		PerformanceScore:  0.30,
		ReliabilityScore:  0.40,
		DistributionScore: 0.50,
	}
	base := (0.10*3 + 0.20*7 + 0.30*7 + 0.40*3 + 0.50*2) / 22
	want := base * 0.4
	got := e.Final(m)
	if !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFinal_VerifiedAndSyncUsesFullWeight(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{
		Verified:          true,
		Sync:              true,
		AvailabilityScore: 0.10,
		LatencyScore:      0.20,
		PerformanceScore:  0.30,
		ReliabilityScore:  0.40,
		DistributionScore: 0.50,
	}
	want := (0.10*8 + 0.20*7 + 0.30*7 + 0.40*3 + 0.50*2) / 27
	got := e.Final(m)
	if !almostEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPerformance_SingleMinerDegeneratesToOne(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{Verified: true, ProcessTime: 42}
	miners := []*neuron.Miner{m}
	got := e.Performance(m, miners)
	if got != 1.0 {
		t.Errorf("expected 1.0, got %v", got)
	}
}

func TestDistribution_NoConformingMinersIsZero(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{Verified: false, Country: "US"}
	miners := []*neuron.Miner{m}
	got := e.Distribution(m, miners)
	if got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestDistribution_SoleConformingMinerIsOne(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{Verified: true, HasIPConflicts: false, Country: "US"}
	miners := []*neuron.Miner{m}
	got := e.Distribution(m, miners)
	if got != 1.0 {
		t.Errorf("expected 1.0, got %v", got)
	}
}

func TestWilsonLowerBound_ZeroAttemptsIsZero(t *testing.T) {
	if got := WilsonLowerBound(0, 0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestWilsonLowerBound_MonotonicWithSampleSizeAtFixedRatio(t *testing.T) {
	small := WilsonLowerBound(8, 10)
	large := WilsonLowerBound(80, 100)
	if large <= small {
		t.Errorf("expected larger sample at same ratio to raise the lower bound: small=%v large=%v", small, large)
	}
}

func TestWilsonLowerBound_PerfectRecordApproachesButNeverReachesOne(t *testing.T) {
	got := WilsonLowerBound(1000, 1000)
	if got >= 1.0 {
		t.Errorf("expected lower bound strictly below 1.0, got %v", got)
	}
	if got < 0.99 {
		t.Errorf("expected lower bound close to 1.0 for a long perfect streak, got %v", got)
	}
}

func TestReliability_IncrementsAttemptsAndSuccesses(t *testing.T) {
	e := NewEngine(testConfig())
	m := &neuron.Miner{Verified: true, HasIPConflicts: false}
	e.Reliability(m)
	e.Reliability(m)
	if m.ChallengeAttempts != 2 {
		t.Errorf("expected 2 attempts, got %d", m.ChallengeAttempts)
	}
	if m.ChallengeSuccesses != 2 {
		t.Errorf("expected 2 successes, got %d", m.ChallengeSuccesses)
	}
}
