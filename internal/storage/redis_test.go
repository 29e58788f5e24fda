package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewStore(config.RedisConfig{URL: mr.Addr()})
	if err != nil {
		t.Fatalf("failed to build store: %v", err)
	}
	return s, mr
}

func TestLoadMiner_UnknownHotkeyLeavesZeroValue(t *testing.T) {
	s, _ := newTestStore(t)
	m := &neuron.Miner{Hotkey: "5Funknown"}

	if err := s.LoadMiner(context.Background(), m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ChallengeAttempts != 0 {
		t.Errorf("expected zero-value attempts, got %d", m.ChallengeAttempts)
	}
}

func TestUpdateAndLoadMiner_RoundTrips(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	m := &neuron.Miner{
		Hotkey:             "5Fhotkey",
		ChallengeAttempts:  10,
		ChallengeSuccesses: 9,
		RoutingTime:        123.5,
		ProcessTime:        45.0,
		Version:            2,
	}
	if err := s.UpdateStatistics(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded := &neuron.Miner{Hotkey: "5Fhotkey"}
	if err := s.LoadMiner(ctx, loaded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if loaded.ChallengeAttempts != 10 || loaded.ChallengeSuccesses != 9 {
		t.Errorf("expected counters to round-trip, got %+v", loaded)
	}
	if loaded.RoutingTime != 123.5 || loaded.ProcessTime != 45.0 {
		t.Errorf("expected timings to round-trip, got %+v", loaded)
	}
	if loaded.Version != 2 {
		t.Errorf("expected version to round-trip, got %d", loaded.Version)
	}
}
