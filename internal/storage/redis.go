// Package storage implements the StatsStore collaborator: per-miner
// cumulative counters persisted in Redis, one hash per hotkey.
package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
)

const keyPrefix = "subtensor-validator:"

func minerKey(hotkey string) string {
	return keyPrefix + "miner:" + hotkey
}

// Store is a Redis-backed StatsStore.
type Store struct {
	client *redis.Client
}

// NewStore builds a Store from configuration.
func NewStore(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storage: redis ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// LoadMiner fetches a miner's persisted cumulative counters and applies
// them onto a round-local snapshot already seeded from the chain probe.
// A miner with no prior record is left at its zero-value defaults.
func (s *Store) LoadMiner(ctx context.Context, m *neuron.Miner) error {
	vals, err := s.client.HGetAll(ctx, minerKey(m.Hotkey)).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	if len(vals) == 0 {
		return nil
	}

	if v, ok := vals["challenge_attempts"]; ok {
		m.ChallengeAttempts, _ = strconv.Atoi(v)
	}
	if v, ok := vals["challenge_successes"]; ok {
		m.ChallengeSuccesses, _ = strconv.Atoi(v)
	}
	if v, ok := vals["routing_time"]; ok {
		m.RoutingTime, _ = strconv.ParseFloat(v, 64)
	} else {
		m.RoutingTime = neuron.NoPriorSample
	}
	if v, ok := vals["process_time"]; ok {
		m.ProcessTime, _ = strconv.ParseFloat(v, 64)
	} else {
		m.ProcessTime = neuron.NoPriorSample
	}
	if v, ok := vals["version"]; ok {
		n, _ := strconv.ParseUint(v, 10, 32)
		m.Version = uint32(n)
	}

	return nil
}

// UpdateStatistics persists a miner's round-end counters back to Redis
// in a single pipelined write, one pipeline per hotkey rather than a
// cross-miner transaction.
func (s *Store) UpdateStatistics(ctx context.Context, m *neuron.Miner) error {
	pipe := s.client.Pipeline()

	key := minerKey(m.Hotkey)
	pipe.HSet(ctx, key,
		"challenge_attempts", m.ChallengeAttempts,
		"challenge_successes", m.ChallengeSuccesses,
		"routing_time", m.RoutingTime,
		"process_time", m.ProcessTime,
		"version", m.Version,
		"last_round", time.Now().Unix(),
	)

	_, err := pipe.Exec(ctx)
	return err
}

// GetMinerStats returns the raw persisted hash for a hotkey.
func (s *Store) GetMinerStats(ctx context.Context, hotkey string) (map[string]string, error) {
	return s.client.HGetAll(ctx, minerKey(hotkey)).Result()
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
