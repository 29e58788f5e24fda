// Package challenge implements the ChallengeGenerator and
// ChallengeExecutor components: building a round's challenge tuple and
// running it against every selected miner.
package challenge

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
)

// ChainProbe is the subset of chain.Client the generator needs: its own
// trusted view of the current block, the full subnet list, and the
// lite-neuron enumeration of any one subnet, each as of a given block.
type ChainProbe interface {
	CurrentBlock(ctx context.Context) (uint64, error)
	Subnets(ctx context.Context, block uint64) ([]uint16, error)
	NeuronsLite(ctx context.Context, netuid uint16, block uint64) ([]*neuron.NeuronLite, error)
}

// Generator builds the immutable per-round Challenge tuple: the block
// to replay against and the set of selected uids.
type Generator struct {
	cfg   config.ChallengeConfig
	probe ChainProbe
}

// NewGenerator builds a Generator.
func NewGenerator(cfg config.ChallengeConfig, probe ChainProbe) *Generator {
	return &Generator{cfg: cfg, probe: probe}
}

// Generate samples a uniform random block in [current-lookback, current],
// then draws a verification tuple from the validator's own trusted chain
// view at that block: a random subnet, a random neuron within it, and a
// property drawn from MINER_PROPERTIES or VALIDATOR_PROPERTIES depending
// on whether the chosen neuron's axon is currently serving. Finally it
// selects up to SampleSize uids from the candidate pool to replay the
// tuple against. The original single-argument `randint(current_block -
// lookback)` bug is fixed here: both ends of the range are passed
// through explicitly.
func (g *Generator) Generate(ctx context.Context, roundID uint64, candidates []uint16) (*neuron.Challenge, error) {
	current, err := g.probe.CurrentBlock(ctx)
	if err != nil {
		return nil, err
	}

	low := int64(current) - int64(g.cfg.BlockLookback)
	if low < 0 {
		low = 0
	}
	high := int64(current)

	var block uint64
	if high <= low {
		block = uint64(low)
	} else {
		block = uint64(low + rand.Int63n(high-low+1))
	}

	subnets, err := g.probe.Subnets(ctx, block)
	if err != nil {
		return nil, err
	}
	if len(subnets) == 0 {
		return nil, fmt.Errorf("challenge: no subnets registered at block %d", block)
	}
	maxSubnet := subnets[0]
	for _, s := range subnets[1:] {
		if s > maxSubnet {
			maxSubnet = s
		}
	}
	subnetUID := uint16(rand.Intn(int(maxSubnet) + 1))

	neurons, err := g.probe.NeuronsLite(ctx, subnetUID, block)
	if err != nil {
		return nil, err
	}
	if len(neurons) == 0 {
		return nil, fmt.Errorf("challenge: no neurons in subnet %d at block %d", subnetUID, block)
	}
	chosen := neurons[rand.Intn(len(neurons))]

	properties := neuron.MinerProperties
	if !chosen.Axon.IsServing {
		properties = neuron.ValidatorProperties
	}
	propertyName := properties[rand.Intn(len(properties))]

	selected := selectUIDs(candidates, g.cfg.SampleSize)

	return &neuron.Challenge{
		RoundID:       roundID,
		Block:         block,
		SubnetUID:     subnetUID,
		NeuronUID:     chosen.UID,
		PropertyName:  propertyName,
		ExpectedValue: chosen.Property(propertyName),
		SelectedUIDs:  selected,
	}, nil
}

// selectUIDs picks up to n uids at random without replacement, or every
// candidate if the pool is smaller than n.
func selectUIDs(candidates []uint16, n int) []uint16 {
	if n >= len(candidates) {
		out := make([]uint16, len(candidates))
		copy(out, candidates)
		return out
	}

	pool := make([]uint16, len(candidates))
	copy(pool, candidates)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n]
}
