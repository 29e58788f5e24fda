// Package orchestrator drives the round loop: fetch the metagraph,
// generate a challenge, run it against every selected miner, score the
// results, smooth them into the moving-average vector, and publish the
// round event. Structurally this is a ticker-driven loop with
// context-based cancellation, the same shape as a job-refresh loop.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/tos-network/subtensor-validator/internal/challenge"
	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/geo"
	"github.com/tos-network/subtensor-validator/internal/neuron"
	"github.com/tos-network/subtensor-validator/internal/policy"
	"github.com/tos-network/subtensor-validator/internal/score"
	"github.com/tos-network/subtensor-validator/internal/smoother"
	"github.com/tos-network/subtensor-validator/internal/storage"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// ChainProbe is the subset of chain.Client the orchestrator needs: the
// generator's own contract, used directly here to fetch the round's
// metagraph view.
type ChainProbe interface {
	challenge.ChainProbe
}

// RoundSink receives a completed round's summary for logging/alerting.
type RoundSink interface {
	Publish(ctx context.Context, event RoundEvent)
}

// GeoResolver resolves a miner's IP to an approximate location. Lookup
// never errors; an unresolvable IP falls back to the configured default.
type GeoResolver interface {
	Lookup(ip string) geo.Location
}

// MinerRPC pushes the round's score breakdown back to a miner and
// records the version it reports in return.
type MinerRPC interface {
	SendScope(ctx context.Context, m *neuron.Miner) error
}

// RoundEvent is the published summary of one completed round.
type RoundEvent struct {
	RoundID   uint64
	Block     uint64
	UIDs      []uint16
	Elapsed   time.Duration
	Composite map[uint16]float64
}

// Orchestrator is the RoundOrchestrator: it owns the ticker-driven round
// loop and wires together every other collaborator.
type Orchestrator struct {
	cfg config.Config

	probe     ChainProbe
	geo       GeoResolver
	generator *challenge.Generator
	executor  *challenge.Executor
	scorer    *score.Engine
	smoothed  *smoother.Vector
	suspicion *policy.SuspicionTracker
	rpc       MinerRPC
	store     *storage.Store
	sink      RoundSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	roundID uint64
}

// New builds an Orchestrator from its collaborators.
func New(
	cfg config.Config,
	probe ChainProbe,
	geoResolver GeoResolver,
	generator *challenge.Generator,
	executor *challenge.Executor,
	scorer *score.Engine,
	smoothed *smoother.Vector,
	suspicion *policy.SuspicionTracker,
	rpc MinerRPC,
	store *storage.Store,
	sink RoundSink,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		probe:     probe,
		geo:       geoResolver,
		generator: generator,
		executor:  executor,
		scorer:    scorer,
		smoothed:  smoothed,
		suspicion: suspicion,
		rpc:       rpc,
		store:     store,
		sink:      sink,
	}
}

// Start launches the ticker-driven round loop.
func (o *Orchestrator) Start() {
	o.ctx, o.cancel = context.WithCancel(context.Background())

	o.wg.Add(1)
	go o.roundLoop()

	util.Info("orchestrator started")
}

// Stop cancels the round loop and waits for the in-flight round, if any,
// to finish.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	util.Info("orchestrator stopped")
}

func (o *Orchestrator) roundLoop() {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.Challenge.RoundInterval)
	defer ticker.Stop()

	// Run one round immediately on startup rather than waiting a full
	// interval for the first tick.
	o.runRoundSafely()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.runRoundSafely()
		}
	}
}

func (o *Orchestrator) runRoundSafely() {
	defer func() {
		if r := recover(); r != nil {
			util.Errorf("orchestrator: round panicked: %v", r)
		}
	}()

	if err := o.RunRound(o.ctx); err != nil {
		util.Errorf("orchestrator: round failed: %v", err)
	}
}

// RunRound executes the seven-step round: fetch metagraph, load
// persisted stats, generate a challenge, execute it concurrently, score
// every miner, smooth the rewards, and publish the round event.
func (o *Orchestrator) RunRound(ctx context.Context) error {
	start := time.Now()
	o.roundID++
	roundID := o.roundID

	netuid := o.cfg.Subnet.NetUID

	// Step 1: fetch the current metagraph view.
	current, err := o.probe.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	neurons, err := o.probe.NeuronsLite(ctx, netuid, current)
	if err != nil {
		return err
	}
	if len(neurons) == 0 {
		util.Warn("orchestrator: empty metagraph, skipping round")
		return nil
	}

	miners := make([]*neuron.Miner, 0, len(neurons))
	for _, n := range neurons {
		miners = append(miners, neuron.NewMiner(n))
	}

	o.smoothed.Resize(highestUID(miners) + 1)

	byUID := make(map[uint16]*neuron.Miner, len(miners))
	candidates := make([]uint16, 0, len(miners))
	for _, m := range miners {
		byUID[m.UID] = m
		candidates = append(candidates, m.UID)

		// Step 2: resolve the miner's approximate location. Latency and
		// distribution scoring both gate on Country/Subregion.
		if o.geo != nil {
			loc := o.geo.Lookup(m.IP)
			m.Country = loc.Country
			m.Subregion = loc.Subregion
		}

		// Load persisted cumulative stats onto the fresh snapshot.
		if o.store != nil {
			if err := o.store.LoadMiner(ctx, m); err != nil {
				util.Warnf("orchestrator: failed to load stats for uid %d: %v", m.UID, err)
			}
		}
	}

	// Step 3: detect IP conflicts across the full candidate set before
	// challenging, since availability/latency/performance/distribution
	// all gate on HasIPConflicts.
	markIPConflicts(miners)

	// Step 4: generate the challenge tuple.
	ch, err := o.generator.Generate(ctx, roundID, candidates)
	if err != nil {
		return err
	}

	selected := make([]*neuron.Miner, 0, len(ch.SelectedUIDs))
	for _, uid := range ch.SelectedUIDs {
		if m, ok := byUID[uid]; ok {
			selected = append(selected, m)
		}
	}

	// Step 5: execute the challenge across every selected miner.
	o.executor.RunRound(ctx, ch, byUID)

	// Step 6: apply suspicion, compute final scores, and push each
	// miner's score breakdown back to it.
	rewards := make(map[uint16]float64, len(selected))
	for _, m := range selected {
		if susp, pf := o.suspicion.IsSuspicious(m.UID); susp {
			m.Suspicious = true
			m.PenaltyFactor = pf
		}

		o.scorer.Score(m, miners)
		rewards[m.UID] = m.FinalScore

		if o.rpc != nil {
			if err := o.rpc.SendScope(ctx, m); err != nil {
				util.Warnf("orchestrator: failed to push score breakdown to uid %d: %v", m.UID, err)
			}
		}

		if o.store != nil {
			if err := o.store.UpdateStatistics(ctx, m); err != nil {
				util.Warnf("orchestrator: failed to persist stats for uid %d: %v", m.UID, err)
			}
		}
	}

	// Step 7: smooth rewards into the moving-average vector. Unselected
	// uids retain their prior value, then any uid currently flagged
	// suspicious — whether challenged this round or not — is forced to
	// zero, the deregistration path distinct from the in-composite
	// penalty multiplier applied above.
	o.smoothed.ScatterUpdate(rewards)
	for _, m := range miners {
		if susp, _ := o.suspicion.IsSuspicious(m.UID); susp {
			o.smoothed.Zero(m.UID)
		}
	}

	if o.sink != nil {
		o.sink.Publish(ctx, RoundEvent{
			RoundID:   roundID,
			Block:     ch.Block,
			UIDs:      ch.SelectedUIDs,
			Elapsed:   time.Since(start),
			Composite: rewards,
		})
	}

	return nil
}

func highestUID(miners []*neuron.Miner) int {
	max := 0
	for _, m := range miners {
		if int(m.UID) > max {
			max = int(m.UID)
		}
	}
	return max
}

func markIPConflicts(miners []*neuron.Miner) {
	counts := map[string]int{}
	for _, m := range miners {
		counts[m.IP]++
	}
	for _, m := range miners {
		m.IPOccurrences = counts[m.IP]
		m.HasIPConflicts = counts[m.IP] > 1
	}
}

// Snapshot returns the current moving-average vector for the status API.
func (o *Orchestrator) Snapshot() []float64 {
	return o.smoothed.Snapshot()
}
