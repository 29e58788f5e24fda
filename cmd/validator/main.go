// Command validator runs the Subtensor RPC verification subnet's
// validator core: it challenges a sample of miners every round, scores
// their responses, and smooths the rewards into a moving-average vector.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tos-network/subtensor-validator/internal/api"
	"github.com/tos-network/subtensor-validator/internal/challenge"
	"github.com/tos-network/subtensor-validator/internal/chain"
	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/geo"
	"github.com/tos-network/subtensor-validator/internal/newrelic"
	"github.com/tos-network/subtensor-validator/internal/notify"
	"github.com/tos-network/subtensor-validator/internal/orchestrator"
	"github.com/tos-network/subtensor-validator/internal/policy"
	"github.com/tos-network/subtensor-validator/internal/profiling"
	"github.com/tos-network/subtensor-validator/internal/score"
	"github.com/tos-network/subtensor-validator/internal/smoother"
	"github.com/tos-network/subtensor-validator/internal/storage"
	"github.com/tos-network/subtensor-validator/internal/util"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("validator", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}

	util.Infof("starting validator %s", version)

	chainClient := chain.NewClient(cfg.Chain)
	geoResolver := geo.NewStatic(cfg.Geo)

	scoreEngine := score.NewEngine(cfg.Score)
	smoothedVector := smoother.NewVector(4096, cfg.Smoother.Alpha)
	suspicionTracker := policy.NewSuspicionTracker(cfg.Suspicion)

	var store *storage.Store
	if cfg.Redis.URL != "" {
		store, err = storage.NewStore(cfg.Redis)
		if err != nil {
			util.Warnf("stats store unavailable, running without persistence: %v", err)
			store = nil
		}
	}

	generator := challenge.NewGenerator(cfg.Challenge, chainClient)
	pinger := challenge.NewExecPinger(cfg.Challenge.ProbeTimeout)
	replayer := challenge.NewWebSocketReplayer(cfg.Challenge.ReplayTimeout)
	executor := challenge.NewExecutor(cfg.Challenge, pinger, replayer)
	rpcClient := challenge.NewRPCClient(cfg.Challenge.ReplayPort, cfg.Challenge.ScopeTimeout)

	notifySink := notify.NewSink(cfg.Notify)
	nrAgent := newrelic.NewAgent(&cfg.NewRelic)
	if err := nrAgent.Start(); err != nil {
		util.Warnf("newrelic agent failed to start: %v", err)
	}

	sink := &fanOutSink{sinks: []orchestrator.RoundSink{notifySink, nrAgent}}

	orch := orchestrator.New(*cfg, chainClient, geoResolver, generator, executor, scoreEngine, smoothedVector, suspicionTracker, rpcClient, store, sink)

	// The status API reports the orchestrator's own snapshot, and the
	// orchestrator publishes into the API's last-round cache — built in
	// this order since the two hold a cyclic reference.
	apiServer := api.NewServer(cfg.API, chainClient, orch)
	sink.sinks = append(sink.sinks, apiRecorder{apiServer})

	profilingServer := profiling.NewServer(cfg.Profiling)
	if err := profilingServer.Start(); err != nil {
		util.Warnf("profiling server failed to start: %v", err)
	}
	if err := apiServer.Start(); err != nil {
		util.Warnf("status API failed to start: %v", err)
	}

	orch.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	util.Info("shutting down")

	orch.Stop()

	if err := apiServer.Stop(); err != nil {
		util.Warnf("status API shutdown error: %v", err)
	}
	if err := profilingServer.Stop(); err != nil {
		util.Warnf("profiling server shutdown error: %v", err)
	}
	nrAgent.Stop()
	if store != nil {
		if err := store.Close(); err != nil {
			util.Warnf("stats store close error: %v", err)
		}
	}

	util.Info("shutdown complete")
}

// fanOutSink publishes a round event to every configured sink.
type fanOutSink struct {
	sinks []orchestrator.RoundSink
}

func (f *fanOutSink) Publish(ctx context.Context, e orchestrator.RoundEvent) {
	for _, s := range f.sinks {
		if s != nil {
			s.Publish(ctx, e)
		}
	}
}

// apiRecorder adapts api.Server.RecordRoundEvent to the RoundSink interface.
type apiRecorder struct {
	server *api.Server
}

func (a apiRecorder) Publish(ctx context.Context, e orchestrator.RoundEvent) {
	if a.server != nil {
		a.server.RecordRoundEvent(e)
	}
}
