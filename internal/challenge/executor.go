package challenge

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// Reachability failure reasons, classified from the ping subprocess's
// stderr/stdout by matching on fixed fragments.
const (
	ReasonHostUnreachable = "host unreachable"
	ReasonNameResolution  = "name resolution failed"
	ReasonPacketLoss      = "100% packet loss"
	ReasonProbeError      = "probe error"
)

// RPC replay failure reasons.
const (
	ReasonInvalidNetuidOrUID = "invalid netuid or uid"
	ReasonInvalidBlock       = "invalid block"
	ReasonPropertyNotFound   = "property not found"
	ReasonRetrievalFailure   = "retrieval failure"
)

// Pinger runs the reachability probe. The default implementation shells
// out to the system ping binary.
type Pinger interface {
	Ping(ctx context.Context, ip string) (ok bool, reason string, elapsed time.Duration, err error)
}

// execPinger is the real Pinger, invoking `ping -c 1 -W <timeout> <ip>`.
type execPinger struct {
	timeout time.Duration
}

func NewExecPinger(timeout time.Duration) Pinger {
	return &execPinger{timeout: timeout}
}

func (p *execPinger) Ping(ctx context.Context, ip string) (bool, string, time.Duration, error) {
	start := time.Now()
	seconds := int(p.timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", fmt.Sprintf("%d", seconds), ip)
	out, runErr := cmd.CombinedOutput()
	elapsed := time.Since(start)

	combined := strings.ToLower(string(out))
	switch {
	case runErr == nil:
		return true, "", elapsed, nil
	case strings.Contains(combined, "destination host unreachable"):
		return false, ReasonHostUnreachable, elapsed, nil
	case strings.Contains(combined, "name or service not known"):
		return false, ReasonNameResolution, elapsed, nil
	case strings.Contains(combined, "100% packet loss"), strings.Contains(combined, "request timeout"):
		return false, ReasonPacketLoss, elapsed, nil
	default:
		return false, ReasonProbeError, elapsed, nil
	}
}

// Replayer runs the RPC replay stage over ws://ip:port: it asks the
// remote miner to fetch neuron_for_uid_lite(subnetUID, neuronUID, block)
// from its own chain view and returns the one property the caller asked
// for. The default implementation dials with gorilla/websocket and
// issues a single neuron_for_uid_lite JSON-RPC call.
type Replayer interface {
	Replay(ctx context.Context, ip string, port int, subnetUID, neuronUID uint16, block uint64, propertyName string) (neuron.Property, string, error)
}

type wsReplayer struct {
	dialTimeout time.Duration
}

func NewWebSocketReplayer(dialTimeout time.Duration) Replayer {
	return &wsReplayer{dialTimeout: dialTimeout}
}

func (w *wsReplayer) Replay(ctx context.Context, ip string, port int, subnetUID, neuronUID uint16, block uint64, propertyName string) (neuron.Property, string, error) {
	url := fmt.Sprintf("ws://%s:%d", ip, port)

	dialer := websocket.Dialer{HandshakeTimeout: w.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return neuron.Property{}, ReasonRetrievalFailure, err
	}
	defer conn.Close()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "neuron_for_uid_lite",
		"params":  []interface{}{subnetUID, neuronUID, block},
	}
	if err := conn.WriteJSON(req); err != nil {
		return neuron.Property{}, ReasonRetrievalFailure, err
	}

	var resp struct {
		Result *neuron.NeuronLite `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return neuron.Property{}, ReasonRetrievalFailure, err
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case -32602: // invalid params, mirrors KeyError/ValueError on netuid/uid/block
			if strings.Contains(strings.ToLower(resp.Error.Message), "block") {
				return neuron.Property{}, ReasonInvalidBlock, fmt.Errorf("%s", resp.Error.Message)
			}
			return neuron.Property{}, ReasonInvalidNetuidOrUID, fmt.Errorf("%s", resp.Error.Message)
		default:
			return neuron.Property{}, ReasonRetrievalFailure, fmt.Errorf("%s", resp.Error.Message)
		}
	}
	if resp.Result == nil {
		return neuron.Property{}, ReasonPropertyNotFound, fmt.Errorf("empty result")
	}

	return resp.Result.Property(propertyName), "", nil
}

// Executor runs the two-stage per-miner challenge: a reachability probe
// followed, only on success, by an RPC replay — the Stage-A-failure-is-final
// policy means subtensor_verified/subtensor_reason are simply never set
// when the probe fails.
type Executor struct {
	cfg      config.ChallengeConfig
	pinger   Pinger
	replayer Replayer
}

// NewExecutor builds an Executor.
func NewExecutor(cfg config.ChallengeConfig, pinger Pinger, replayer Replayer) *Executor {
	return &Executor{cfg: cfg, pinger: pinger, replayer: replayer}
}

// RunRound executes one challenge round: one goroutine per selected
// miner, with a WaitGroup barrier before the caller proceeds to scoring.
// Each task carries its own timeout budget independent of the others.
func (e *Executor) RunRound(ctx context.Context, ch *neuron.Challenge, miners map[uint16]*neuron.Miner) {
	var wg sync.WaitGroup

	for _, uid := range ch.SelectedUIDs {
		m, ok := miners[uid]
		if !ok {
			continue
		}

		wg.Add(1)
		go func(m *neuron.Miner) {
			defer wg.Done()
			e.runOne(ctx, ch, m)
		}(m)
	}

	wg.Wait()
}

func (e *Executor) runOne(ctx context.Context, ch *neuron.Challenge, m *neuron.Miner) {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	reachable, reason, elapsed, err := e.pinger.Ping(probeCtx, m.IP)
	if err != nil {
		util.Warnf("challenge: probe error for uid %d (%s): %v", m.UID, m.IP, err)
	}

	m.Reachable = reachable
	m.RoutingTime = neuron.UpdateTiming(m.RoutingTime, float64(elapsed.Milliseconds()))

	if !reachable {
		m.ProbeReason = reason
		// Stage-A-failure-is-final: never attempt Stage B, leave
		// Verified/Sync/RPCReason at their zero values and ProcessTime
		// unchanged.
		return
	}

	replayCtx, cancelReplay := context.WithTimeout(ctx, e.cfg.ReplayTimeout)
	defer cancelReplay()

	start := time.Now()
	remoteValue, rpcReason, err := e.replayer.Replay(replayCtx, m.IP, e.cfg.ReplayPort, ch.SubnetUID, ch.NeuronUID, ch.Block, ch.PropertyName)
	processElapsed := time.Since(start)
	m.ProcessTime = neuron.UpdateTiming(m.ProcessTime, float64(processElapsed.Milliseconds()))

	if err != nil {
		m.Verified = false
		m.RPCReason = rpcReason
		return
	}

	m.Verified = remoteValue.Equal(ch.ExpectedValue)
	m.Sync = m.Verified
	if !m.Verified {
		m.RPCReason = ReasonPropertyNotFound
	}
}
