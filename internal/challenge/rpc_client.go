package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tos-network/subtensor-validator/internal/neuron"
)

// RPCClient implements MinerRPC's SendScope: it pushes the round's score
// breakdown to a miner over its own RPC endpoint and records the
// version the miner reports back directly onto the snapshot.
type RPCClient struct {
	port        int
	dialTimeout time.Duration
}

// NewRPCClient builds an RPCClient targeting the given port on every
// miner's IP.
func NewRPCClient(port int, dialTimeout time.Duration) *RPCClient {
	return &RPCClient{port: port, dialTimeout: dialTimeout}
}

// SendScope pushes m's score breakdown to ws://m.IP:port and stores the
// miner's self-reported version on m. A delivery failure is returned to
// the caller to log; it never touches m.Verified or m.FinalScore.
func (c *RPCClient) SendScope(ctx context.Context, m *neuron.Miner) error {
	url := fmt.Sprintf("ws://%s:%d", m.IP, c.port)

	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("challenge: send_scope dial failed for uid %d: %w", m.UID, err)
	}
	defer conn.Close()

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "send_scope",
		"params": map[string]interface{}{
			"uid":                m.UID,
			"availability_score": m.AvailabilityScore,
			"reliability_score":  m.ReliabilityScore,
			"latency_score":      m.LatencyScore,
			"performance_score":  m.PerformanceScore,
			"distribution_score": m.DistributionScore,
			"score":              m.FinalScore,
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("challenge: send_scope write failed for uid %d: %w", m.UID, err)
	}

	var resp struct {
		Result *struct {
			Version uint32 `json:"version"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("challenge: send_scope read failed for uid %d: %w", m.UID, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("challenge: send_scope rejected for uid %d: %s", m.UID, resp.Error.Message)
	}
	if resp.Result != nil {
		m.Version = resp.Result.Version
	}
	return nil
}
