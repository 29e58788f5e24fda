// Package chain implements the ChainProbe collaborator: a JSON-RPC
// client over HTTP to a Subtensor-like node, with multi-endpoint health
// tracking and automatic failover to the next healthy endpoint.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/tos-network/subtensor-validator/internal/config"
	"github.com/tos-network/subtensor-validator/internal/neuron"
	"github.com/tos-network/subtensor-validator/internal/util"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// endpoint tracks one Subtensor node's health: consecutive failures,
// recovery progress, and whether calls should currently route to it.
type endpoint struct {
	url string

	mu      sync.RWMutex
	healthy bool

	failCount    int
	successCount int
}

// Client is the ChainProbe implementation: it holds a pool of endpoints
// and transparently fails over between them.
type Client struct {
	httpClient *http.Client
	endpoints  []*endpoint
	activeIdx  int32 // atomic

	requestID uint64 // atomic

	maxFailures       int
	recoveryThreshold int
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.ChainConfig) *Client {
	endpoints := make([]*endpoint, 0, len(cfg.Endpoints))
	for _, url := range cfg.Endpoints {
		endpoints = append(endpoints, &endpoint{url: url, healthy: true})
	}

	return &Client{
		httpClient:        &http.Client{Timeout: cfg.Timeout},
		endpoints:         endpoints,
		maxFailures:       3,
		recoveryThreshold: 2,
	}
}

func (c *Client) nextRequestID() uint64 {
	return atomic.AddUint64(&c.requestID, 1)
}

// call invokes one JSON-RPC method against the active endpoint, failing
// over to the next healthy endpoint on error.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	n := len(c.endpoints)
	if n == 0 {
		return nil, fmt.Errorf("chain: no endpoints configured")
	}

	start := int(atomic.LoadInt32(&c.activeIdx)) % n
	var lastErr error

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := c.endpoints[idx]

		if !ep.isHealthy() && i < n-1 {
			continue
		}

		result, err := c.callEndpoint(ctx, ep, method, params)
		if err == nil {
			ep.recordSuccess(c.recoveryThreshold)
			atomic.StoreInt32(&c.activeIdx, int32(idx))
			return result, nil
		}

		lastErr = err
		ep.recordFailure(c.maxFailures)
		util.Warnf("chain: endpoint %s failed for %s: %v", ep.url, method, err)
	}

	return nil, fmt.Errorf("chain: all endpoints failed for %s: %w", method, lastErr)
}

func (c *Client) callEndpoint(ctx context.Context, ep *endpoint, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextRequestID(), Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (e *endpoint) isHealthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthy
}

func (e *endpoint) recordSuccess(recoveryThreshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failCount = 0
	e.successCount++
	if !e.healthy && e.successCount >= recoveryThreshold {
		e.healthy = true
	}
}

func (e *endpoint) recordFailure(maxFailures int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successCount = 0
	e.failCount++
	if e.failCount >= maxFailures {
		e.healthy = false
	}
}

// CurrentBlock returns the node's current block number.
func (c *Client) CurrentBlock(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "chain_getBlockNumber", nil)
	if err != nil {
		return 0, err
	}
	var n uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// Subnets returns the registered subnet uids as of block.
func (c *Client) Subnets(ctx context.Context, block uint64) ([]uint16, error) {
	raw, err := c.call(ctx, "subnetInfo_getSubnets", []interface{}{block})
	if err != nil {
		return nil, err
	}
	var uids []uint16
	if err := json.Unmarshal(raw, &uids); err != nil {
		return nil, err
	}
	return uids, nil
}

// neuronLiteWire is the wire shape for one entry of a NeuronsLite
// response: a NeuronLite record plus the registration flag used to
// filter deregistered neurons out of the metagraph view.
type neuronLiteWire struct {
	neuron.NeuronLite
	Active bool `json:"active"`
}

// NeuronsLite returns the full lite-neuron view of a subnet as of block,
// filtered to currently-registered neurons.
func (c *Client) NeuronsLite(ctx context.Context, netuid uint16, block uint64) ([]*neuron.NeuronLite, error) {
	raw, err := c.call(ctx, "neuronInfo_getNeuronsLite", []interface{}{netuid, block})
	if err != nil {
		return nil, err
	}
	var wires []neuronLiteWire
	if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, err
	}

	out := make([]*neuron.NeuronLite, 0, len(wires))
	for _, w := range wires {
		if !w.Active {
			continue
		}
		n := w.NeuronLite
		out = append(out, &n)
	}
	return out, nil
}

// NeuronForUidLite fetches a single lite neuron record as of a given
// block.
func (c *Client) NeuronForUidLite(ctx context.Context, netuid uint16, uid uint16, block uint64) (*neuron.NeuronLite, error) {
	raw, err := c.call(ctx, "neuronInfo_getNeuronLite", []interface{}{netuid, uid, block})
	if err != nil {
		return nil, err
	}
	var n neuron.NeuronLite
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Endpoints reports each configured endpoint's URL and current health,
// backing the status API's /api/chain route.
func (c *Client) Endpoints() []EndpointState {
	out := make([]EndpointState, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		out = append(out, EndpointState{URL: ep.url, Healthy: ep.isHealthy()})
	}
	return out
}

// EndpointState is a snapshot of one endpoint's health for reporting.
type EndpointState struct {
	URL     string
	Healthy bool
}
