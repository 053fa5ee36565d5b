// Package chaintest provides an in-process JSON-RPC node for tests.
package chaintest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Handler computes a result from raw request params. A non-nil error is
// returned to the client as a JSON-RPC error with code -32000.
type Handler func(params []json.RawMessage) (any, error)

// Node is a scripted JSON-RPC server. Responses are keyed by method; a value
// may be a static result or a Handler.
type Node struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]any
	calls     map[string]int
}

// NewNode starts a node that serves responses until the test ends.
func NewNode(t *testing.T, responses map[string]any) *Node {
	t.Helper()
	n := &Node{responses: make(map[string]any), calls: make(map[string]int)}
	for k, v := range responses {
		n.responses[k] = v
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// Set replaces the response for method.
func (n *Node) Set(method string, v any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responses[method] = v
}

// Calls reports how many times method was invoked.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	v, ok := n.responses[req.Method]
	n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case !ok:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found: " + req.Method}
	default:
		if h, isHandler := v.(Handler); isHandler {
			result, err := h(req.Params)
			if err != nil {
				resp["error"] = map[string]any{"code": -32000, "message": err.Error()}
				break
			}
			v = result
		}
		resp["result"] = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}

// Hex encodes n as a JSON-RPC quantity.
func Hex(n uint64) string { return fmt.Sprintf("0x%x", n) }

var zeroHash = "0x" + strings.Repeat("0", 64)

// Header returns a latest-block payload accepted by ethclient.
func Header(number, timestamp, baseFee uint64) map[string]any {
	return map[string]any{
		"parentHash":       zeroHash,
		"sha3Uncles":       "0x1dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347",
		"miner":            "0x0000000000000000000000000000000000000000",
		"stateRoot":        zeroHash,
		"transactionsRoot": zeroHash,
		"receiptsRoot":     zeroHash,
		"logsBloom":        "0x" + strings.Repeat("0", 512),
		"difficulty":       "0x0",
		"number":           Hex(number),
		"gasLimit":         Hex(30_000_000),
		"gasUsed":          Hex(0),
		"timestamp":        Hex(timestamp),
		"extraData":        "0x",
		"mixHash":          zeroHash,
		"nonce":            "0x0000000000000000",
		"baseFeePerGas":    Hex(baseFee),
		"hash":             "0x" + strings.Repeat("ab", 32),
	}
}

// Receipt returns a mined receipt payload with the given status (1 ok, 0 failed).
func Receipt(txHash string, status uint64) map[string]any {
	return map[string]any{
		"type":              "0x2",
		"status":            Hex(status),
		"cumulativeGasUsed": Hex(50_000),
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              []any{},
		"transactionHash":   txHash,
		"contractAddress":   nil,
		"gasUsed":           Hex(50_000),
		"effectiveGasPrice": Hex(1_000_000_000),
		"blockHash":         "0x" + strings.Repeat("cd", 32),
		"blockNumber":       Hex(100),
		"transactionIndex":  "0x0",
	}
}
