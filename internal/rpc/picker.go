package rpc

import (
	"errors"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no healthy RPC endpoint is available.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm defines how an RPC endpoint is selected.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Discard nodes more than this many blocks behind the best.
	staleBlockThreshold = 3
)

// Endpoint is one RPC URL with its probe results.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool
	Err         error
}

// Picker selects an endpoint according to its algorithm. Round-robin state
// survives across calls, so one Picker should live as long as its user.
type Picker struct {
	algo    Algorithm
	mu      sync.Mutex
	rrIndex int
}

// NewPicker creates a Picker; an unknown or empty algorithm means fastest.
func NewPicker(algo Algorithm) *Picker {
	switch algo {
	case AlgorithmFastest, AlgorithmRoundRobin, AlgorithmFailover:
	default:
		algo = AlgorithmFastest
	}
	return &Picker{algo: algo}
}

// Algorithm reports the picker's selection strategy.
func (p *Picker) Algorithm() Algorithm { return p.algo }

// Pick selects one endpoint from probed endpoints. Order matters for
// failover: earlier endpoints are preferred.
func (p *Picker) Pick(endpoints []Endpoint) (*Endpoint, error) {
	healthy := healthyEndpoints(endpoints)
	if len(healthy) == 0 {
		return nil, ErrNoHealthyRPC
	}

	switch p.algo {
	case AlgorithmRoundRobin:
		p.mu.Lock()
		defer p.mu.Unlock()
		idx := p.rrIndex % len(healthy)
		p.rrIndex = idx + 1
		return healthy[idx], nil
	case AlgorithmFailover:
		return healthy[0], nil
	default:
		return fastest(healthy), nil
	}
}

func fastest(candidates []*Endpoint) *Endpoint {
	var best uint64
	for _, e := range candidates {
		best = max(best, e.BlockNumber)
	}
	var winner *Endpoint
	var bestScore float64
	for _, e := range candidates {
		if s := score(e, best); winner == nil || s > bestScore {
			winner, bestScore = e, s
		}
	}
	return winner
}

// score favours low latency, then proximity to the best block.
func score(e *Endpoint, bestBlock uint64) float64 {
	var s float64
	if ms := e.Latency.Milliseconds(); ms > 0 {
		s += 1000.0 / float64(ms)
	} else {
		s += 1000.0
	}
	if bestBlock > 0 {
		s += float64(10) - float64(bestBlock-e.BlockNumber)
	}
	return s
}

// healthyEndpoints keeps healthy endpoints that are not stale relative to
// the highest block seen.
func healthyEndpoints(endpoints []Endpoint) []*Endpoint {
	var best uint64
	for _, e := range endpoints {
		if e.Healthy {
			best = max(best, e.BlockNumber)
		}
	}
	var out []*Endpoint
	for i := range endpoints {
		e := &endpoints[i]
		if !e.Healthy {
			continue
		}
		if best > 0 && best-e.BlockNumber > staleBlockThreshold {
			continue
		}
		out = append(out, e)
	}
	return out
}
