package rpc

import (
	"context"
	"time"

	"github.com/Mohsinsiddi/lsdredeem/internal/chain"
	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds a single endpoint probe.
const probeTimeout = 5 * time.Second

// Probe dials url and measures latency and head block.
func Probe(ctx context.Context, url string) Endpoint {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ep := Endpoint{URL: url}
	c, err := chain.Dial(ctx, url)
	if err != nil {
		ep.Err = err
		return ep
	}
	defer c.Close()

	ep.Latency, ep.BlockNumber, ep.Err = c.Ping(ctx)
	ep.Healthy = ep.Err == nil
	return ep
}

// ProbeAll probes every URL concurrently; the result preserves input order.
func ProbeAll(ctx context.Context, urls []string) []Endpoint {
	out := make([]Endpoint, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			out[i] = Probe(ctx, u)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return out
}

// Select probes urls and picks one. A single URL is returned without probing.
func (p *Picker) Select(ctx context.Context, urls []string) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}
	winner, err := p.Pick(ProbeAll(ctx, urls))
	if err != nil {
		return "", err
	}
	return winner.URL, nil
}

// SelectBest is a stateless Select for one-off lookups. An empty algorithm
// means fastest.
func SelectBest(ctx context.Context, urls []string, algorithm string) (string, error) {
	return NewPicker(Algorithm(algorithm)).Select(ctx, urls)
}
