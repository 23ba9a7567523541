package valuation

import (
	"context"
	"fmt"

	"binamm-indexer/internal/storage"
)

// StoreRouter quotes execution paths over the tracked pool set. Each
// pool contributes a bidirectional edge priced at the latest hourly
// close; the quote is the best path product over at most maxHops
// edges. The quote is a marginal price: amountIn does not move it,
// depth is not modeled.
type StoreRouter struct {
	pools   storage.PoolStore
	buckets storage.BucketStore
}

// NewStoreRouter creates a router backed by the pool and bucket stores.
func NewStoreRouter(pools storage.PoolStore, buckets storage.BucketStore) *StoreRouter {
	return &StoreRouter{pools: pools, buckets: buckets}
}

type edge struct {
	to   string
	rate float64 // units of `to` per unit of `from`
}

// FindBestPath returns the best output-per-input price routing tokenIn
// to tokenOut through tracked pools.
func (r *StoreRouter) FindBestPath(ctx context.Context, tokenIn, tokenOut string, amountIn int64, maxHops int) (Quote, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	graph, err := r.buildGraph(ctx)
	if err != nil {
		return Quote{}, err
	}

	best := r.search(graph, tokenIn, tokenOut, maxHops, map[string]bool{tokenIn: true}, 1.0)
	if best <= 0 {
		return Quote{}, fmt.Errorf("no route from %s to %s", tokenIn, tokenOut)
	}
	return Quote{ExecutionPrice: best}, nil
}

func (r *StoreRouter) buildGraph(ctx context.Context) (map[string][]edge, error) {
	pools, err := r.pools.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	graph := make(map[string][]edge)
	for _, p := range pools {
		rows, err := r.buckets.GetLastN(ctx, p.Address, 1)
		if err != nil || len(rows) == 0 {
			continue // pool has no trades yet
		}
		last := rows[0].Close
		if last <= 0 {
			continue
		}
		t0, t1 := p.Token0.Address, p.Token1.Address
		graph[t0] = append(graph[t0], edge{to: t1, rate: last})
		graph[t1] = append(graph[t1], edge{to: t0, rate: 1 / last})
	}
	return graph, nil
}

func (r *StoreRouter) search(graph map[string][]edge, from, target string, hopsLeft int, visited map[string]bool, acc float64) float64 {
	if hopsLeft == 0 {
		return 0
	}

	var best float64
	for _, e := range graph[from] {
		if visited[e.to] {
			continue
		}
		if e.to == target {
			if p := acc * e.rate; p > best {
				best = p
			}
			continue
		}
		visited[e.to] = true
		if p := r.search(graph, e.to, target, hopsLeft-1, visited, acc*e.rate); p > best {
			best = p
		}
		delete(visited, e.to)
	}
	return best
}
